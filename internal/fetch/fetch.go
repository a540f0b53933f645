// Package fetch ensures that a model's base repository and its compressed
// weights repository are present in a local cache directory.
//
// A Fetcher checks completion markers first and only transfers what is
// missing, so repeated calls against a complete cache do no network work.
// Repositories are attempted independently; a failure in one does not stop
// the others and partial state is left in place for the next attempt.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"qwenedit/internal/common/fsutil"
	"qwenedit/internal/registry"
)

// Kind selects the completion marker used for a repository.
type Kind int

const (
	// KindBase repositories are complete once a model_index.json exists.
	KindBase Kind = iota
	// KindCompressed repositories are complete once at least one weights
	// file (*.safetensors or *.bin) exists.
	KindCompressed
)

func (k Kind) String() string {
	switch k {
	case KindBase:
		return "base"
	case KindCompressed:
		return "compressed"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Repo is one hub repository to fetch.
type Repo struct {
	ID          string
	Description string
	Kind        Kind
}

// ReposFor returns the two repositories a pairing needs, base first.
func ReposFor(p registry.Pairing) []Repo {
	return []Repo{
		{ID: p.ModelID, Description: "Base " + p.Alias + " model", Kind: KindBase},
		{ID: p.CompressedID, Description: "DFloat11 compressed weights", Kind: KindCompressed},
	}
}

// Transport downloads one repository into cacheDir using the hub cache
// layout (models--Org--Name/...).
type Transport interface {
	Name() string
	Download(ctx context.Context, cacheDir string, repo Repo, progress Progress) error
}

// ErrInsufficientDisk is returned when free space is below the threshold and
// the operator did not override the check.
var ErrInsufficientDisk = errors.New("insufficient disk space")

// Options configures a Fetcher.
type Options struct {
	CacheDir  string
	Transport Transport
	// MinFreeBytes is the free-space precondition; zero disables the check.
	MinFreeBytes uint64
	// Override skips the free-space precondition.
	Override bool
	// Confirm is asked whether to continue when free space is short. A nil
	// Confirm declines.
	Confirm  func(free, need uint64) bool
	Progress Progress
	Logger   zerolog.Logger
	// FreeBytes reports free space for a path; defaults to fsutil.FreeBytes.
	FreeBytes func(path string) (uint64, error)
}

// Fetcher coordinates status checks and downloads.
type Fetcher struct {
	opts Options
	log  zerolog.Logger
}

// New returns a Fetcher. CacheDir and Transport are required.
func New(opts Options) (*Fetcher, error) {
	if strings.TrimSpace(opts.CacheDir) == "" {
		return nil, errors.New("fetch: cache dir is required")
	}
	if opts.Transport == nil {
		return nil, errors.New("fetch: transport is required")
	}
	if opts.Progress == nil {
		opts.Progress = NoProgress{}
	}
	if opts.FreeBytes == nil {
		opts.FreeBytes = fsutil.FreeBytes
	}
	dir, err := fsutil.AbsDir(opts.CacheDir)
	if err != nil {
		return nil, err
	}
	opts.CacheDir = dir
	return &Fetcher{opts: opts, log: opts.Logger.With().Str("component", "fetch").Logger()}, nil
}

// CacheDir returns the absolute cache directory.
func (f *Fetcher) CacheDir() string { return f.opts.CacheDir }

// RepoFailure records why one repository could not be fetched.
type RepoFailure struct {
	Repo Repo
	Err  error
}

// Result summarizes a Fetch call.
type Result struct {
	Succeeded int
	Total     int
	// Skipped counts repositories that were already complete.
	Skipped  int
	Failures []RepoFailure
	// CacheBytes is the cache size after the run.
	CacheBytes int64
}

// OK reports whether every repository is present.
func (r Result) OK() bool { return r.Total > 0 && r.Succeeded == r.Total }

// Fetch ensures every repository in repos is complete. It returns an error
// unless all of them are.
func (f *Fetcher) Fetch(ctx context.Context, repos []Repo) (Result, error) {
	res := Result{Total: len(repos)}
	statuses := f.Status(repos)
	var pending []Repo
	for i, st := range statuses {
		if st.Complete {
			res.Succeeded++
			res.Skipped++
			f.log.Info().Str("repo", repos[i].ID).Str("path", st.Path).Msg("already present")
			continue
		}
		pending = append(pending, repos[i])
	}
	if len(pending) == 0 {
		f.log.Info().Int("repos", res.Total).Msg("all repositories present; nothing to do")
		res.CacheBytes = f.cacheSize()
		return res, nil
	}

	if err := os.MkdirAll(f.opts.CacheDir, 0o755); err != nil {
		return res, fmt.Errorf("create cache dir: %w", err)
	}
	if err := f.checkDisk(); err != nil {
		return res, err
	}

	f.log.Info().Int("pending", len(pending)).Int("total", res.Total).Str("transport", f.opts.Transport.Name()).Str("cache_dir", f.opts.CacheDir).Msg("starting download")
	for _, repo := range pending {
		if err := ctx.Err(); err != nil {
			res.Failures = append(res.Failures, RepoFailure{Repo: repo, Err: err})
			continue
		}
		if err := f.fetchOne(ctx, repo); err != nil {
			res.Failures = append(res.Failures, RepoFailure{Repo: repo, Err: err})
			continue
		}
		res.Succeeded++
	}
	res.CacheBytes = f.cacheSize()

	f.log.Info().Int("succeeded", res.Succeeded).Int("total", res.Total).Str("cache_size", humanize.IBytes(uint64(max(res.CacheBytes, 0)))).Msg("download finished")
	if !res.OK() {
		return res, fmt.Errorf("fetched %d/%d repositories", res.Succeeded, res.Total)
	}
	return res, nil
}

func (f *Fetcher) fetchOne(ctx context.Context, repo Repo) error {
	log := f.log.With().Str("repo", repo.ID).Str("kind", repo.Kind.String()).Logger()
	if !registry.ValidRepoID(repo.ID) {
		err := fmt.Errorf("invalid repository id %q", repo.ID)
		log.Error().Err(err).Msg("download failed")
		return err
	}
	log.Info().Str("description", repo.Description).Msg("downloading")
	start := time.Now()
	if err := f.opts.Transport.Download(ctx, f.opts.CacheDir, repo, f.opts.Progress); err != nil {
		log.Error().Err(err).Dur("duration", time.Since(start)).Msg("download failed")
		return err
	}
	st := f.status(repo)
	if !st.Complete {
		err := fmt.Errorf("%s: download finished but completion marker is missing", repo.ID)
		log.Error().Err(err).Msg("download incomplete")
		return err
	}
	log.Info().Str("path", st.Path).Dur("duration", time.Since(start)).Int("weight_files", st.WeightFiles).Msg("downloaded")
	return nil
}

func (f *Fetcher) checkDisk() error {
	need := f.opts.MinFreeBytes
	if need == 0 {
		return nil
	}
	free, err := f.opts.FreeBytes(f.opts.CacheDir)
	if err != nil {
		f.log.Warn().Err(err).Msg("could not determine free disk space")
		return nil
	}
	f.log.Info().Str("free", humanize.IBytes(free)).Str("need", humanize.IBytes(need)).Msg("disk space")
	if free >= need {
		return nil
	}
	if f.opts.Override {
		f.log.Warn().Str("free", humanize.IBytes(free)).Msg("low disk space; continuing due to override")
		return nil
	}
	if f.opts.Confirm != nil && f.opts.Confirm(free, need) {
		f.log.Warn().Str("free", humanize.IBytes(free)).Msg("low disk space; continuing after confirmation")
		return nil
	}
	return fmt.Errorf("%w: need %s, have %s", ErrInsufficientDisk, humanize.IBytes(need), humanize.IBytes(free))
}

func (f *Fetcher) cacheSize() int64 {
	n, err := fsutil.DirSize(f.opts.CacheDir)
	if err != nil {
		return 0
	}
	return n
}
