package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"qwenedit/internal/registry"
)

const incompleteSuffix = ".incomplete"

// HubHTTP downloads repositories directly from the hub's HTTP API. Files are
// written under models--Org--Name/snapshots/<sha>/ and refs/<revision> is
// updated once every file is in place. Interrupted files resume with a
// Range request.
type HubHTTP struct {
	Endpoint string
	Token    string
	Revision string
	// Parallel bounds concurrent file transfers per repository.
	Parallel int
	Client   *http.Client
}

// NewHubHTTP returns a transport against endpoint (e.g. https://huggingface.co).
func NewHubHTTP(endpoint, token string, parallel int) *HubHTTP {
	return &HubHTTP{Endpoint: endpoint, Token: token, Parallel: parallel}
}

func (h *HubHTTP) Name() string { return "hub-http" }

type repoInfo struct {
	SHA      string `json:"sha"`
	Siblings []struct {
		RFilename string `json:"rfilename"`
	} `json:"siblings"`
}

func (h *HubHTTP) client() *http.Client {
	if h.Client != nil {
		return h.Client
	}
	// No overall timeout: multi-gigabyte files are bounded by ctx instead.
	return &http.Client{Timeout: 0}
}

func (h *HubHTTP) revision() string {
	if h.Revision == "" {
		return "main"
	}
	return h.Revision
}

func (h *HubHTTP) newRequest(ctx context.Context, u string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	if h.Token != "" {
		req.Header.Set("Authorization", "Bearer "+h.Token)
	}
	return req, nil
}

func (h *HubHTTP) Download(ctx context.Context, cacheDir string, repo Repo, progress Progress) error {
	info, err := h.info(ctx, repo.ID)
	if err != nil {
		return err
	}
	if info.SHA == "" || strings.ContainsAny(info.SHA, "/\\.") {
		return fmt.Errorf("%s: revision %s has no usable commit sha (%q)", repo.ID, h.revision(), info.SHA)
	}
	root := registry.RepoDir(cacheDir, repo.ID)
	snap := filepath.Join(root, "snapshots", info.SHA)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(h.Parallel, 1))
	for _, s := range info.Siblings {
		name := s.RFilename
		dst, err := safeJoin(snap, name)
		if err != nil {
			return fmt.Errorf("%s: %w", repo.ID, err)
		}
		g.Go(func() error {
			return h.downloadFile(gctx, repo.ID, info.SHA, name, dst, progress)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	refs := filepath.Join(root, "refs")
	if err := os.MkdirAll(refs, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(refs, h.revision()), []byte(info.SHA), 0o644)
}

func (h *HubHTTP) info(ctx context.Context, repoID string) (repoInfo, error) {
	var info repoInfo
	u := strings.TrimRight(h.Endpoint, "/") + "/api/models/" + repoID + "/revision/" + url.PathEscape(h.revision())
	req, err := h.newRequest(ctx, u)
	if err != nil {
		return info, err
	}
	resp, err := h.client().Do(req)
	if err != nil {
		return info, fmt.Errorf("%s: revision lookup: %w", repoID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return info, fmt.Errorf("%s: revision lookup: http %d: %s", repoID, resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return info, fmt.Errorf("%s: decode revision: %w", repoID, err)
	}
	return info, nil
}

func (h *HubHTTP) downloadFile(ctx context.Context, repoID, sha, name, dst string, progress Progress) (err error) {
	if _, statErr := os.Stat(dst); statErr == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	part := dst + incompleteSuffix
	var offset int64
	if fi, statErr := os.Stat(part); statErr == nil {
		offset = fi.Size()
	}

	u := strings.TrimRight(h.Endpoint, "/") + "/" + repoID + "/resolve/" + sha + "/" + escapePath(name)
	req, err := h.newRequest(ctx, u)
	if err != nil {
		return err
	}
	if offset > 0 {
		req.Header.Set("Range", "bytes="+strconv.FormatInt(offset, 10)+"-")
	}
	resp, err := h.client().Do(req)
	if err != nil {
		return fmt.Errorf("%s/%s: %w", repoID, name, err)
	}
	defer resp.Body.Close()

	flags := os.O_CREATE | os.O_WRONLY
	switch resp.StatusCode {
	case http.StatusPartialContent:
		flags |= os.O_APPEND
	case http.StatusOK:
		offset = 0
		flags |= os.O_TRUNC
	case http.StatusRequestedRangeNotSatisfiable:
		// Partial file already holds every byte.
		return os.Rename(part, dst)
	default:
		return fmt.Errorf("%s/%s: http %d", repoID, name, resp.StatusCode)
	}

	var size int64
	if resp.ContentLength >= 0 {
		size = offset + resp.ContentLength
	}
	fp := progress.File(repoID, name, size, offset)
	defer func() { fp.Finish(err) }()

	f, err := os.OpenFile(part, flags, 0o644)
	if err != nil {
		return err
	}
	if _, err = io.Copy(f, fp.Reader(resp.Body)); err != nil {
		f.Close()
		return fmt.Errorf("%s/%s: %w", repoID, name, err)
	}
	if err = f.Close(); err != nil {
		return err
	}
	return os.Rename(part, dst)
}

func escapePath(name string) string {
	parts := strings.Split(name, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

// safeJoin joins a repository-relative file name under dir, refusing names
// that would escape it.
func safeJoin(dir, name string) (string, error) {
	if name == "" || filepath.IsAbs(name) {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	p := filepath.Join(dir, filepath.FromSlash(name))
	rel, err := filepath.Rel(dir, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errors.New("file name escapes snapshot: " + name)
	}
	return p, nil
}
