package fetch

import (
	"io/fs"
	"path/filepath"
	"strings"

	"qwenedit/internal/registry"
)

// RepoStatus reports what the cache holds for one repository.
type RepoStatus struct {
	Repo     Repo
	Complete bool
	// Path is the snapshot directory holding the marker, or the repository
	// directory when no marker was found.
	Path        string
	WeightFiles int
}

// Status inspects the cache for each repository without any network work.
func (f *Fetcher) Status(repos []Repo) []RepoStatus {
	out := make([]RepoStatus, 0, len(repos))
	for _, r := range repos {
		out = append(out, f.status(r))
	}
	return out
}

func (f *Fetcher) status(repo Repo) RepoStatus {
	return StatusOf(f.opts.CacheDir, repo)
}

// StatusOf inspects cacheDir for repo.
func StatusOf(cacheDir string, repo Repo) RepoStatus {
	root := registry.RepoDir(cacheDir, repo.ID)
	st := RepoStatus{Repo: repo, Path: root}
	markerDir := ""
	_ = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() || strings.HasSuffix(d.Name(), incompleteSuffix) {
			return nil
		}
		switch {
		case d.Name() == "model_index.json":
			if markerDir == "" {
				markerDir = filepath.Dir(p)
			}
		case isWeightFile(d.Name()):
			st.WeightFiles++
			if repo.Kind == KindCompressed && markerDir == "" {
				markerDir = filepath.Dir(p)
			}
		}
		return nil
	})
	switch repo.Kind {
	case KindBase:
		st.Complete = markerDir != ""
	case KindCompressed:
		st.Complete = st.WeightFiles > 0
	}
	if markerDir != "" {
		st.Path = markerDir
	}
	return st
}

func isWeightFile(name string) bool {
	return strings.HasSuffix(name, ".safetensors") || strings.HasSuffix(name, ".bin")
}
