package registry

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// Pairing binds a base model repository to the compressed-weights repository
// built for it. Pairings are fixed; nothing is discovered at runtime.
type Pairing struct {
	ModelID          string
	CompressedID     string
	Alias            string
	Description      string
	ModelType        string
	CompressionRatio string
	EstimatedSize    string
}

var pairings = []Pairing{
	{
		ModelID:          "Qwen/Qwen-Image-Edit",
		CompressedID:     "DFloat11/Qwen-Image-Edit-DF11",
		Alias:            "qwen-image-edit",
		Description:      "Qwen-Image-Edit with DFloat11 compressed transformer weights",
		ModelType:        "dfloat11_compressed_diffusion_pipeline",
		CompressionRatio: "32% smaller than original",
		EstimatedSize:    "28.43 GB",
	},
}

// DefaultModelID is used when configuration does not name a model.
const DefaultModelID = "Qwen/Qwen-Image-Edit"

// Lookup returns the pairing for a model id or alias.
func Lookup(id string) (Pairing, error) {
	id = strings.TrimSpace(id)
	for _, p := range pairings {
		if strings.EqualFold(p.ModelID, id) || strings.EqualFold(p.Alias, id) {
			return p, nil
		}
	}
	return Pairing{}, fmt.Errorf("no compressed weights known for model %q", id)
}

// Aliases lists the short names of every known pairing, sorted.
func Aliases() []string {
	out := make([]string, 0, len(pairings))
	for _, p := range pairings {
		out = append(out, p.Alias)
	}
	sort.Strings(out)
	return out
}

// RepoDirName maps a hub repository id to its cache directory name,
// e.g. "Qwen/Qwen-Image-Edit" -> "models--Qwen--Qwen-Image-Edit".
func RepoDirName(repoID string) string {
	return "models--" + strings.ReplaceAll(strings.Trim(repoID, "/"), "/", "--")
}

// RepoDir returns the cache directory for repoID under cacheDir.
func RepoDir(cacheDir, repoID string) string {
	return filepath.Join(cacheDir, RepoDirName(repoID))
}

// ValidRepoID reports whether id looks like "org/name".
func ValidRepoID(id string) bool {
	parts := strings.Split(id, "/")
	if len(parts) != 2 {
		return false
	}
	for _, p := range parts {
		if p == "" || p == "." || p == ".." || strings.ContainsAny(p, " \\") {
			return false
		}
	}
	return true
}
