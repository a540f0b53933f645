package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "fake-hub-cli")
	require.NoError(t, os.WriteFile(p, []byte("#!/bin/sh\n"+body), 0o755))
	return p
}

const fakeCLI = `[ "$1" = "download" ] || exit 2
[ "$3" = "--cache-dir" ] || exit 2
d="$4/models--$(echo "$2" | sed 's#/#--#')/snapshots/s"
mkdir -p "$d"
echo '{}' > "$d/model_index.json"
echo 'w' > "$d/weights.safetensors"
echo "fetched $2"
`

func TestHubCLIDownload(t *testing.T) {
	cli := &HubCLI{Bin: writeScript(t, fakeCLI), Logger: zerolog.Nop()}
	require.NoError(t, CheckDependencies(cli))

	f := newFetcher(t, t.TempDir(), cli)
	res, err := f.Fetch(context.Background(), testRepos())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Succeeded)
	for _, st := range f.Status(testRepos()) {
		assert.True(t, st.Complete, st.Repo.ID)
	}
}

func TestHubCLIFailureCarriesStderr(t *testing.T) {
	cli := &HubCLI{Bin: writeScript(t, "echo 'repository not found' >&2\nexit 3\n"), Logger: zerolog.Nop()}
	err := cli.Download(context.Background(), t.TempDir(), testRepos()[0], NoProgress{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exited 3")
	assert.Contains(t, err.Error(), "repository not found")
}

func TestCheckDependenciesMissingCLI(t *testing.T) {
	err := CheckDependencies(&HubCLI{Bin: "definitely-not-a-real-hub-cli-binary"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pip install")
	require.NoError(t, CheckDependencies(NewHubHTTP("http://x", "", 1)))
}

// fakeS3 answers ListObjectsV2 and GetObject for one path-style bucket.
func fakeS3(t *testing.T, bucket string, objects map[string]string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := strings.TrimPrefix(r.URL.Path, "/")
		if p == bucket && r.URL.Query().Get("list-type") == "2" {
			prefix := r.URL.Query().Get("prefix")
			var b strings.Builder
			b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">`)
			fmt.Fprintf(&b, "<Name>%s</Name><Prefix>%s</Prefix><IsTruncated>false</IsTruncated>", bucket, prefix)
			n := 0
			for k, v := range objects {
				if strings.HasPrefix(k, prefix) {
					fmt.Fprintf(&b, "<Contents><Key>%s</Key><Size>%d</Size></Contents>", k, len(v))
					n++
				}
			}
			fmt.Fprintf(&b, "<KeyCount>%d</KeyCount></ListBucketResult>", n)
			w.Header().Set("Content-Type", "application/xml")
			_, _ = io.WriteString(w, b.String())
			return
		}
		key, ok := strings.CutPrefix(p, bucket+"/")
		body, found := objects[key]
		if !ok || !found {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `<Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`)
			return
		}
		w.Header().Set("Content-Length", fmt.Sprint(len(body)))
		_, _ = io.WriteString(w, body)
	}))
}

func TestS3MirrorDownload(t *testing.T) {
	srv := fakeS3(t, "weights", map[string]string{
		"mirror/Qwen/Qwen-Image-Edit/model_index.json":                   "{}",
		"mirror/Qwen/Qwen-Image-Edit/transformer/config.json":            `{"a":1}`,
		"mirror/DFloat11/Qwen-Image-Edit-DF11/model.safetensors":         "df11",
		"mirror/DFloat11/Qwen-Image-Edit-DF11/config.json":               "{}",
		"other/DFloat11/Qwen-Image-Edit-DF11/should-not-be-fetched.json": "{}",
	})
	defer srv.Close()

	m := NewS3Mirror(S3Options{
		Bucket:          "weights",
		Prefix:          "/mirror/",
		Endpoint:        srv.URL,
		AccessKeyID:     "test",
		SecretAccessKey: "test",
		Parallel:        2,
	})
	dir := t.TempDir()
	f := newFetcher(t, dir, m)
	res, err := f.Fetch(context.Background(), testRepos())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Succeeded)

	snap := filepath.Join(dir, "models--Qwen--Qwen-Image-Edit", "snapshots", s3Snapshot)
	b, err := os.ReadFile(filepath.Join(snap, "transformer", "config.json"))
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(b))
	assert.NoFileExists(t, filepath.Join(dir, "models--DFloat11--Qwen-Image-Edit-DF11", "snapshots", s3Snapshot, "should-not-be-fetched.json"))
}

func TestS3MirrorEmptyPrefix(t *testing.T) {
	srv := fakeS3(t, "weights", map[string]string{})
	defer srv.Close()
	m := NewS3Mirror(S3Options{Bucket: "weights", Endpoint: srv.URL, AccessKeyID: "k", SecretAccessKey: "s"})
	err := m.Download(context.Background(), t.TempDir(), testRepos()[0], NoProgress{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no objects")
}

func TestBarProgressTracksReads(t *testing.T) {
	bp := NewBarProgress(io.Discard)
	fp := bp.File("DFloat11/Qwen-Image-Edit-DF11", "model.safetensors", 10, 4)
	n, err := io.Copy(io.Discard, fp.Reader(strings.NewReader("abcdef")))
	require.NoError(t, err)
	assert.EqualValues(t, 6, n)
	fp.Finish(nil)

	failed := bp.File("Qwen/Qwen-Image-Edit", "x.bin", 0, 0)
	failed.Finish(assert.AnError)
	bp.Wait()
}
