package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"qwenedit/internal/config"
	"qwenedit/internal/imaging"
	"qwenedit/internal/registry"
	"qwenedit/pkg/types"
)

// clearEnv blanks the variables config.ApplyEnv reads so the host
// environment cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"HF_HOME", "QWENEDIT_CACHE_DIR", "DEVICE", "MODEL_NAME", "QWENEDIT_LOG_LEVEL",
		"QWENEDIT_WORKER_URL", "QWENEDIT_WORKER_CMD", "QWENEDIT_FETCH_TRANSPORT", "CPU_OFFLOAD"} {
		t.Setenv(k, "")
	}
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func exitCode(err error) int {
	var ee exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	if err != nil {
		return 1
	}
	return 0
}

func TestStatusMissing(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	out, err := run(t, "status", "--cache-dir", dir, "--log-format", "json")
	if exitCode(err) != 1 {
		t.Fatalf("expected exit 1, got %v", err)
	}
	if !strings.Contains(out, "Cache: "+dir) || !strings.Contains(out, "0/2 repositories complete") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestStatusComplete(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	p, _ := registry.Lookup(registry.DefaultModelID)
	base := filepath.Join(registry.RepoDir(dir, p.ModelID), "snapshots", "abc")
	comp := filepath.Join(registry.RepoDir(dir, p.CompressedID), "snapshots", "def")
	for _, f := range []string{filepath.Join(base, "model_index.json"), filepath.Join(comp, "diffusion_pytorch_model.safetensors")} {
		if err := os.MkdirAll(filepath.Dir(f), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(f, []byte("{}"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	out, err := run(t, "status", "--cache-dir", dir)
	if err != nil {
		t.Fatalf("status: %v\n%s", err, out)
	}
	if !strings.Contains(out, "2/2 repositories complete") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestConfigPrecedence(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	file := filepath.Join(dir, "qwenedit.yaml")
	if err := os.WriteFile(file, []byte("device: cpu\ncache_dir: "+filepath.Join(dir, "from-file")+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	// File alone.
	out, _ := run(t, "status", "--config", file)
	if !strings.Contains(out, filepath.Join(dir, "from-file")) {
		t.Fatalf("config file cache dir not used:\n%s", out)
	}
	// Environment beats the file.
	t.Setenv("HF_HOME", filepath.Join(dir, "from-env"))
	out, _ = run(t, "status", "--config", file)
	if !strings.Contains(out, filepath.Join(dir, "from-env")) {
		t.Fatalf("environment cache dir not used:\n%s", out)
	}
	// Flags beat both.
	out, _ = run(t, "status", "--config", file, "--cache-dir", filepath.Join(dir, "from-flag"))
	if !strings.Contains(out, filepath.Join(dir, "from-flag")) {
		t.Fatalf("flag cache dir not used:\n%s", out)
	}
}

func TestInvalidConfigRejected(t *testing.T) {
	clearEnv(t)
	_, err := run(t, "status", "--cache-dir", t.TempDir(), "--device", "tpu")
	if err == nil || !strings.Contains(err.Error(), "device") {
		t.Fatalf("expected device error, got %v", err)
	}
	var ee exitError
	if errors.As(err, &ee) {
		t.Fatalf("configuration errors are not exit codes: %v", err)
	}
}

func TestRuntimeFactorySelection(t *testing.T) {
	cfg := config.Default()
	if runtimeFactory(cfg, testLogger(), nil) != nil {
		t.Fatalf("no worker configured should yield a nil factory")
	}
	cfg.WorkerURL = "http://127.0.0.1:1"
	f := runtimeFactory(cfg, testLogger(), nil)
	if f == nil {
		t.Fatalf("worker url should yield a factory")
	}
	rt, err := f(context.Background())
	if err != nil || rt == nil {
		t.Fatalf("remote runtime: %v", err)
	}
	_ = rt.Close()
}

func TestConfirmFunc(t *testing.T) {
	if confirmFunc(false, strings.NewReader("y\n"), &bytes.Buffer{}) != nil {
		t.Fatalf("non-interactive confirm must be nil")
	}
	var prompt bytes.Buffer
	yes := confirmFunc(true, strings.NewReader("Y\n"), &prompt)
	if !yes(1<<30, 35<<30) {
		t.Fatalf("expected yes")
	}
	if !strings.Contains(prompt.String(), "Continue anyway? [y/N]") || !strings.Contains(prompt.String(), "35 GiB") {
		t.Fatalf("unexpected prompt: %q", prompt.String())
	}
	if confirmFunc(true, strings.NewReader("\n"), &bytes.Buffer{})(1, 2) {
		t.Fatalf("empty answer must decline")
	}
}

func TestNewLoggerFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "qwenedit.log")
	cfg := config.Default()
	cfg.LogLevel = "debug"
	log, closer, err := newLogger(cfg, path, os.Stderr)
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	log.Debug().Str("k", "v").Msg("hello")
	if err := closer.Close(); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(b), &line); err != nil {
		t.Fatalf("log file is not JSON: %q", b)
	}
	if line["message"] != "hello" || line["level"] != "debug" {
		t.Fatalf("unexpected log line: %v", line)
	}
}

func testLogger() zerolog.Logger { return zerolog.Nop() }

func fakeService(t *testing.T, loaded bool) string {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		status := "unhealthy"
		if loaded {
			status = "healthy"
		}
		_ = json.NewEncoder(w).Encode(types.HealthResponse{Status: status, ModelLoaded: loaded, ModelInfo: map[string]any{}})
	})
	mux.HandleFunc("/models", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(types.ModelsResponse{AvailableModels: []string{"qwen-image-edit"}, Capabilities: []string{"image_editing"}})
	})
	mux.HandleFunc("/process", func(w http.ResponseWriter, r *http.Request) {
		var req types.ProcessRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		img, err := imaging.DecodeBase64Image(req.ImageBase64)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		b64, _ := imaging.EncodeBase64PNG(img)
		_ = json.NewEncoder(w).Encode(types.ProcessResponse{Success: true, ProcessedImageBase64: b64, ModelUsed: "Qwen/Qwen-Image-Edit"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestVerifyPasses(t *testing.T) {
	clearEnv(t)
	save := filepath.Join(t.TempDir(), "out.png")
	out, err := run(t, "verify", "--url", fakeService(t, true), "--save", save, "--cache-dir", t.TempDir(), "--log-format", "json")
	if err != nil {
		t.Fatalf("verify: %v\n%s", err, out)
	}
	if !strings.Contains(out, "all checks passed") {
		t.Fatalf("unexpected output:\n%s", out)
	}
	if _, err := os.Stat(save); err != nil {
		t.Fatalf("result not saved: %v", err)
	}
}

func TestVerifyFailsWhenModelNotLoaded(t *testing.T) {
	clearEnv(t)
	out, err := run(t, "verify", "--url", fakeService(t, false), "--json", "--cache-dir", t.TempDir(), "--log-format", "json")
	if exitCode(err) != 1 {
		t.Fatalf("expected exit 1, got %v", err)
	}
	if !strings.Contains(out, `"status": "skip"`) {
		t.Fatalf("process check should be skipped:\n%s", out)
	}
}
