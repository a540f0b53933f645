package fetch

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// HubCLI shells out to the hub command-line client, which resumes partial
// downloads on its own and writes the standard cache layout.
type HubCLI struct {
	// Bin is the client executable, looked up on PATH when not absolute.
	Bin    string
	Token  string
	Logger zerolog.Logger
}

func (h *HubCLI) Name() string { return "hub-cli" }

func (h *HubCLI) bin() string {
	if h.Bin == "" {
		return "huggingface-cli"
	}
	return h.Bin
}

func (h *HubCLI) Download(ctx context.Context, cacheDir string, repo Repo, _ Progress) error {
	path, err := exec.LookPath(h.bin())
	if err != nil {
		return fmt.Errorf("hub client %q not found: %w", h.bin(), err)
	}
	cmd := exec.CommandContext(ctx, path, "download", repo.ID, "--cache-dir", cacheDir)
	cmd.Env = append(os.Environ(), "HF_HUB_ENABLE_HF_TRANSFER=0")
	if h.Token != "" {
		cmd.Env = append(cmd.Env, "HF_TOKEN="+h.Token)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}
	tail := &lineTail{max: 20}
	log := h.Logger.With().Str("repo", repo.ID).Str("transport", h.Name()).Logger()
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", path, err)
	}
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); pump(stdout, log, nil) }()
	go func() { defer wg.Done(); pump(stderr, log, tail) }()
	wg.Wait()
	if err := cmd.Wait(); err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			return fmt.Errorf("%s download %s exited %d: %s", h.bin(), repo.ID, ee.ExitCode(), tail.String())
		}
		return err
	}
	return nil
}

func pump(r io.Reader, log zerolog.Logger, tail *lineTail) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		log.Debug().Msg(line)
		if tail != nil {
			tail.add(line)
		}
	}
}

type lineTail struct {
	mu    sync.Mutex
	max   int
	lines []string
}

func (t *lineTail) add(s string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, s)
	if len(t.lines) > t.max {
		t.lines = t.lines[len(t.lines)-t.max:]
	}
}

func (t *lineTail) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.Join(t.lines, "\n")
}

// CheckDependencies reports whether the selected transport can run on this
// host. Only the hub CLI transport has an external requirement.
func CheckDependencies(t Transport) error {
	cli, ok := t.(*HubCLI)
	if !ok {
		return nil
	}
	if _, err := exec.LookPath(cli.bin()); err != nil {
		return fmt.Errorf("missing required program %q (install with: pip install huggingface_hub): %w", cli.bin(), err)
	}
	return nil
}
