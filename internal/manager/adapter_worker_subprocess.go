package manager

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// SubprocessConfig describes how to spawn a pipeline worker.
type SubprocessConfig struct {
	// Cmd is the worker command line. --host and --port are appended.
	Cmd  []string
	Host string
	// Env is added to the inherited environment.
	Env          []string
	ReadyTimeout time.Duration
	StopTimeout  time.Duration
	Publisher    EventPublisher
	Logger       zerolog.Logger
}

type workerProc struct {
	cmd    *exec.Cmd
	waitCh chan error
	tail   *tailBuffer
	stop   sync.Once
	cfg    SubprocessConfig
}

// NewSubprocessRuntime spawns the worker on a free local port and waits until
// it answers its health check. The returned Runtime stops the process on
// Close.
func NewSubprocessRuntime(ctx context.Context, cfg SubprocessConfig) (Runtime, error) {
	if len(cfg.Cmd) == 0 || strings.TrimSpace(cfg.Cmd[0]) == "" {
		return nil, ErrDependencyUnavailable("no pipeline worker command configured")
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = 2 * time.Minute
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 5 * time.Second
	}
	if cfg.Publisher == nil {
		cfg.Publisher = noopPublisher{}
	}
	bin, err := exec.LookPath(cfg.Cmd[0])
	if err != nil {
		return nil, ErrDependencyUnavailable(fmt.Sprintf("pipeline worker %q not found: %v", cfg.Cmd[0], err))
	}
	port, err := pickFreePort(cfg.Host)
	if err != nil {
		return nil, err
	}
	baseURL := "http://" + net.JoinHostPort(cfg.Host, strconv.Itoa(port))
	log := cfg.Logger.With().Str("component", "worker").Logger()

	args := append(append([]string{}, cfg.Cmd[1:]...), "--host", cfg.Host, "--port", strconv.Itoa(port))
	cmd := exec.Command(bin, args...)
	cmd.Env = append(os.Environ(), cfg.Env...)
	p := &workerProc{cmd: cmd, waitCh: make(chan error, 1), tail: newTailBuffer(4096), cfg: cfg}
	// Wait copies stderr to completion, so the tail is whole once it returns.
	cmd.Stderr = &stderrLog{tail: p.tail, log: log}
	if err := cmd.Start(); err != nil {
		return nil, ErrDependencyUnavailable(fmt.Sprintf("start pipeline worker: %v", err))
	}
	go func() { p.waitCh <- cmd.Wait() }()

	pid := cmd.Process.Pid
	log.Info().Int("pid", pid).Str("url", baseURL).Strs("cmd", cfg.Cmd).Msg("worker started")
	cfg.Publisher.Publish(Event{Name: EventWorkerStart, Fields: map[string]any{"pid": pid, "url": baseURL}})

	client := newWorkerClient(baseURL, time.Second)
	client.onClose = p.stopProcess
	if err := p.waitReady(ctx, client); err != nil {
		_ = p.stopProcess()
		log.Error().Err(err).Int("pid", pid).Msg("worker failed to become ready")
		return nil, err
	}
	log.Info().Int("pid", pid).Msg("worker ready")
	cfg.Publisher.Publish(Event{Name: EventWorkerReady, Fields: map[string]any{"pid": pid, "url": baseURL}})
	return client, nil
}

// stderrLog keeps a tail of the worker's stderr and logs it at debug level.
type stderrLog struct {
	tail *tailBuffer
	log  zerolog.Logger
}

func (w *stderrLog) Write(b []byte) (int, error) {
	w.tail.WriteString(string(b))
	for _, line := range strings.Split(strings.TrimRight(string(b), "\n"), "\n") {
		if line != "" {
			w.log.Debug().Msg(line)
		}
	}
	return len(b), nil
}

// waitReady polls the health endpoint until it answers, the process exits,
// the deadline passes, or ctx is done.
func (p *workerProc) waitReady(ctx context.Context, c *workerClient) error {
	deadline := time.NewTimer(p.cfg.ReadyTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case werr := <-p.waitCh:
			// Put it back so stopProcess does not block.
			p.waitCh <- werr
			if werr == nil {
				werr = errors.New("exited with status 0")
			}
			p.cfg.Publisher.Publish(Event{Name: EventWorkerExit, Fields: map[string]any{"pid": p.cmd.Process.Pid, "error": werr.Error()}})
			return ErrDependencyUnavailable(fmt.Sprintf("pipeline worker exited before ready: %v; stderr tail: %s", werr, p.tail.String()))
		case <-deadline.C:
			p.cfg.Publisher.Publish(Event{Name: EventWorkerTimeout, Fields: map[string]any{"pid": p.cmd.Process.Pid}})
			return ErrDependencyUnavailable(fmt.Sprintf("pipeline worker not ready after %s", p.cfg.ReadyTimeout))
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
			hctx, cancel := context.WithTimeout(ctx, time.Second)
			ok := c.healthy(hctx)
			cancel()
			if ok {
				return nil
			}
		}
	}
}

// stopProcess sends SIGTERM and falls back to SIGKILL after StopTimeout.
func (p *workerProc) stopProcess() error {
	p.stop.Do(func() {
		if p.cmd.Process == nil {
			return
		}
		_ = p.cmd.Process.Signal(syscall.SIGTERM)
		select {
		case <-p.waitCh:
		case <-time.After(p.cfg.StopTimeout):
			_ = p.cmd.Process.Kill()
			<-p.waitCh
		}
		p.cfg.Publisher.Publish(Event{Name: EventWorkerStop, Fields: map[string]any{"pid": p.cmd.Process.Pid}})
	})
	return nil
}
