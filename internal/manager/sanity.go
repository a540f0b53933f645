package manager

import (
	"context"
	"os/exec"
	"time"
)

// SanityReport describes runtime checks for external dependencies.
type SanityReport struct {
	WorkerMode  string `json:"worker_mode"`
	WorkerFound bool   `json:"worker_found"`
	WorkerPath  string `json:"worker_path,omitempty"`
	Error       string `json:"error,omitempty"`
}

// SanityCheck validates that the configured pipeline worker can be reached
// or spawned. It does not mutate state.
func SanityCheck(ctx context.Context, workerCmd []string, workerURL string) SanityReport {
	switch {
	case workerURL != "":
		r := SanityReport{WorkerMode: "remote", WorkerPath: workerURL}
		c := newWorkerClient(workerURL, time.Second)
		defer c.httpClient.CloseIdleConnections()
		hctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if c.healthy(hctx) {
			r.WorkerFound = true
		} else {
			r.Error = "worker health check failed"
		}
		return r
	case len(workerCmd) > 0:
		r := SanityReport{WorkerMode: "subprocess"}
		p, err := exec.LookPath(workerCmd[0])
		if err != nil {
			r.WorkerPath = workerCmd[0]
			r.Error = err.Error()
			return r
		}
		r.WorkerFound = true
		r.WorkerPath = p
		return r
	}
	return SanityReport{WorkerMode: "none", Error: "no pipeline worker configured"}
}
