package e2e

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"qwenedit/internal/httpapi"
	"qwenedit/internal/manager"
	"qwenedit/internal/manager/workertest"
)

// envHelperWorker turns the test binary into a pipeline worker for the
// subprocess tests.
const envHelperWorker = "QWENEDIT_HELPER_WORKER"

func TestMain(m *testing.M) {
	if os.Getenv(envHelperWorker) == "1" {
		if err := workertest.Main(os.Args[1:]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		os.Exit(0)
	}
	os.Exit(m.Run())
}

// stack is a fake worker, a manager assembled on it and the HTTP API in
// front of the manager.
type stack struct {
	URL     string
	Mgr     *manager.Manager
	Worker  *workertest.Worker
	LoadErr error
}

// newStack wires the pieces together. When load is false the manager is
// left unassembled.
func newStack(t *testing.T, opts workertest.Options, cfg manager.ManagerConfig, load bool) *stack {
	t.Helper()
	w := workertest.New(opts)
	workerSrv := httptest.NewServer(w)
	t.Cleanup(workerSrv.Close)

	cfg.NewRuntime = func(context.Context) (manager.Runtime, error) {
		return manager.NewRemoteRuntime(workerSrv.URL), nil
	}
	mgr := manager.NewWithConfig(cfg)
	t.Cleanup(func() { _ = mgr.Close(time.Second) })

	api := httptest.NewServer(httpapi.NewMux(mgr))
	t.Cleanup(api.Close)

	s := &stack{URL: api.URL, Mgr: mgr, Worker: w}
	if load {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.LoadErr = mgr.Load(ctx)
	}
	return s
}

func httpGet(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}

func httpPost(t *testing.T, url, contentType string, payload []byte) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Post(url, contentType, bytes.NewReader(payload))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}
