package workertest

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// Main runs a worker as a standalone process. It accepts the flags the
// subprocess runtime appends (--host, --port) plus --cuda, --fail and
// --delay, and serves until SIGTERM or SIGINT.
func Main(args []string) error {
	fs := flag.NewFlagSet("fakeworker", flag.ContinueOnError)
	host := fs.String("host", "127.0.0.1", "listen host")
	port := fs.String("port", "0", "listen port")
	cuda := fs.Bool("cuda", false, "report an accelerator")
	failPath := fs.String("fail", "", "protocol path that answers 500")
	delay := fs.Duration("delay", 0, "sleep inside every edit")
	exitEarly := fs.Bool("exit-early", false, "exit with status 3 before listening")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *exitEarly {
		_, _ = os.Stderr.WriteString("fakeworker: refusing to start\n")
		os.Exit(3)
	}

	srv := &http.Server{
		Addr:              net.JoinHostPort(*host, *port),
		Handler:           New(Options{CUDA: *cuda, FailPath: *failPath, EditDelay: *delay}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-sigCh:
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
