package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"qwenedit/internal/config"
	"qwenedit/internal/fetch"
)

func newFetchCmd(g *globalFlags) *cobra.Command {
	var (
		force     bool
		transport string
		noBars    bool
	)
	cmd := &cobra.Command{
		Use:     "fetch",
		Short:   "Download the base model and the DFloat11 compressed weights into the cache",
		Example: "  qwenedit fetch\n  qwenedit fetch --transport s3 --cache-dir /models\n  qwenedit fetch --force",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, g, os.Getenv)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("transport") {
				cfg.Fetch.Transport = transport
				if err := cfg.Validate(); err != nil {
					return fmt.Errorf("invalid configuration: %w", err)
				}
			}
			log, closer, err := newLogger(cfg, g.logFile, os.Stderr)
			if err != nil {
				return err
			}
			defer closer.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			interactive := !force && isatty.IsTerminal(os.Stdin.Fd())
			var (
				bars     *fetch.BarProgress
				progress fetch.Progress
			)
			if !noBars && isatty.IsTerminal(os.Stderr.Fd()) {
				bars = fetch.NewBarProgress(os.Stderr)
				progress = bars
			}
			res, err := runFetch(ctx, cfg, log, fetchRun{
				force:    force,
				confirm:  confirmFunc(interactive, os.Stdin, os.Stderr),
				progress: progress,
			})
			if bars != nil {
				bars.Wait()
			}
			printFetchResult(cmd.OutOrStdout(), res)
			return err
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Proceed even when free disk space is below the threshold")
	cmd.Flags().StringVar(&transport, "transport", "", "Download transport: hub-cli|hub-http|s3")
	cmd.Flags().BoolVar(&noBars, "no-progress", false, "Disable progress bars")
	return cmd
}

func newStatusCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report which repositories are complete in the cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, g, os.Getenv)
			if err != nil {
				return err
			}
			pairing, err := cfg.Pairing()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Cache: %s\n", cfg.CacheDir)
			complete := 0
			repos := fetch.ReposFor(pairing)
			for _, repo := range repos {
				st := fetch.StatusOf(cfg.CacheDir, repo)
				mark := "missing"
				if st.Complete {
					mark = "complete"
					complete++
				}
				fmt.Fprintf(out, "  %-10s %-40s %-8s %s\n", repo.Kind, repo.ID, mark, st.Path)
			}
			fmt.Fprintf(out, "%d/%d repositories complete\n", complete, len(repos))
			if complete != len(repos) {
				return exitError{code: 1}
			}
			return nil
		},
	}
}

type fetchRun struct {
	force    bool
	confirm  func(free, need uint64) bool
	progress fetch.Progress
}

// runFetch builds the configured transport and fetches both repositories of
// the configured pairing.
func runFetch(ctx context.Context, cfg config.Config, log zerolog.Logger, run fetchRun) (fetch.Result, error) {
	pairing, err := cfg.Pairing()
	if err != nil {
		return fetch.Result{}, err
	}
	tr, err := buildTransport(cfg, log)
	if err != nil {
		return fetch.Result{}, err
	}
	if err := fetch.CheckDependencies(tr); err != nil {
		return fetch.Result{}, err
	}
	f, err := fetch.New(fetch.Options{
		CacheDir:     cfg.CacheDir,
		Transport:    tr,
		MinFreeBytes: uint64(cfg.Fetch.MinFreeGB) << 30,
		Override:     run.force,
		Confirm:      run.confirm,
		Progress:     run.progress,
		Logger:       log,
	})
	if err != nil {
		return fetch.Result{}, err
	}
	return f.Fetch(ctx, fetch.ReposFor(pairing))
}

func buildTransport(cfg config.Config, log zerolog.Logger) (fetch.Transport, error) {
	fc := cfg.Fetch
	switch fc.Transport {
	case config.TransportHubCLI:
		return &fetch.HubCLI{Bin: fc.HubCLI, Token: fc.HubToken, Logger: log}, nil
	case config.TransportHubHTTP, "":
		return fetch.NewHubHTTP(fc.HubEndpoint, fc.HubToken, fc.Parallel), nil
	case config.TransportS3:
		return fetch.NewS3Mirror(fetch.S3Options{
			Bucket:   fc.S3Bucket,
			Prefix:   fc.S3Prefix,
			Region:   fc.S3Region,
			Endpoint: fc.S3Endpoint,
			Parallel: fc.Parallel,
		}), nil
	}
	return nil, fmt.Errorf("unknown transport %q", fc.Transport)
}

// confirmFunc asks the operator whether to continue despite low disk space.
// Without a terminal it declines.
func confirmFunc(interactive bool, in io.Reader, out io.Writer) func(free, need uint64) bool {
	if !interactive {
		return nil
	}
	return func(free, need uint64) bool {
		fmt.Fprintf(out, "Low disk space! Need ~%s, have %s.\nContinue anyway? [y/N]: ", humanize.IBytes(need), humanize.IBytes(free))
		line, _ := bufio.NewReader(in).ReadString('\n')
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true
		}
		return false
	}
}

func printFetchResult(w io.Writer, res fetch.Result) {
	if res.Total == 0 {
		return
	}
	fmt.Fprintf(w, "%d/%d repositories present", res.Succeeded, res.Total)
	if res.Skipped > 0 {
		fmt.Fprintf(w, " (%d already cached)", res.Skipped)
	}
	if res.CacheBytes > 0 {
		fmt.Fprintf(w, ", cache size %s", humanize.IBytes(uint64(res.CacheBytes)))
	}
	fmt.Fprintln(w)
	for _, f := range res.Failures {
		fmt.Fprintf(w, "  failed: %s: %v\n", f.Repo.ID, f.Err)
	}
}
