package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"qwenedit/internal/config"
)

// globalFlags are shared by every subcommand and override the config file
// and environment when set.
type globalFlags struct {
	configPath string
	logLevel   string
	logFormat  string
	logFile    string
	cacheDir   string
	model      string
	device     string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "qwenedit",
		Short:         "Qwen-Image-Edit (DFloat11) weight fetcher and editing service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&g.configPath, "config", "", "Path to config file (.yaml/.yml/.json/.toml)")
	pf.StringVar(&g.logLevel, "log-level", "", "Log level: debug|info|warn|error (defaults QWENEDIT_LOG_LEVEL or info)")
	pf.StringVar(&g.logFormat, "log-format", "", "Log format: console|json (defaults to console on a terminal)")
	pf.StringVar(&g.logFile, "log-file", "", "Append JSON logs to this file instead of stderr")
	pf.StringVar(&g.cacheDir, "cache-dir", "", "Model cache directory (defaults HF_HOME or ./qwen-models-cache)")
	pf.StringVar(&g.model, "model", "", "Base model identifier or alias")
	pf.StringVar(&g.device, "device", "", "Compute device: auto|cpu|cuda")

	root.AddCommand(newServeCmd(g), newFetchCmd(g), newStatusCmd(g), newVerifyCmd(g))
	return root
}

// loadConfig layers defaults, the optional config file, the environment and
// the command-line flags, then validates the result.
func loadConfig(cmd *cobra.Command, g *globalFlags, getenv func(string) string) (config.Config, error) {
	cfg := config.Default()
	if g.configPath != "" {
		c, err := config.Load(g.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config: %w", err)
		}
		cfg = c
	}
	if err := cfg.ApplyEnv(getenv); err != nil {
		return cfg, fmt.Errorf("environment: %w", err)
	}
	flags := cmd.Flags()
	set := func(name string, dst *string, v string) {
		if flags.Changed(name) {
			*dst = v
		}
	}
	set("log-level", &cfg.LogLevel, g.logLevel)
	set("log-format", &cfg.LogFormat, g.logFormat)
	set("cache-dir", &cfg.CacheDir, g.cacheDir)
	set("model", &cfg.ModelName, g.model)
	set("device", &cfg.Device, g.device)
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newLogger builds the process logger. Console output is used on a terminal
// unless json is requested; a log file always receives JSON.
func newLogger(cfg config.Config, logFile string, stderr *os.File) (zerolog.Logger, io.Closer, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.LogLevel)))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	var w io.Writer = stderr
	var closer io.Closer = nopCloser{}
	switch {
	case logFile != "":
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("open log file: %w", err)
		}
		w, closer = f, f
	case cfg.LogFormat == "json":
	case cfg.LogFormat == "console" || isatty.IsTerminal(stderr.Fd()) || isatty.IsCygwinTerminal(stderr.Fd()):
		w = zerolog.ConsoleWriter{Out: stderr, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger(), closer, nil
}

// splitCSV splits a comma-separated list, dropping blanks.
func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
