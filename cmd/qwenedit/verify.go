package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"qwenedit/internal/harness"
)

func newVerifyCmd(g *globalFlags) *cobra.Command {
	var (
		baseURL string
		save    string
		steps   int
		seed    int64
		timeout time.Duration
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Smoke-test a running service with a 512x512 red image",
		Long: "verify checks /health and /models, then, when the model is loaded, posts a solid-red image\n" +
			"with the prompt \"" + harness.DefaultPrompt + "\" to /process. It exits non-zero unless every check passes.",
		Example: "  qwenedit verify\n  qwenedit verify --url http://gpu-box:8000 --save test_result.png",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, g, os.Getenv)
			if err != nil {
				return err
			}
			log, closer, err := newLogger(cfg, g.logFile, os.Stderr)
			if err != nil {
				return err
			}
			defer closer.Close()

			h := harness.New(baseURL)
			h.Log = log
			h.SavePath = save
			h.Steps = steps
			h.EditTimeout = timeout
			if cmd.Flags().Changed("seed") {
				h.Seed = &seed
			}
			rep := h.Run(cmd.Context())
			out := cmd.OutOrStdout()
			if asJSON {
				err = rep.WriteJSON(out)
			} else {
				err = rep.WriteText(out)
			}
			if err != nil {
				return err
			}
			if !rep.OK() {
				return exitError{code: 1}
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&baseURL, "url", harness.DefaultBaseURL, "Base URL of the service")
	f.StringVar(&save, "save", "", "Write the edited image to this PNG path")
	f.IntVar(&steps, "steps", harness.DefaultSteps, "num_inference_steps for the test edit")
	f.Int64Var(&seed, "seed", harness.DefaultSeed, "Generator seed for the test edit")
	f.DurationVar(&timeout, "timeout", 5*time.Minute, "Maximum time to wait for the test edit")
	f.BoolVar(&asJSON, "json", false, "Print the report as JSON")
	return cmd
}
