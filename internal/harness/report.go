package harness

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
)

// Report collects the outcome of a Run.
type Report struct {
	BaseURL     string        `json:"base_url"`
	Started     time.Time     `json:"started"`
	Elapsed     time.Duration `json:"elapsed"`
	ModelLoaded bool          `json:"model_loaded"`
	Checks      []Check       `json:"checks"`
}

// OK reports whether every check passed. A skipped check is not a pass.
func (r Report) OK() bool {
	if len(r.Checks) == 0 {
		return false
	}
	for _, c := range r.Checks {
		if c.Status != StatusPass {
			return false
		}
	}
	return true
}

// Count returns the number of checks with status s.
func (r Report) Count(s Status) int {
	n := 0
	for _, c := range r.Checks {
		if c.Status == s {
			n++
		}
	}
	return n
}

// Check returns the named check, if present.
func (r Report) Check(name string) (Check, bool) {
	for _, c := range r.Checks {
		if c.Name == name {
			return c, true
		}
	}
	return Check{}, false
}

var marks = map[Status]string{StatusPass: "PASS", StatusFail: "FAIL", StatusSkip: "SKIP"}

// WriteText prints a human-readable summary.
func (r Report) WriteText(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "Verifying %s (started %s)\n", r.BaseURL, humanize.Time(r.Started)); err != nil {
		return err
	}
	for _, c := range r.Checks {
		if _, err := fmt.Fprintf(w, "  [%s] %-8s %-8s %s\n", marks[c.Status], c.Name, c.Duration.Round(time.Millisecond), c.Detail); err != nil {
			return err
		}
	}
	verdict := "all checks passed"
	if !r.OK() {
		verdict = fmt.Sprintf("%d passed, %d failed, %d skipped", r.Count(StatusPass), r.Count(StatusFail), r.Count(StatusSkip))
	}
	_, err := fmt.Fprintf(w, "%s in %s\n", verdict, r.Elapsed.Round(time.Millisecond))
	return err
}

// WriteJSON writes the report as indented JSON.
func (r Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
