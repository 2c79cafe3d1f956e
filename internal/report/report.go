// Package report turns recorded scenario results and captured logs into
// the final run verdict.
package report

import (
	"fmt"
	"io"

	"github.com/fabricetriboix/skal-systest/internal/logcap"
	"github.com/fabricetriboix/skal-systest/internal/runner"
)

// LeakMarker is the literal text a monitored process emits when it
// detects its own resource leak.
const LeakMarker = "Memory leak detected"

// Verdict is the aggregated outcome of a run. Derived once, after all
// scenarios complete and the log sinks are closed.
type Verdict struct {
	Results   []runner.Result `json:"results"`
	Leaks     []logcap.Leak   `json:"leaks,omitempty"`
	FailCount int             `json:"fail_count"`
	Total     int             `json:"total"`
	Pass      bool            `json:"pass"`
}

// Build closes all log sinks, scans them for the leak marker, and
// computes the verdict: PASS only if no scenario failed and no sink
// leaked.
func Build(results []runner.Result, logs *logcap.Capture) (*Verdict, error) {
	if err := logs.CloseAll(); err != nil {
		return nil, err
	}
	leaks, err := logs.Scan(LeakMarker)
	if err != nil {
		return nil, err
	}

	failCount := 0
	for _, res := range results {
		if !res.Success {
			failCount++
		}
	}

	return &Verdict{
		Results:   results,
		Leaks:     leaks,
		FailCount: failCount,
		Total:     len(results),
		Pass:      failCount == 0 && len(leaks) == 0,
	}, nil
}

// Render writes the human-readable report: one line per detected leak,
// one line per failed scenario, then the final PASS/FAIL summary.
func (v *Verdict) Render(w io.Writer) {
	for _, leak := range v.Leaks {
		fmt.Fprintf(w, "Memory leak detected for process '%s'; please refer to file '%s'\n",
			leak.Basename, leak.Path)
	}
	for _, res := range v.Results {
		if !res.Success {
			fmt.Fprintf(w, "FAILED: %s\n", res.Description)
		}
	}
	fmt.Fprintln(w, v.Summary())
}

// Summary returns the final one-line verdict, distinguishing failed
// scenarios from a clean run that leaked.
func (v *Verdict) Summary() string {
	switch {
	case v.FailCount > 0:
		return fmt.Sprintf("INTEGRATION TEST FAIL - %d/%d integration tests failed",
			v.FailCount, v.Total)
	case len(v.Leaks) > 0:
		return fmt.Sprintf("INTEGRATION TEST FAIL - %d/%d integration tests passed, but with memory leaks",
			v.Total, v.Total)
	default:
		return fmt.Sprintf("INTEGRATION TEST PASS - %d/%d integration tests passed",
			v.Total, v.Total)
	}
}
