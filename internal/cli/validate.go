package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fabricetriboix/skal-systest/internal/scenario"
)

// ValidationResult holds the outcome of validating one plan file.
type ValidationResult struct {
	File      string `json:"file"`
	Valid     bool   `json:"valid"`
	Scenarios int    `json:"scenarios,omitempty"`
	Error     string `json:"error,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <plan-file>...",
		Short: "Validate plan files without running them",
		Long: `Validate plan files against the plan schema and the strict decoder.

Checks structure against the CUE schema (types, durations, step shapes)
and then the decoder's own rules (non-empty lists, unique scenario
names, exactly one action per step) without spawning any process.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	w := cmd.OutOrStdout()

	results := make([]ValidationResult, 0, len(paths))
	invalid := 0
	for _, path := range paths {
		res := validatePlanFile(path)
		results = append(results, res)
		if !res.Valid {
			invalid++
		}
		if opts.Format != "json" {
			if res.Valid {
				fmt.Fprintf(w, "✓ %s (%d scenarios)\n", res.File, res.Scenarios)
			} else {
				fmt.Fprintf(w, "✗ %s\n  %s\n", res.File, res.Error)
			}
		}
	}

	if opts.Format == "json" {
		response := CLIResponse{Status: "ok", Data: results}
		if invalid > 0 {
			response.Status = "error"
			response.Error = &CLIError{
				Code:    "E_INVALID_PLAN",
				Message: fmt.Sprintf("%d plan file(s) invalid", invalid),
			}
		}
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}
	}

	if invalid > 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("%d plan file(s) invalid", invalid))
	}
	return nil
}

// validatePlanFile runs the schema check then the strict decode on one
// file.
func validatePlanFile(path string) ValidationResult {
	res := ValidationResult{File: path}

	data, err := os.ReadFile(path)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	if err := scenario.ValidateSchema(path, data); err != nil {
		res.Error = err.Error()
		return res
	}
	plan, err := scenario.ParsePlan(data)
	if err != nil {
		res.Error = err.Error()
		return res
	}

	res.Valid = true
	res.Scenarios = len(plan.Scenarios)
	return res
}
