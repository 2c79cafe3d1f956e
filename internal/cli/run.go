package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/fabricetriboix/skal-systest/internal/history"
	"github.com/fabricetriboix/skal-systest/internal/logcap"
	"github.com/fabricetriboix/skal-systest/internal/proc"
	"github.com/fabricetriboix/skal-systest/internal/report"
	"github.com/fabricetriboix/skal-systest/internal/runner"
	"github.com/fabricetriboix/skal-systest/internal/scenario"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string // optional run-history database
	LogDir   string // where <basename>.log files are written
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run [plan-file]",
		Short: "Run the system-test scenarios",
		Long: `Run the system-test scenarios strictly one at a time.

Each scenario spawns its role processes, waits on the subset it cares
about, and is bounded by a watchdog; SIGINT/SIGTERM or a fired watchdog
terminates every spawned process and aborts the whole run. Process
output accumulates in one <basename>.log file per executable, scanned
for leak markers after the last scenario.

Without a plan file the embedded SKAL plan is used, so a bare
"skal-systest run" matches the historical tool.

Exit codes:
  0 - All scenarios passed and no leaks detected
  1 - Scenario failure, leak, timeout, or interrupt
  2 - Command error (unreadable or invalid plan file, etc.)

Examples:
  skal-systest run
  skal-systest run -v
  skal-systest run ./plans/nightly.yaml --db systest.db`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			planPath := ""
			if len(args) == 1 {
				planPath = args[0]
			}
			return runHarness(opts, planPath, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "record the verdict in this SQLite history database")
	cmd.Flags().StringVar(&opts.LogDir, "log-dir", ".", "directory for <basename>.log files")

	return cmd
}

// loadPlan resolves the plan to run: the named file, schema-checked then
// strictly decoded, or the embedded default.
func loadPlan(planPath string) (*scenario.Plan, error) {
	if planPath == "" {
		return scenario.Default(), nil
	}
	data, err := os.ReadFile(planPath)
	if err != nil {
		return nil, fmt.Errorf("reading plan file: %w", err)
	}
	if err := scenario.ValidateSchema(planPath, data); err != nil {
		return nil, err
	}
	return scenario.ParsePlan(data)
}

func runHarness(opts *RunOptions, planPath string, cmd *cobra.Command) error {
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	plan, err := loadPlan(planPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load plan", err)
	}

	logs := logcap.New(opts.LogDir)
	reg := proc.NewRegistry(logs, logger)
	run := runner.New(reg, logger)

	stop := run.InstallSignalBridge()
	defer stop()

	startedAt := time.Now()
	for i := range plan.Scenarios {
		sc := &plan.Scenarios[i]
		err := run.Run(sc.Description, sc.EffectiveTimeout(), sc.Body(logger))
		if err == nil {
			continue
		}
		// Timeout, interrupt, spawn failure, or scenario-authoring bug:
		// all fatal to the whole run. Spawned processes have already
		// been swept; close the sinks so the log files are complete.
		if closeErr := logs.CloseAll(); closeErr != nil {
			logger.Warn("failed to close log sinks", "error", closeErr)
		}
		return WrapExitError(ExitFailure, "run aborted", err)
	}

	verdict, err := report.Build(run.Results(), logs)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build report", err)
	}

	if opts.Database != "" {
		if err := recordRun(cmd.Context(), opts.Database, plan.Name, startedAt, verdict); err != nil {
			return WrapExitError(ExitCommandError, "failed to record run history", err)
		}
	}

	if opts.Format == "json" {
		return outputRunJSON(cmd, verdict)
	}
	return outputRunText(cmd, verdict)
}

// recordRun stores the verdict in the history database.
func recordRun(ctx context.Context, dbPath, planName string, startedAt time.Time, verdict *report.Verdict) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if planName == "" {
		planName = "default"
	}

	store, err := history.Open(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	return store.RecordRun(ctx, history.Run{
		ID:         uuid.New().String(),
		Plan:       planName,
		StartedAt:  startedAt,
		FinishedAt: time.Now(),
		Verdict:    verdict,
	})
}

// outputRunJSON emits the verdict in the JSON envelope.
func outputRunJSON(cmd *cobra.Command, verdict *report.Verdict) error {
	response := CLIResponse{
		Status: "ok",
		Data:   verdict,
	}
	if !verdict.Pass {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    "E_TEST_FAILED",
			Message: verdict.Summary(),
		}
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(response); err != nil {
		return err
	}

	if !verdict.Pass {
		return NewExitError(ExitFailure, failMessage(verdict))
	}
	return nil
}

// outputRunText renders the human-readable report.
func outputRunText(cmd *cobra.Command, verdict *report.Verdict) error {
	verdict.Render(cmd.OutOrStdout())
	if !verdict.Pass {
		return NewExitError(ExitFailure, failMessage(verdict))
	}
	return nil
}

// failMessage is the short error used for the non-zero exit, distinct
// from the already-printed summary line.
func failMessage(verdict *report.Verdict) string {
	if verdict.FailCount > 0 {
		return fmt.Sprintf("%d scenario(s) failed", verdict.FailCount)
	}
	return "memory leaks detected"
}
