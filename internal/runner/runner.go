// Package runner drives scenarios strictly one at a time and owns the
// abnormal-termination path shared by the watchdog and external signals.
package runner

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fabricetriboix/skal-systest/internal/proc"
	"github.com/fabricetriboix/skal-systest/internal/watchdog"
)

// Abort reasons. Either one is fatal to the whole run: the in-flight
// scenario's outcome is discarded rather than recorded as a failure.
var (
	// ErrTimeout means the watchdog fired before the scenario body
	// finished.
	ErrTimeout = errors.New("scenario timeout exceeded")

	// ErrInterrupted means an external interrupt or terminate request
	// arrived.
	ErrInterrupted = errors.New("interrupted")
)

// Body is one scenario's executable content. It spawns roles, blocks on
// the subset it needs, and reports scenario-level success. A non-nil
// error is a fatal harness condition (spawn failure, unknown role), not a
// scenario failure.
type Body func(reg *proc.Registry) (bool, error)

// Result records one scenario outcome, in execution order.
type Result struct {
	Description string
	Success     bool
}

// Runner executes scenarios sequentially against one process registry.
type Runner struct {
	reg    *proc.Registry
	logger *slog.Logger

	// abort carries the first timeout/interrupt reason. Buffered so the
	// watchdog goroutine and the signal bridge never block; only the
	// first sender wins, which makes the abnormal path safe to enter
	// re-entrantly.
	abort chan error

	results []Result
}

// New creates a Runner driving reg. A nil logger discards diagnostics.
func New(reg *proc.Registry, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Runner{
		reg:    reg,
		logger: logger,
		abort:  make(chan error, 1),
	}
}

// signalAbort records reason as the run-ending cause. Later calls are
// no-ops: the abort is a one-way transition.
func (r *Runner) signalAbort(reason error) {
	select {
	case r.abort <- reason:
	default:
	}
}

// InstallSignalBridge routes SIGINT and SIGTERM into the same
// abnormal-termination path as a fired watchdog. The returned stop
// function unregisters the handler.
func (r *Runner) InstallSignalBridge() (stop func()) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		select {
		case sig := <-sigCh:
			r.logger.Warn("signal caught, cleaning up", "signal", sig)
			r.signalAbort(ErrInterrupted)
		case <-done:
		}
	}()

	return func() {
		signal.Stop(sigCh)
		close(done)
	}
}

// Run executes one scenario: clear the registry, arm the watchdog,
// execute body, cancel the watchdog, terminate whatever the body left
// running, record the outcome.
//
// A nil return means the scenario completed (pass or fail) and the run
// continues. ErrTimeout and ErrInterrupted mean the run is over: the
// registry has already been swept by TerminateAll and the caller must
// exit non-zero without running further scenarios. Any other error is a
// fatal condition raised by the body itself.
func (r *Runner) Run(description string, timeout time.Duration, body Body) error {
	// A signal may have arrived between scenarios.
	select {
	case reason := <-r.abort:
		r.reg.TerminateAll()
		return reason
	default:
	}

	// Defensive: the previous scenario already cleared the registry.
	r.reg.TerminateAll()

	r.logger.Info(description)

	w := watchdog.Arm(timeout, func() {
		r.logger.Warn("timeout", "scenario", description)
		r.signalAbort(ErrTimeout)
	})

	type outcome struct {
		success bool
		err     error
	}
	bodyDone := make(chan outcome, 1)
	go func() {
		success, err := body(r.reg)
		bodyDone <- outcome{success, err}
	}()

	select {
	case out := <-bodyDone:
		w.Cancel()
		r.reg.TerminateAll()

		// The watchdog (or a signal) may have won a race against body
		// completion. The abort takes precedence: its reason ends the
		// run and this scenario's outcome is discarded.
		select {
		case reason := <-r.abort:
			return reason
		default:
		}

		if out.err != nil {
			return out.err
		}
		r.results = append(r.results, Result{Description: description, Success: out.success})
		return nil

	case reason := <-r.abort:
		r.reg.TerminateAll()
		return reason
	}
}

// Results returns the recorded scenario outcomes in execution order.
func (r *Runner) Results() []Result {
	out := make([]Result, len(r.results))
	copy(out, r.results)
	return out
}
