package scenario

import (
	"io"
	"log/slog"
	"time"

	"github.com/fabricetriboix/skal-systest/internal/proc"
	"github.com/fabricetriboix/skal-systest/internal/runner"
)

// Body compiles the scenario's step list into an executable body for the
// runner. Spawn and wait-lookup failures surface as the body's fatal
// error; a wait that returns an unexpected exit status marks the scenario
// failed and stops the remaining steps.
func (s *Scenario) Body(logger *slog.Logger) runner.Body {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	steps := s.Steps
	name := s.Name

	return func(reg *proc.Registry) (bool, error) {
		for _, step := range steps {
			switch {
			case step.Spawn != nil:
				logger.Debug("starting process", "scenario", name, "role", step.Spawn.Role)
				if _, err := reg.Spawn(step.Spawn.Role, step.Spawn.Argv); err != nil {
					return false, err
				}

			case step.Pause > 0:
				time.Sleep(step.Pause.Std())

			case step.Wait != nil:
				logger.Debug("waiting for process to finish", "scenario", name, "role", step.Wait.Role)
				status, err := reg.Wait(step.Wait.Role)
				if err != nil {
					return false, err
				}
				if status != step.Wait.Exit {
					logger.Debug("unexpected exit status",
						"scenario", name, "role", step.Wait.Role,
						"status", status, "want", step.Wait.Exit)
					return false, nil
				}
			}
		}
		return true, nil
	}
}
