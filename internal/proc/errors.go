package proc

import (
	"errors"
	"fmt"
)

var (
	errEmptyArgv     = errors.New("empty argument vector")
	errDuplicateRole = errors.New("role already registered")
)

// SpawnError reports that the OS could not create a process: the
// executable is missing, not executable, or the exec itself failed.
// Spawn failures are fatal to the whole run.
type SpawnError struct {
	Role string
	Argv []string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawning role %q (%v): %v", e.Role, e.Argv, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// UnknownRoleError reports a Wait on a role that was never spawned or has
// already been waited on. This is a scenario-authoring bug, not a runtime
// condition, so it too is fatal.
type UnknownRoleError struct {
	Role string
}

func (e *UnknownRoleError) Error() string {
	return fmt.Sprintf("unknown role %q: never spawned or already waited on", e.Role)
}
