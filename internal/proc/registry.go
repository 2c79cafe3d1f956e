// Package proc tracks the external processes spawned during a test run.
//
// A Registry maps role names ("skald", "reader", "writer") to running
// processes. Scenarios spawn roles, block on the subset they care about,
// and rely on TerminateAll to reap whatever they leave behind. The
// registry is mutated by the scenario flow and, racing with it, by the
// abnormal-termination path, so all map access is mutex-guarded.
package proc

import (
	"io"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fabricetriboix/skal-systest/internal/logcap"
)

// DefaultGrace is the wait between asking a process to terminate and
// killing it outright.
const DefaultGrace = 200 * time.Millisecond

// Handle represents one spawned process, owned by the registry entry for
// its role. It is removed from the registry once waited on or terminated.
type Handle struct {
	Role string
	Argv []string
	PID  int

	cmd  *exec.Cmd
	done chan struct{} // closed by the reaper once the process exits
}

// exited reports whether the process has been reaped, without blocking.
func (h *Handle) exited() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// ExitCode returns the process exit status. Valid only after Wait (or the
// handle's done channel) has signalled exit. Killed processes report -1.
func (h *Handle) ExitCode() int {
	if h.cmd.ProcessState == nil {
		return -1
	}
	return h.cmd.ProcessState.ExitCode()
}

// Registry tracks currently-running processes by role name.
type Registry struct {
	logs   *logcap.Capture
	logger *slog.Logger
	grace  time.Duration

	mu    sync.Mutex
	procs map[string]*Handle
}

// NewRegistry creates an empty registry whose spawned processes write
// into logs. A nil logger discards diagnostics.
func NewRegistry(logs *logcap.Capture, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Registry{
		logs:   logs,
		logger: logger,
		grace:  DefaultGrace,
		procs:  make(map[string]*Handle),
	}
}

// resolveProgram rewrites a bare program name to a path relative to the
// current directory. Executables under test live next to the harness, not
// on PATH.
func resolveProgram(name string) string {
	if strings.ContainsRune(name, filepath.Separator) {
		return name
	}
	// filepath.Join would clean "./x" back to "x", so concatenate.
	return "." + string(filepath.Separator) + name
}

// Spawn launches argv as a new process registered under role and returns
// without waiting for it. Both output streams go to the log sink shared
// by every process with the same executable basename. A *SpawnError is
// returned if the OS cannot create the process.
func (r *Registry) Spawn(role string, argv []string) (*Handle, error) {
	if len(argv) == 0 {
		return nil, &SpawnError{Role: role, Argv: argv, Err: errEmptyArgv}
	}

	program := resolveProgram(argv[0])
	sink, err := r.logs.SinkFor(filepath.Base(program))
	if err != nil {
		return nil, &SpawnError{Role: role, Argv: argv, Err: err}
	}

	cmd := exec.Command(program, argv[1:]...)
	cmd.Stdout = sink.File()
	cmd.Stderr = sink.File()

	r.mu.Lock()
	if _, exists := r.procs[role]; exists {
		r.mu.Unlock()
		return nil, &SpawnError{Role: role, Argv: argv, Err: errDuplicateRole}
	}

	if err := cmd.Start(); err != nil {
		r.mu.Unlock()
		return nil, &SpawnError{Role: role, Argv: argv, Err: err}
	}

	h := &Handle{
		Role: role,
		Argv: argv,
		PID:  cmd.Process.Pid,
		cmd:  cmd,
		done: make(chan struct{}),
	}
	r.procs[role] = h
	r.mu.Unlock()

	// Single reaper per process. Wait and TerminateAll both observe the
	// done channel instead of calling cmd.Wait themselves, which keeps
	// exactly one Wait per exec.Cmd.
	go func() {
		// The exit status is read back through ProcessState; a non-zero
		// status is a scenario outcome here, not an error.
		_ = cmd.Wait()
		close(h.done)
	}()

	r.logger.Debug("spawned process", "role", role, "pid", h.PID, "argv", argv)
	return h, nil
}

// Wait blocks until the process registered under role exits, then removes
// its registry entry. Returns the process exit status, or an
// *UnknownRoleError if role was never spawned or was already waited on.
//
// The entry stays registered while Wait blocks: if the abnormal path runs
// TerminateAll in the meantime, the waited-on process is still swept,
// which is what unblocks this Wait.
func (r *Registry) Wait(role string) (int, error) {
	r.mu.Lock()
	h, ok := r.procs[role]
	if !ok {
		r.mu.Unlock()
		return 0, &UnknownRoleError{Role: role}
	}
	r.mu.Unlock()

	<-h.done

	r.mu.Lock()
	// TerminateAll may have cleared the map while we were blocked.
	if cur, ok := r.procs[role]; ok && cur == h {
		delete(r.procs, role)
	}
	r.mu.Unlock()
	status := h.ExitCode()
	r.logger.Debug("process exited", "role", role, "pid", h.PID, "status", status)
	return status, nil
}

// Len returns the number of currently registered processes.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.procs)
}

// TerminateAll asks every registered process to terminate, waits the
// grace interval, and kills whatever is still alive. The registry is
// cleared unconditionally. Termination is best-effort: failures are
// logged, never returned. Calling it on an empty registry is a no-op.
func (r *Registry) TerminateAll() {
	r.mu.Lock()
	if len(r.procs) == 0 {
		r.mu.Unlock()
		return
	}
	handles := make([]*Handle, 0, len(r.procs))
	for _, h := range r.procs {
		handles = append(handles, h)
	}
	r.procs = make(map[string]*Handle)
	r.mu.Unlock()

	live := 0
	for _, h := range handles {
		if h.exited() {
			continue
		}
		live++
		r.logger.Debug("terminating process", "role", h.Role, "pid", h.PID)
		if err := h.cmd.Process.Signal(syscall.SIGTERM); err != nil {
			r.logger.Warn("failed to signal process", "role", h.Role, "pid", h.PID, "error", err)
		}
	}
	if live == 0 {
		return
	}

	time.Sleep(r.grace)

	for _, h := range handles {
		if h.exited() {
			continue
		}
		r.logger.Debug("process still alive after grace interval, killing it", "role", h.Role, "pid", h.PID)
		if err := h.cmd.Process.Kill(); err != nil {
			r.logger.Warn("failed to kill process", "role", h.Role, "pid", h.PID, "error", err)
		}
		// Let the reaper collect the exit status so no zombie outlives
		// the scenario.
		<-h.done
	}
}
