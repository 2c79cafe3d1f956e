package proc

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabricetriboix/skal-systest/internal/logcap"
)

func newTestRegistry(t *testing.T) (*Registry, *logcap.Capture) {
	t.Helper()
	logs := logcap.New(t.TempDir())
	reg := NewRegistry(logs, nil)
	t.Cleanup(reg.TerminateAll)
	t.Cleanup(func() { _ = logs.CloseAll() })
	return reg, logs
}

// writeScript drops an executable shell script into dir and returns its
// path.
func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func TestSpawn_RegistersProcess(t *testing.T) {
	reg, _ := newTestRegistry(t)

	h, err := reg.Spawn("sleeper", []string{"/bin/sh", "-c", "sleep 10"})
	require.NoError(t, err)
	assert.Equal(t, "sleeper", h.Role)
	assert.Greater(t, h.PID, 0)
	assert.Equal(t, 1, reg.Len())
}

func TestSpawn_MissingExecutable(t *testing.T) {
	reg, _ := newTestRegistry(t)

	_, err := reg.Spawn("ghost", []string{"/nonexistent/binary"})
	require.Error(t, err)
	var spawnErr *SpawnError
	require.ErrorAs(t, err, &spawnErr)
	assert.Equal(t, "ghost", spawnErr.Role)
	assert.Equal(t, 0, reg.Len(), "failed spawn must not register")
}

func TestSpawn_EmptyArgv(t *testing.T) {
	reg, _ := newTestRegistry(t)

	_, err := reg.Spawn("empty", nil)
	var spawnErr *SpawnError
	require.ErrorAs(t, err, &spawnErr)
}

func TestSpawn_DuplicateRole(t *testing.T) {
	reg, _ := newTestRegistry(t)

	_, err := reg.Spawn("dup", []string{"/bin/sh", "-c", "sleep 10"})
	require.NoError(t, err)

	_, err = reg.Spawn("dup", []string{"/bin/sh", "-c", "sleep 10"})
	var spawnErr *SpawnError
	require.ErrorAs(t, err, &spawnErr)
	assert.Equal(t, 1, reg.Len())
}

func TestSpawn_BareNameResolvedRelative(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "fakebin", "exit 0")
	chdir(t, dir)

	reg := NewRegistry(logcap.New(dir), nil)
	t.Cleanup(reg.TerminateAll)

	// A bare name must resolve next to the harness, never via PATH.
	h, err := reg.Spawn("fake", []string{"fakebin"})
	require.NoError(t, err)

	status, err := reg.Wait("fake")
	require.NoError(t, err)
	assert.Equal(t, 0, status)
	assert.Equal(t, []string{"fakebin"}, h.Argv)
}

func TestSpawn_SharedSinkPerBasename(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "echoer", `echo "run $1"`)
	chdir(t, dir)

	logs := logcap.New(dir)
	reg := NewRegistry(logs, nil)
	t.Cleanup(reg.TerminateAll)

	// Two spawns of the same basename under different roles.
	_, err := reg.Spawn("first", []string{"echoer", "one"})
	require.NoError(t, err)
	_, err = reg.Spawn("second", []string{"echoer", "two"})
	require.NoError(t, err)

	_, err = reg.Wait("first")
	require.NoError(t, err)
	_, err = reg.Wait("second")
	require.NoError(t, err)

	require.NoError(t, logs.CloseAll())

	data, err := os.ReadFile(filepath.Join(dir, "echoer.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "run one")
	assert.Contains(t, string(data), "run two")
}

func TestWait_ReturnsExitStatus(t *testing.T) {
	reg, _ := newTestRegistry(t)

	_, err := reg.Spawn("failing", []string{"/bin/sh", "-c", "exit 3"})
	require.NoError(t, err)

	status, err := reg.Wait("failing")
	require.NoError(t, err)
	assert.Equal(t, 3, status)
	assert.Equal(t, 0, reg.Len(), "waited role must be deregistered")
}

func TestWait_UnknownRole(t *testing.T) {
	reg, _ := newTestRegistry(t)

	_, err := reg.Wait("never-spawned")
	var unknownErr *UnknownRoleError
	require.ErrorAs(t, err, &unknownErr)
	assert.Equal(t, "never-spawned", unknownErr.Role)
}

func TestWait_Twice(t *testing.T) {
	reg, _ := newTestRegistry(t)

	_, err := reg.Spawn("once", []string{"/bin/sh", "-c", "exit 0"})
	require.NoError(t, err)

	_, err = reg.Wait("once")
	require.NoError(t, err)

	_, err = reg.Wait("once")
	var unknownErr *UnknownRoleError
	require.ErrorAs(t, err, &unknownErr)
}

func TestTerminateAll_KillsRegisteredProcesses(t *testing.T) {
	reg, _ := newTestRegistry(t)

	h, err := reg.Spawn("daemon", []string{"/bin/sh", "-c", "sleep 60"})
	require.NoError(t, err)

	start := time.Now()
	reg.TerminateAll()
	assert.Equal(t, 0, reg.Len())

	// sh exits promptly on SIGTERM, well before the 60s sleep.
	assert.Less(t, time.Since(start), 5*time.Second)
	select {
	case <-h.done:
	default:
		t.Fatal("process should have been reaped")
	}
}

func TestTerminateAll_EscalatesToKill(t *testing.T) {
	reg, _ := newTestRegistry(t)

	h, err := reg.Spawn("stubborn", []string{"/bin/sh", "-c", `trap "" TERM; sleep 60`})
	require.NoError(t, err)

	// Give the shell a moment to install its trap.
	time.Sleep(50 * time.Millisecond)

	reg.TerminateAll()
	assert.Equal(t, 0, reg.Len())
	select {
	case <-h.done:
	default:
		t.Fatal("stubborn process should have been killed after the grace interval")
	}
}

func TestTerminateAll_EmptyRegistryNoOp(t *testing.T) {
	reg, _ := newTestRegistry(t)

	start := time.Now()
	reg.TerminateAll()
	reg.TerminateAll()
	// No grace sleep when there is nothing to terminate.
	assert.Less(t, time.Since(start), DefaultGrace)
}

func TestTerminateAll_Twice(t *testing.T) {
	reg, _ := newTestRegistry(t)

	_, err := reg.Spawn("daemon", []string{"/bin/sh", "-c", "sleep 60"})
	require.NoError(t, err)

	reg.TerminateAll()
	reg.TerminateAll() // second call on an empty registry
	assert.Equal(t, 0, reg.Len())
}

func TestTerminateAll_UnblocksWait(t *testing.T) {
	reg, _ := newTestRegistry(t)

	_, err := reg.Spawn("hanging", []string{"/bin/sh", "-c", "sleep 60"})
	require.NoError(t, err)

	waitDone := make(chan int, 1)
	go func() {
		status, _ := reg.Wait("hanging")
		waitDone <- status
	}()

	// Wait keeps the entry registered while blocked, so TerminateAll
	// still sweeps the process and unblocks the waiter.
	time.Sleep(50 * time.Millisecond)
	reg.TerminateAll()

	select {
	case <-waitDone:
	case <-time.After(5 * time.Second):
		t.Fatal("Wait did not unblock after TerminateAll")
	}
}

func TestResolveProgram(t *testing.T) {
	assert.Equal(t, "./skald", resolveProgram("skald"))
	assert.Equal(t, "./skald", resolveProgram("./skald"))
	assert.Equal(t, "/usr/bin/skald", resolveProgram("/usr/bin/skald"))
	assert.Equal(t, "build/skald", resolveProgram("build/skald"))
}

// chdir changes the working directory for the duration of the test,
// equivalent to testing.T.Chdir which requires Go 1.24+.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Error(err)
		}
	})
}
