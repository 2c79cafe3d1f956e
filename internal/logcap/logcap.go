// Package logcap captures the output of spawned test processes.
//
// Each distinct executable basename owns exactly one log sink, backed by
// <basename>.log in the capture directory. The file is created (and
// truncated) on the first spawn of that basename and reused, still open,
// for every later spawn in the same run, so one file accumulates that
// executable's output across all scenarios. Sinks are closed once, at the
// end of the run, before the report scans them for leak markers.
package logcap

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
)

// Sink is the shared output destination for every process spawned from
// one executable basename.
type Sink struct {
	Basename string
	Path     string

	file   *os.File
	closed bool
}

// File returns the backing file. It is handed to exec.Cmd directly so the
// child writes to the file descriptor without the harness copying bytes.
func (s *Sink) File() *os.File {
	return s.file
}

// Leak identifies a sink whose content contains the leak marker.
type Leak struct {
	Basename string
	Path     string
}

// Capture owns the sink map for one run.
//
// SinkFor is normally called only from the scenario flow, but the
// abnormal-termination path may close sinks while a scenario is blocked in
// a wait, so all map access is serialized.
type Capture struct {
	mu    sync.Mutex
	dir   string
	sinks map[string]*Sink
}

// New creates a Capture writing log files into dir.
func New(dir string) *Capture {
	return &Capture{
		dir:   dir,
		sinks: make(map[string]*Sink),
	}
}

// SinkFor returns the sink for basename, creating <basename>.log in
// write/truncate mode on first use. Subsequent calls for the same basename
// return the already-open sink; the file is never reopened or truncated
// again within the run.
func (c *Capture) SinkFor(basename string) (*Sink, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s, ok := c.sinks[basename]; ok {
		return s, nil
	}

	path := filepath.Join(c.dir, basename+".log")
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating log sink for %q: %w", basename, err)
	}

	s := &Sink{
		Basename: basename,
		Path:     path,
		file:     f,
	}
	c.sinks[basename] = s
	return s, nil
}

// CloseAll closes every created sink exactly once. Sinks already closed
// are skipped, so calling CloseAll repeatedly is safe. The first close
// error is returned; later sinks are still closed.
func (c *Capture) CloseAll() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for _, s := range c.sinks {
		if s.closed {
			continue
		}
		s.closed = true
		if err := s.file.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing log sink %s: %w", s.Path, err)
		}
	}
	return firstErr
}

// Scan reads every sink's backing file and reports the ones containing
// marker. Call after CloseAll. Results are sorted by basename so output
// is stable.
func (c *Capture) Scan(marker string) ([]Leak, error) {
	c.mu.Lock()
	sinks := make([]*Sink, 0, len(c.sinks))
	for _, s := range c.sinks {
		sinks = append(sinks, s)
	}
	c.mu.Unlock()

	slices.SortFunc(sinks, func(a, b *Sink) int {
		return strings.Compare(a.Basename, b.Basename)
	})

	var leaks []Leak
	for _, s := range sinks {
		data, err := os.ReadFile(s.Path)
		if err != nil {
			return nil, fmt.Errorf("scanning log sink %s: %w", s.Path, err)
		}
		if bytes.Contains(data, []byte(marker)) {
			leaks = append(leaks, Leak{Basename: s.Basename, Path: s.Path})
		}
	}
	return leaks, nil
}
