package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

// Markers the todo command looks for.
var todoMarkers = []string{"TODO", "XXX", "FIXME"}

// Default file patterns scanned for markers.
var defaultTodoGlobs = []string{"*.go", "*.c", "*.cpp", "*.h", "*.hpp", "*.py", "SCons*"}

// TodoOptions holds flags for the todo command.
type TodoOptions struct {
	*RootOptions
	Globs []string
}

// TodoEntry is one marker occurrence.
type TodoEntry struct {
	Path string `json:"path"`
	Line int    `json:"line"`
	Text string `json:"text"`
}

// NewTodoCommand creates the todo command.
func NewTodoCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TodoOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "todo [dir]",
		Short: "List TODO/XXX/FIXME markers in source files",
		Long: `Scan a source tree and print every TODO, XXX, or FIXME line
with its file and line number. Defaults to the current directory.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) == 1 {
				root = args[0]
			}
			return runTodo(opts, root, cmd)
		},
	}

	cmd.Flags().StringSliceVar(&opts.Globs, "glob", defaultTodoGlobs, "file name patterns to scan")

	return cmd
}

func runTodo(opts *TodoOptions, root string, cmd *cobra.Command) error {
	entries, err := scanTodos(root, opts.Globs)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to scan for markers", err)
	}

	w := cmd.OutOrStdout()
	if opts.Format == "json" {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(CLIResponse{Status: "ok", Data: entries})
	}
	for _, e := range entries {
		fmt.Fprintf(w, "[%s:%d] %s\n", e.Path, e.Line, e.Text)
	}
	return nil
}

// scanTodos walks root and collects marker lines from files matching any
// of the globs.
func scanTodos(root string, globs []string) ([]TodoEntry, error) {
	var entries []TodoEntry

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !matchesAny(d.Name(), globs) {
			return nil
		}

		found, err := scanFile(path)
		if err != nil {
			return err
		}
		entries = append(entries, found...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func matchesAny(name string, globs []string) bool {
	for _, glob := range globs {
		if ok, _ := filepath.Match(glob, name); ok {
			return true
		}
	}
	return false
}

func scanFile(path string) ([]TodoEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []TodoEntry
	scanner := bufio.NewScanner(f)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := scanner.Text()
		for _, marker := range todoMarkers {
			if strings.Contains(line, marker) {
				entries = append(entries, TodoEntry{
					Path: path,
					Line: lineno,
					Text: strings.TrimSpace(line),
				})
				break
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning %s: %w", path, err)
	}
	return entries, nil
}
