// Command skal-systest runs the SKAL system-test scenarios.
package main

import (
	"fmt"
	"os"

	"github.com/fabricetriboix/skal-systest/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
