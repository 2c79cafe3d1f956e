package scenario

import (
	_ "embed"
	"fmt"
)

// The skal system tests: skald plus reader/writer clients exchanging
// messages over a unix socket, in four variants.
//
//go:embed skal.yaml
var skalPlanYAML []byte

// Default returns the embedded skal plan, used when the run command is
// given no plan file.
func Default() *Plan {
	plan, err := ParsePlan(skalPlanYAML)
	if err != nil {
		// The embedded plan is covered by tests; reaching this is a
		// build defect.
		panic(fmt.Sprintf("embedded skal plan is invalid: %v", err))
	}
	return plan
}
