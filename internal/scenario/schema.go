package scenario

import (
	_ "embed"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueyaml "cuelang.org/go/encoding/yaml"
)

//go:embed schema.cue
var schemaCUE string

// ValidateSchema checks plan YAML against the embedded CUE schema. It
// catches structural mistakes (wrong types, malformed durations, unknown
// step shapes) with CUE's error positions before the Go decoder runs.
// filename is used only for error messages.
func ValidateSchema(filename string, data []byte) error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compiling plan schema: %w", err)
	}
	planSchema := schema.LookupPath(cue.ParsePath("#Plan"))
	if err := planSchema.Err(); err != nil {
		return fmt.Errorf("resolving #Plan: %w", err)
	}

	file, err := cueyaml.Extract(filename, data)
	if err != nil {
		return fmt.Errorf("parsing plan YAML: %w", err)
	}
	value := ctx.BuildFile(file)
	if err := value.Err(); err != nil {
		return fmt.Errorf("building plan value: %w", err)
	}

	unified := planSchema.Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("plan does not match schema: %w", err)
	}
	return nil
}
