package manifest

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// schema constrains a decoded loxvm.toml. Fields left empty in the file
// are filled by defaults after validation, so they are optional here.
const schema = `
#Config: {
	vm: trace: bool
	log: {
		verbosity: int & >=-4 & <=2
		path?:     string
	}
	store: {
		driver: *"" | "sqlite" | "duckdb"
		dsn:    string
	}
	server: addr: string
}
`

// Validate checks m against the configuration schema.
func Validate(m *Manifest) error {
	ctx := cuecontext.New()

	def := ctx.CompileString(schema).LookupPath(cue.ParsePath("#Config"))
	if err := def.Err(); err != nil {
		return fmt.Errorf("config schema: %w", err)
	}

	val := ctx.Encode(m)
	if err := val.Err(); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	if err := def.Unify(val).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
