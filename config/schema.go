package config

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// schema constrains a decoded Config. Print levels are deliberately left
// open: any integer is meaningful to the reporter.
const schema = `
#Config: {
	run: {
		"print-level":  int
		"loading-mode": 0 | 1 | 2
		image?:         string
	}
	modules: {
		require?: bool | null
		paths?:   [...string] | null
	}
	log: {
		verbosity: int & >=-4 & <=4
		file?:     string
	}
	server: {
		addr: string
	}
	journal: {
		path?: string
	}
}
`

// Validate checks the configuration against the CUE schema.
func (c *Config) Validate() error {
	ctx := cuecontext.New()
	s := ctx.CompileString(schema)
	if err := s.Err(); err != nil {
		return fmt.Errorf("config schema: %w", err)
	}

	def := s.LookupPath(cue.ParsePath("#Config"))
	v := def.Unify(ctx.Encode(c))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}
