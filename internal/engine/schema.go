package engine

import (
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/wsync/internal/translog"
)

// payloadSchema declares the accepted payload of every log-entry kind.
// Definitions are closed: unknown keys are rejected, except for echo.
const payloadSchema = `
#nonEmpty: string & !=""

// driver and command end up as fields of one line in the template index.
#driver:  string & =~"^[^,\r\n]+$"
#command: string & =~"^[^\r\n]+$"

#init: {}

#echo: {
	msg?: string
	...
}

#pull: {
	key:            string
	driver:         #driver
	command:        #command
	template_text?: string | null
}

#delete: {
	template: #nonEmpty
}

#push: {
	driver:        #driver
	command:       #command
	template_text: #nonEmpty
}
`

// Validator checks log-entry payloads against payloadSchema.
//
// Thread-safety: cue.Context is not safe for concurrent use, so Validate
// serializes callers.
type Validator struct {
	mu     sync.Mutex
	ctx    *cue.Context
	schema cue.Value
}

// NewValidator compiles the built-in payload schema.
func NewValidator() (*Validator, error) {
	return NewValidatorFromSource(payloadSchema)
}

// NewValidatorFromSource compiles a custom schema. Each kind is looked up as
// the definition #<kind>; kinds without a definition are not validated.
func NewValidatorFromSource(src string) (*Validator, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(src)
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile payload schema: %w", err)
	}
	return &Validator{ctx: ctx, schema: schema}, nil
}

// MustValidator is NewValidator for package-level wiring; panics on error.
func MustValidator() *Validator {
	v, err := NewValidator()
	if err != nil {
		panic(err)
	}
	return v
}

// Validate returns an error if payload does not satisfy kind's definition.
func (v *Validator) Validate(kind translog.Kind, payload translog.Payload) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	def := v.schema.LookupPath(cue.ParsePath("#" + string(kind)))
	if !def.Exists() {
		return nil
	}

	if payload == nil {
		payload = translog.Payload{}
	}
	val := v.ctx.Encode(map[string]any(payload))
	if err := val.Err(); err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	if err := def.Unify(val).Validate(cue.Concrete(true)); err != nil {
		return err
	}
	return nil
}
