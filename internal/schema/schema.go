// Package schema implements the schema validation layer with CUE.
//
// A schema is CUE source containing a definition (by default #Record)
// that every record must unify with:
//
//	#Record: {
//		id?:    string
//		email!: =~"^.+@.+$"
//		price:  number & >=0
//		...
//	}
//
// record.Decode yields int64 for integral numbers and float64 otherwise;
// records from plain encoding/json carry float64 only, so prefer number
// over int for numeric fields.
//
// Uses CUE SDK's Go API directly (not CLI subprocess).
package schema

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/gridedit/internal/record"
)

// DefaultPath is the definition looked up when no path is given.
const DefaultPath = "#Record"

// RecordKey holds messages that cannot be attributed to a single field.
const RecordKey = "_record"

// CompileError reports a schema that could not be compiled.
type CompileError struct {
	Path    string
	Message string
	Pos     token.Pos
}

// Error implements the error interface.
func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Path, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Validator checks records against a compiled CUE definition.
// It implements validate.SchemaValidator.
//
// Thread-safety: a cue.Context is not safe for concurrent use, so
// ValidateSchema serialises access with a mutex.
type Validator struct {
	mu     sync.Mutex
	ctx    *cue.Context
	def    cue.Value
	prefix []string
}

// Compile compiles src and returns a validator for the definition at
// path. An empty path means DefaultPath.
func Compile(src, path string) (*Validator, error) {
	return compile(src, path, "schema.cue")
}

// Load reads a CUE file from disk and compiles it.
func Load(file, path string) (*Validator, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	return compile(string(data), path, file)
}

func compile(src, path, filename string) (*Validator, error) {
	if path == "" {
		path = DefaultPath
	}

	ctx := cuecontext.New()
	v := ctx.CompileString(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(path, err)
	}

	cuePath := cue.ParsePath(path)
	if err := cuePath.Err(); err != nil {
		return nil, &CompileError{Path: path, Message: err.Error()}
	}

	def := v.LookupPath(cuePath)
	if !def.Exists() {
		return nil, &CompileError{Path: path, Message: "definition not found", Pos: v.Pos()}
	}
	if err := def.Err(); err != nil {
		return nil, formatCUEError(path, err)
	}

	prefix := make([]string, 0, len(cuePath.Selectors()))
	for _, sel := range cuePath.Selectors() {
		prefix = append(prefix, sel.String())
	}

	return &Validator{ctx: ctx, def: def, prefix: prefix}, nil
}

// ValidateSchema unifies rec with the definition and reports every
// failure as field → message. The first message per field wins.
// Returns nil when rec conforms.
func (v *Validator) ValidateSchema(rec record.Record) record.FieldErrors {
	v.mu.Lock()
	defer v.mu.Unlock()

	val := v.ctx.Encode(map[string]any(rec.Clone()))
	if err := val.Err(); err != nil {
		return record.FieldErrors{RecordKey: err.Error()}
	}

	unified := v.def.Unify(val)
	err := unified.Validate(cue.Concrete(true))
	if err == nil {
		return nil
	}

	out := record.FieldErrors{}
	for _, e := range cueerrors.Errors(err) {
		field := v.fieldOf(e.Path())
		if _, seen := out[field]; seen {
			continue
		}
		out[field] = message(e)
	}
	if len(out) == 0 {
		out[RecordKey] = err.Error()
	}
	return out
}

// fieldOf maps a CUE error path to a top-level record field. The
// definition's own selectors and any leading definition labels are
// stripped first.
func (v *Validator) fieldOf(path []string) string {
	rest := path
	if len(rest) >= len(v.prefix) && slices.Equal(rest[:len(v.prefix)], v.prefix) {
		rest = rest[len(v.prefix):]
	}
	for len(rest) > 0 && strings.HasPrefix(rest[0], "#") {
		rest = rest[1:]
	}
	if len(rest) == 0 {
		return RecordKey
	}
	return strings.Trim(rest[0], `"`)
}

func message(e cueerrors.Error) string {
	format, args := e.Msg()
	return fmt.Sprintf(format, args...)
}

func formatCUEError(path string, err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &CompileError{Path: path, Message: err.Error()}
	}
	first := errs[0]
	return &CompileError{
		Path:    path,
		Message: message(first),
		Pos:     first.Position(),
	}
}
