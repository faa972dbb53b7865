package field

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// A Field is a vector field defined by one expression per component.
// Expressions are recompiled only when their text changes.
// An invalid field, or an empty component, contributes zero.
type Field struct {
	compiler *Compiler
	x, y     string
	fx, fy   Func
	err      error
}

// New returns an empty field compiling its expressions with c.
// A nil c uses the default compiler.
func New(c *Compiler) *Field {
	if c == nil {
		c = defaultCompiler
	}
	return &Field{compiler: c}
}

// Update sets the component expressions. It recompiles them when the text
// differs from the current one and reports whether it did.
// On a compile error the field is left invalid and the error is returned.
func (f *Field) Update(x, y string) (changed bool, err error) {
	if x == f.x && y == f.y {
		return false, f.err
	}
	f.x, f.y = x, y
	f.fx, f.fy, f.err = nil, nil, nil

	fx, err := f.compile(x)
	if err != nil {
		f.err = err
		return true, err
	}
	fy, err := f.compile(y)
	if err != nil {
		f.err = err
		return true, err
	}
	f.fx, f.fy = fx, fy
	return true, nil
}

func (f *Field) compile(text string) (Func, error) {
	if text == "" {
		return nil, nil
	}
	return f.compiler.Compile(text)
}

// Exprs returns the current component expressions.
func (f *Field) Exprs() (x, y string) { return f.x, f.y }

// Valid reports whether the last Update compiled successfully.
func (f *Field) Valid() bool { return f.err == nil }

// Err returns the last compile error, if any.
func (f *Field) Err() error { return f.err }

// Active reports whether the field is valid and has at least one component.
func (f *Field) Active() bool {
	return f.err == nil && (f.fx != nil || f.fy != nil)
}

// At evaluates the field at (x, y).
// Components that fail to evaluate are zero.
func (f *Field) At(x, y float64) r2.Vec {
	if !f.Active() {
		return r2.Vec{}
	}
	return r2.Vec{X: apply(f.fx, x, y), Y: apply(f.fy, x, y)}
}

func apply(fn Func, x, y float64) float64 {
	if fn == nil {
		return 0
	}
	v := fn(x, y)
	if math.IsNaN(v) {
		return 0
	}
	return v
}
