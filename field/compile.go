// Package field compiles textual two-variable expressions into numeric
// functions and combines them into a planar vector field.
//
// Expressions use infix syntax over the variables x and y with the operators
// + - * / and ^ (or **) for exponentiation, the constants e and pi, and the
// functions sqrt, exp, log, sin, cos, tan, atan, atan2, pow, hypot and noise,
// plus the builtins of the expression language (abs, min, max, floor, ceil,
// round). noise(x, y) is 2D Perlin noise.
package field

import (
	"errors"
	"fmt"
	"math"

	"github.com/aquilax/go-perlin"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// A Func is a compiled expression. It returns NaN whenever the expression
// cannot be evaluated to a finite real number.
type Func func(x, y float64) float64

// ErrEmpty is returned when compiling an empty expression.
var ErrEmpty = errors.New("field: empty expression")

// A CompileError reports a malformed expression.
type CompileError struct {
	Expr string
	Err  error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("field: cannot compile %q: %v", e.Expr, e.Err)
}

func (e *CompileError) Unwrap() error { return e.Err }

// env is the evaluation environment of an expression.
type env struct {
	X  float64 `expr:"x"`
	Y  float64 `expr:"y"`
	E  float64 `expr:"e"`
	Pi float64 `expr:"pi"`
}

// Perlin noise parameters: persistence, frequency ratio and octaves.
const (
	noiseAlpha   = 2
	noiseBeta    = 2
	noiseOctaves = 3
)

// A Compiler compiles expressions sharing one noise generator.
type Compiler struct {
	noise *perlin.Perlin
	opts  []expr.Option
}

// NewCompiler returns a compiler whose noise function is seeded with seed.
func NewCompiler(seed int64) *Compiler {
	c := &Compiler{noise: perlin.NewPerlin(noiseAlpha, noiseBeta, noiseOctaves, seed)}
	c.opts = []expr.Option{
		expr.Env(env{}),
		unary("sqrt", math.Sqrt),
		unary("exp", math.Exp),
		unary("log", math.Log),
		unary("sin", math.Sin),
		unary("cos", math.Cos),
		unary("tan", math.Tan),
		unary("atan", math.Atan),
		binary("atan2", math.Atan2),
		binary("pow", math.Pow),
		binary("hypot", math.Hypot),
		binary("noise", c.noise.Noise2D),
	}
	return c
}

var defaultCompiler = NewCompiler(0)

// Compile compiles text with a compiler seeded with 0.
func Compile(text string) (Func, error) {
	return defaultCompiler.Compile(text)
}

// Compile compiles text into a Func.
func (c *Compiler) Compile(text string) (Func, error) {
	if text == "" {
		return nil, ErrEmpty
	}
	prog, err := expr.Compile(text, c.opts...)
	if err != nil {
		return nil, &CompileError{Expr: text, Err: err}
	}
	return eval(prog), nil
}

// eval wraps a compiled program into a Func.
func eval(prog *vm.Program) Func {
	return func(x, y float64) float64 {
		out, err := expr.Run(prog, env{X: x, Y: y, E: math.E, Pi: math.Pi})
		if err != nil {
			return math.NaN()
		}
		v, ok := number(out)
		if !ok || math.IsInf(v, 0) {
			return math.NaN()
		}
		return v
	}
}

// number converts the numeric results of the expression language to float64.
func number(v any) (float64, bool) {
	switch v := v.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint64:
		return float64(v), true
	}
	return math.NaN(), false
}

func unary(name string, f func(float64) float64) expr.Option {
	return expr.Function(name, func(params ...any) (any, error) {
		if len(params) != 1 {
			return nil, fmt.Errorf("%s: want 1 argument, got %d", name, len(params))
		}
		x, ok := number(params[0])
		if !ok {
			return nil, fmt.Errorf("%s: non-numeric argument", name)
		}
		return f(x), nil
	}, new(func(float64) float64))
}

func binary(name string, f func(float64, float64) float64) expr.Option {
	return expr.Function(name, func(params ...any) (any, error) {
		if len(params) != 2 {
			return nil, fmt.Errorf("%s: want 2 arguments, got %d", name, len(params))
		}
		x, ok1 := number(params[0])
		y, ok2 := number(params[1])
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("%s: non-numeric argument", name)
		}
		return f(x, y), nil
	}, new(func(float64, float64) float64))
}
