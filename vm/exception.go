package vm

import (
	"errors"
	"fmt"

	"go.starlark.net/resolve"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// Exception classes.
const (
	SyntaxError  = "SyntaxError"
	NameError    = "NameError"
	RuntimeError = "RuntimeError"
	ImageError   = "ImageError"
	LoadError    = "LoadError"
)

// Exception is an uncaught failure raised inside the VM. It is itself a
// Starlark value so that it can be handed to the same print and inspect
// primitives as ordinary results.
type Exception struct {
	Class     string
	Message   string
	Filename  string
	Backtrace string
	cause     error
}

var _ starlark.Value = (*Exception)(nil)

// newException classifies a Go error coming out of the interpreter.
func newException(err error) *Exception {
	var (
		modErr  *ModuleError
		evalErr *starlark.EvalError
		synErr  syntax.Error
		resErrs resolve.ErrorList
	)
	switch {
	case errors.As(err, &modErr):
		return &Exception{Class: LoadError, Message: modErr.Error(), cause: err}
	case errors.As(err, &evalErr):
		msg := evalErr.Msg
		if pos, ok := sourcePos(evalErr.CallStack); ok {
			msg = fmt.Sprintf("%s: %s", pos, evalErr.Msg)
		}
		return &Exception{
			Class:     RuntimeError,
			Message:   msg,
			Backtrace: evalErr.Backtrace(),
			cause:     err,
		}
	case errors.As(err, &synErr):
		return &Exception{Class: SyntaxError, Message: synErr.Error(), cause: err}
	case errors.As(err, &resErrs):
		return &Exception{Class: NameError, Message: resErrs.Error(), cause: err}
	default:
		return &Exception{Class: RuntimeError, Message: err.Error(), cause: err}
	}
}

// sourcePos finds the innermost frame that points into script source,
// skipping builtins.
func sourcePos(stack starlark.CallStack) (syntax.Position, bool) {
	for i := range stack {
		pos := stack.At(i).Pos
		if name := pos.Filename(); name != "" && name != "<builtin>" {
			return pos, true
		}
	}
	return syntax.Position{}, false
}

// Unwrap returns the interpreter error the exception was built from.
func (e *Exception) Unwrap() error { return e.cause }

func (e *Exception) Error() string { return e.String() }

// String renders the exception the way inspect shows it: "message (Class)".
func (e *Exception) String() string {
	return fmt.Sprintf("%s (%s)", e.Message, e.Class)
}

func (e *Exception) Type() string         { return "exception" }
func (e *Exception) Freeze()              {}
func (e *Exception) Truth() starlark.Bool { return starlark.True }

func (e *Exception) Hash() (uint32, error) {
	return 0, fmt.Errorf("unhashable type: exception")
}
