// Package vm wraps the embedded Starlark interpreter as a VM session: a
// single interpreter instance with a pending-exception slot, a print
// primitive and bytecode/source loading entry points.
//
// A Session is not safe for concurrent use. Hosts that share one between
// goroutines must serialize access (see server.VMWorker).
package vm

import (
	"fmt"
	"io"
	"os"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// Value is a VM value.
type Value = starlark.Value

// Session is one interpreter instance. It owns the definitions bound by
// earlier runs, the print sink, the optional module loader and the pending
// exception slot.
type Session struct {
	name        string
	thread      *starlark.Thread
	opts        *syntax.FileOptions
	predeclared starlark.StringDict
	defs        starlark.StringDict
	out         io.Writer
	loader      *Loader

	exc  *Exception
	live int
}

// Option configures a Session.
type Option func(*Session)

// WithOutput sets where print output goes. Defaults to os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(s *Session) { s.out = w }
}

// WithName names the session's interpreter thread.
func WithName(name string) Option {
	return func(s *Session) { s.name = name }
}

// WithPredeclared adds host-provided globals visible to every run.
func WithPredeclared(env starlark.StringDict) Option {
	return func(s *Session) {
		for k, v := range env {
			s.predeclared[k] = v
		}
	}
}

// New creates a Session.
func New(opts ...Option) *Session {
	s := &Session{
		name:        "embedrun",
		predeclared: starlark.StringDict{},
		defs:        starlark.StringDict{},
		out:         os.Stdout,
		opts: &syntax.FileOptions{
			Set:             true,
			While:           true,
			TopLevelControl: true,
			GlobalReassign:  true,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.thread = &starlark.Thread{
		Name: s.name,
		Print: func(_ *starlark.Thread, msg string) {
			fmt.Fprintln(s.out, msg)
		},
	}
	return s
}

// Name returns the session name.
func (s *Session) Name() string { return s.name }

// SetOutput redirects print output and returns the previous writer.
func (s *Session) SetOutput(w io.Writer) io.Writer {
	prev := s.out
	s.out = w
	return prev
}

// Exception returns the pending exception, or nil.
func (s *Session) Exception() *Exception {
	return s.exc
}

// ClearException empties the pending exception slot.
func (s *Session) ClearException() {
	s.exc = nil
}

// Raise records err as the pending exception, replacing any earlier one.
func (s *Session) Raise(err error) {
	if exc, ok := err.(*Exception); ok {
		s.exc = exc
		return
	}
	s.exc = newException(err)
}

// Inspect renders a value the way the interpreter's repr does.
func (s *Session) Inspect(v Value) string {
	if v == nil {
		return starlark.None.String()
	}
	return v.String()
}

// P writes the inspected form of v and a newline to the session output.
func (s *Session) P(v Value) {
	fmt.Fprintln(s.out, s.Inspect(v))
}

// Global looks up a name bound by an earlier run or predeclared by the host.
func (s *Session) Global(name string) (Value, bool) {
	if v, ok := s.defs[name]; ok {
		return v, true
	}
	v, ok := s.predeclared[name]
	return v, ok
}

// EnableLoad installs l as the handler for load statements. Modules see
// the session's predeclared globals.
func (s *Session) EnableLoad(l *Loader) {
	l.bind(s.opts, s.predeclared)
	s.loader = l
	s.thread.Load = l.Load
}

// LoadEnabled reports whether load statements are available.
func (s *Session) LoadEnabled() bool {
	return s.loader != nil
}

// env returns the globals a new program is initialized with.
func (s *Session) env() starlark.StringDict {
	env := make(starlark.StringDict, len(s.predeclared)+len(s.defs))
	for k, v := range s.predeclared {
		env[k] = v
	}
	for k, v := range s.defs {
		env[k] = v
	}
	return env
}

func (s *Session) isPredeclared(name string) bool {
	_, ok := s.Global(name)
	return ok
}
