package vm

import (
	"bytes"
	"fmt"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/chazu/embedrun/image"
)

// resultName is the hidden global that keeps the value of a program's
// final expression statement.
const resultName = "__result__"

// LoadBytecode runs a program from image bytes. On failure the pending
// exception is set and None is returned.
func (s *Session) LoadBytecode(bc []byte) Value {
	img, err := image.Decode(bc)
	if err != nil {
		s.exc = &Exception{Class: ImageError, Message: err.Error(), cause: err}
		return starlark.None
	}
	prog, err := starlark.CompiledProgram(bytes.NewReader(img.Program))
	if err != nil {
		s.exc = &Exception{Class: ImageError, Message: err.Error(), Filename: img.Name, cause: err}
		return starlark.None
	}
	return s.exec(prog, img.Name)
}

// LoadSource compiles and runs source text. c may be nil; when set it
// supplies the filename label for diagnostics. On failure the pending
// exception is set and None is returned.
//
// The source runs as a REPL chunk against the session globals, so it may
// read and reassign names bound by earlier runs. Globals are committed
// only when the run succeeds.
func (s *Session) LoadSource(src string, c *CompileContext) Value {
	filename := c.Filename()
	f, err := s.parse(filename, src)
	if err != nil {
		s.Raise(err)
		s.exc.Filename = filename
		return starlark.None
	}

	globals := s.env()
	if err := starlark.ExecREPLChunk(f, s.thread, globals); err != nil {
		s.Raise(err)
		if s.exc.Filename == "" {
			s.exc.Filename = filename
		}
		return starlark.None
	}
	return s.commit(globals)
}

// Compile compiles source into image bytes without running it. Names the
// session already knows about resolve as predeclared.
func (s *Session) Compile(filename, src string) ([]byte, error) {
	prog, err := s.compile(filename, src)
	if err != nil {
		return nil, newException(err)
	}
	var buf bytes.Buffer
	if err := prog.Write(&buf); err != nil {
		return nil, fmt.Errorf("vm: write program: %w", err)
	}
	return image.Encode(image.New(filename, buf.Bytes()))
}

func (s *Session) compile(filename, src string) (*starlark.Program, error) {
	f, err := s.parse(filename, src)
	if err != nil {
		return nil, err
	}
	return starlark.FileProgram(f, s.isPredeclared)
}

func (s *Session) parse(filename, src string) (*syntax.File, error) {
	f, err := s.opts.Parse(filename, src, 0)
	if err != nil {
		return nil, err
	}
	keepResult(f)
	return f, nil
}

// exec initializes a compiled image program against the session globals.
// Names from earlier runs are predeclared to it, so an image can read them
// but its own bindings shadow rather than update them.
func (s *Session) exec(prog *starlark.Program, filename string) Value {
	globals, err := prog.Init(s.thread, s.env())
	if err != nil {
		s.Raise(err)
		if s.exc.Filename == "" {
			s.exc.Filename = filename
		}
		return starlark.None
	}
	return s.commit(globals)
}

// commit takes the final-expression value out of globals and makes the
// remaining bindings visible to later runs.
func (s *Session) commit(globals starlark.StringDict) Value {
	result, ok := globals[resultName]
	if !ok || result == nil {
		result = starlark.None
	}
	delete(globals, resultName)
	for name, v := range globals {
		if v != nil {
			s.defs[name] = v
		}
	}
	return result
}

// keepResult rewrites a trailing expression statement `expr` into
// `__result__ = expr` so the value survives program initialization.
func keepResult(f *syntax.File) {
	n := len(f.Stmts)
	if n == 0 {
		return
	}
	stmt, ok := f.Stmts[n-1].(*syntax.ExprStmt)
	if !ok {
		return
	}
	pos, _ := stmt.Span()
	f.Stmts[n-1] = &syntax.AssignStmt{
		OpPos: pos,
		Op:    syntax.EQ,
		LHS:   &syntax.Ident{NamePos: pos, Name: resultName},
		RHS:   stmt.X,
	}
}
