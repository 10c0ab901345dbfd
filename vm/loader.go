package vm

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/tliron/commonlog"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

var log = commonlog.GetLogger("embedrun.vm")

// ErrModuleNotFound is returned when no root contains the requested module.
var ErrModuleNotFound = errors.New("module not found")

var errCycle = errors.New("cycle in load graph")

// ModuleError describes a failed load statement.
type ModuleError struct {
	Module string
	Err    error
}

func (e *ModuleError) Error() string {
	return fmt.Sprintf("cannot load %s: %v", e.Module, e.Err)
}

func (e *ModuleError) Unwrap() error { return e.Err }

// Loader resolves load statements against an ordered list of file systems.
// Each module runs once; later loads share its frozen globals. A module
// that fails to load is not cached, so a fixed file is picked up by the
// next load statement.
type Loader struct {
	roots       []fs.FS
	cache       map[string]*moduleEntry
	opts        *syntax.FileOptions
	predeclared starlark.StringDict
}

type moduleEntry struct {
	globals starlark.StringDict
}

// NewLoader creates a loader searching roots in order.
func NewLoader(roots ...fs.FS) *Loader {
	return &Loader{
		roots: roots,
		cache: make(map[string]*moduleEntry),
	}
}

func (l *Loader) bind(opts *syntax.FileOptions, predeclared starlark.StringDict) {
	l.opts = opts
	l.predeclared = predeclared
}

// Load implements starlark.Thread.Load.
func (l *Loader) Load(thread *starlark.Thread, module string) (starlark.StringDict, error) {
	if e, ok := l.cache[module]; ok {
		if e == nil {
			// nil entry: module is still initializing further up the stack
			return nil, &ModuleError{Module: module, Err: errCycle}
		}
		return e.globals, nil
	}

	l.cache[module] = nil
	defer func() {
		if l.cache[module] == nil {
			delete(l.cache, module)
		}
	}()

	globals, err := l.exec(thread, module)
	if err != nil {
		return nil, err
	}
	l.cache[module] = &moduleEntry{globals: globals}
	return globals, nil
}

func (l *Loader) exec(parent *starlark.Thread, module string) (starlark.StringDict, error) {
	src, err := l.read(module)
	if err != nil {
		return nil, &ModuleError{Module: module, Err: err}
	}

	log.Debugf("loading module %s", module)
	thread := &starlark.Thread{
		Name:  "load " + module,
		Print: parent.Print,
		Load:  l.Load,
	}
	globals, err := starlark.ExecFileOptions(l.options(), thread, module, src, l.predeclared)
	if err != nil {
		return nil, &ModuleError{Module: module, Err: err}
	}
	globals.Freeze()
	return globals, nil
}

func (l *Loader) read(module string) ([]byte, error) {
	name := path.Clean(strings.TrimPrefix(module, "./"))
	if !fs.ValidPath(name) {
		return nil, fmt.Errorf("invalid module path %q", module)
	}
	for _, root := range l.roots {
		data, err := fs.ReadFile(root, name)
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	return nil, ErrModuleNotFound
}

func (l *Loader) options() *syntax.FileOptions {
	if l.opts == nil {
		return &syntax.FileOptions{}
	}
	return l.opts
}
