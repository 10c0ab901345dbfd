// Package driver runs programs inside an embedded VM and reports their
// outcome according to a print level.
//
// The driver never owns a VM. Every operation borrows a Machine for the
// duration of the call, and failures inside the VM come back through the
// machine's pending exception slot rather than as Go errors.
package driver

import (
	"io/fs"

	"github.com/tliron/commonlog"

	"github.com/chazu/embedrun/image"
	"github.com/chazu/embedrun/vm"
)

var log = commonlog.GetLogger("embedrun.driver")

// Machine is the VM surface the driver needs. *vm.Session implements it.
type Machine interface {
	LoadBytecode(bc []byte) vm.Value
	LoadSource(src string, c *vm.CompileContext) vm.Value

	Exception() *vm.Exception
	ClearException()

	P(v vm.Value)
	Inspect(v vm.Value) string

	NewCompileContext() *vm.CompileContext
	FreeCompileContext(c *vm.CompileContext)

	EnableLoad(l *vm.Loader)
}

var _ Machine = (*vm.Session)(nil)

// Driver holds the host-level settings shared by every run.
type Driver struct {
	image   []byte
	require bool
	modules []fs.FS
}

// Option configures a Driver.
type Option func(*Driver)

// WithImage sets the embedded bytecode image used by Run.
func WithImage(bc []byte) Option {
	return func(d *Driver) { d.image = bc }
}

// WithRequire overrides the build-time default for enabling load
// statements in Setup.
func WithRequire(enabled bool) Option {
	return func(d *Driver) { d.require = enabled }
}

// WithModules adds file systems searched by load statements once Setup
// has enabled them.
func WithModules(roots ...fs.FS) Option {
	return func(d *Driver) { d.modules = append(d.modules, roots...) }
}

// New creates a Driver.
func New(opts ...Option) *Driver {
	d := &Driver{require: HasRequire}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Image returns the embedded bytecode image.
func (d *Driver) Image() []byte {
	return d.image
}

// ImageName returns the name recorded in the embedded image, or "" when
// none is set.
func (d *Driver) ImageName() string {
	return image.NameOf(d.image)
}
