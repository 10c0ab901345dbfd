package driver

import "github.com/chazu/embedrun/vm"

// Run runs the embedded image. It returns true when the run raised.
func (d *Driver) Run(m Machine, level PrintLevel) bool {
	return d.RunBytecode(m, d.image, level)
}

// RunBytecode runs a caller-supplied image.
func (d *Driver) RunBytecode(m Machine, bc []byte, level PrintLevel) bool {
	log.Debugf("run bytecode (%d bytes, level %d)", len(bc), level)
	return Report(m, m.LoadBytecode(bc), level)
}

// RunSource compiles and runs source text. A compile context is only
// acquired when something may be printed.
func (d *Driver) RunSource(m Machine, src string, level PrintLevel) bool {
	log.Debugf("run source (%d bytes, level %d)", len(src), level)

	var c *vm.CompileContext
	if level > Silent {
		c = m.NewCompileContext()
		defer m.FreeCompileContext(c)
	}
	return Report(m, m.LoadSource(src, c), level)
}

// RunSourceFile compiles and runs source text labelled with filename and
// returns the inspected exception, or "" when the run succeeded. The
// console report follows level as in RunSource.
//
// Unlike RunSource the compile context is acquired at every level, since
// the filename label is useful even for silent runs.
func (d *Driver) RunSourceFile(m Machine, src, filename string, level PrintLevel) string {
	log.Debugf("run source file %s (level %d)", filename, level)

	c := m.NewCompileContext()
	defer m.FreeCompileContext(c)
	c.SetFilename(filename)

	result := m.LoadSource(src, c)

	var diagnostic string
	if exc := m.Exception(); exc != nil {
		diagnostic = m.Inspect(exc)
		log.Infof("%s raised: %s", filename, diagnostic)
	}
	Report(m, result, level)
	return diagnostic
}
