package vm

// DefaultFilename labels source loaded without a compile context.
const DefaultFilename = "-"

// CompileContext carries per-load compiler settings. It is created by
// Session.NewCompileContext, used for a single load and released with
// Session.FreeCompileContext.
type CompileContext struct {
	filename string
	freed    bool
}

// SetFilename sets the label used in diagnostics for the loaded source.
// Nothing is read from disk.
func (c *CompileContext) SetFilename(name string) {
	c.filename = name
}

// Filename returns the diagnostic label, or DefaultFilename if none was set.
func (c *CompileContext) Filename() string {
	if c == nil || c.filename == "" {
		return DefaultFilename
	}
	return c.filename
}

// NewCompileContext acquires a fresh compile context.
func (s *Session) NewCompileContext() *CompileContext {
	s.live++
	return &CompileContext{}
}

// FreeCompileContext releases a context. Releasing nil or an already
// released context does nothing.
func (s *Session) FreeCompileContext(c *CompileContext) {
	if c == nil || c.freed {
		return
	}
	c.freed = true
	s.live--
}

// LiveContexts reports how many compile contexts are acquired and not yet
// released.
func (s *Session) LiveContexts() int {
	return s.live
}
