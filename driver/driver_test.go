package driver

import (
	"bytes"
	"strings"
	"testing"
	"testing/fstest"

	"go.starlark.net/starlark"

	"github.com/chazu/embedrun/vm"
)

// fakeMachine records every call the driver makes.
type fakeMachine struct {
	raise  *vm.Exception // set as pending on the next load
	result vm.Value
	panics bool

	exc      *vm.Exception
	events   []string
	printed  []string
	acquired int
	released int
	ctxs     []*vm.CompileContext
	loader   *vm.Loader
}

func (f *fakeMachine) load() vm.Value {
	if f.panics {
		panic("machine exploded")
	}
	if f.raise != nil {
		f.exc = f.raise
		return starlark.String("garbage")
	}
	return f.result
}

func (f *fakeMachine) LoadBytecode(bc []byte) vm.Value {
	f.events = append(f.events, "load")
	return f.load()
}

func (f *fakeMachine) LoadSource(src string, c *vm.CompileContext) vm.Value {
	f.events = append(f.events, "load")
	f.ctxs = append(f.ctxs, c)
	return f.load()
}

func (f *fakeMachine) Exception() *vm.Exception { return f.exc }

func (f *fakeMachine) ClearException() {
	f.events = append(f.events, "clear")
	f.exc = nil
}

func (f *fakeMachine) P(v vm.Value) {
	f.events = append(f.events, "print")
	f.printed = append(f.printed, f.Inspect(v))
}

func (f *fakeMachine) Inspect(v vm.Value) string { return v.String() }

func (f *fakeMachine) NewCompileContext() *vm.CompileContext {
	f.acquired++
	return &vm.CompileContext{}
}

func (f *fakeMachine) FreeCompileContext(c *vm.CompileContext) { f.released++ }

func (f *fakeMachine) EnableLoad(l *vm.Loader) { f.loader = l }

func boom() *vm.Exception {
	return &vm.Exception{Class: vm.RuntimeError, Message: "boom"}
}

// ---------------------------------------------------------------------------
// Report
// ---------------------------------------------------------------------------

func TestReportSilentRaise(t *testing.T) {
	m := &fakeMachine{exc: boom()}

	if !Report(m, starlark.None, Silent) {
		t.Error("Report = false, want true for a raised run")
	}
	if len(m.printed) != 0 {
		t.Errorf("printed %v at level 0", m.printed)
	}
	if m.exc != nil {
		t.Error("pending exception not cleared")
	}
}

func TestReportRaisePrintsThenClears(t *testing.T) {
	for _, level := range []PrintLevel{Errors, Results, 9} {
		m := &fakeMachine{exc: boom()}

		if !Report(m, starlark.String("ignored"), level) {
			t.Errorf("level %d: Report = false, want true", level)
		}
		if len(m.printed) != 1 || m.printed[0] != "boom (RuntimeError)" {
			t.Errorf("level %d: printed %v, want exactly the exception", level, m.printed)
		}
		if strings.Join(m.events, ",") != "print,clear" {
			t.Errorf("level %d: events %v, want print before clear", level, m.events)
		}
		if m.exc != nil {
			t.Errorf("level %d: pending exception not cleared", level)
		}
	}
}

func TestReportResult(t *testing.T) {
	cases := []struct {
		level PrintLevel
		want  int
	}{
		{-1, 0},
		{Silent, 0},
		{Errors, 0},
		{Results, 1},
		{5, 1},
	}
	for _, tc := range cases {
		m := &fakeMachine{}
		if Report(m, starlark.MakeInt(2), tc.level) {
			t.Errorf("level %d: Report = true for a clean run", tc.level)
		}
		if len(m.printed) != tc.want {
			t.Errorf("level %d: printed %v, want %d lines", tc.level, m.printed, tc.want)
		}
	}
}

// ---------------------------------------------------------------------------
// Run orchestration with a fake machine
// ---------------------------------------------------------------------------

func TestRunUsesEmbeddedImage(t *testing.T) {
	m := &fakeMachine{result: starlark.MakeInt(1)}
	d := New(WithImage([]byte("image")))

	if d.Run(m, Results) {
		t.Error("Run = true for a clean run")
	}
	if len(m.printed) != 1 {
		t.Errorf("printed %v, want one result", m.printed)
	}
}

func TestRunSourceContextGatedOnLevel(t *testing.T) {
	d := New()

	m := &fakeMachine{result: starlark.None}
	d.RunSource(m, "x", Silent)
	if m.acquired != 0 || m.ctxs[0] != nil {
		t.Errorf("silent run acquired %d contexts", m.acquired)
	}

	for _, raise := range []*vm.Exception{nil, boom()} {
		m := &fakeMachine{result: starlark.None, raise: raise}
		got := d.RunSource(m, "x", Errors)
		if got != (raise != nil) {
			t.Errorf("RunSource = %v, raise = %v", got, raise)
		}
		if m.acquired != 1 || m.released != 1 {
			t.Errorf("acquired %d, released %d; want 1 and 1", m.acquired, m.released)
		}
		if m.ctxs[0] == nil {
			t.Error("load call did not receive the context")
		}
	}
}

func TestRunSourceReleasesContextOnPanic(t *testing.T) {
	d := New()
	m := &fakeMachine{panics: true}

	func() {
		defer func() { recover() }()
		d.RunSource(m, "x", Errors)
	}()
	if m.acquired != m.released {
		t.Errorf("acquired %d, released %d", m.acquired, m.released)
	}

	func() {
		defer func() { recover() }()
		d.RunSourceFile(m, "x", "x.star", Silent)
	}()
	if m.acquired != m.released {
		t.Errorf("acquired %d, released %d", m.acquired, m.released)
	}
}

func TestRunSourceFileAlwaysUsesContext(t *testing.T) {
	d := New()
	m := &fakeMachine{result: starlark.None, raise: boom()}

	diag := d.RunSourceFile(m, "x", "script.star", Silent)
	if diag != "boom (RuntimeError)" {
		t.Errorf("diagnostic = %q", diag)
	}
	if m.acquired != 1 || m.released != 1 {
		t.Errorf("acquired %d, released %d; want 1 and 1", m.acquired, m.released)
	}
	if got := m.ctxs[0].Filename(); got != "script.star" {
		t.Errorf("context filename = %q, want script.star", got)
	}
	if len(m.printed) != 0 {
		t.Errorf("printed %v at level 0", m.printed)
	}
	if m.exc != nil {
		t.Error("pending exception not cleared")
	}
}

func TestRunSourceFileReportsToConsoleToo(t *testing.T) {
	d := New()
	m := &fakeMachine{result: starlark.None, raise: boom()}

	diag := d.RunSourceFile(m, "x", "script.star", Errors)
	if diag == "" {
		t.Fatal("expected a diagnostic")
	}
	if len(m.printed) != 1 || m.printed[0] != diag {
		t.Errorf("printed %v, want the exception once", m.printed)
	}
}

func TestRunSourceFileSuccessIsEmpty(t *testing.T) {
	d := New()
	m := &fakeMachine{result: starlark.MakeInt(2)}

	if diag := d.RunSourceFile(m, "1+1", "ok.star", Results); diag != "" {
		t.Errorf("diagnostic = %q, want empty", diag)
	}
	if len(m.printed) != 1 || m.printed[0] != "2" {
		t.Errorf("printed %v, want [2]", m.printed)
	}
}

// ---------------------------------------------------------------------------
// Setup
// ---------------------------------------------------------------------------

func TestSetup(t *testing.T) {
	m := &fakeMachine{}
	if status := New(WithRequire(true)).Setup(m); status != 0 {
		t.Errorf("Setup = %d, want 0", status)
	}
	if m.loader == nil {
		t.Error("Setup did not enable load")
	}

	m = &fakeMachine{}
	if status := New(WithRequire(false)).Setup(m); status != 0 {
		t.Errorf("Setup = %d, want 0", status)
	}
	if m.loader != nil {
		t.Error("Setup enabled load with require off")
	}
}

func TestLoadingModes(t *testing.T) {
	cases := []struct {
		mode LoadingMode
		ops  int
	}{
		{EmbeddedOnly, 1},
		{BytecodeAllowed, 2},
		{SourceAllowed, 4},
	}
	for _, tc := range cases {
		if got := len(tc.mode.Ops()); got != tc.ops {
			t.Errorf("mode %d exposes %d ops, want %d", tc.mode, got, tc.ops)
		}
	}
	if EmbeddedOnly.Allows(OpRunBytecode) {
		t.Error("mode 0 allows run_bytecode")
	}
	if !BytecodeAllowed.Allows(OpRun) {
		t.Error("mode 1 forbids run")
	}
	if BytecodeAllowed.Allows(OpRunSourceFile) {
		t.Error("mode 1 allows run_source_file")
	}
}

// ---------------------------------------------------------------------------
// End to end against a real session
// ---------------------------------------------------------------------------

func newSession(t *testing.T) (*vm.Session, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	return vm.New(vm.WithOutput(&out)), &out
}

func TestEmbeddedImagePrintsFinalValueOnce(t *testing.T) {
	s, out := newSession(t)
	bc, err := vm.New().Compile("app.star", "total = 0\nfor i in range(4):\n    total += i\ntotal * 10\n")
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	d := New(WithImage(bc))

	if d.Run(s, Results) {
		t.Fatalf("Run raised: %s", out.String())
	}
	if out.String() != "60\n" {
		t.Errorf("output = %q, want %q", out.String(), "60\n")
	}
}

func TestRaisedSourceDoesNotLeak(t *testing.T) {
	s, out := newSession(t)
	d := New()

	if !d.RunSource(s, `fail("boom")`, Errors) {
		t.Fatal("RunSource = false for a failing script")
	}
	if n := strings.Count(out.String(), "boom"); n != 1 {
		t.Errorf("exception printed %d times: %q", n, out.String())
	}
	if s.Exception() != nil {
		t.Fatal("pending exception survived the run")
	}
	if s.LiveContexts() != 0 {
		t.Errorf("%d compile contexts leaked", s.LiveContexts())
	}

	out.Reset()
	if d.RunSource(s, "x = 1 + 2", Errors) {
		t.Errorf("follow-up run raised: %q", out.String())
	}
	if out.Len() != 0 {
		t.Errorf("follow-up run printed %q at level 1", out.String())
	}
}

func TestSilentFailureStillClears(t *testing.T) {
	s, out := newSession(t)
	d := New()

	if !d.RunSource(s, `fail("quiet")`, Silent) {
		t.Error("RunSource = false for a failing script")
	}
	if out.Len() != 0 {
		t.Errorf("printed %q at level 0", out.String())
	}
	if s.Exception() != nil {
		t.Error("pending exception survived a silent run")
	}
}

func TestRunSourceFileDiagnostics(t *testing.T) {
	s, _ := newSession(t)
	d := New()

	diag := d.RunSourceFile(s, `fail("boom")`, "boom.star", Silent)
	if diag == "" || !strings.Contains(diag, "boom") {
		t.Errorf("diagnostic = %q, want a rendering of the failure", diag)
	}
	if !strings.Contains(diag, "boom.star") {
		t.Errorf("diagnostic = %q, want the filename label", diag)
	}

	if diag := d.RunSourceFile(s, "1+1", "ok.star", Silent); diag != "" {
		t.Errorf("diagnostic = %q, want empty", diag)
	}
	if s.LiveContexts() != 0 {
		t.Errorf("%d compile contexts leaked", s.LiveContexts())
	}
}

func TestSetupEnablesModules(t *testing.T) {
	s, out := newSession(t)
	d := New(WithRequire(true), WithModules(fstest.MapFS{
		"math.star": {Data: []byte("def square(n):\n    return n * n\n")},
	}))
	d.Setup(s)

	if d.RunSource(s, "load(\"math.star\", \"square\")\nsquare(7)", Results) {
		t.Fatalf("run raised: %q", out.String())
	}
	if out.String() != "49\n" {
		t.Errorf("output = %q, want 49", out.String())
	}
}
