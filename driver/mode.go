package driver

import "fmt"

// Op names one of the driver entry points.
type Op int

const (
	OpRun Op = iota
	OpRunBytecode
	OpRunSource
	OpRunSourceFile
)

func (o Op) String() string {
	switch o {
	case OpRun:
		return "run"
	case OpRunBytecode:
		return "run_bytecode"
	case OpRunSource:
		return "run_source"
	case OpRunSourceFile:
		return "run_source_file"
	default:
		return fmt.Sprintf("op(%d)", int(o))
	}
}

// LoadingMode decides which entry points a host exposes. Running the
// embedded image is always available; bytecode from callers needs mode 1
// and source text needs mode 2, since it keeps the compiler linked in.
type LoadingMode int

const (
	EmbeddedOnly    LoadingMode = 0
	BytecodeAllowed LoadingMode = 1
	SourceAllowed   LoadingMode = 2
)

// Allows reports whether op is exposed under mode m.
func (m LoadingMode) Allows(op Op) bool {
	switch op {
	case OpRun:
		return true
	case OpRunBytecode:
		return m >= BytecodeAllowed
	case OpRunSource, OpRunSourceFile:
		return m >= SourceAllowed
	default:
		return false
	}
}

// Ops lists the entry points exposed under mode m.
func (m LoadingMode) Ops() []Op {
	var ops []Op
	for _, op := range []Op{OpRun, OpRunBytecode, OpRunSource, OpRunSourceFile} {
		if m.Allows(op) {
			ops = append(ops, op)
		}
	}
	return ops
}
