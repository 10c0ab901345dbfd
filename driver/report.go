package driver

import "github.com/chazu/embedrun/vm"

// PrintLevel selects what Report writes. Levels are not validated: any
// level above Silent shows exceptions and any level above Errors also
// shows results.
type PrintLevel int

const (
	Silent  PrintLevel = 0 // print nothing
	Errors  PrintLevel = 1 // print exceptions only
	Results PrintLevel = 2 // print exceptions and results
)

// Report inspects the machine right after a load call and prints the
// outcome through the machine's print primitive. It returns true when the
// run raised. A pending exception is always consumed, printed first when
// the level allows it, so the next run starts with an empty slot.
//
// result is only printed when no exception is pending.
func Report(m Machine, result vm.Value, level PrintLevel) bool {
	if exc := m.Exception(); exc != nil {
		if level > Silent {
			m.P(exc)
		}
		m.ClearException()
		return true
	}

	if level > Errors {
		m.P(result)
	}
	return false
}
