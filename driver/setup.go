package driver

import "github.com/chazu/embedrun/vm"

// Setup prepares a machine before its first run. When load statements
// are enabled it installs a module loader over the driver's module roots.
// It always returns 0.
//
// Call it once per machine, before any Run* operation.
func (d *Driver) Setup(m Machine) int {
	if d.require {
		log.Debugf("enabling load over %d module roots", len(d.modules))
		m.EnableLoad(vm.NewLoader(d.modules...))
	}
	return 0
}
