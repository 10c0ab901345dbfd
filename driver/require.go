//go:build !norequire

package driver

// HasRequire is the build-time default for enabling load statements.
// Build with -tags norequire to turn it off.
const HasRequire = true
