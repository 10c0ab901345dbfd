//go:build norequire

package driver

const HasRequire = false
