// Package app holds the program shipped inside the embedrun binary.
//
// The scripts are embedded at build time. Image compiles main.star into a
// bytecode image on first use; FS serves the helper modules to load
// statements.
package app

import (
	"embed"
	"io/fs"
	"sync"

	"github.com/chazu/embedrun/vm"
)

// Entry is the script compiled into the embedded image.
const Entry = "main.star"

//go:embed main.star lib
var files embed.FS

var (
	once     sync.Once
	image    []byte
	imageErr error
)

// Image returns the embedded bytecode image, compiling it once per
// process.
func Image() ([]byte, error) {
	once.Do(func() {
		var src []byte
		src, imageErr = files.ReadFile(Entry)
		if imageErr != nil {
			return
		}
		image, imageErr = vm.New().Compile(Entry, string(src))
	})
	return image, imageErr
}

// MustImage is like Image but panics on error.
func MustImage() []byte {
	img, err := Image()
	if err != nil {
		panic("app: " + err.Error())
	}
	return img
}

// FS returns the embedded scripts as a module root.
func FS() fs.FS {
	return files
}
