// Package image handles the on-disk and embedded form of compiled programs.
//
// An image is a canonical CBOR envelope around a compiled Starlark program:
//
//	magic "ERUN" | version | name | sha256(program) | program bytes
//
// The program bytes are opaque here; only the VM knows how to run them.
package image

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Magic identifies an embedrun image.
const Magic = "ERUN"

// Version is the current envelope version.
const Version uint32 = 1

var (
	ErrInvalidMagic    = errors.New("invalid magic number: expected ERUN")
	ErrVersionMismatch = errors.New("image version mismatch")
	ErrChecksum        = errors.New("image checksum mismatch")
	ErrCorrupt         = errors.New("corrupt image data")
	ErrEmpty           = errors.New("image has no program")
)

// Image is a decoded envelope.
type Image struct {
	Magic    string   `cbor:"1,keyasint"`
	Version  uint32   `cbor:"2,keyasint"`
	Name     string   `cbor:"3,keyasint,omitempty"`
	Checksum [32]byte `cbor:"4,keyasint"`
	Program  []byte   `cbor:"5,keyasint"`
}

var encMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("image: failed to create CBOR enc mode: %v", err))
	}
	encMode = em
}

// New wraps program bytes in an envelope, filling in magic, version and
// checksum.
func New(name string, program []byte) *Image {
	return &Image{
		Magic:    Magic,
		Version:  Version,
		Name:     name,
		Checksum: sha256.Sum256(program),
		Program:  program,
	}
}

// Encode serializes an image to CBOR bytes.
func Encode(img *Image) ([]byte, error) {
	if len(img.Program) == 0 {
		return nil, ErrEmpty
	}
	return encMode.Marshal(img)
}

// Decode deserializes and verifies an image.
func Decode(data []byte) (*Image, error) {
	if len(data) == 0 {
		return nil, ErrEmpty
	}
	var img Image
	if err := cbor.Unmarshal(data, &img); err != nil {
		return nil, fmt.Errorf("image: %w: %v", ErrCorrupt, err)
	}
	if err := img.Verify(); err != nil {
		return nil, err
	}
	return &img, nil
}

// Verify checks the header fields and the program checksum.
func (img *Image) Verify() error {
	if img.Magic != Magic {
		return ErrInvalidMagic
	}
	if img.Version != Version {
		return fmt.Errorf("%w: got %d, want %d", ErrVersionMismatch, img.Version, Version)
	}
	if len(img.Program) == 0 {
		return ErrEmpty
	}
	sum := sha256.Sum256(img.Program)
	if !bytes.Equal(sum[:], img.Checksum[:]) {
		return ErrChecksum
	}
	return nil
}

// NameOf returns the name recorded in an encoded image, or "" when data
// is not a valid image.
func NameOf(data []byte) string {
	img, err := Decode(data)
	if err != nil {
		return ""
	}
	return img.Name
}
