package image

import (
	"errors"
	"testing"
)

func TestEncodeDecode(t *testing.T) {
	data, err := Encode(New("app", []byte{1, 2, 3, 4}))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	img, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if img.Name != "app" {
		t.Errorf("name = %q, want app", img.Name)
	}
	if len(img.Program) != 4 || img.Program[3] != 4 {
		t.Errorf("program = %v, want [1 2 3 4]", img.Program)
	}
}

func TestEncodeIsDeterministic(t *testing.T) {
	a, err := Encode(New("app", []byte("program")))
	if err != nil {
		t.Fatal(err)
	}
	b, err := Encode(New("app", []byte("program")))
	if err != nil {
		t.Fatal(err)
	}
	if string(a) != string(b) {
		t.Error("encoding the same image twice produced different bytes")
	}
}

func TestDecodeRejectsTamperedProgram(t *testing.T) {
	img := New("app", []byte("program"))
	img.Program = []byte("PROGRAM")
	data, err := encMode.Marshal(img)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := Decode(data); !errors.Is(err, ErrChecksum) {
		t.Errorf("Decode error = %v, want ErrChecksum", err)
	}
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	img := New("app", []byte("program"))
	img.Magic = "MAGI"
	data, err := encMode.Marshal(img)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := Decode(data); !errors.Is(err, ErrInvalidMagic) {
		t.Errorf("Decode error = %v, want ErrInvalidMagic", err)
	}
}

func TestDecodeRejectsVersion(t *testing.T) {
	img := New("app", []byte("program"))
	img.Version = Version + 1
	data, err := encMode.Marshal(img)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := Decode(data); !errors.Is(err, ErrVersionMismatch) {
		t.Errorf("Decode error = %v, want ErrVersionMismatch", err)
	}
}

func TestDecodeGarbage(t *testing.T) {
	if _, err := Decode([]byte{0xff, 0x00, 0x13}); !errors.Is(err, ErrCorrupt) {
		t.Errorf("Decode error = %v, want ErrCorrupt", err)
	}
	if _, err := Decode(nil); !errors.Is(err, ErrEmpty) {
		t.Errorf("Decode(nil) error = %v, want ErrEmpty", err)
	}
}

func TestEncodeEmptyProgram(t *testing.T) {
	if _, err := Encode(New("empty", nil)); !errors.Is(err, ErrEmpty) {
		t.Errorf("Encode error = %v, want ErrEmpty", err)
	}
}

func TestNameOf(t *testing.T) {
	data, err := Encode(New("main.star", []byte("program")))
	if err != nil {
		t.Fatal(err)
	}
	if got := NameOf(data); got != "main.star" {
		t.Errorf("NameOf = %q, want main.star", got)
	}
	if got := NameOf([]byte("junk")); got != "" {
		t.Errorf("NameOf(junk) = %q, want empty", got)
	}
}
