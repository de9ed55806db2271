package memory

import (
	"errors"
	"testing"
)

func TestAddressArithmetic(t *testing.T) {
	a := Address(0x1000)
	if got := a.Add(0x10); got != 0x1010 {
		t.Errorf("Add = %s", got)
	}
	if got := a.Sub(0x10); got != 0xff0 {
		t.Errorf("Sub = %s", got)
	}
	if d := Address(0x1000).Diff(0x1040); d != -0x40 {
		t.Errorf("Diff = %d", d)
	}
	if !Address(1).Less(2) {
		t.Error("Less(1, 2) = false")
	}
	if got := Address(0x1234).AlignDown(0x1000); got != 0x1000 {
		t.Errorf("AlignDown = %s", got)
	}
	if a.String() != "0x1000" {
		t.Errorf("String = %q", a.String())
	}
}

func TestParseAddress(t *testing.T) {
	tests := []struct {
		in   string
		want Address
		err  bool
	}{
		{"0x100000000", 0x100000000, false},
		{"DEADBEEF", 0xdeadbeef, false},
		{"0x", 0, true},
		{"zz", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseAddress(tt.in)
		if (err != nil) != tt.err {
			t.Errorf("ParseAddress(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseAddress(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func newTestImage(t *testing.T) *Image {
	t.Helper()
	img, err := NewImage(0x1000,
		Segment{Region: Region{Name: "data", Start: 0x2000, End: 0x2010, Prot: Protection{Read: true, Write: true}}, Data: []byte("hello\x00")},
		Segment{Region: Region{Name: "text", Start: 0x1000, End: 0x1008, Prot: Protection{Read: true, Execute: true}},
			Data: []byte{0xc0, 0x03, 0x5f, 0xd6, 0x01, 0x02, 0x03, 0x04}},
	)
	if err != nil {
		t.Fatalf("NewImage: %v", err)
	}
	return img
}

func TestImageReads(t *testing.T) {
	img := newTestImage(t)

	w, err := img.ReadU32(0x1000)
	if err != nil {
		t.Fatalf("ReadU32: %v", err)
	}
	if w != 0xd65f03c0 {
		t.Errorf("ReadU32 = %#x, want ret", w)
	}
	h, _ := img.ReadU16(0x1004)
	if h != 0x0201 {
		t.Errorf("ReadU16 = %#x", h)
	}
	q, _ := img.ReadU64(0x1000)
	if q != 0x04030201d65f03c0 {
		t.Errorf("ReadU64 = %#x", q)
	}

	// bss tail reads as zero
	b, err := img.ReadBytes(0x2008, 8)
	if err != nil {
		t.Fatalf("ReadBytes bss: %v", err)
	}
	for _, c := range b {
		if c != 0 {
			t.Fatalf("bss byte = %#x", c)
		}
	}

	if _, err := img.ReadBytes(0x1004, 8); !errors.Is(err, ErrUnmapped) {
		t.Errorf("cross-segment read error = %v, want ErrUnmapped", err)
	}
	if _, err := img.ReadU8(0x3000); !errors.Is(err, ErrUnmapped) {
		t.Errorf("unmapped read error = %v", err)
	}
}

func TestImageRegions(t *testing.T) {
	img := newTestImage(t)
	regions, err := img.Regions()
	if err != nil {
		t.Fatal(err)
	}
	if len(regions) != 2 || regions[0].Name != "text" {
		t.Fatalf("regions not sorted: %+v", regions)
	}
	if code := Executable(regions); len(code) != 1 || code[0].Name != "text" {
		t.Errorf("Executable = %+v", code)
	}
	if !regions[1].IsData() || regions[1].IsCode() {
		t.Errorf("data region flags wrong: %+v", regions[1])
	}
	if regions[0].Prot.String() != "r-x" {
		t.Errorf("Prot = %s", regions[0].Prot)
	}
	if r, ok := Find(regions, 0x2004); !ok || r.Name != "data" {
		t.Errorf("Find = %+v, %v", r, ok)
	}
	if img.BaseAddress() != 0x1000 {
		t.Errorf("BaseAddress = %s", img.BaseAddress())
	}
}

func TestNewImageOverlap(t *testing.T) {
	_, err := NewImage(0,
		Segment{Region: Region{Name: "a", Start: 0, End: 0x10}},
		Segment{Region: Region{Name: "b", Start: 0x8, End: 0x20}},
	)
	if err == nil {
		t.Fatal("expected overlap error")
	}
}

func TestReadCString(t *testing.T) {
	img := newTestImage(t)
	s, err := ReadCString(img, 0x2000, 16)
	if err != nil {
		t.Fatal(err)
	}
	if s != "hello" {
		t.Errorf("ReadCString = %q", s)
	}
}
