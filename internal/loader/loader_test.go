package loader

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/zboralski/offscan/internal/testutil"
)

// minimalELF returns an ET_DYN image with a single r-x PT_LOAD at vaddr 0
// holding the headers followed by code, plus bss bytes of zero fill.
func minimalELF(machine uint16, code []byte, bss uint64) []byte {
	const (
		ehsize    = 64
		phentsize = 56
	)
	codeOff := uint64(ehsize + phentsize)
	total := codeOff + uint64(len(code))

	var b bytes.Buffer
	le := binary.LittleEndian
	b.Write([]byte{0x7f, 'E', 'L', 'F', 2, 1, 1, 0})
	b.Write(make([]byte, 8))
	binary.Write(&b, le, uint16(3))       // ET_DYN
	binary.Write(&b, le, machine)         // e_machine
	binary.Write(&b, le, uint32(1))       // e_version
	binary.Write(&b, le, codeOff)         // e_entry
	binary.Write(&b, le, uint64(ehsize))  // e_phoff
	binary.Write(&b, le, uint64(0))       // e_shoff
	binary.Write(&b, le, uint32(0))       // e_flags
	binary.Write(&b, le, uint16(ehsize))  // e_ehsize
	binary.Write(&b, le, uint16(phentsize))
	binary.Write(&b, le, uint16(1))  // e_phnum
	binary.Write(&b, le, uint16(64)) // e_shentsize
	binary.Write(&b, le, uint16(0))  // e_shnum
	binary.Write(&b, le, uint16(0))  // e_shstrndx

	binary.Write(&b, le, uint32(1)) // PT_LOAD
	binary.Write(&b, le, uint32(5)) // PF_R|PF_X
	binary.Write(&b, le, uint64(0)) // p_offset
	binary.Write(&b, le, uint64(0)) // p_vaddr
	binary.Write(&b, le, uint64(0)) // p_paddr
	binary.Write(&b, le, total)     // p_filesz
	binary.Write(&b, le, total+bss) // p_memsz
	binary.Write(&b, le, uint64(0x1000))

	b.Write(code)
	return b.Bytes()
}

const emAArch64 = 183

func TestReadELF(t *testing.T) {
	code := testutil.NewCode(0).Emit(testutil.Prologue(), testutil.LDR(0, 0, 8), testutil.RET).Bytes()
	raw := minimalELF(emAArch64, code, 0x100)

	info, err := ReadELF(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("ReadELF: %v", err)
	}
	if info.Format != FormatELF || info.Base != LoadELFBase {
		t.Errorf("format %s base %s", info.Format, info.Base)
	}
	if info.Entry != LoadELFBase+120 {
		t.Errorf("entry = %s", info.Entry)
	}
	if want := LoadELFBase + uint64(len(raw)) + 0x100; uint64(info.End) != want {
		t.Errorf("end = %s, want %#x", info.End, want)
	}

	regions, _ := info.Image.Regions()
	if len(regions) != 1 || !regions[0].IsCode() {
		t.Fatalf("regions = %v", regions)
	}
	w, err := info.Image.ReadU32(info.Entry)
	if err != nil || w != testutil.Prologue() {
		t.Errorf("word at entry = %#x, %v", w, err)
	}
	// bss reads as zero
	if b, err := info.Image.ReadU8(info.End - 1); err != nil || b != 0 {
		t.Errorf("bss byte = %d, %v", b, err)
	}
	if info.Symbols.Len() != 0 {
		t.Errorf("symbols = %d", info.Symbols.Len())
	}
}

func TestReadELFWrongArch(t *testing.T) {
	raw := minimalELF(62, []byte{0x90, 0x90, 0x90, 0xc3}, 0) // EM_X86_64
	if _, err := ReadELF(bytes.NewReader(raw)); !errors.Is(err, ErrUnsupportedArch) {
		t.Errorf("err = %v, want ErrUnsupportedArch", err)
	}
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	elfPath := filepath.Join(dir, "lib.so")
	code := testutil.NewCode(0).Emit(testutil.Prologue(), testutil.RET).Bytes()
	if err := os.WriteFile(elfPath, minimalELF(emAArch64, code, 0), 0o644); err != nil {
		t.Fatal(err)
	}
	info, err := Open(elfPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if info.Path != elfPath || info.Format != FormatELF {
		t.Errorf("info = %+v", info)
	}

	junk := filepath.Join(dir, "junk")
	if err := os.WriteFile(junk, []byte("#!/bin/sh\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(junk); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("junk: err = %v", err)
	}
}

// TestSample loads a real binary named by OFFSCAN_SAMPLE.
func TestSample(t *testing.T) {
	path := os.Getenv("OFFSCAN_SAMPLE")
	if path == "" {
		t.Skip("OFFSCAN_SAMPLE not set")
	}
	info, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Logf("%s: %s base %s end %s symbols %d imports %d",
		filepath.Base(path), info.Format, info.Base, info.End, info.Symbols.Len(), info.Imports)

	regions, _ := info.Image.Regions()
	code := 0
	for _, r := range regions {
		if r.IsCode() {
			code++
		}
	}
	if code == 0 {
		t.Error("no executable region")
	}
}
