// Package loader maps ARM64 ELF and Mach-O files into a memory.Image and a
// symbol.Table.
package loader

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/zboralski/offscan/internal/memory"
	"github.com/zboralski/offscan/internal/symbol"
)

// Errors returned by the loaders.
var (
	ErrUnknownFormat   = errors.New("unknown binary format")
	ErrUnsupportedArch = errors.New("not an arm64 binary")
	ErrNoSegments      = errors.New("no loadable segments")
)

// Format is a binary container format.
type Format string

const (
	FormatELF   Format = "elf"
	FormatMachO Format = "macho"
)

// Info describes a loaded binary.
type Info struct {
	Path    string
	Format  Format
	Base    memory.Address
	End     memory.Address
	Entry   memory.Address
	Image   *memory.Image
	Symbols *symbol.Table
	Imports int
}

var (
	elfMagic   = []byte{0x7f, 'E', 'L', 'F'}
	machoMagic = [][]byte{
		{0xcf, 0xfa, 0xed, 0xfe}, // MH_MAGIC_64
		{0xca, 0xfe, 0xba, 0xbe}, // FAT_MAGIC
	}
)

// Open loads the file at path, picking the loader by magic number.
func Open(path string) (*Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	magic := make([]byte, 4)
	if _, err := io.ReadFull(f, magic); err != nil {
		return nil, fmt.Errorf("%s: read magic: %w", path, err)
	}

	var info *Info
	switch {
	case bytes.Equal(magic, elfMagic):
		info, err = ReadELF(f)
	case bytes.Equal(magic, machoMagic[0]) || bytes.Equal(magic, machoMagic[1]):
		info, err = OpenMachO(path)
	default:
		return nil, fmt.Errorf("%s: %w (magic % x)", path, ErrUnknownFormat, magic)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	info.Path = path
	return info, nil
}
