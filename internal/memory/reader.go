package memory

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrUnmapped is returned for reads that fall outside every mapped region.
var ErrUnmapped = errors.New("memory: address not mapped")

// Reader is the read-only view of a target image. Implementations must be
// safe for concurrent use and keep no read cursor.
type Reader interface {
	ReadBytes(addr Address, n int) ([]byte, error)
	ReadU8(addr Address) (uint8, error)
	ReadU16(addr Address) (uint16, error)
	ReadU32(addr Address) (uint32, error)
	ReadU64(addr Address) (uint64, error)
	BaseAddress() Address
	Regions() ([]Region, error)
}

// ByteReader is the minimal read primitive. Wrap one with Typed to get the
// fixed-width readers of Reader.
type ByteReader interface {
	ReadBytes(addr Address, n int) ([]byte, error)
}

// Typed provides little-endian fixed-width reads on top of a ByteReader.
type Typed struct {
	ByteReader
}

func (t Typed) ReadU8(addr Address) (uint8, error) {
	b, err := t.ReadBytes(addr, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (t Typed) ReadU16(addr Address) (uint16, error) {
	b, err := t.ReadBytes(addr, 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (t Typed) ReadU32(addr Address) (uint32, error) {
	b, err := t.ReadBytes(addr, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (t Typed) ReadU64(addr Address) (uint64, error) {
	b, err := t.ReadBytes(addr, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// ReadCString reads a NUL-terminated string of at most max bytes.
func ReadCString(r ByteReader, addr Address, max int) (string, error) {
	b, err := r.ReadBytes(addr, max)
	if err != nil {
		return "", fmt.Errorf("read string at %s: %w", addr, err)
	}
	for i, c := range b {
		if c == 0 {
			return string(b[:i]), nil
		}
	}
	return "", fmt.Errorf("read string at %s: no terminator within %d bytes", addr, max)
}
