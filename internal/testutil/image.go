package testutil

import (
	"testing"

	"github.com/zboralski/offscan/internal/memory"
)

// DataSegment returns a read-only data segment holding data at start.
func DataSegment(name string, start memory.Address, data []byte) memory.Segment {
	return memory.Segment{
		Region: memory.Region{
			Name:  name,
			Start: start,
			End:   start.Add(uint64(len(data))),
			Prot:  memory.Protection{Read: true},
		},
		Data: data,
	}
}

// Strings lays out NUL-terminated strings from start and returns the
// segment data plus each string's address.
func Strings(start memory.Address, strs ...string) ([]byte, map[string]memory.Address) {
	var data []byte
	addrs := make(map[string]memory.Address, len(strs))
	for _, s := range strs {
		addrs[s] = start.Add(uint64(len(data)))
		data = append(data, s...)
		data = append(data, 0)
	}
	return data, addrs
}

// NewImage builds a memory.Image or fails the test.
func NewImage(t testing.TB, base memory.Address, segs ...memory.Segment) *memory.Image {
	t.Helper()
	img, err := memory.NewImage(base, segs...)
	if err != nil {
		t.Fatalf("NewImage: %v", err)
	}
	return img
}
