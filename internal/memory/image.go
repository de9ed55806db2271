package memory

import (
	"fmt"
	"sort"
)

// Segment is a mapped slice of the image. Bytes past len(Data) up to the
// region end read as zero (bss).
type Segment struct {
	Region
	Data []byte
}

// Image is an in-memory Reader backed by loaded segments. It is immutable
// after NewImage and safe for concurrent readers.
type Image struct {
	Typed
	base     Address
	segments []Segment
}

// NewImage builds an Image from segments. Segments are sorted by start
// address and must not overlap.
func NewImage(base Address, segments ...Segment) (*Image, error) {
	segs := append([]Segment(nil), segments...)
	sort.Slice(segs, func(i, j int) bool { return segs[i].Start < segs[j].Start })
	for i := range segs {
		s := segs[i]
		if s.End < s.Start {
			return nil, fmt.Errorf("segment %q: end %s before start %s", s.Name, s.End, s.Start)
		}
		if uint64(len(s.Data)) > s.Size() {
			return nil, fmt.Errorf("segment %q: data larger than region", s.Name)
		}
		if i > 0 && segs[i-1].End > s.Start {
			return nil, fmt.Errorf("segment %q overlaps %q", s.Name, segs[i-1].Name)
		}
	}
	img := &Image{base: base, segments: segs}
	img.Typed = Typed{ByteReader: imageBytes{img}}
	return img, nil
}

type imageBytes struct{ img *Image }

func (b imageBytes) ReadBytes(addr Address, n int) ([]byte, error) {
	return b.img.ReadBytes(addr, n)
}

// ReadBytes returns a copy of n bytes at addr. The whole range must lie in
// a single segment.
func (m *Image) ReadBytes(addr Address, n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("read %d bytes at %s: negative length", n, addr)
	}
	seg, ok := m.segment(addr)
	if !ok {
		return nil, fmt.Errorf("read %d bytes at %s: %w", n, addr, ErrUnmapped)
	}
	if uint64(addr-seg.Start)+uint64(n) > seg.Size() {
		return nil, fmt.Errorf("read %d bytes at %s: crosses end of %q: %w", n, addr, seg.Name, ErrUnmapped)
	}
	out := make([]byte, n)
	off := uint64(addr - seg.Start)
	if off < uint64(len(seg.Data)) {
		copy(out, seg.Data[off:])
	}
	return out, nil
}

func (m *Image) segment(addr Address) (*Segment, bool) {
	i := sort.Search(len(m.segments), func(i int) bool { return m.segments[i].End > addr })
	if i < len(m.segments) && m.segments[i].Contains(addr) {
		return &m.segments[i], true
	}
	return nil, false
}

// BaseAddress returns the image load base.
func (m *Image) BaseAddress() Address { return m.base }

// Regions lists the mapped regions in address order.
func (m *Image) Regions() ([]Region, error) {
	out := make([]Region, len(m.segments))
	for i, s := range m.segments {
		out[i] = s.Region
	}
	return out, nil
}

// Segments returns the backing segments.
func (m *Image) Segments() []Segment { return m.segments }

var _ Reader = (*Image)(nil)
