package xref

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/arch/arm64/arm64asm"
	"golang.org/x/sync/errgroup"

	"github.com/zboralski/offscan/internal/log"
	"github.com/zboralski/offscan/internal/memory"
)

const (
	insnLen = 4

	// adrpLifetime bounds how many instructions an ADRP page stays paired
	// with its register.
	adrpLifetime = 16

	// minStringLen is the shortest literal recorded as a string node.
	minStringLen = 2
	maxStringLen = 256
)

// Namer names an address, typically from a symbol table.
type Namer func(addr memory.Address) string

// Builder scans executable regions and fills a Graph with:
//   - BL as call edges and unconditional B as jump edges
//   - ADRP+ADD as string or reference edges (data when the target is not code)
//   - ADRP+LDR as data edges
type Builder struct {
	Reader  memory.Reader
	Names   Namer
	Threads int
}

// NewBuilder returns a Builder reading from r.
func NewBuilder(r memory.Reader) *Builder {
	return &Builder{Reader: r, Threads: 4}
}

type regionScan struct {
	nodes []Node
	edges []Edge
}

// Build indexes every executable region of the reader and returns the sealed
// graph. Regions that cannot be read are skipped; if none can be read the
// build fails.
func (b *Builder) Build(ctx context.Context) (*Graph, error) {
	regions, err := b.Reader.Regions()
	if err != nil {
		return nil, fmt.Errorf("xref: list regions: %w", err)
	}
	code := memory.Executable(regions)
	scans := make([]*regionScan, len(code))

	g, ctx := errgroup.WithContext(ctx)
	if b.Threads > 0 {
		g.SetLimit(b.Threads)
	}
	readErrs := make([]error, len(code))
	for i, reg := range code {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := b.Reader.ReadBytes(reg.Start, int(reg.Size()))
			if err != nil {
				readErrs[i] = err
				log.L.Warn("xref: region unreadable", zap.String("region", reg.Name), log.Addr(uint64(reg.Start)), zap.Error(err))
				return nil
			}
			scans[i] = b.scanRegion(reg, data, regions)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	failed := 0
	for _, err := range readErrs {
		if err != nil {
			failed++
		}
	}
	if len(code) > 0 && failed == len(code) {
		return nil, fmt.Errorf("xref: no executable region readable: %w", readErrs[0])
	}

	// Single writer: merge region results in address order.
	graph := NewGraph()
	for _, s := range scans {
		if s == nil {
			continue
		}
		for _, n := range s.nodes {
			graph.AddNode(n)
		}
		for _, e := range s.edges {
			graph.AddEdge(e)
		}
	}
	graph.Seal()

	log.L.Debug("xref: built",
		zap.Int("regions", len(code)),
		zap.Int("nodes", graph.NodeCount()),
		zap.Int("edges", graph.EdgeCount()),
	)
	return graph, nil
}

type pageReg struct {
	page  memory.Address
	pc    memory.Address
	valid bool
}

func (b *Builder) scanRegion(reg memory.Region, code []byte, regions []memory.Region) *regionScan {
	s := &regionScan{}
	var pages [32]pageReg

	expire := func(pc memory.Address) {
		for r := range pages {
			if pages[r].valid && uint64(pc-pages[r].pc) > adrpLifetime*insnLen {
				pages[r].valid = false
			}
		}
	}
	reset := func() {
		for r := range pages {
			pages[r].valid = false
		}
	}

	for off := 0; off+insnLen <= len(code); off += insnLen {
		pc := reg.Start.Add(uint64(off))
		word := uint32(code[off]) | uint32(code[off+1])<<8 | uint32(code[off+2])<<16 | uint32(code[off+3])<<24
		expire(pc)

		switch {
		case word&0xFC000000 == 0x94000000, word&0xFC000000 == 0x14000000, word&0x9F000000 == 0x90000000:
			inst, err := arm64asm.Decode(code[off : off+insnLen])
			if err != nil {
				continue
			}
			switch inst.Op {
			case arm64asm.BL:
				if to, ok := pcrelTarget(inst, pc); ok {
					s.edges = append(s.edges, Edge{From: pc, To: to, Kind: EdgeCall})
					s.nodes = append(s.nodes, b.functionNode(to, regions))
				}
				reset()
			case arm64asm.B:
				if to, ok := pcrelTarget(inst, pc); ok {
					s.edges = append(s.edges, Edge{From: pc, To: to, Kind: EdgeJump})
				}
				reset()
			case arm64asm.ADRP:
				if rel, ok := inst.Args[1].(arm64asm.PCRel); ok {
					rd := word & 0x1F
					pages[rd] = pageReg{
						page:  memory.Address(uint64(int64(pc)+int64(rel)) &^ 0xfff),
						pc:    pc,
						valid: true,
					}
				}
			}

		case word&0x7F800000 == 0x11000000 && word&0x80000000 != 0: // ADD Xd, Xn, #imm
			rn, rd := (word>>5)&0x1F, word&0x1F
			if p := pages[rn]; p.valid {
				imm := uint64((word >> 10) & 0xFFF)
				if word&(1<<22) != 0 {
					imm <<= 12
				}
				to := p.page.Add(imm)
				kind, node := b.classifyTarget(to, regions)
				s.edges = append(s.edges, Edge{From: pc, To: to, Kind: kind})
				if node.Kind != NodeUnknown {
					s.nodes = append(s.nodes, node)
				}
			}
			pages[rd].valid = false

		case word&0xFFC00000 == 0xF9400000, word&0xFFC00000 == 0xB9400000: // LDR Xt/Wt, [Xn, #imm]
			rn, rt := (word>>5)&0x1F, word&0x1F
			if p := pages[rn]; p.valid {
				scale := uint64(8)
				if word&0xFFC00000 == 0xB9400000 {
					scale = 4
				}
				to := p.page.Add(uint64((word>>10)&0xFFF) * scale)
				s.edges = append(s.edges, Edge{From: pc, To: to, Kind: EdgeData})
				s.nodes = append(s.nodes, Node{Address: to, Kind: NodeData})
			}
			pages[rt].valid = false

		case word&0xFFFFFC1F == 0xD65F0000: // RET
			reset()
		}
	}
	return s
}

func pcrelTarget(inst arm64asm.Inst, pc memory.Address) (memory.Address, bool) {
	rel, ok := inst.Args[0].(arm64asm.PCRel)
	if !ok {
		return 0, false
	}
	return memory.Address(uint64(int64(pc) + int64(rel))), true
}

func (b *Builder) functionNode(addr memory.Address, regions []memory.Region) Node {
	n := Node{Address: addr, Kind: NodeFunction}
	if r, ok := memory.Find(regions, addr); !ok || !r.IsCode() {
		n.Kind = NodeExternal
	}
	if b.Names != nil {
		n.Name = b.Names(addr)
	}
	return n
}

// classifyTarget decides the edge kind of an ADRP+ADD target.
func (b *Builder) classifyTarget(addr memory.Address, regions []memory.Region) (EdgeKind, Node) {
	r, ok := memory.Find(regions, addr)
	switch {
	case !ok:
		return EdgeConstant, Node{Address: addr, Kind: NodeConstant}
	case r.IsCode():
		return EdgeReference, Node{Address: addr, Kind: NodeFunction}
	}
	if s, ok := b.literal(addr, r); ok {
		return EdgeString, Node{Address: addr, Name: s, Kind: NodeString}
	}
	return EdgeData, Node{Address: addr, Kind: NodeData}
}

// literal reads a printable NUL-terminated string at addr.
func (b *Builder) literal(addr memory.Address, r memory.Region) (string, bool) {
	n := maxStringLen
	if rem := uint64(r.End - addr); rem < uint64(n) {
		n = int(rem)
	}
	buf, err := b.Reader.ReadBytes(addr, n)
	if err != nil {
		return "", false
	}
	for i, c := range buf {
		if c == 0 {
			return string(buf[:i]), i >= minStringLen
		}
		if !isPrint(c) {
			return "", false
		}
	}
	return "", false
}

func isPrint(c byte) bool {
	return (c >= 0x20 && c < 0x7f) || c == '\n' || c == '\t' || c == '\r'
}

// SortEdges orders edges by source then target.
func SortEdges(edges []Edge) {
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].From != edges[j].From {
			return edges[i].From < edges[j].From
		}
		return edges[i].To < edges[j].To
	})
}
