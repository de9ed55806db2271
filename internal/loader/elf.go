package loader

import (
	"debug/elf"
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/zboralski/offscan/internal/log"
	"github.com/zboralski/offscan/internal/memory"
	"github.com/zboralski/offscan/internal/symbol"
)

// ARM64 relocation types
const (
	R_AARCH64_ABS64     = 257  // Absolute 64-bit symbol reference
	R_AARCH64_GLOB_DAT  = 1025 // GOT entry for global data symbol
	R_AARCH64_JUMP_SLOT = 1026 // PLT GOT entry for function call
	R_AARCH64_RELATIVE  = 1027 // Position-independent data reference
)

// LoadELFBase is where position-independent libraries are placed. Android
// loads them much higher; any fixed base keeps reported offsets stable.
const LoadELFBase = 0x40000000

// ReadELF loads an ARM64 ELF image. Position-independent objects (lowest
// PT_LOAD below 0x10000) are relocated to LoadELFBase.
func ReadELF(r io.ReaderAt) (*Info, error) {
	f, err := elf.NewFile(r)
	if err != nil {
		return nil, fmt.Errorf("parse ELF: %w", err)
	}
	defer f.Close()

	if f.Machine != elf.EM_AARCH64 {
		return nil, fmt.Errorf("%w: machine %v", ErrUnsupportedArch, f.Machine)
	}

	fileBase := ^uint64(0)
	fileEnd := uint64(0)
	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		fileBase = min(fileBase, prog.Vaddr)
		fileEnd = max(fileEnd, prog.Vaddr+prog.Memsz)
	}
	if fileBase == ^uint64(0) {
		return nil, ErrNoSegments
	}

	var reloc uint64
	if fileBase < 0x10000 {
		reloc = LoadELFBase - fileBase
	}

	var segs []memory.Segment
	for i, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD || prog.Memsz == 0 {
			continue
		}
		data := make([]byte, prog.Filesz)
		if _, err := prog.ReadAt(data, 0); err != nil && err != io.EOF {
			return nil, fmt.Errorf("read PT_LOAD %d: %w", i, err)
		}
		start := memory.Address(prog.Vaddr + reloc)
		segs = append(segs, memory.Segment{
			Region: memory.Region{
				Name:  segmentName(prog),
				Start: start,
				End:   start.Add(prog.Memsz),
				Prot: memory.Protection{
					Read:    prog.Flags&elf.PF_R != 0,
					Write:   prog.Flags&elf.PF_W != 0,
					Execute: prog.Flags&elf.PF_X != 0,
				},
			},
			Data: data,
		})
		log.L.Debug("segment",
			zap.String("name", segs[len(segs)-1].Name),
			log.Addr(uint64(start)),
			log.Size(prog.Memsz),
		)
	}

	syms := symbol.NewTable()
	addELFSymbols(f, reloc, syms)
	imports := addPLTSymbols(f, reloc, syms)
	applyRelocations(f, reloc, segs, syms)

	img, err := memory.NewImage(memory.Address(fileBase+reloc), segs...)
	if err != nil {
		return nil, err
	}

	log.L.Debug("loaded ELF",
		log.Ptr("base", fileBase+reloc),
		zap.Int("segments", len(segs)),
		zap.Int("symbols", syms.Len()),
		zap.Int("imports", imports),
	)

	return &Info{
		Format:  FormatELF,
		Base:    memory.Address(fileBase + reloc),
		End:     memory.Address(fileEnd + reloc),
		Entry:   memory.Address(f.Entry + reloc),
		Image:   img,
		Symbols: syms,
		Imports: imports,
	}, nil
}

func segmentName(p *elf.Prog) string {
	var b strings.Builder
	b.WriteString("LOAD")
	for _, fl := range []struct {
		bit elf.ProgFlag
		c   byte
	}{{elf.PF_R, 'r'}, {elf.PF_W, 'w'}, {elf.PF_X, 'x'}} {
		if p.Flags&fl.bit != 0 {
			b.WriteByte(fl.c)
		}
	}
	return fmt.Sprintf("%s@0x%x", b.String(), p.Vaddr)
}

// addELFSymbols loads .dynsym then .symtab. Version suffixes are stripped.
func addELFSymbols(f *elf.File, reloc uint64, syms *symbol.Table) {
	for _, load := range []func() ([]elf.Symbol, error){f.DynamicSymbols, f.Symbols} {
		list, err := load()
		if err != nil {
			continue
		}
		for _, s := range list {
			if s.Value == 0 || s.Name == "" {
				continue
			}
			syms.Add(symbol.Symbol{
				Name:    symbol.CleanName(s.Name),
				Address: memory.Address(s.Value + reloc),
				Size:    s.Size,
				Kind:    elfKind(s),
			})
		}
	}
}

func elfKind(s elf.Symbol) symbol.Kind {
	switch elf.ST_TYPE(s.Info) {
	case elf.STT_FUNC, elf.STT_GNU_IFUNC:
		return symbol.KindFunc
	case elf.STT_OBJECT, elf.STT_TLS, elf.STT_COMMON:
		return symbol.KindObject
	}
	return symbol.KindUnknown
}

// addPLTSymbols names the PLT stub of every imported function so calls into
// them resolve in the xref index. It returns the number of imports.
func addPLTSymbols(f *elf.File, reloc uint64, syms *symbol.Table) int {
	pltSec := f.Section(".plt")
	relaPlt := f.Section(".rela.plt")
	if pltSec == nil || relaPlt == nil {
		return 0
	}
	// Go skips STN_UNDEF at index 0
	dynSyms, err := f.DynamicSymbols()
	if err != nil {
		return 0
	}
	relaData, err := relaPlt.Data()
	if err != nil {
		return 0
	}

	// ARM64 PLT: 32-byte header, then 16-byte entries
	const (
		pltHeaderSize = 32
		pltEntrySize  = 16
		relaSize      = 24
	)
	pltBase := pltSec.Addr + reloc

	n := 0
	for i, entry := 0, 0; i+relaSize <= len(relaData); i, entry = i+relaSize, entry+1 {
		rInfo := binary.LittleEndian.Uint64(relaData[i+8:])
		idx := int(rInfo>>32) - 1
		if idx < 0 || idx >= len(dynSyms) {
			continue
		}
		s := dynSyms[idx]
		if s.Name == "" || s.Value != 0 {
			continue
		}
		syms.Add(symbol.Symbol{
			Name:    symbol.CleanName(s.Name),
			Address: memory.Address(pltBase + pltHeaderSize + uint64(entry)*pltEntrySize),
			Kind:    symbol.KindImport,
		})
		n++
	}
	return n
}

// applyRelocations patches pointer slots in the loaded segment data so
// vtables and GOT entries hold relocated addresses. Imports resolve to their
// PLT stubs.
func applyRelocations(f *elf.File, reloc uint64, segs []memory.Segment, syms *symbol.Table) {
	dynSyms, _ := f.DynamicSymbols()

	put := func(addr, val uint64) {
		for i := range segs {
			s := &segs[i]
			a := memory.Address(addr)
			if a >= s.Start && uint64(a-s.Start)+8 <= uint64(len(s.Data)) {
				binary.LittleEndian.PutUint64(s.Data[a-s.Start:], val)
				return
			}
		}
	}

	patched := 0
	for _, sec := range f.Sections {
		if sec.Type != elf.SHT_RELA || (sec.Name != ".rela.dyn" && sec.Name != ".rela.plt") {
			continue
		}
		data, err := sec.Data()
		if err != nil {
			continue
		}
		for i := 0; i+24 <= len(data); i += 24 {
			off := binary.LittleEndian.Uint64(data[i:])
			info := binary.LittleEndian.Uint64(data[i+8:])
			addend := binary.LittleEndian.Uint64(data[i+16:])
			typ := uint32(info)
			idx := int(info>>32) - 1
			target := off + reloc

			var s elf.Symbol
			hasSym := idx >= 0 && idx < len(dynSyms)
			if hasSym {
				s = dynSyms[idx]
			}

			switch typ {
			case R_AARCH64_RELATIVE:
				put(target, reloc+addend)
			case R_AARCH64_GLOB_DAT, R_AARCH64_JUMP_SLOT, R_AARCH64_ABS64:
				if typ != R_AARCH64_ABS64 {
					addend = 0
				}
				switch {
				case hasSym && s.Value != 0:
					put(target, s.Value+reloc+addend)
				case hasSym && s.Name != "":
					if stub, ok := syms.Resolve(symbol.CleanName(s.Name)); ok {
						put(target, uint64(stub)+addend)
					}
				case !hasSym && addend != 0:
					put(target, reloc+addend)
				default:
					continue
				}
			default:
				continue
			}
			patched++
		}
	}
	if patched > 0 {
		log.L.Debug("relocations applied", zap.Int("count", patched))
	}
}
