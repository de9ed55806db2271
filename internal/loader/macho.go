package loader

import (
	"fmt"

	"github.com/blacktop/go-macho"
	"github.com/blacktop/go-macho/types"
	"go.uber.org/zap"

	"github.com/zboralski/offscan/internal/log"
	"github.com/zboralski/offscan/internal/memory"
	"github.com/zboralski/offscan/internal/symbol"
)

// OpenMachO loads an arm64 Mach-O file, picking the arm64 slice of a
// universal binary. Addresses are the file's own; the base is the __TEXT
// segment address.
func OpenMachO(path string) (*Info, error) {
	if fat, err := macho.OpenFat(path); err == nil {
		defer fat.Close()
		for _, arch := range fat.Arches {
			if arch.CPU == types.CPUArm64 {
				return readMachO(arch.File)
			}
		}
		return nil, fmt.Errorf("%w: no arm64 slice", ErrUnsupportedArch)
	}

	f, err := macho.Open(path)
	if err != nil {
		return nil, fmt.Errorf("parse Mach-O: %w", err)
	}
	defer f.Close()
	return readMachO(f)
}

func readMachO(f *macho.File) (*Info, error) {
	if f.CPU != types.CPUArm64 {
		return nil, fmt.Errorf("%w: cpu %v", ErrUnsupportedArch, f.CPU)
	}

	var (
		segs      []memory.Segment
		base, end memory.Address
		haveText  bool
	)
	for _, seg := range f.Segments() {
		prot := types.VmProtection(seg.Prot)
		if seg.Memsz == 0 || seg.Prot == 0 {
			continue // __PAGEZERO
		}
		data, err := seg.Data()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", seg.Name, err)
		}
		if uint64(len(data)) > seg.Memsz {
			data = data[:seg.Memsz]
		}
		start := memory.Address(seg.Addr)
		segs = append(segs, memory.Segment{
			Region: memory.Region{
				Name:  seg.Name,
				Start: start,
				End:   start.Add(seg.Memsz),
				Prot:  memory.Protection{Read: prot.Read(), Write: prot.Write(), Execute: prot.Execute()},
			},
			Data: data,
		})
		if seg.Name == "__TEXT" {
			base, haveText = start, true
		}
		end = max(end, start.Add(seg.Memsz))
	}
	if len(segs) == 0 {
		return nil, ErrNoSegments
	}
	if !haveText {
		base = segs[0].Start
		for _, s := range segs[1:] {
			base = min(base, s.Start)
		}
	}

	syms := symbol.NewTable()
	imports := 0
	if f.Symtab != nil {
		for _, s := range f.Symtab.Syms {
			if s.Name == "" {
				continue
			}
			switch {
			case s.Type&types.N_STAB != 0:
				continue // debugger entries
			case s.Type&types.N_TYPE == types.N_SECT && s.Value != 0:
				syms.Add(symbol.Symbol{Name: s.Name, Address: memory.Address(s.Value), Kind: machoKind(f, s)})
			case s.Type&types.N_TYPE == types.N_UNDF:
				imports++
			}
		}
	}

	img, err := memory.NewImage(base, segs...)
	if err != nil {
		return nil, err
	}

	log.L.Debug("loaded Mach-O",
		log.Addr(uint64(base)),
		zap.Int("segments", len(segs)),
		zap.Int("symbols", syms.Len()),
		zap.Int("imports", imports),
	)
	return &Info{
		Format:  FormatMachO,
		Base:    base,
		End:     end,
		Image:   img,
		Symbols: syms,
		Imports: imports,
	}, nil
}

// machoKind classifies a defined symbol by the protection of the segment
// holding its address.
func machoKind(f *macho.File, s macho.Symbol) symbol.Kind {
	seg := f.FindSegmentForVMAddr(s.Value)
	if seg == nil {
		return symbol.KindUnknown
	}
	if types.VmProtection(seg.Prot).Execute() {
		return symbol.KindFunc
	}
	return symbol.KindObject
}
