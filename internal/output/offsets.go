// Package output reads and writes offsets files.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/zboralski/offscan/internal/constants"
	"github.com/zboralski/offscan/internal/engine"
	"github.com/zboralski/offscan/internal/finder"
	"github.com/zboralski/offscan/internal/layout"
	"github.com/zboralski/offscan/internal/memory"
)

// Version is the offsets file schema version.
const Version = 1

// Addr is an address serialized as a 0x-prefixed hex string.
type Addr memory.Address

func (a Addr) MarshalText() ([]byte, error) {
	return []byte(memory.Address(a).String()), nil
}

func (a *Addr) UnmarshalText(b []byte) error {
	v, err := memory.ParseAddress(string(b))
	if err != nil {
		return err
	}
	*a = Addr(v)
	return nil
}

// Hex is an integer serialized as a 0x-prefixed hex string.
type Hex uint64

func (h Hex) MarshalText() ([]byte, error) {
	return []byte(fmt.Sprintf("%#x", uint64(h))), nil
}

func (h *Hex) UnmarshalText(b []byte) error {
	v, err := strconv.ParseUint(string(b), 0, 64)
	if err != nil {
		return fmt.Errorf("parse hex %q: %w", b, err)
	}
	*h = Hex(v)
	return nil
}

// Function is one resolved function entry.
type Function struct {
	Address    Addr    `json:"address" yaml:"address"`
	Confidence float64 `json:"confidence" yaml:"confidence"`
	Method     string  `json:"method" yaml:"method"`
	Category   string  `json:"category,omitempty" yaml:"category,omitempty"`
	Signature  string  `json:"signature,omitempty" yaml:"signature,omitempty"`
}

// Member is one resolved structure member offset.
type Member struct {
	Offset     Hex     `json:"offset" yaml:"offset"`
	Size       int     `json:"size,omitempty" yaml:"size,omitempty"`
	Confidence float64 `json:"confidence" yaml:"confidence"`
	Method     string  `json:"method" yaml:"method"`
	Votes      string  `json:"votes,omitempty" yaml:"votes,omitempty"`
	Evidence   Addr    `json:"evidence" yaml:"evidence"`
}

// Constant is one confirmed constant. Value is set for integer constants,
// Text for string literals.
type Constant struct {
	Value      *int64  `json:"value,omitempty" yaml:"value,omitempty"`
	Text       string  `json:"text,omitempty" yaml:"text,omitempty"`
	Address    Addr    `json:"address" yaml:"address"`
	Refs       int     `json:"refs" yaml:"refs"`
	Confidence float64 `json:"confidence" yaml:"confidence"`
	Method     string  `json:"method" yaml:"method"`
	Category   string  `json:"category,omitempty" yaml:"category,omitempty"`
}

// Binary identifies the analyzed file.
type Binary struct {
	Path   string `json:"path" yaml:"path"`
	Format string `json:"format" yaml:"format"`
	Base   Addr   `json:"base" yaml:"base"`
}

// File is the offsets file.
type File struct {
	Version     int                 `json:"version" yaml:"version"`
	RunID       string              `json:"run_id" yaml:"run_id"`
	GeneratedAt time.Time           `json:"generated_at" yaml:"generated_at"`
	Binary      Binary              `json:"binary" yaml:"binary"`
	Functions   map[string]Function `json:"functions" yaml:"functions"`
	Classes     map[string]Addr     `json:"classes,omitempty" yaml:"classes,omitempty"`
	Unresolved  []string            `json:"unresolved,omitempty" yaml:"unresolved,omitempty"`

	// Structures maps structure name to member name to offset.
	Structures map[string]map[string]Member `json:"structures,omitempty" yaml:"structures,omitempty"`
	Constants  map[string]Constant          `json:"constants,omitempty" yaml:"constants,omitempty"`
}

// FromReport builds a file from the reported results of a run.
func FromReport(r *engine.Report, bin Binary) *File {
	f := &File{
		Version:     Version,
		RunID:       uuid.NewString(),
		GeneratedAt: time.Now().UTC().Truncate(time.Second),
		Binary:      bin,
		Functions:   make(map[string]Function),
	}
	f.Binary.Base = Addr(r.Base)
	for _, res := range r.Reported() {
		f.Functions[res.Name] = functionOf(res)
	}
	if len(r.Results.Classes) > 0 {
		f.Classes = make(map[string]Addr, len(r.Results.Classes))
		for name, addr := range r.Results.Classes {
			f.Classes[name] = Addr(addr)
		}
	}
	for name := range r.Unresolved {
		f.Unresolved = append(f.Unresolved, name)
	}
	if r.Fields != nil {
		for key := range r.Fields.Unresolved {
			f.Unresolved = append(f.Unresolved, key)
		}
	}
	sort.Strings(f.Unresolved)

	for _, o := range r.ReportedOffsets() {
		if f.Structures == nil {
			f.Structures = make(map[string]map[string]Member)
		}
		if f.Structures[o.Struct] == nil {
			f.Structures[o.Struct] = make(map[string]Member)
		}
		f.Structures[o.Struct][o.Field] = memberOf(o)
	}
	for _, c := range r.ReportedConstants() {
		if f.Constants == nil {
			f.Constants = make(map[string]Constant)
		}
		f.Constants[c.Name] = constantOf(c)
	}
	return f
}

func memberOf(o layout.Offset) Member {
	return Member{
		Offset:     Hex(o.Offset),
		Size:       o.Size,
		Confidence: o.Confidence,
		Method:     o.Method.String(),
		Votes:      fmt.Sprintf("%d/%d", o.Votes, o.Candidates),
		Evidence:   Addr(o.Evidence),
	}
}

func constantOf(c constants.Found) Constant {
	out := Constant{
		Address:    Addr(c.Address),
		Refs:       c.Refs,
		Confidence: c.Confidence,
		Method:     c.Method.String(),
		Category:   c.Category,
	}
	if c.Kind == constants.String {
		out.Text = c.Text
	} else {
		v := c.Value
		out.Value = &v
	}
	return out
}

func functionOf(r finder.Result) Function {
	return Function{
		Address:    Addr(r.Address),
		Confidence: r.Confidence,
		Method:     r.Method.String(),
		Category:   r.Category,
		Signature:  r.Signature,
	}
}

// Members returns the qualified Struct.member names in order.
func (f *File) Members() []string {
	var out []string
	for s, members := range f.Structures {
		for m := range members {
			out = append(out, s+"."+m)
		}
	}
	sort.Strings(out)
	return out
}

// Names returns the function names in order.
func (f *File) Names() []string {
	names := make([]string, 0, len(f.Functions))
	for name := range f.Functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Format picks json or yaml from a path's extension.
func Format(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	}
	return "json"
}

// Write encodes f to w in format ("json" or "yaml").
func Write(w io.Writer, f *File, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(f)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(f); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("unknown output format %q", format)
}

// WriteFile writes f to path.
func WriteFile(path string, f *File, format string) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Write(out, f, format); err != nil {
		out.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return out.Close()
}

// Read decodes an offsets file in format.
func Read(r io.Reader, format string) (*File, error) {
	var f File
	var err error
	switch format {
	case "json":
		err = json.NewDecoder(r).Decode(&f)
	case "yaml":
		err = yaml.NewDecoder(r).Decode(&f)
	default:
		return nil, fmt.Errorf("unknown output format %q", format)
	}
	if err != nil {
		return nil, err
	}
	if f.Functions == nil {
		f.Functions = make(map[string]Function)
	}
	return &f, nil
}

// ReadFile reads an offsets file, picking the format from its extension.
func ReadFile(path string) (*File, error) {
	in, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer in.Close()
	f, err := Read(in, Format(path))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return f, nil
}
