package finder

import "github.com/zboralski/offscan/internal/shape"

// Default window sizes in bytes.
const (
	DefaultValidateWindow = 64
	DefaultShapeWindow    = 64
)

// Check is a structural predicate over the code at a candidate function
// start.
type Check func(fn shape.Func) bool

// Target describes one function to locate and the evidence for it.
type Target struct {
	Name      string
	Category  string
	Signature string

	// Aliases are symbol names tried in order. When empty, Name and
	// "_"+Name are tried.
	Aliases []string

	// Patterns are byte signatures tried in order. Unique rejects a
	// pattern that matches more than once in a range.
	Patterns []string
	Unique   bool

	// Strings are literals expected to be referenced from the function.
	Strings []string

	// Validate accepts a candidate function start. Nil uses
	// DefaultValidate.
	Validate       Check
	ValidateWindow int

	// Shape is the heuristic signature tested at each prologue. Nil uses
	// DefaultShape.
	Shape       Check
	ShapeWindow int
}

// SymbolNames returns the names tried by the symbol strategy.
func (t *Target) SymbolNames() []string {
	if len(t.Aliases) > 0 {
		return t.Aliases
	}
	return []string{t.Name, "_" + t.Name}
}

func (t *Target) validate(fn shape.Func) bool {
	if t.Validate != nil {
		return t.Validate(fn)
	}
	return DefaultValidate(fn)
}

func (t *Target) shape(fn shape.Func) bool {
	if t.Shape != nil {
		return t.Shape(fn)
	}
	return DefaultShape(fn)
}

func (t *Target) validateWindow() int {
	if t.ValidateWindow > 0 {
		return t.ValidateWindow
	}
	return DefaultValidateWindow
}

func (t *Target) shapeWindow() int {
	if t.ShapeWindow > 0 {
		return t.ShapeWindow
	}
	return DefaultShapeWindow
}

// DefaultValidate accepts a function that opens with a prologue and loads
// through a base pointer.
func DefaultValidate(fn shape.Func) bool {
	return fn.StartsWithPrologue() && fn.Has(shape.Load64)
}

// DefaultShape is the weak prologue signature: a prologue followed by at
// least two loads and one compare in the window.
func DefaultShape(fn shape.Func) bool {
	return fn.StartsWithPrologue() && fn.AtLeast(
		shape.Min{Feature: shape.Load64, N: 2},
		shape.Min{Feature: shape.Compare, N: 1},
	)
}
