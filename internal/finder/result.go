package finder

import (
	"fmt"
	"strings"

	"github.com/zboralski/offscan/internal/memory"
)

// Method identifies the strategy that produced a result. Lower values are
// more trusted.
type Method int

const (
	MethodSymbol Method = iota
	MethodPattern
	MethodXRef
	MethodHeuristic
)

// Methods lists strategies in trust order.
var Methods = []Method{MethodSymbol, MethodPattern, MethodXRef, MethodHeuristic}

func (m Method) String() string {
	switch m {
	case MethodSymbol:
		return "symbol"
	case MethodPattern:
		return "pattern"
	case MethodXRef:
		return "xref"
	case MethodHeuristic:
		return "heuristic"
	}
	return fmt.Sprintf("Method(%d)", int(m))
}

// ParseMethod is the inverse of Method.String.
func ParseMethod(s string) (Method, error) {
	for _, m := range Methods {
		if strings.EqualFold(s, m.String()) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown method %q", s)
}

// Confidence tiers. A result's confidence is exactly the tier of its method
// when created; cross-validation may drop it but never raises it.
const (
	ConfidenceSymbol    = 0.99
	ConfidencePattern   = 0.85
	ConfidenceXRef      = 0.80
	ConfidenceHeuristic = 0.70
)

// Confidence returns the tier value of m.
func (m Method) Confidence() float64 {
	switch m {
	case MethodSymbol:
		return ConfidenceSymbol
	case MethodPattern:
		return ConfidencePattern
	case MethodXRef:
		return ConfidenceXRef
	case MethodHeuristic:
		return ConfidenceHeuristic
	}
	return 0
}

// Thresholds parameterize cross-validation.
type Thresholds struct {
	HighTrust   float64 // results at or above corroborate others
	Corroborate float64 // results below need corroboration
	Keep        float64 // uncorroborated results below are dropped
}

// DefaultThresholds are the cross-validation cut-offs.
var DefaultThresholds = Thresholds{HighTrust: 0.9, Corroborate: 0.8, Keep: 0.75}

// Result is one resolved target.
type Result struct {
	Name       string
	Address    memory.Address
	Confidence float64
	Method     Method
	Category   string
	Signature  string
}

// NewResult creates a result for t at addr with the tier confidence of m.
func NewResult(t *Target, addr memory.Address, m Method) Result {
	return Result{
		Name:       t.Name,
		Address:    addr,
		Confidence: m.Confidence(),
		Method:     m,
		Category:   t.Category,
		Signature:  t.Signature,
	}
}

func (r Result) String() string {
	return fmt.Sprintf("%s@%s (%s %.2f)", r.Name, r.Address, r.Method, r.Confidence)
}
