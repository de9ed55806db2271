package finder

import (
	"errors"

	"github.com/zboralski/offscan/internal/pattern"
)

// Error kinds. Steps wrap these with context; classify with errors.Is.
var (
	ErrNotFound               = errors.New("not found")
	ErrMultipleMatches        = errors.New("multiple matches")
	ErrPatternScanFailed      = errors.New("pattern scan failed")
	ErrSymbolResolutionFailed = errors.New("symbol resolution failed")
	ErrXRefAnalysisFailed     = errors.New("xref analysis failed")
	ErrValidationFailed       = errors.New("validation failed")
)

// IsSystemic reports whether err means a scanned range was unreadable.
// Chain.Resolve aborts the batch with it only when no range could be read;
// everything else falls through to the next strategy.
func IsSystemic(err error) bool {
	return errors.Is(err, ErrPatternScanFailed) || errors.Is(err, pattern.ErrScanFailed)
}
