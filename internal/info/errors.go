package info

import (
	"fmt"
	"strconv"

	"github.com/toolsascode/bfm/info/internal/version"
)

// ValidationKind categorizes integrity problems.
type ValidationKind string

const (
	KindNotResolved         ValidationKind = "not_resolved"
	KindNotApplied          ValidationKind = "not_applied"
	KindTypeMismatch        ValidationKind = "type_mismatch"
	KindChecksumMismatch    ValidationKind = "checksum_mismatch"
	KindDescriptionMismatch ValidationKind = "description_mismatch"
)

// ValidationError describes the first integrity problem found for a version.
type ValidationError struct {
	Version version.Version
	Kind    ValidationKind
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func mismatch(v version.Version, kind ValidationKind, what, applied, resolved string) *ValidationError {
	return &ValidationError{
		Version: v,
		Kind:    kind,
		Message: fmt.Sprintf("Migration %s mismatch for migration %s\n-> Applied to database : %s\n-> Resolved locally    : %s",
			what, v, applied, resolved),
	}
}

func formatChecksum(c *int32) string {
	if c == nil {
		return "<none>"
	}
	return strconv.FormatInt(int64(*c), 10)
}
