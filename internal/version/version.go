package version

import (
	"fmt"
	"regexp"
	"strings"
)

type sentinel int8

const (
	sentinelNone sentinel = iota
	sentinelEmpty
	sentinelCurrent
	sentinelLatest
)

var (
	// Empty sorts below every real version. Unset context fields use it.
	Empty = Version{sentinel: sentinelEmpty, raw: "<< Empty Schema >>"}

	// Latest sorts above every real version.
	Latest = Version{sentinel: sentinelLatest, raw: "<< Latest Version >>"}

	// Current is a target placeholder that is replaced with the version of
	// the current migration when migration info is refreshed.
	Current = Version{sentinel: sentinelCurrent, raw: "<< Current Version >>"}
)

var versionPattern = regexp.MustCompile(`^\d+([._]\d+)*$`)

// Version identifies a migration. Versions are dotted (or underscored)
// sequences of non-negative integers of arbitrary length; trailing zero
// components do not affect ordering or equality, so 1.0 equals 1.
type Version struct {
	raw      string
	key      string
	sentinel sentinel
}

// Parse parses a version string such as "1", "1.2.3", "2_1" or
// "20250115000000".
func Parse(s string) (Version, error) {
	trimmed := strings.TrimSpace(s)
	if !versionPattern.MatchString(trimmed) {
		return Version{}, fmt.Errorf("invalid version %q: expected digits separated by '.' or '_'", s)
	}

	parts := strings.FieldsFunc(trimmed, func(r rune) bool { return r == '.' || r == '_' })
	for i, p := range parts {
		p = strings.TrimLeft(p, "0")
		if p == "" {
			p = "0"
		}
		parts[i] = p
	}
	for len(parts) > 1 && parts[len(parts)-1] == "0" {
		parts = parts[:len(parts)-1]
	}

	return Version{raw: strings.ReplaceAll(trimmed, "_", "."), key: strings.Join(parts, ".")}, nil
}

// ParseTarget parses a migration target. An empty string and "latest" map to
// Latest, "current" maps to Current; anything else must be a version.
func ParseTarget(s string) (Version, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "latest":
		return Latest, nil
	case "current":
		return Current, nil
	}
	return Parse(s)
}

// MustParse is like Parse but panics on malformed input.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// String returns the version as written, with underscores normalized to dots.
func (v Version) String() string {
	return v.raw
}

// Key returns a canonical representation; two versions have the same Key
// exactly when Compare reports them equal.
func (v Version) Key() string {
	switch v.sentinel {
	case sentinelEmpty:
		return "<empty>"
	case sentinelLatest:
		return "<latest>"
	case sentinelCurrent:
		return "<current>"
	}
	return v.key
}

// IsZero reports whether v is the zero Version.
func (v Version) IsZero() bool {
	return v.sentinel == sentinelNone && v.key == ""
}

// IsLatest reports whether v is the Latest sentinel.
func (v Version) IsLatest() bool { return v.sentinel == sentinelLatest }

// IsCurrent reports whether v is the Current sentinel.
func (v Version) IsCurrent() bool { return v.sentinel == sentinelCurrent }

// IsEmpty reports whether v is the Empty sentinel.
func (v Version) IsEmpty() bool { return v.sentinel == sentinelEmpty }

// Compare returns -1, 0 or +1. Empty sorts first, Latest last; Current is
// only meaningful as a target and sorts just below Latest.
func (v Version) Compare(other Version) int {
	if r := rank(v) - rank(other); r != 0 {
		if r < 0 {
			return -1
		}
		return 1
	}
	if v.sentinel != sentinelNone {
		return 0
	}

	a := strings.Split(v.key, ".")
	b := strings.Split(other.key, ".")
	for i := 0; i < len(a) || i < len(b); i++ {
		pa, pb := "0", "0"
		if i < len(a) {
			pa = a[i]
		}
		if i < len(b) {
			pb = b[i]
		}
		if c := compareDigits(pa, pb); c != 0 {
			return c
		}
	}
	return 0
}

// Equal reports whether v and other denote the same version.
func (v Version) Equal(other Version) bool { return v.Compare(other) == 0 }

// Less reports whether v sorts before other.
func (v Version) Less(other Version) bool { return v.Compare(other) < 0 }

// Max returns the greater of a and b.
func Max(a, b Version) Version {
	if b.Compare(a) > 0 {
		return b
	}
	return a
}

func rank(v Version) int {
	switch v.sentinel {
	case sentinelEmpty:
		return 0
	case sentinelCurrent:
		return 2
	case sentinelLatest:
		return 3
	}
	return 1
}

// compareDigits compares two digit strings without leading zeros.
func compareDigits(a, b string) int {
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}
