package entities

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is the three-part API version embedded in both the host and every
// plugin module. Versions are ordered lexicographically by component.
type Version struct {
	Major uint32
	Minor uint32
	Patch uint32
}

// String renders the version as "major.minor.patch".
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Compare returns -1, 0 or +1 depending on whether v sorts before, equal to,
// or after other.
func (v Version) Compare(other Version) int {
	switch {
	case v.Major != other.Major:
		return cmpUint32(v.Major, other.Major)
	case v.Minor != other.Minor:
		return cmpUint32(v.Minor, other.Minor)
	default:
		return cmpUint32(v.Patch, other.Patch)
	}
}

// Less reports whether v sorts before other.
func (v Version) Less(other Version) bool {
	return v.Compare(other) < 0
}

func cmpUint32(a, b uint32) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// ParseVersion parses "major.minor.patch", optionally prefixed with "v".
func ParseVersion(s string) (Version, error) {
	parts := strings.Split(strings.TrimPrefix(strings.TrimSpace(s), "v"), ".")
	if len(parts) != 3 {
		return Version{}, fmt.Errorf("invalid version %q: expected major.minor.patch", s)
	}

	var out [3]uint32
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return Version{}, fmt.Errorf("invalid version %q: %w", s, err)
		}
		out[i] = uint32(n)
	}
	return Version{Major: out[0], Minor: out[1], Patch: out[2]}, nil
}

// MarshalText implements encoding.TextMarshaler so versions appear as
// "1.2.3" in YAML and JSON documents.
func (v Version) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *Version) UnmarshalText(text []byte) error {
	parsed, err := ParseVersion(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Compatibility is the outcome of evaluating a plugin version against the host.
type Compatibility int

const (
	// Compatible means host and plugin share a major version.
	Compatible Compatibility = iota
	// MajorMismatch means the major versions differ. It is reported as a
	// warning only; loading still proceeds.
	MajorMismatch
)

func (c Compatibility) String() string {
	switch c {
	case Compatible:
		return "compatible"
	case MajorMismatch:
		return "major_mismatch"
	default:
		return "unknown"
	}
}

// Evaluate compares a plugin's embedded version with the host's.
// Any minor or patch combination within the same major is accepted.
//
// NOTE: a differing major version is deliberately not a rejection, even
// though major bumps usually signal layout changes. Callers log it and load.
func Evaluate(host, plugin Version) Compatibility {
	if host.Major != plugin.Major {
		return MajorMismatch
	}
	return Compatible
}
