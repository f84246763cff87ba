package config

import (
	"cmp"
	"fmt"
	"strconv"
	"strings"
)

// CurrentSchemaVersion is the topology file schema this build writes and
// reads.
const CurrentSchemaVersion = "1.0"

// SchemaVersion is a "major.minor" file schema version.
type SchemaVersion struct {
	Major int
	Minor int
}

// ParseVersion parses a version string like "1.0". An empty string is the
// current version.
func ParseVersion(s string) (SchemaVersion, error) {
	if s == "" {
		s = CurrentSchemaVersion
	}

	major, minor, ok := strings.Cut(s, ".")
	if !ok || strings.Contains(minor, ".") {
		return SchemaVersion{}, fmt.Errorf("invalid version format: %s (expected X.Y)", s)
	}

	maj, err := strconv.Atoi(major)
	if err != nil {
		return SchemaVersion{}, fmt.Errorf("invalid major version: %s", major)
	}
	mnr, err := strconv.Atoi(minor)
	if err != nil {
		return SchemaVersion{}, fmt.Errorf("invalid minor version: %s", minor)
	}

	return SchemaVersion{Major: maj, Minor: mnr}, nil
}

// String returns the version as "X.Y"
func (v SchemaVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Compare returns -1 if v < other, 0 if equal, 1 if v > other
func (v SchemaVersion) Compare(other SchemaVersion) int {
	if v.Major != other.Major {
		return cmp.Compare(v.Major, other.Major)
	}
	return cmp.Compare(v.Minor, other.Minor)
}

// IsSupportedVersion reports whether files of version v can be read. Minor
// versions only add optional attributes, so any minor of the current major
// is accepted.
func IsSupportedVersion(v SchemaVersion) bool {
	current, _ := ParseVersion(CurrentSchemaVersion)
	return v.Major == current.Major
}
