// README: "MAJOR.MINOR" version strings shared by settings versions and offer versions.
package types

import (
	"fmt"
	"strconv"
	"strings"
)

type Version struct {
	Major int
	Minor int
}

// InitialVersion is the version of a first settings record or a freshly created offer.
var InitialVersion = Version{Major: 1, Minor: 0}

// ParseVersion accepts "N" or "N.M" with non-negative integers.
func ParseVersion(s string) (Version, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return Version{}, Invalid("empty version")
	}
	majorPart, minorPart, hasMinor := strings.Cut(raw, ".")
	major, err := strconv.Atoi(majorPart)
	if err != nil || major < 0 {
		return Version{}, Invalid("invalid version format %q", s)
	}
	minor := 0
	if hasMinor {
		minor, err = strconv.Atoi(minorPart)
		if err != nil || minor < 0 {
			return Version{}, Invalid("invalid version format %q", s)
		}
	}
	return Version{Major: major, Minor: minor}, nil
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Compare returns -1, 0 or 1.
func (v Version) Compare(o Version) int {
	switch {
	case v.Major != o.Major:
		if v.Major < o.Major {
			return -1
		}
		return 1
	case v.Minor != o.Minor:
		if v.Minor < o.Minor {
			return -1
		}
		return 1
	}
	return 0
}

// NextMajor is floor(v)+1 formatted as "N.0".
func (v Version) NextMajor() Version {
	return Version{Major: v.Major + 1}
}

// NextMinor bumps the minor component: "1.0" -> "1.1", "1.9" -> "1.10".
func (v Version) NextMinor() Version {
	return Version{Major: v.Major, Minor: v.Minor + 1}
}
