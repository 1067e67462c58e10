package cell

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// sectorRadix splits a 28-bit ECI into a 20-bit eNB id and an 8-bit sector.
const sectorRadix = 256

// ErrMalformedIdentifier is returned when a cell identifier is neither the
// Unavailable marker nor a non-negative base-10 integer.
var ErrMalformedIdentifier = errors.New("cell: malformed identifier")

// SiteID returns the eNB (site) id of an ECI string: the identifier divided by 256.
// The Unavailable marker passes through unchanged.
func SiteID(identifier string) (string, error) {
	if IsUnavailable(identifier) {
		return Unavailable, nil
	}
	v, err := parseIdentifier(identifier)
	if err != nil {
		return "", err
	}
	return strconv.FormatUint(v/sectorRadix, 10), nil
}

// SectorID returns the sector id of an ECI string: the identifier modulo 256.
// The Unavailable marker passes through unchanged.
func SectorID(identifier string) (string, error) {
	if IsUnavailable(identifier) {
		return Unavailable, nil
	}
	v, err := parseIdentifier(identifier)
	if err != nil {
		return "", err
	}
	return strconv.FormatUint(v%sectorRadix, 10), nil
}

func parseIdentifier(identifier string) (uint64, error) {
	s := strings.TrimSpace(identifier)
	if s == "" || s[0] == '+' || s[0] == '-' {
		return 0, fmt.Errorf("%w: %q", ErrMalformedIdentifier, identifier)
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformedIdentifier, identifier)
	}
	return v, nil
}
