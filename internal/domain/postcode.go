package domain

import (
	"regexp"
	"strings"
)

// ukPostcodeRe matches a normalised UK postcode, e.g. "OX4 4PU" or "SW1A 1AA".
var ukPostcodeRe = regexp.MustCompile(`^[A-Z]{1,2}[0-9][A-Z0-9]? [0-9][A-Z]{2}$`)

// NormalizePostcode upper-cases a postcode, strips all whitespace and
// reinserts a single space before the three-character inward code.
// Input too short to hold an inward code is returned upper-cased and stripped.
func NormalizePostcode(s string) string {
	compact := strings.ToUpper(strings.Join(strings.Fields(s), ""))
	if len(compact) <= 3 {
		return compact
	}
	return compact[:len(compact)-3] + " " + compact[len(compact)-3:]
}

// ValidPostcode reports whether s is a well-formed, normalised UK postcode.
func ValidPostcode(s string) bool {
	return ukPostcodeRe.MatchString(s)
}

// PostcodeDistrict returns the outward code ("OX4 4PU" -> "OX4").
func PostcodeDistrict(postcode string) string {
	p := NormalizePostcode(postcode)
	if i := strings.IndexByte(p, ' '); i > 0 {
		return p[:i]
	}
	return p
}

// PostcodeSector returns the outward code plus first inward digit
// ("OX4 4PU" -> "OX4 4").
func PostcodeSector(postcode string) string {
	p := NormalizePostcode(postcode)
	if i := strings.IndexByte(p, ' '); i > 0 && len(p) > i+1 {
		return p[:i+2]
	}
	return p
}
