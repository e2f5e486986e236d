package gst

import "regexp"

var (
	gstinPattern = regexp.MustCompile(`^[0-9]{2}[A-Z]{5}[0-9]{4}[A-Z]{1}[1-9A-Z]{1}Z[0-9A-Z]{1}$`)
	panPattern   = regexp.MustCompile(`^[A-Z]{5}[0-9]{4}[A-Z]$`)
)

// ValidGSTIN reports whether s has the shape of a GSTIN.
func ValidGSTIN(s string) bool {
	return gstinPattern.MatchString(s)
}

// ValidPAN reports whether s has the shape of a PAN.
func ValidPAN(s string) bool {
	return panPattern.MatchString(s)
}

// GSTINState returns the state code embedded in a well formed GSTIN.
func GSTINState(gstin string) (StateCode, bool) {
	if !ValidGSTIN(gstin) {
		return "", false
	}
	return StateCode(gstin[:2]), true
}

// GSTINPAN returns the PAN embedded in a well formed GSTIN.
func GSTINPAN(gstin string) (string, bool) {
	if !ValidGSTIN(gstin) {
		return "", false
	}
	return gstin[2:12], true
}
