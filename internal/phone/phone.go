// Package phone provides phone number normalization.
package phone

import "strings"

// Normalize strips spaces and dashes from a phone number. Subscribers are
// expected to provide E.164 numbers including the country code; anything
// beyond whitespace cleanup is left to the user.
func Normalize(raw string) string {
	p := strings.TrimSpace(raw)
	p = strings.ReplaceAll(p, " ", "")
	p = strings.ReplaceAll(p, "-", "")
	return p
}
