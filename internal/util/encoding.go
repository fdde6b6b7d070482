package util

import "golang.org/x/text/unicode/norm"

// Normalize applies NFKD normalization so that visually identical
// identifiers and passphrases compare and transmit identically
// regardless of the input method that produced them.
func Normalize(s string) string {
	return norm.NFKD.String(s)
}
