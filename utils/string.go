package utils

import "unicode/utf8"

// TruncateUTF8 shortens str so that it occupies at most max bytes without
// splitting a multi-byte rune. Strings already within the limit are returned
// unchanged.
//
// Parameters:
//   - str: The string to shorten
//   - max: The maximum length in bytes (values below zero are treated as zero)
//
// Returns:
//   - The possibly shortened string
//   - true if the string was shortened
func TruncateUTF8(str string, max int) (string, bool) {
	if max < 0 {
		max = 0
	}

	if len(str) <= max {
		return str, false
	}

	cut := max
	for cut > 0 && !utf8.RuneStart(str[cut]) {
		cut--
	}

	return str[:cut], true
}
