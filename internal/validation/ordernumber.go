// Package validation contains input validation helpers.
package validation

import "unicode"

// OrderNumberPrefix is the human-readable prefix of every order number.
const OrderNumberPrefix = "RGO"

// orderNumberDigits is the yymmdd date part plus the 4-digit daily sequence.
const orderNumberDigits = 10

// IsValidOrderNumber checks that a number has the storefront format:
// the RGO prefix, a six-digit date and a four-digit daily sequence.
func IsValidOrderNumber(number string) bool {
	if len(number) != len(OrderNumberPrefix)+orderNumberDigits {
		return false
	}
	if number[:len(OrderNumberPrefix)] != OrderNumberPrefix {
		return false
	}
	for _, ch := range number[len(OrderNumberPrefix):] {
		if !unicode.IsDigit(ch) {
			return false
		}
	}
	return true
}
