package usecase

import "strings"

// NormalizePhone renders an Indian mobile number as +91XXXXXXXXXX where the digits allow it.
// Inputs that match no known shape are returned trimmed but otherwise unchanged.
func NormalizePhone(raw string) string {
	raw = strings.TrimSpace(raw)

	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, raw)

	switch {
	case len(digits) == 12 && strings.HasPrefix(digits, "91"):
		return "+" + digits
	case len(digits) == 10:
		return "+91" + digits
	default:
		return raw
	}
}
