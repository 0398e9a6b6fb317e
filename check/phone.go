package check

import "strings"

// NormalizePhone canonicalizes a raw phone into +<digits> form. Separators
// (spaces, dashes, dots, parentheses) are tolerated; anything else, or a
// digit count outside 10..15, is rejected as ErrInvalidContact before any
// lookup runs.
func NormalizePhone(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", ErrInvalidContact
	}

	rest := trimmed
	if strings.HasPrefix(rest, "+") {
		rest = rest[1:]
	}

	var digits strings.Builder
	for _, r := range rest {
		switch {
		case r >= '0' && r <= '9':
			digits.WriteRune(r)
		case r == ' ' || r == '-' || r == '.' || r == '(' || r == ')':
			// separator, ignore
		default:
			return "", ErrInvalidContact
		}
	}

	n := digits.Len()
	if n < 10 || n > 15 {
		return "", ErrInvalidContact
	}

	return "+" + digits.String(), nil
}
