package ledger

// ValidAccountNumber reports whether s has an accepted destination shape.
//
// Two shapes are admitted as routing identifiers:
//   1. A 9-20 digit numeric string (conventional account numbers)
//   2. An alphanumeric identifier of length >= 5, hyphens and
//      underscores allowed (deposit ids and other internal references)
//
// The second shape deliberately lets users route transfers into
// deposit-like references. Tightening this to numeric-only is a product
// decision, not a validator bug.
func ValidAccountNumber(s string) bool {
	if isNumeric(s) {
		return len(s) >= 9 && len(s) <= 20
	}
	if len(s) < 5 {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r == '-' || r == '_':
		default:
			return false
		}
	}
	return true
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
