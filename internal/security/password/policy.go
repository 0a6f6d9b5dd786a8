package password

import "unicode"

// Policy valida la contraseña en signup. Los reasons viajan al cliente.
type Policy struct {
	MinLength     int
	MaxLength     int
	RequireLetter bool
	RequireDigit  bool
}

var DefaultPolicy = Policy{MinLength: 8, MaxLength: 256}

func (p Policy) Validate(s string) (ok bool, reasons []string) {
	n := len([]rune(s))
	if n < p.MinLength {
		reasons = append(reasons, "too_short")
	}
	if p.MaxLength > 0 && n > p.MaxLength {
		reasons = append(reasons, "too_long")
	}
	var hasL, hasD bool
	for _, r := range s {
		switch {
		case unicode.IsLetter(r):
			hasL = true
		case unicode.IsDigit(r):
			hasD = true
		}
	}
	if p.RequireLetter && !hasL {
		reasons = append(reasons, "missing_letter")
	}
	if p.RequireDigit && !hasD {
		reasons = append(reasons, "missing_digit")
	}
	return len(reasons) == 0, reasons
}
