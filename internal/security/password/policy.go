package password

import (
	"strings"
	"unicode"
)

// Policy define los requisitos mínimos de contraseña que aplica el proveedor
// local en su strength check.
type Policy struct {
	MinLength     int
	RequireUpper  bool
	RequireLower  bool
	RequireDigit  bool
	RequireSymbol bool
}

func (p Policy) Validate(s string) (ok bool, reasons []string) {
	if len([]rune(s)) < p.MinLength {
		reasons = append(reasons, "too_short")
	}
	var hasU, hasL, hasD, hasS bool
	for _, r := range s {
		switch {
		case unicode.IsUpper(r):
			hasU = true
		case unicode.IsLower(r):
			hasL = true
		case unicode.IsDigit(r):
			hasD = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasS = true
		}
	}
	if p.RequireUpper && !hasU {
		reasons = append(reasons, "missing_upper")
	}
	if p.RequireLower && !hasL {
		reasons = append(reasons, "missing_lower")
	}
	if p.RequireDigit && !hasD {
		reasons = append(reasons, "missing_digit")
	}
	if p.RequireSymbol && !hasS {
		reasons = append(reasons, "missing_symbol")
	}
	return len(reasons) == 0, reasons
}

// Feedback arma un mensaje legible a partir de los motivos de rechazo,
// en el formato que el orquestador muestra al usuario.
func Feedback(reasons []string) string {
	if len(reasons) == 0 {
		return ""
	}
	msgs := make([]string, 0, len(reasons))
	for _, r := range reasons {
		switch r {
		case "too_short":
			msgs = append(msgs, "too short")
		case "missing_upper":
			msgs = append(msgs, "add an uppercase letter")
		case "missing_lower":
			msgs = append(msgs, "add a lowercase letter")
		case "missing_digit":
			msgs = append(msgs, "add a digit")
		case "missing_symbol":
			msgs = append(msgs, "add a symbol")
		default:
			msgs = append(msgs, r)
		}
	}
	return strings.Join(msgs, ", ")
}
