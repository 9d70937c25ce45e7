package util

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeName case-folds, strips accents and collapses whitespace so that
// "Construtora  São João LTDA" and "CONSTRUTORA SAO JOAO ltda" compare equal.
func NormalizeName(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}
	return strings.Join(strings.Fields(strings.ToLower(stripped)), " ")
}

// Digits keeps only ASCII digits ("12.345.678/0001-90" -> "12345678000190")
func Digits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IsCNPJ reports whether s has the 14 digits of a company tax id (check digits are not validated)
func IsCNPJ(s string) bool {
	return len(Digits(s)) == 14
}

// IsCPF reports whether s has the 11 digits of a person tax id (check digits are not validated)
func IsCPF(s string) bool {
	return len(Digits(s)) == 11
}
