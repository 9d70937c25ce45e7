package model

import (
	"strconv"
	"strings"
)

// ParseAmount parses a monetary amount written either in Brazilian notation
// ("1.234.567,89", "R$ 2,5") or plain notation ("1234567.89").
func ParseAmount(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "R$")
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")
	switch {
	case lastComma > lastDot:
		// comma is the decimal separator
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case lastDot > lastComma && lastComma >= 0:
		s = strings.ReplaceAll(s, ",", "")
	case lastDot >= 0 && strings.Count(s, ".") > 1:
		// "1.234.567" thousand separators only
		s = strings.ReplaceAll(s, ".", "")
	case lastDot >= 0 && len(s)-lastDot-1 == 3:
		// "1.500" is read as one thousand five hundred
		s = strings.ReplaceAll(s, ".", "")
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
