package platform

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseMinor переводит десятичную сумму платформы ("123.45", "-0.5", "12") в минимальные единицы.
// Больше двух знаков после точки считается ошибкой: платформа их не присылает, округлять молча нельзя.
func ParseMinor(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	negative := strings.HasPrefix(s, "-")
	digits := strings.TrimPrefix(s, "-")
	whole, frac, _ := strings.Cut(digits, ".")
	if len(frac) > 2 {
		return 0, fmt.Errorf("amount %q: more than two decimals", s)
	}
	frac += strings.Repeat("0", 2-len(frac))
	if whole == "" {
		whole = "0"
	}

	w, err := strconv.ParseUint(whole, 10, 62)
	if err != nil {
		return 0, fmt.Errorf("amount %q: %w", s, err)
	}
	f, err := strconv.ParseUint(frac, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("amount %q: %w", s, err)
	}

	minor := int64(w)*100 + int64(f)
	if negative {
		minor = -minor
	}
	return minor, nil
}
