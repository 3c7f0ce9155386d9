package cooldown

import (
	"sort"
	"strings"
)

// 国際電話プレフィックスと国番号（サウジアラビア）
const (
	internationalPrefix = "00"
	countryCode         = "966"
	nationalLength      = 9
)

// NormalizeIdentity reduces a phone-like identity to its national digits so
// "+966 50 123 4567", "00966501234567" and "0501234567" share one record.
// Non-phone identities are trimmed and lower-cased.
func NormalizeIdentity(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", ErrInvalidIdentity
	}

	var digits strings.Builder
	other := false
	for _, r := range trimmed {
		switch {
		case r >= '0' && r <= '9':
			digits.WriteRune(r)
		case isDecimalDigit(r):
			// アラビア・インド数字などを0-9へ変換
			digits.WriteRune('0' + rune(digitValue(r)))
		case r == '+' || r == '-' || r == ' ' || r == '(' || r == ')' || r == '.':
		default:
			other = true
		}
	}

	if other || digits.Len() == 0 {
		return strings.ToLower(trimmed), nil
	}

	d := digits.String()
	d = strings.TrimPrefix(d, internationalPrefix)
	if strings.HasPrefix(d, countryCode) && len(d) > nationalLength {
		d = d[len(countryCode):]
	}
	if strings.HasPrefix(d, "0") && len(d) > nationalLength {
		d = d[1:]
	}
	return d, nil
}

// decimalZeros は Unicode の十進数字 (Nd) 各ブロックのゼロ。各ブロックは0-9が連続する。
var decimalZeros = []rune{
	0x0030, 0x0660, 0x06F0, 0x07C0, 0x0966, 0x09E6, 0x0A66, 0x0AE6,
	0x0B66, 0x0BE6, 0x0C66, 0x0CE6, 0x0D66, 0x0DE6, 0x0E50, 0x0ED0,
	0x0F20, 0x1040, 0x1090, 0x17E0, 0x1810, 0x1946, 0x19D0, 0x1A80,
	0x1A90, 0x1B50, 0x1BB0, 0x1C40, 0x1C50, 0xA620, 0xA8D0, 0xA900,
	0xA9D0, 0xA9F0, 0xAA50, 0xABF0, 0xFF10, 0x104A0, 0x10D30, 0x11066,
	0x110F0, 0x11136, 0x111D0, 0x112F0, 0x11450, 0x114D0, 0x11650, 0x116C0,
	0x11730, 0x118E0, 0x11950, 0x11C50, 0x11D50, 0x11DA0, 0x11F50, 0x16A60,
	0x16AC0, 0x16B50, 0x1D7CE, 0x1D7D8, 0x1D7E2, 0x1D7EC, 0x1D7F6, 0x1E140,
	0x1E2F0, 0x1E4F0, 0x1E950, 0x1FBF0,
}

// decimalZero returns the zero of the digit block containing r.
func decimalZero(r rune) (rune, bool) {
	i := sort.Search(len(decimalZeros), func(i int) bool { return decimalZeros[i] > r })
	if i == 0 {
		return 0, false
	}
	zero := decimalZeros[i-1]
	if r-zero > 9 {
		return 0, false
	}
	return zero, true
}

func isDecimalDigit(r rune) bool {
	_, ok := decimalZero(r)
	return ok
}

func digitValue(r rune) int {
	zero, ok := decimalZero(r)
	if !ok {
		return 0
	}
	return int(r - zero)
}
