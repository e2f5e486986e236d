package invoices

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const numberPrefix = "INV"

// FinancialYear returns the Indian financial year (April to March) containing
// t, formatted as "2025-26".
func FinancialYear(t time.Time) string {
	y := t.Year()
	if t.Month() >= time.April {
		return fmt.Sprintf("%d-%02d", y, (y+1)%100)
	}
	return fmt.Sprintf("%d-%02d", y-1, y%100)
}

// FormatNumber renders an invoice number such as "INV/2025-26/001".
func FormatNumber(fy string, seq int) string {
	return fmt.Sprintf("%s/%s/%03d", numberPrefix, fy, seq)
}

// ParseSequence extracts the trailing sequence of number when it belongs to fy.
func ParseSequence(number, fy string) (int, bool) {
	prefix := numberPrefix + "/" + fy + "/"
	rest, ok := strings.CutPrefix(number, prefix)
	if !ok || rest == "" {
		return 0, false
	}
	for _, r := range rest {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	seq, err := strconv.Atoi(rest)
	if err != nil || seq < 1 {
		return 0, false
	}
	return seq, true
}

// numberPattern is the Postgres regex matching generated numbers of fy.
func numberPattern(fy string) string {
	return "^" + numberPrefix + "/" + fy + "/[0-9]+$"
}
