package gst

import "strings"

const (
	thousand = 1_000
	lakh     = 1_00_000
	crore    = 1_00_00_000
)

var onesWords = [...]string{
	"", "One", "Two", "Three", "Four", "Five", "Six", "Seven", "Eight", "Nine",
	"Ten", "Eleven", "Twelve", "Thirteen", "Fourteen", "Fifteen", "Sixteen",
	"Seventeen", "Eighteen", "Nineteen",
}

var tensWords = [...]string{
	"", "", "Twenty", "Thirty", "Forty", "Fifty", "Sixty", "Seventy", "Eighty", "Ninety",
}

// AmountInWords renders amount in Indian English words using lakh and crore
// grouping, e.g. 1234.5 becomes
// "One Thousand Two Hundred Thirty Four Rupees and Fifty Paise Only".
func AmountInWords(amount float64) string {
	rupees, paise := splitRupees(amount)

	var b strings.Builder
	if amount < 0 && (rupees > 0 || paise > 0) {
		b.WriteString("Minus ")
	}
	if rupees == 0 {
		b.WriteString("Zero")
	} else {
		b.WriteString(IndianWords(rupees))
	}
	b.WriteString(" Rupees")
	if paise > 0 {
		b.WriteString(" and ")
		b.WriteString(IndianWords(paise))
		b.WriteString(" Paise")
	}
	b.WriteString(" Only")
	return b.String()
}

// IndianWords spells a non-negative integer in the Indian numbering system.
// Zero yields "".
func IndianWords(n int64) string {
	switch {
	case n <= 0:
		return ""
	case n < 20:
		return onesWords[n]
	case n < 100:
		return joinWords(tensWords[n/10], onesWords[n%10])
	case n < thousand:
		return joinWords(onesWords[n/100]+" Hundred", IndianWords(n%100))
	case n < lakh:
		return joinWords(IndianWords(n/thousand)+" Thousand", IndianWords(n%thousand))
	case n < crore:
		return joinWords(IndianWords(n/lakh)+" Lakh", IndianWords(n%lakh))
	default:
		return joinWords(IndianWords(n/crore)+" Crore", IndianWords(n%crore))
	}
}

func joinWords(head, tail string) string {
	if tail == "" {
		return head
	}
	return head + " " + tail
}
