package gst

import "github.com/shopspring/decimal"

// Round2 rounds a money amount to two decimals, half away from zero.
// The value passes through its shortest decimal representation first, so
// 1.005 rounds to 1.01 instead of the 1.00 plain float rounding gives.
func Round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// splitRupees returns the whole rupees and the paise (0-99) of amount after
// rounding to two decimals.
func splitRupees(amount float64) (int64, int64) {
	d := decimal.NewFromFloat(amount).Abs().Round(2)
	rupees := d.Truncate(0)
	paise := d.Sub(rupees).Shift(2).IntPart()
	return rupees.IntPart(), paise
}
