package plstatements

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/finpilot/finpilot/internal/gst"
	"github.com/finpilot/finpilot/internal/shared"
)

const dateLayout = "2006-01-02"

var validate = func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}()

// BreakdownSum adds the amounts of a breakdown exactly.
func BreakdownSum(lines []Line) float64 {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(decimal.NewFromFloat(l.Amount))
	}
	return total.InexactFloat64()
}

// CheckBreakdown reports whether the breakdown of s adds up to its total
// within BreakdownTolerance. An empty breakdown is not checked.
func CheckBreakdown(s Section) bool {
	if len(s.Breakdown) == 0 {
		return true
	}
	gap := math.Abs(BreakdownSum(s.Breakdown) - s.Total)
	return gap <= math.Abs(s.Total)*BreakdownTolerance+1e-9
}

// Derive computes net profit and margin from the section totals. Margin is a
// percentage of revenue rounded to two decimals, 0 without revenue.
func Derive(revenue, expenses float64) (netProfit, margin float64) {
	netProfit = gst.Round2(revenue - expenses)
	if revenue == 0 {
		return netProfit, 0
	}
	return netProfit, gst.Round2((revenue - expenses) / revenue * 100)
}

type parsed struct {
	Input
	start time.Time
	end   time.Time
}

// Validate checks a submitted statement. Breakdown mismatches are reported
// as field errors wrapping ErrBreakdownMismatch; nothing is corrected.
func Validate(in Input) error {
	_, err := validateInput(in)
	return err
}

func validateInput(in Input) (parsed, error) {
	var errs shared.ValidationErrors
	if err := validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				field := fe.Namespace()
				if idx := strings.IndexByte(field, '.'); idx >= 0 {
					field = field[idx+1:]
				}
				errs.Add(field, fmt.Sprintf("failed %q check", fe.Tag()))
			}
		} else {
			errs.Add("body", err.Error())
		}
	}

	out := parsed{Input: in}
	out.start, _ = time.Parse(dateLayout, in.StartDate)
	out.end, _ = time.Parse(dateLayout, in.EndDate)
	if !out.start.IsZero() && !out.end.IsZero() && out.end.Before(out.start) {
		errs.Add("endDate", "must not be before startDate")
	}

	mismatch := false
	sections := []struct {
		name    string
		section Section
	}{{"revenue", in.Revenue}, {"expenses", in.Expenses}}
	for _, sec := range sections {
		name, section := sec.name, sec.section
		if !CheckBreakdown(section) {
			mismatch = true
			errs.Add(name+".breakdown", fmt.Sprintf("categories sum to %.2f but total is %.2f (tolerance %.0f%%)",
				BreakdownSum(section.Breakdown), section.Total, BreakdownTolerance*100))
		}
	}
	if len(errs) == 0 {
		return out, nil
	}
	if mismatch {
		return out, fmt.Errorf("%w: %w", ErrBreakdownMismatch, errs)
	}
	return out, errs
}
