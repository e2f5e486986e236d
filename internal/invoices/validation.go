package invoices

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/finpilot/finpilot/internal/gst"
	"github.com/finpilot/finpilot/internal/shared"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("gstin", func(fl validator.FieldLevel) bool {
		return gst.ValidGSTIN(fl.Field().String())
	})
	_ = v.RegisterValidation("pan", func(fl validator.FieldLevel) bool {
		return gst.ValidPAN(fl.Field().String())
	})
	return v
}

// structErrors converts validator output into field errors keyed by JSON path.
func structErrors(err error) shared.ValidationErrors {
	var out shared.ValidationErrors
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		if err != nil {
			out.Add("body", err.Error())
		}
		return out
	}
	for _, fe := range verrs {
		field := fe.Namespace()
		if idx := strings.IndexByte(field, '.'); idx >= 0 {
			field = field[idx+1:]
		}
		out.Add(field, tagMessage(fe))
	}
	return out
}

func tagMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gstin":
		return "must be a valid GSTIN"
	case "pan":
		return "must be a valid PAN"
	case "email":
		return "must be a valid e-mail address"
	case "datetime":
		return "must be a date formatted YYYY-MM-DD"
	case "min":
		return "must contain at least " + fe.Param() + " entries"
	case "max":
		return "must be at most " + fe.Param() + " long"
	case "oneof":
		return "must be one of " + fe.Param()
	default:
		return "is invalid"
	}
}

// validateInput checks a submitted draft and returns it normalised: unit
// defaults to Nos, state codes default from the parties and the invoice
// date defaults to today.
func validateInput(in InvoiceInput, now time.Time) (draft, error) {
	// Trim before struct validation so that blank text fails "required".
	var items []gst.LineItemDraft
	for _, item := range in.Items {
		item.Description = strings.TrimSpace(item.Description)
		item.HSNSAC = strings.TrimSpace(item.HSNSAC)
		items = append(items, item)
	}
	in.Items = items
	errs := structErrors(validate.Struct(in))

	if in.SupplierState == "" {
		in.SupplierState = in.Supplier.StateCode
	}
	if in.PlaceOfSupply == "" {
		in.PlaceOfSupply = in.Buyer.StateCode
	}
	if in.Supplier.GSTIN == "" && !errs.Has("supplier.gstin") {
		errs.Add("supplier.gstin", "is required")
	}
	checkParty(&errs, "supplier", in.Supplier)
	checkParty(&errs, "buyer", in.Buyer)

	for i := range items {
		item := &items[i]
		if item.Unit == "" {
			item.Unit = gst.UnitNos
		}
		if item.Quantity <= 0 && !errs.Has(fmt.Sprintf("items[%d].quantity", i)) {
			errs.Add(fmt.Sprintf("items[%d].quantity", i), "must be greater than zero")
		}
	}
	if err := gst.ValidateDraft(items, in.SupplierState, in.PlaceOfSupply); err != nil {
		var gerrs shared.ValidationErrors
		if errors.As(err, &gerrs) {
			for _, fe := range gerrs {
				if !errs.Has(fe.Field) {
					errs.Add(fe.Field, fe.Message)
				}
			}
		}
	}

	out := draft{InvoiceInput: in}
	out.invoiceDate = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if in.InvoiceDate != "" {
		if t, err := time.Parse(dateLayout, in.InvoiceDate); err == nil {
			out.invoiceDate = t
		}
	}
	if in.DueDate != "" {
		if t, err := time.Parse(dateLayout, in.DueDate); err == nil {
			out.dueDate = t
			if t.Before(out.invoiceDate) {
				errs.Add("dueDate", "must not be before the invoice date")
			}
		}
	}
	return out, errs.Err()
}

func checkParty(errs *shared.ValidationErrors, prefix string, p PartyInput) {
	if p.StateCode != "" && !gst.ValidState(p.StateCode) {
		errs.Add(prefix+".stateCode", fmt.Sprintf("unknown state code %q", p.StateCode))
	}
	if p.GSTIN != "" && gst.ValidGSTIN(p.GSTIN) {
		if code, _ := gst.GSTINState(p.GSTIN); !gst.ValidState(code) {
			errs.Add(prefix+".gstin", fmt.Sprintf("unknown state code %q in GSTIN", code))
		}
	}
}
