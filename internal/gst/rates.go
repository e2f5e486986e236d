package gst

// Rate is a GST slab in percent.
type Rate float64

// GST slabs.
const (
	Rate0  Rate = 0
	Rate5  Rate = 5
	Rate12 Rate = 12
	Rate18 Rate = 18
	Rate28 Rate = 28
)

// Rates lists the GST slabs in ascending order.
var Rates = []Rate{Rate0, Rate5, Rate12, Rate18, Rate28}

// ValidRate reports whether r is one of the GST slabs.
func ValidRate(r Rate) bool {
	switch r {
	case Rate0, Rate5, Rate12, Rate18, Rate28:
		return true
	}
	return false
}

// Unit is the unit of measure printed on an invoice line.
type Unit string

// Supported units.
const (
	UnitNos  Unit = "Nos"
	UnitPcs  Unit = "Pcs"
	UnitKg   Unit = "Kg"
	UnitLtr  Unit = "Ltr"
	UnitMtr  Unit = "Mtr"
	UnitHrs  Unit = "Hrs"
	UnitDays Unit = "Days"
	UnitBox  Unit = "Box"
	UnitSet  Unit = "Set"
)

// Units lists the supported units in display order.
var Units = []Unit{UnitNos, UnitPcs, UnitKg, UnitLtr, UnitMtr, UnitHrs, UnitDays, UnitBox, UnitSet}

// ValidUnit reports whether u is a supported unit.
func ValidUnit(u Unit) bool {
	for _, known := range Units {
		if u == known {
			return true
		}
	}
	return false
}

// SupplyType classifies a supply as intra-state or inter-state.
type SupplyType string

const (
	SupplyIntraState SupplyType = "intra-state"
	SupplyInterState SupplyType = "inter-state"
)

// SupplyTypeOf derives the supply type from the supplier state and place of supply.
func SupplyTypeOf(supplierState, placeOfSupply StateCode) SupplyType {
	if supplierState != placeOfSupply {
		return SupplyInterState
	}
	return SupplyIntraState
}
