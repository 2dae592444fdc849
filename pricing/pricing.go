// Package pricing turns estimated volume and print time into a customer
// quote. It is a pure calculation with no I/O.
package pricing

import "math"

const (
	// SetupFee is charged once per job, not per unit.
	SetupFee = 5.00
	// MachineRatePerHour is the machine-time cost.
	MachineRatePerHour = 3.00
	// MinUnitPrice is the floor for a single unit, so degenerate meshes
	// don't produce near-zero quotes.
	MinUnitPrice = 1.00

	Currency = "USD"
)

// Quote is the full price breakdown for a job. All currency fields are
// rounded to two decimals.
type Quote struct {
	WeightG      float64 `json:"weight_g"`
	MaterialCost float64 `json:"material_cost"`
	MachineCost  float64 `json:"machine_cost"`
	UnitPrice    float64 `json:"unit_price"`
	Total        float64 `json:"total"`
	Currency     string  `json:"currency"`
}

// Price computes the quote for printing quantity copies of a model with the
// given volume and estimated print time. Unknown material codes fall back to
// default material parameters.
func Price(volumeCm3 float64, materialCode string, timeSeconds int, quantity int) Quote {
	if quantity < 1 {
		quantity = 1
	}
	m := Lookup(materialCode)

	weightG := volumeCm3 * m.Density
	materialCost := weightG * m.CostPerG
	machineCost := float64(timeSeconds) / 3600 * MachineRatePerHour

	unit := materialCost + machineCost
	if unit < MinUnitPrice {
		unit = MinUnitPrice
	}
	total := unit*float64(quantity) + SetupFee

	return Quote{
		WeightG:      round2(weightG),
		MaterialCost: round2(materialCost),
		MachineCost:  round2(machineCost),
		UnitPrice:    round2(unit),
		Total:        round2(total),
		Currency:     Currency,
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
