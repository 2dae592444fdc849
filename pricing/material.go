package pricing

import "strings"

// Material describes a printable filament type with its physical and
// commercial parameters.
type Material struct {
	Code     string   `json:"code"`
	Density  float64  `json:"density_g_cm3"`
	CostPerG float64  `json:"cost_per_g"`
	Colors   []string `json:"colors"`
}

var materials = map[string]Material{
	"PLA": {
		Code:     "PLA",
		Density:  1.24,
		CostPerG: 0.05,
		Colors:   []string{"#1a1a1a", "#f5f5f5", "#d32f2f", "#1976d2", "#388e3c"},
	},
	"PETG": {
		Code:     "PETG",
		Density:  1.27,
		CostPerG: 0.06,
		Colors:   []string{"#1a1a1a", "#f5f5f5", "#fb8c00"},
	},
	"ABS": {
		Code:     "ABS",
		Density:  1.04,
		CostPerG: 0.05,
		Colors:   []string{"#1a1a1a", "#f5f5f5"},
	},
	"TPU": {
		Code:     "TPU",
		Density:  1.21,
		CostPerG: 0.10,
		Colors:   []string{"#1a1a1a", "#d32f2f"},
	},
}

// Lookup resolves a material by its code, case-insensitively. Unknown codes
// resolve to PLA parameters so a submission with an exotic material still
// gets a quote.
func Lookup(code string) Material {
	if m, ok := materials[strings.ToUpper(code)]; ok {
		return m
	}
	return materials["PLA"]
}

// Materials returns the registry for display purposes.
func Materials() []Material {
	out := make([]Material, 0, len(materials))
	for _, code := range []string{"PLA", "PETG", "ABS", "TPU"} {
		out = append(out, materials[code])
	}
	return out
}
