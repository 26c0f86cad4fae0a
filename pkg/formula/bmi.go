package formula

const (
	minHeightCM = 50
	maxHeightCM = 250
	minWeightKG = 2
	maxWeightKG = 300
)

// BMI classification labels.
const (
	Underweight = "Underweight"
	Normal      = "Normal"
	Overweight  = "Overweight"
	Obese       = "Obese"
)

// IsBodyMassIndex reports whether a formula's references include both a
// height-named and a weight-named field.
func IsBodyMassIndex(refs []string) bool {
	var height, weight bool
	for _, ref := range refs {
		height = height || isHeight(ref)
		weight = weight || isWeight(ref)
	}
	return height && weight
}

func plausibleBodyMeasures(refs []string, resolved map[string]float64) bool {
	for _, ref := range refs {
		value := resolved[ref]
		switch {
		case isHeight(ref):
			if value < minHeightCM || value > maxHeightCM {
				return false
			}
		case isWeight(ref):
			if value < minWeightKG || value > maxWeightKG {
				return false
			}
		}
	}
	return true
}

// ClassifyBMI maps a body-mass-index value to its band.
func ClassifyBMI(value float64) string {
	switch {
	case value < 18.5:
		return Underweight
	case value < 25:
		return Normal
	case value < 30:
		return Overweight
	default:
		return Obese
	}
}
