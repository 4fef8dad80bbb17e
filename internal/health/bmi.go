// Package health provides the body-mass index calculator and its qualitative bands.
package health

import (
	"math"
	"strconv"
)

// Band is the qualitative BMI classification.
type Band string

const (
	BandUnderweight Band = "underweight"
	BandHealthy     Band = "healthy"
	BandOverweight  Band = "overweight"
	BandObese       Band = "obese"
)

// Band boundaries, each inclusive on the lower side.
const (
	HealthyLowerBound    = 18.5
	OverweightLowerBound = 25.0
	ObeseLowerBound      = 30.0
)

// BMI returns weightKG / (heightCM/100)^2 rounded to two decimals.
// It returns 0 when height is not positive.
func BMI(weightKG, heightCM float64) float64 {
	if heightCM <= 0 {
		return 0
	}
	heightM := heightCM / 100
	return math.Round(weightKG/(heightM*heightM)*100) / 100
}

// Classify maps a BMI value onto its band.
func Classify(bmi float64) Band {
	switch {
	case bmi < HealthyLowerBound:
		return BandUnderweight
	case bmi < OverweightLowerBound:
		return BandHealthy
	case bmi < ObeseLowerBound:
		return BandOverweight
	default:
		return BandObese
	}
}

var bandAdvice = map[Band]string{
	BandUnderweight: "🟡 You're underweight. Consider a balanced diet.",
	BandHealthy:     "🟢 You're in the healthy range. Great job!",
	BandOverweight:  "🟠 You're overweight. Try to be more active.",
	BandObese:       "🔴 You're in the obese range. Let's work on it together!",
}

// BandMessage is the informational message sent after the weight answer.
func BandMessage(bmi float64) string {
	return "📏 Your BMI is " + strconv.FormatFloat(bmi, 'f', 2, 64) + ".\n" + bandAdvice[Classify(bmi)]
}
