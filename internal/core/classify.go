package core

// classify.go holds the derived classifications of each dataset.
//
// Every classifier is a pure function of stored variables. The stored class
// column is a cache; map composition always recomputes from the values.

// Food security priority bands, from most to least vulnerable.
const (
	FoodPriority1 = "priority-1"
	FoodPriority2 = "priority-2"
	FoodPriority3 = "priority-3"
	FoodPriority4 = "priority-4"
	FoodPriority5 = "priority-5"
	FoodPriority6 = "priority-6"
)

// FoodSecurityCategories lists the bands in priority order.
var FoodSecurityCategories = []string{
	FoodPriority1, FoodPriority2, FoodPriority3,
	FoodPriority4, FoodPriority5, FoodPriority6,
}

// foodSecurityBands are the upper bounds (exclusive) of each band's index.
var foodSecurityBands = []float64{37.61, 48.27, 57.11, 65.96, 74.40}

// FoodSecurityCategory bands a food security index (0–100) into six
// priority groups. Lower indices mean higher priority.
func FoodSecurityCategory(index float64) string {
	for i, upper := range foodSecurityBands {
		if index < upper {
			return FoodSecurityCategories[i]
		}
	}
	return FoodPriority6
}

// Supply, climate and regression conditions.
const (
	ConditionSurplus  = "surplus"
	ConditionBalanced = "balanced"
	ConditionDeficit  = "deficit"

	ConditionDry    = "dry"
	ConditionNormal = "normal"
	ConditionWet    = "wet"

	FitWeak     = "weak"
	FitModerate = "moderate"
	FitStrong   = "strong"
)

// SupplyCondition classifies a province's supply from its
// production/consumption ratio. Balanced is within ±10%.
func SupplyCondition(production, consumption float64) string {
	if consumption <= 0 {
		if production > 0 {
			return ConditionSurplus
		}
		return ConditionBalanced
	}
	ratio := production / consumption
	switch {
	case ratio > 1.1:
		return ConditionSurplus
	case ratio < 0.9:
		return ConditionDeficit
	default:
		return ConditionBalanced
	}
}

// ClimateCondition classifies monthly rainfall in millimetres.
func ClimateCondition(rainfallMM float64) string {
	switch {
	case rainfallMM < 100:
		return ConditionDry
	case rainfallMM > 300:
		return ConditionWet
	default:
		return ConditionNormal
	}
}

// RegressionFit classifies a regression's goodness of fit.
func RegressionFit(rSquared float64) string {
	switch {
	case rSquared >= 0.7:
		return FitStrong
	case rSquared >= 0.4:
		return FitModerate
	default:
		return FitWeak
	}
}
