package core

import "testing"

func TestFoodSecurityCategory(t *testing.T) {
	tests := []struct {
		index float64
		want  string
	}{
		{0, FoodPriority1},
		{37.6, FoodPriority1},
		{37.61, FoodPriority2},
		{48.26, FoodPriority2},
		{48.27, FoodPriority3},
		{57.11, FoodPriority4},
		{65.96, FoodPriority5},
		{74.39, FoodPriority5},
		{74.40, FoodPriority6},
		{100, FoodPriority6},
	}

	for _, tt := range tests {
		if got := FoodSecurityCategory(tt.index); got != tt.want {
			t.Errorf("FoodSecurityCategory(%v) = %q, want %q", tt.index, got, tt.want)
		}
	}
}

func TestSupplyCondition(t *testing.T) {
	tests := []struct {
		name                    string
		production, consumption float64
		want                    string
	}{
		{"clear surplus", 150, 100, ConditionSurplus},
		{"upper edge is balanced", 110, 100, ConditionBalanced},
		{"lower edge is balanced", 90, 100, ConditionBalanced},
		{"clear deficit", 50, 100, ConditionDeficit},
		{"nothing consumed but produced", 10, 0, ConditionSurplus},
		{"nothing at all", 0, 0, ConditionBalanced},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SupplyCondition(tt.production, tt.consumption); got != tt.want {
				t.Errorf("SupplyCondition(%v, %v) = %q, want %q", tt.production, tt.consumption, got, tt.want)
			}
		})
	}
}

func TestClimateAndRegressionClasses(t *testing.T) {
	if got := ClimateCondition(99.9); got != ConditionDry {
		t.Errorf("ClimateCondition(99.9) = %q", got)
	}
	if got := ClimateCondition(300); got != ConditionNormal {
		t.Errorf("ClimateCondition(300) = %q", got)
	}
	if got := ClimateCondition(300.1); got != ConditionWet {
		t.Errorf("ClimateCondition(300.1) = %q", got)
	}
	if got := RegressionFit(0.39); got != FitWeak {
		t.Errorf("RegressionFit(0.39) = %q", got)
	}
	if got := RegressionFit(0.4); got != FitModerate {
		t.Errorf("RegressionFit(0.4) = %q", got)
	}
	if got := RegressionFit(0.7); got != FitStrong {
		t.Errorf("RegressionFit(0.7) = %q", got)
	}
}
