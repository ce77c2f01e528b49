package datasets

import "github.com/JonMunkholm/geoatlas/internal/core"

func init() {
	registerFoodSecurity()
}

func registerFoodSecurity() {
	core.Register(core.DatasetDefinition{
		Info: core.DatasetInfo{
			Key:       "food-security",
			Label:     "Food Security",
			Table:     "food_security",
			ClassName: "category",
			Classes:   core.FoodSecurityCategories,
		},
		FieldSpecs: []core.FieldSpec{
			{Name: "food_security_index", Type: core.FieldNumeric, Required: true, Min: core.Bound(0), Max: core.Bound(100)},
			{Name: "poverty_rate", Type: core.FieldNumeric, Min: core.Bound(0), Max: core.Bound(100)},
			{Name: "food_expenditure_share", Type: core.FieldNumeric, Min: core.Bound(0), Max: core.Bound(100)},
			{Name: "clean_water_access", Type: core.FieldNumeric, Min: core.Bound(0), Max: core.Bound(100)},
			{Name: "life_expectancy", Type: core.FieldNumeric, Min: core.Bound(0), Max: core.Bound(120)},
			{Name: "stunting_rate", Type: core.FieldNumeric, Min: core.Bound(0), Max: core.Bound(100)},
		},
		Classify: func(v core.Values) string {
			index, _ := v.Float("food_security_index")
			return core.FoodSecurityCategory(index)
		},
	})
}
