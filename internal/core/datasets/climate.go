package datasets

import "github.com/JonMunkholm/geoatlas/internal/core"

func init() {
	registerClimate()
}

func registerClimate() {
	core.Register(core.DatasetDefinition{
		Info: core.DatasetInfo{
			Key:       "climate",
			Label:     "Climate",
			Table:     "climate",
			Monthly:   true,
			ClassName: "condition",
			Classes:   []string{core.ConditionDry, core.ConditionNormal, core.ConditionWet},
		},
		FieldSpecs: []core.FieldSpec{
			{Name: "rainfall_mm", Type: core.FieldNumeric, Required: true, Min: core.Bound(0), Max: core.Bound(5000)},
			{Name: "avg_temperature", Type: core.FieldNumeric, Min: core.Bound(-10), Max: core.Bound(50)},
			{Name: "humidity", Type: core.FieldNumeric, Min: core.Bound(0), Max: core.Bound(100)},
			{Name: "sunshine_hours", Type: core.FieldNumeric, Min: core.Bound(0), Max: core.Bound(744)},
		},
		Classify: func(v core.Values) string {
			rainfall, _ := v.Float("rainfall_mm")
			return core.ClimateCondition(rainfall)
		},
	})
}
