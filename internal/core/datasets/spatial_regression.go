package datasets

import "github.com/JonMunkholm/geoatlas/internal/core"

func init() {
	registerSpatialRegression()
}

// Kernels are the accepted geographically weighted regression kernels.
var Kernels = []string{"gaussian", "bisquare", "exponential"}

func registerSpatialRegression() {
	core.Register(core.DatasetDefinition{
		Info: core.DatasetInfo{
			Key:       "spatial-regression",
			Label:     "Spatial Regression",
			Table:     "spatial_regression",
			ClassName: "condition",
			Classes:   []string{core.FitWeak, core.FitModerate, core.FitStrong},
		},
		FieldSpecs: []core.FieldSpec{
			{Name: "dependent_variable", Type: core.FieldText, Required: true},
			{Name: "intercept", Type: core.FieldNumeric},
			{Name: "coefficient_poverty", Type: core.FieldNumeric},
			{Name: "coefficient_water", Type: core.FieldNumeric},
			{Name: "coefficient_expenditure", Type: core.FieldNumeric},
			{Name: "r_squared", Type: core.FieldNumeric, Min: core.Bound(0), Max: core.Bound(1)},
			{Name: "bandwidth", Type: core.FieldNumeric, Min: core.Bound(0), ExclusiveMin: true},
			{Name: "kernel", Type: core.FieldEnum, EnumValues: Kernels, Normalizer: NormalizeKernel},
		},
		Classify: func(v core.Values) string {
			r2, ok := v.Float("r_squared")
			if !ok {
				return ""
			}
			return core.RegressionFit(r2)
		},
	})
}
