package datasets

import "github.com/JonMunkholm/geoatlas/internal/core"

func init() {
	registerSupplyChain()
}

// DistributionChannels are the accepted distribution_channel values.
var DistributionChannels = []string{"traditional", "modern", "government", "mixed"}

func registerSupplyChain() {
	core.Register(core.DatasetDefinition{
		Info: core.DatasetInfo{
			Key:       "supply-chain",
			Label:     "Supply Chain",
			Table:     "supply_chain",
			Monthly:   true,
			ClassName: "condition",
			Classes:   []string{core.ConditionSurplus, core.ConditionBalanced, core.ConditionDeficit},
		},
		FieldSpecs: []core.FieldSpec{
			{Name: "production_tons", Type: core.FieldNumeric, Required: true, Min: core.Bound(0)},
			{Name: "consumption_tons", Type: core.FieldNumeric, Required: true, Min: core.Bound(0)},
			{Name: "stock_tons", Type: core.FieldNumeric, Min: core.Bound(0)},
			{Name: "price_per_kg", Type: core.FieldNumeric, Min: core.Bound(0)},
			{Name: "distribution_channel", Type: core.FieldEnum, EnumValues: DistributionChannels, Normalizer: NormalizeChannel},
		},
		Classify: func(v core.Values) string {
			production, _ := v.Float("production_tons")
			consumption, _ := v.Float("consumption_tons")
			return core.SupplyCondition(production, consumption)
		},
	})
}
