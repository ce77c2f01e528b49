package core

// mapcompose.go joins province geometry with fact datasets into GeoJSON.
//
// Three modes share one entry point:
//   - fact mode: one registered dataset, flat properties
//   - combined mode: two fact datasets, properties keyed by dataset
//   - connections mode: graph nodes as features plus the edge list
//
// Derived classes are always recomputed from the stored values. Provinces
// without geometry never become features; they are counted in metadata.

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/JonMunkholm/geoatlas/internal/logging"
	"github.com/JonMunkholm/geoatlas/internal/metrics"
	"golang.org/x/sync/errgroup"
)

// DefaultCombine is the dataset pair joined by a combined map when the
// request does not name one.
var DefaultCombine = []string{"food-security", "supply-chain"}

// MapRequest selects what ComposeMap draws.
type MapRequest struct {
	Dataset   string   // registered dataset key, "connections" or "combined"
	Year      int      // required
	Month     *int     // monthly datasets only; nil aggregates the year
	Category  string   // filter on datasets whose class is a category
	Condition string   // filter on datasets whose class is a condition
	Combine   []string // the two datasets of a combined map
}

// provinceFact is one province's values for a map, after optional
// aggregation of monthly rows.
type provinceFact struct {
	ProvinceID string
	Values     Values
	Class      string
	Month      *int
	Months     int
}

// ComposeMap builds the feature collection for a request.
//
// A year without any rows yields a NoDataError listing the years that do
// have data. Rows that exist but are all filtered out yield an empty
// collection.
func (s *Service) ComposeMap(ctx context.Context, req MapRequest) (*FeatureCollection, error) {
	start := time.Now()

	if req.Year < minYear || req.Year > maxYear {
		return nil, &ValidationError{Field: "year", Value: fmt.Sprint(req.Year), Message: fmt.Sprintf("invalid year %d", req.Year)}
	}
	if req.Month != nil && (*req.Month < 1 || *req.Month > 12) {
		return nil, &ValidationError{Field: "month", Value: fmt.Sprint(*req.Month), Message: fmt.Sprintf("invalid month %d", *req.Month)}
	}

	var (
		compose func(ctx context.Context) (*FeatureCollection, error)
		keyed   []string
	)

	switch req.Dataset {
	case ConnectionsDataset:
		if req.Category != "" || req.Condition != "" || req.Month != nil {
			return nil, &ValidationError{Field: "filter", Message: "invalid filter: connection maps take only a year"}
		}
		keyed = []string{ConnectionsDataset}
		compose = func(ctx context.Context) (*FeatureCollection, error) {
			return s.composeConnections(ctx, req)
		}

	case CombinedDataset:
		defs, err := combinedDefinitions(req)
		if err != nil {
			return nil, err
		}
		filters, err := combinedFilters(defs, req)
		if err != nil {
			return nil, err
		}
		keyed = []string{defs[0].Info.Key, defs[1].Info.Key}
		compose = func(ctx context.Context) (*FeatureCollection, error) {
			return s.composeCombined(ctx, req, defs, filters)
		}

	default:
		def, err := lookupDataset(req.Dataset)
		if err != nil {
			return nil, err
		}
		filter, err := classFilter(def, req)
		if err != nil {
			return nil, err
		}
		if req.Month != nil && !def.Info.Monthly {
			return nil, &ValidationError{Field: "month", Message: fmt.Sprintf("invalid filter: %s is not a monthly dataset", def.Info.Key)}
		}
		keyed = []string{def.Info.Key}
		compose = func(ctx context.Context) (*FeatureCollection, error) {
			return s.composeFacts(ctx, req, def, filter)
		}
	}

	key := s.mapCacheKey(ctx, req, keyed)
	if data, ok := s.cache.Get(ctx, key); ok {
		var fc FeatureCollection
		if err := json.Unmarshal(data, &fc); err == nil {
			metrics.ObserveMap(req.Dataset, true, time.Since(start))
			return &fc, nil
		}
	}

	fc, err := compose(ctx)
	if err != nil {
		return nil, err
	}
	fc.Metadata.FeatureCount = len(fc.Features)
	fc.Metadata.GeneratedAt = s.now()

	if data, err := json.Marshal(fc); err == nil {
		s.cache.Set(ctx, key, data, s.cfg.Cache.TTL)
	} else {
		logging.FromContext(ctx).Warn("map not cached", "dataset", req.Dataset, "error", err)
	}

	metrics.ObserveMap(req.Dataset, false, time.Since(start))
	return fc, nil
}

// mapCacheKey derives a key that changes whenever any contributing dataset
// is written.
func (s *Service) mapCacheKey(ctx context.Context, req MapRequest, datasets []string) string {
	var b strings.Builder
	b.WriteString("map:")
	b.WriteString(req.Dataset)
	for _, ds := range datasets {
		fmt.Fprintf(&b, ":%s@g%d", ds, s.cache.Generation(ctx, ds))
	}
	fmt.Fprintf(&b, ":y%d", req.Year)
	if req.Month != nil {
		fmt.Fprintf(&b, ":m%d", *req.Month)
	}
	if req.Category != "" {
		b.WriteString(":cat=" + req.Category)
	}
	if req.Condition != "" {
		b.WriteString(":cond=" + req.Condition)
	}
	return b.String()
}

// classFilter returns the class value a dataset's features must match, or
// "" for no filtering. A filter the dataset cannot apply is an error.
func classFilter(def DatasetDefinition, req MapRequest) (string, error) {
	var want, other, otherName string
	switch def.Info.ClassName {
	case "category":
		want, other, otherName = req.Category, req.Condition, "condition"
	default:
		want, other, otherName = req.Condition, req.Category, "category"
	}

	if other != "" {
		return "", &ValidationError{
			Field:   otherName,
			Value:   other,
			Message: fmt.Sprintf("invalid filter: %s has no %s", def.Info.Key, otherName),
		}
	}
	if want == "" {
		return "", nil
	}
	for _, c := range def.Info.Classes {
		if strings.EqualFold(c, want) {
			return c, nil
		}
	}
	return "", &ValidationError{
		Field:   def.Info.ClassName,
		Value:   want,
		Message: fmt.Sprintf("invalid filter %q: must be one of: %s", want, strings.Join(def.Info.Classes, ", ")),
	}
}

func combinedDefinitions(req MapRequest) ([2]DatasetDefinition, error) {
	var defs [2]DatasetDefinition

	keys := req.Combine
	if len(keys) == 0 {
		keys = DefaultCombine
	}
	if len(keys) != 2 || keys[0] == keys[1] {
		return defs, &ValidationError{Field: "with", Message: "invalid filter: a combined map needs two distinct datasets"}
	}

	for i, k := range keys {
		def, err := lookupDataset(k)
		if err != nil {
			return defs, err
		}
		defs[i] = def
	}

	if req.Month != nil && !defs[0].Info.Monthly && !defs[1].Info.Monthly {
		return defs, &ValidationError{Field: "month", Message: "invalid filter: neither combined dataset is monthly"}
	}
	return defs, nil
}

// combinedFilters resolves the category and condition filters of a combined
// request to the class each dataset must match, "" meaning unfiltered. A
// value applies to every dataset whose classes include it and to no other,
// so the result does not depend on the order of the pair.
func combinedFilters(defs [2]DatasetDefinition, req MapRequest) ([2]string, error) {
	var filters [2]string
	for _, f := range []struct{ name, value string }{
		{"category", req.Category},
		{"condition", req.Condition},
	} {
		if f.value == "" {
			continue
		}
		var classes []string
		matched := false
		for i, def := range defs {
			if def.Info.ClassName != f.name {
				continue
			}
			classes = append(classes, def.Info.Classes...)
			for _, c := range def.Info.Classes {
				if strings.EqualFold(c, f.value) {
					filters[i] = c
					matched = true
				}
			}
		}
		if len(classes) == 0 {
			return filters, &ValidationError{Field: f.name, Value: f.value, Message: fmt.Sprintf("invalid filter: no combined dataset has a %s", f.name)}
		}
		if !matched {
			return filters, &ValidationError{
				Field:   f.name,
				Value:   f.value,
				Message: fmt.Sprintf("invalid filter %q: must be one of: %s", f.value, strings.Join(classes, ", ")),
			}
		}
	}
	return filters, nil
}

// loadProvinceFacts reads one dataset's rows for a year and reduces them to
// one entry per province. The month filter applies to monthly datasets only.
func (s *Service) loadProvinceFacts(ctx context.Context, def DatasetDefinition, year int, month *int) ([]provinceFact, error) {
	q := FactQuery{Year: &year}
	if def.Info.Monthly {
		q.Month = month
	}

	facts, err := s.store.ListFacts(ctx, def, q)
	if err != nil {
		return nil, Infra("list facts", err)
	}

	if def.Info.Monthly && month == nil {
		return aggregateMonthly(def, facts), nil
	}

	out := make([]provinceFact, 0, len(facts))
	for _, f := range facts {
		out = append(out, provinceFact{
			ProvinceID: f.ProvinceID,
			Values:     f.Values,
			Class:      def.Classify(f.Values),
			Month:      f.Month,
		})
	}
	return out, nil
}

// aggregateMonthly collapses a year of monthly rows per province: numeric
// variables are averaged over the months that have them, text and enum
// variables take their most frequent value (alphabetically first on ties).
// The derived class is recomputed on the aggregated values.
func aggregateMonthly(def DatasetDefinition, facts []FactRecord) []provinceFact {
	type acc struct {
		sums   map[string]float64
		counts map[string]int
		texts  map[string]map[string]int
		months int
	}

	order := []string{}
	byProvince := map[string]*acc{}
	for _, f := range facts {
		a, ok := byProvince[f.ProvinceID]
		if !ok {
			a = &acc{sums: map[string]float64{}, counts: map[string]int{}, texts: map[string]map[string]int{}}
			byProvince[f.ProvinceID] = a
			order = append(order, f.ProvinceID)
		}
		a.months++
		for _, spec := range def.FieldSpecs {
			switch spec.Type {
			case FieldNumeric:
				if v, ok := f.Values.Float(spec.Name); ok {
					a.sums[spec.Name] += v
					a.counts[spec.Name]++
				}
			default:
				if v, ok := f.Values.String(spec.Name); ok && v != "" {
					if a.texts[spec.Name] == nil {
						a.texts[spec.Name] = map[string]int{}
					}
					a.texts[spec.Name][v]++
				}
			}
		}
	}

	out := make([]provinceFact, 0, len(order))
	for _, id := range order {
		a := byProvince[id]
		vals := make(Values)
		for name, sum := range a.sums {
			vals[name] = sum / float64(a.counts[name])
		}
		for name, freq := range a.texts {
			vals[name] = modeOf(freq)
		}
		out = append(out, provinceFact{
			ProvinceID: id,
			Values:     vals,
			Class:      def.Classify(vals),
			Months:     a.months,
		})
	}
	return out
}

func modeOf(freq map[string]int) string {
	keys := slices.Sorted(maps.Keys(freq))
	best := ""
	for _, k := range keys {
		if best == "" || freq[k] > freq[best] {
			best = k
		}
	}
	return best
}

// provinceIndex loads the registry keyed by id.
func (s *Service) provinceIndex(ctx context.Context) (map[string]Province, error) {
	provinces, err := s.store.ListProvinces(ctx)
	if err != nil {
		return nil, Infra("list provinces", err)
	}
	idx := make(map[string]Province, len(provinces))
	for _, p := range provinces {
		idx[p.ID] = p
	}
	return idx, nil
}

func (s *Service) composeFacts(ctx context.Context, req MapRequest, def DatasetDefinition, filter string) (*FeatureCollection, error) {
	years, err := s.store.FactYears(ctx, def)
	if err != nil {
		return nil, Infra("list dataset years", err)
	}
	years = nonNilYears(years)

	facts, err := s.loadProvinceFacts(ctx, def, req.Year, req.Month)
	if err != nil {
		return nil, err
	}
	if len(facts) == 0 && !slices.Contains(years, req.Year) {
		return nil, &NoDataError{Dataset: def.Info.Key, Year: req.Year, AvailableYears: years}
	}

	provinces, err := s.provinceIndex(ctx)
	if err != nil {
		return nil, err
	}

	fc := newFeatureCollection()
	fc.Metadata = &MapMetadata{
		Dataset:        def.Info.Key,
		Year:           req.Year,
		Month:          req.Month,
		Category:       req.Category,
		Condition:      req.Condition,
		AvailableYears: years,
	}

	for _, f := range facts {
		if filter != "" && f.Class != filter {
			fc.Metadata.FilteredOut++
			continue
		}
		p, ok := provinces[f.ProvinceID]
		if !ok {
			continue
		}
		if !p.HasGeometry() {
			fc.Metadata.WithoutGeometry++
			fc.Metadata.WithoutGeometryNames = append(fc.Metadata.WithoutGeometryNames, p.Name)
			continue
		}

		props := map[string]any{
			"provinceId":   p.ID,
			"provinceName": p.Name,
			"year":         req.Year,
		}
		maps.Copy(props, factProperties(def, f))
		fc.Features = append(fc.Features, newFeature(p, props))
	}

	sortFeatures(fc.Features)
	sort.Strings(fc.Metadata.WithoutGeometryNames)
	return fc, nil
}

// factProperties renders one province's dataset values.
func factProperties(def DatasetDefinition, f provinceFact) map[string]any {
	props := make(map[string]any, len(f.Values)+2)
	maps.Copy(props, f.Values)
	if f.Class != "" {
		props[def.Info.ClassName] = f.Class
	}
	if f.Month != nil {
		props["month"] = *f.Month
	}
	if f.Months > 0 {
		props["months"] = f.Months
	}
	return props
}

// composeCombined joins two datasets per province. With a class filter, only
// provinces matching it on a filtered dataset become features; the other
// dataset is attached to them unfiltered.
func (s *Service) composeCombined(ctx context.Context, req MapRequest, defs [2]DatasetDefinition, filters [2]string) (*FeatureCollection, error) {
	var (
		sides [2][]provinceFact
		years [2][]int
	)

	g, gctx := errgroup.WithContext(ctx)
	for i, def := range defs {
		g.Go(func() error {
			y, err := s.store.FactYears(gctx, def)
			if err != nil {
				return Infra("list dataset years", err)
			}
			years[i] = y
			sides[i], err = s.loadProvinceFacts(gctx, def, req.Year, req.Month)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	union := nonNilYears(mergeYears(years[0], years[1]))
	if len(sides[0]) == 0 && len(sides[1]) == 0 && !slices.Contains(union, req.Year) {
		return nil, &NoDataError{Dataset: CombinedDataset, Year: req.Year, AvailableYears: union}
	}

	provinces, err := s.provinceIndex(ctx)
	if err != nil {
		return nil, err
	}

	type entry struct {
		props   map[string]any
		present int
	}
	var order []string
	entries := map[string]*entry{}
	total := map[string]bool{}

	filtered := filters[0] != "" || filters[1] != ""
	matched := map[string]bool{}
	for i := range defs {
		if filters[i] == "" {
			continue
		}
		for _, f := range sides[i] {
			if f.Class == filters[i] {
				matched[f.ProvinceID] = true
			}
		}
	}

	for i, def := range defs {
		for _, f := range sides[i] {
			total[f.ProvinceID] = true
			if filtered && !matched[f.ProvinceID] {
				continue
			}
			if filters[i] != "" && f.Class != filters[i] {
				continue
			}
			e, ok := entries[f.ProvinceID]
			if !ok {
				e = &entry{props: map[string]any{}}
				entries[f.ProvinceID] = e
				order = append(order, f.ProvinceID)
			}
			e.props[def.Info.Key] = factProperties(def, f)
			e.present++
		}
	}

	fc := newFeatureCollection()
	fc.Metadata = &MapMetadata{
		Dataset:        CombinedDataset,
		Datasets:       []string{defs[0].Info.Key, defs[1].Info.Key},
		Year:           req.Year,
		Month:          req.Month,
		Category:       req.Category,
		Condition:      req.Condition,
		FilteredOut:    len(total) - len(entries),
		AvailableYears: union,
	}

	for _, id := range order {
		p, ok := provinces[id]
		if !ok {
			continue
		}
		if !p.HasGeometry() {
			fc.Metadata.WithoutGeometry++
			fc.Metadata.WithoutGeometryNames = append(fc.Metadata.WithoutGeometryNames, p.Name)
			continue
		}
		props := entries[id].props
		props["provinceId"] = p.ID
		props["provinceName"] = p.Name
		props["year"] = req.Year
		fc.Features = append(fc.Features, newFeature(p, props))
	}

	sortFeatures(fc.Features)
	sort.Strings(fc.Metadata.WithoutGeometryNames)
	return fc, nil
}

func (s *Service) composeConnections(ctx context.Context, req MapRequest) (*FeatureCollection, error) {
	years, err := s.store.ConnectionYears(ctx)
	if err != nil {
		return nil, Infra("list connection years", err)
	}
	years = nonNilYears(years)

	year := req.Year
	conns, err := s.store.ListConnections(ctx, ConnectionQuery{Year: &year})
	if err != nil {
		return nil, Infra("list connections", err)
	}
	if len(conns) == 0 {
		return nil, &NoDataError{Dataset: ConnectionsDataset, Year: req.Year, AvailableYears: years}
	}

	degrees, err := s.store.ConnectionDegrees(ctx, &year)
	if err != nil {
		return nil, Infra("connection degrees", err)
	}
	provinces, err := s.provinceIndex(ctx)
	if err != nil {
		return nil, err
	}

	fc := newFeatureCollection()
	fc.Edges = toEdges(conns)
	fc.Metadata = &MapMetadata{
		Dataset:        ConnectionsDataset,
		Year:           req.Year,
		EdgeCount:      len(fc.Edges),
		AvailableYears: years,
	}

	for _, d := range degrees {
		p, ok := provinces[d.ProvinceID]
		if !ok {
			continue
		}
		if !p.HasGeometry() {
			fc.Metadata.WithoutGeometry++
			fc.Metadata.WithoutGeometryNames = append(fc.Metadata.WithoutGeometryNames, p.Name)
			continue
		}
		fc.Features = append(fc.Features, newFeature(p, map[string]any{
			"provinceId":    p.ID,
			"provinceName":  p.Name,
			"year":          req.Year,
			"outDegree":     d.OutDegree,
			"inDegree":      d.InDegree,
			"neighborCount": d.NeighborCount,
		}))
	}

	sortFeatures(fc.Features)
	sort.Strings(fc.Metadata.WithoutGeometryNames)
	return fc, nil
}

func sortFeatures(features []Feature) {
	sort.SliceStable(features, func(i, j int) bool {
		ni, _ := features[i].Properties["provinceName"].(string)
		nj, _ := features[j].Properties["provinceName"].(string)
		if ni != nj {
			return ni < nj
		}
		return features[i].ID < features[j].ID
	})
}

func mergeYears(a, b []int) []int {
	seen := make(map[int]bool, len(a)+len(b))
	var out []int
	for _, y := range append(slices.Clone(a), b...) {
		if !seen[y] {
			seen[y] = true
			out = append(out, y)
		}
	}
	slices.Sort(out)
	return out
}
