package core

import (
	"context"
	"fmt"
	"sort"
)

// MaxTopN caps ConnectionStatistics rankings.
const MaxTopN = 1000

// QueryConnections returns the edges touching a province.
// An empty direction means both.
func (s *Service) QueryConnections(ctx context.Context, ref string, direction Direction, year *int) ([]Edge, error) {
	switch direction {
	case "":
		direction = DirectionBoth
	case DirectionOut, DirectionIn, DirectionBoth:
	default:
		return nil, &ValidationError{
			Field:   "direction",
			Value:   string(direction),
			Message: fmt.Sprintf("invalid direction %q: use out, in or both", direction),
		}
	}
	if err := checkOptionalYear(year); err != nil {
		return nil, err
	}

	prov, err := resolveProvince(ctx, s.store, ref)
	if err != nil {
		return nil, err
	}

	conns, err := s.store.ListConnections(ctx, ConnectionQuery{
		ProvinceID: prov.ID,
		Direction:  direction,
		Year:       year,
	})
	if err != nil {
		return nil, Infra("list connections", err)
	}
	return toEdges(conns), nil
}

// ConnectionStatistics ranks provinces by total degree (out + in), ties
// broken by name. topN <= 0 selects the default of 10.
func (s *Service) ConnectionStatistics(ctx context.Context, topN int, year *int) ([]RankedProvince, error) {
	if topN <= 0 {
		topN = 10
	}
	topN = min(topN, MaxTopN)
	if err := checkOptionalYear(year); err != nil {
		return nil, err
	}

	degrees, err := s.store.ConnectionDegrees(ctx, year)
	if err != nil {
		return nil, Infra("connection degrees", err)
	}

	ranked := make([]RankedProvince, 0, len(degrees))
	for _, d := range degrees {
		ranked = append(ranked, RankedProvince{
			ProvinceID:    d.ProvinceID,
			ProvinceName:  d.ProvinceName,
			OutDegree:     d.OutDegree,
			InDegree:      d.InDegree,
			TotalDegree:   d.OutDegree + d.InDegree,
			NeighborCount: d.NeighborCount,
		})
	}

	sort.Slice(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.TotalDegree != b.TotalDegree {
			return a.TotalDegree > b.TotalDegree
		}
		if a.ProvinceName != b.ProvinceName {
			return a.ProvinceName < b.ProvinceName
		}
		return a.ProvinceID < b.ProvinceID
	})

	if len(ranked) > topN {
		ranked = ranked[:topN]
	}
	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked, nil
}

// TradeMatrix returns the dense adjacency of a year's connections over the
// provinces that appear in them, ordered by name.
func (s *Service) TradeMatrix(ctx context.Context, year int) (*TradeMatrix, error) {
	if err := checkOptionalYear(&year); err != nil {
		return nil, err
	}

	conns, err := s.store.ListConnections(ctx, ConnectionQuery{Year: &year})
	if err != nil {
		return nil, Infra("list connections", err)
	}
	if len(conns) == 0 {
		years, err := s.store.ConnectionYears(ctx)
		if err != nil {
			return nil, Infra("list connection years", err)
		}
		return nil, &NoDataError{Dataset: ConnectionsDataset, Year: year, AvailableYears: nonNilYears(years)}
	}

	provinces, err := s.provinceIndex(ctx)
	if err != nil {
		return nil, err
	}

	// Labels come from the registry; the names cached on each edge are
	// only a fallback.
	names := map[string]string{}
	label := func(id, cached string) {
		if p, ok := provinces[id]; ok {
			names[id] = p.Name
		} else {
			names[id] = cached
		}
	}
	for _, c := range conns {
		label(c.SourceID, c.SourceName)
		label(c.TargetID, c.TargetName)
	}
	refs := make([]ProvinceRef, 0, len(names))
	for id, name := range names {
		refs = append(refs, ProvinceRef{ID: id, Name: name})
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Name != refs[j].Name {
			return refs[i].Name < refs[j].Name
		}
		return refs[i].ID < refs[j].ID
	})

	pos := make(map[string]int, len(refs))
	for i, r := range refs {
		pos[r.ID] = i
	}

	m := &TradeMatrix{
		Year:      year,
		Provinces: refs,
		Counts:    make([][]int, len(refs)),
		Volumes:   make([][]float64, len(refs)),
	}
	for i := range refs {
		m.Counts[i] = make([]int, len(refs))
		m.Volumes[i] = make([]float64, len(refs))
	}
	for _, c := range conns {
		i, j := pos[c.SourceID], pos[c.TargetID]
		m.Counts[i][j]++
		if c.Volume != nil {
			m.Volumes[i][j] += *c.Volume
		}
	}
	return m, nil
}

func checkOptionalYear(year *int) error {
	if year == nil {
		return nil
	}
	if *year < minYear || *year > maxYear {
		return &ValidationError{Field: "year", Value: fmt.Sprint(*year), Message: fmt.Sprintf("invalid year %d", *year)}
	}
	return nil
}

func toEdges(conns []Connection) []Edge {
	edges := make([]Edge, 0, len(conns))
	for _, c := range conns {
		edges = append(edges, Edge{
			ID:         c.ID,
			SourceID:   c.SourceID,
			SourceName: c.SourceName,
			TargetID:   c.TargetID,
			TargetName: c.TargetName,
			Year:       c.Year,
			Volume:     c.Volume,
			Commodity:  c.Commodity,
		})
	}
	return edges
}
