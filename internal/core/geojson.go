package core

import (
	"encoding/json"
	"fmt"
	"time"
)

// FeatureCollection is a GeoJSON FeatureCollection with map metadata.
// Connections maps also carry the edge list.
type FeatureCollection struct {
	Type     string       `json:"type"`
	Features []Feature    `json:"features"`
	Edges    []Edge       `json:"edges,omitempty"`
	Metadata *MapMetadata `json:"metadata,omitempty"`
}

// Feature is one GeoJSON feature. Properties are flat for single-dataset
// maps and keyed by dataset for combined maps.
type Feature struct {
	Type       string          `json:"type"`
	ID         string          `json:"id,omitempty"`
	Geometry   json.RawMessage `json:"geometry"`
	Properties map[string]any  `json:"properties"`
}

// MapMetadata describes how a feature collection was composed.
type MapMetadata struct {
	Dataset              string    `json:"dataset"`
	Datasets             []string  `json:"datasets,omitempty"`
	Year                 int       `json:"year"`
	Month                *int      `json:"month,omitempty"`
	Category             string    `json:"category,omitempty"`
	Condition            string    `json:"condition,omitempty"`
	FeatureCount         int       `json:"featureCount"`
	EdgeCount            int       `json:"edgeCount,omitempty"`
	WithoutGeometry      int       `json:"withoutGeometry"`
	WithoutGeometryNames []string  `json:"withoutGeometryNames,omitempty"`
	FilteredOut          int       `json:"filteredOut,omitempty"`
	AvailableYears       []int     `json:"availableYears"`
	GeneratedAt          time.Time `json:"generatedAt"`
}

func newFeatureCollection() *FeatureCollection {
	return &FeatureCollection{Type: "FeatureCollection", Features: []Feature{}}
}

func newFeature(p Province, props map[string]any) Feature {
	return Feature{Type: "Feature", ID: p.ID, Geometry: p.Geometry, Properties: props}
}

// ParseFeatureCollection decodes a GeoJSON FeatureCollection as used for
// province seeding. Features are required; geometry may be null.
func ParseFeatureCollection(data []byte) (*FeatureCollection, error) {
	var fc FeatureCollection
	if err := json.Unmarshal(stripBOM(data), &fc); err != nil {
		return nil, &ValidationError{Field: "geojson", Message: fmt.Sprintf("invalid geojson: %v", err)}
	}
	if fc.Type != "FeatureCollection" {
		return nil, &ValidationError{Field: "geojson", Value: fc.Type, Message: fmt.Sprintf("invalid geojson: expected FeatureCollection, got %q", fc.Type)}
	}
	for i := range fc.Features {
		if fc.Features[i].Properties == nil {
			fc.Features[i].Properties = map[string]any{}
		}
		if string(fc.Features[i].Geometry) == "null" {
			fc.Features[i].Geometry = nil
		}
	}
	return &fc, nil
}
