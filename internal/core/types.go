// Package core provides the business logic for province indicator datasets.
// This package has no transport dependencies and can be used by any frontend.
package core

import (
	"encoding/json"
	"time"
)

// FieldType represents the expected data type for a dataset variable.
type FieldType int

const (
	FieldText FieldType = iota
	FieldEnum
	FieldNumeric
)

// FieldSpec defines validation rules for a single dataset variable.
type FieldSpec struct {
	Name         string              // Row key and CSV header name
	DBColumn     string              // Database column name (if different from Name)
	Type         FieldType           // Expected data type
	Required     bool                // Value must be present on create
	Min          *float64            // Inclusive lower bound for numeric fields
	Max          *float64            // Inclusive upper bound for numeric fields
	ExclusiveMin bool                // Treat Min as an exclusive bound
	EnumValues   []string            // Valid values for FieldEnum type
	Normalizer   func(string) string // Optional transformation function
}

// Column returns the database column backing the field.
func (f FieldSpec) Column() string {
	if f.DBColumn != "" {
		return f.DBColumn
	}
	return f.Name
}

// Bound returns a pointer to v, for use in FieldSpec ranges.
func Bound(v float64) *float64 { return &v }

// DatasetInfo contains display and storage information about a dataset.
type DatasetInfo struct {
	Key       string   `json:"key"`       // Unique selector: "food-security"
	Label     string   `json:"label"`     // Display name: "Food Security"
	Table     string   `json:"-"`         // Storage table
	Monthly   bool     `json:"monthly"`   // Natural key includes month
	ClassName string   `json:"className"` // Derived classification property ("category", "condition")
	Classes   []string `json:"classes"`   // Possible derived values, ordered
	Columns   []string `json:"columns"`   // Variable names
}

// Values holds typed dataset variables keyed by FieldSpec name.
// Numeric fields hold float64, text and enum fields hold string.
type Values map[string]any

// Float returns a numeric value and whether it was present.
func (v Values) Float(name string) (float64, bool) {
	f, ok := v[name].(float64)
	return f, ok
}

// String returns a text value and whether it was present.
func (v Values) String(name string) (string, bool) {
	s, ok := v[name].(string)
	return s, ok
}

// ClassifyFunc derives a dataset's classification from its variables.
// It must be a pure function of its input.
type ClassifyFunc func(v Values) string

// DatasetDefinition contains everything needed to validate, store and map a dataset.
type DatasetDefinition struct {
	Info       DatasetInfo
	FieldSpecs []FieldSpec
	Classify   ClassifyFunc
}

// Spec returns the field spec with the given name.
func (d DatasetDefinition) Spec(name string) (FieldSpec, bool) {
	for _, s := range d.FieldSpecs {
		if s.Name == name {
			return s, true
		}
	}
	return FieldSpec{}, false
}

// Principal is the already-authenticated caller of a core operation.
type Principal struct {
	Name string `json:"name"`
	Role string `json:"role"`
}

// Province is the canonical identity every dataset joins on.
type Province struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	NormalizedName string          `json:"-"`
	Code           string          `json:"code,omitempty"`
	Geometry       json.RawMessage `json:"geometry,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      *time.Time      `json:"updatedAt,omitempty"`
}

// HasGeometry reports whether the province can be drawn on a map.
func (p Province) HasGeometry() bool {
	return len(p.Geometry) > 0 && string(p.Geometry) != "null"
}

// FactRecord is one row of a fact dataset.
type FactRecord struct {
	ID           string     `json:"id"`
	ProvinceID   string     `json:"provinceId"`
	ProvinceName string     `json:"provinceName"`
	Year         int        `json:"year"`
	Month        *int       `json:"month,omitempty"`
	Values       Values     `json:"values"`
	Class        string     `json:"class,omitempty"`
	CreatedBy    string     `json:"createdBy"`
	CreatedRole  string     `json:"createdRole"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedBy    string     `json:"updatedBy,omitempty"`
	UpdatedAt    *time.Time `json:"updatedAt,omitempty"`
}

// Connection is a directed trade edge between two provinces for one year.
type Connection struct {
	ID          string     `json:"id"`
	SourceID    string     `json:"sourceId"`
	SourceName  string     `json:"sourceName"`
	TargetID    string     `json:"targetId"`
	TargetName  string     `json:"targetName"`
	Year        int        `json:"year"`
	Volume      *float64   `json:"volume,omitempty"`
	Commodity   string     `json:"commodity,omitempty"`
	CreatedBy   string     `json:"createdBy"`
	CreatedRole string     `json:"createdRole"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedBy   string     `json:"updatedBy,omitempty"`
	UpdatedAt   *time.Time `json:"updatedAt,omitempty"`
}

// Direction selects which edges of a node a connection query returns.
type Direction string

const (
	DirectionOut  Direction = "out"
	DirectionIn   Direction = "in"
	DirectionBoth Direction = "both"
)

// Row is one input record of a bulk call, keyed by variable name.
type Row map[string]any

// RowError describes one failed row of a bulk call.
type RowError struct {
	Index int    `json:"index"` // 1-based position in the submitted batch
	Row   Row    `json:"row"`
	Error string `json:"error"`
	Code  string `json:"code"`
	Kind  Kind   `json:"kind"`
}

// BulkImportResult is the per-row report of a bulk call.
// A call where every row succeeded is the Failed == 0 case of the same shape.
type BulkImportResult struct {
	Dataset         string        `json:"dataset"`
	TotalProcessed  int           `json:"totalProcessed"`
	Created         int           `json:"created"`
	Updated         int           `json:"updated"`
	Failed          int           `json:"failed"`
	Errors          []RowError    `json:"errors"`
	Chunks          int           `json:"chunks"`
	CommittedChunks int           `json:"committedChunks"`
	Duration        time.Duration `json:"-"`
}

// Edge is one connection as returned by graph queries.
type Edge struct {
	ID         string   `json:"id"`
	SourceID   string   `json:"sourceId"`
	SourceName string   `json:"sourceName"`
	TargetID   string   `json:"targetId"`
	TargetName string   `json:"targetName"`
	Year       int      `json:"year"`
	Volume     *float64 `json:"volume,omitempty"`
	Commodity  string   `json:"commodity,omitempty"`
}

// DegreeRow is one province's aggregated degree over the edge set.
type DegreeRow struct {
	ProvinceID    string
	ProvinceName  string
	OutDegree     int
	InDegree      int
	NeighborCount int
}

// RankedProvince is one entry of the connection statistics ranking.
type RankedProvince struct {
	Rank          int    `json:"rank"`
	ProvinceID    string `json:"provinceId"`
	ProvinceName  string `json:"provinceName"`
	OutDegree     int    `json:"outDegree"`
	InDegree      int    `json:"inDegree"`
	TotalDegree   int    `json:"totalDegree"`
	NeighborCount int    `json:"neighborCount"`
}

// TradeMatrix is the dense adjacency of one year's connections.
// Counts[i][j] and Volumes[i][j] describe edges from Provinces[i] to Provinces[j].
type TradeMatrix struct {
	Year      int           `json:"year"`
	Provinces []ProvinceRef `json:"provinces"`
	Counts    [][]int       `json:"counts"`
	Volumes   [][]float64   `json:"volumes"`
}

// ProvinceRef is a lightweight province identity.
type ProvinceRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// FactQuery filters fact listings. Zero values mean "any".
type FactQuery struct {
	Year       *int
	Month      *int
	ProvinceID string
}

// ConnectionQuery filters connection listings. Zero values mean "any".
type ConnectionQuery struct {
	ProvinceID string
	Direction  Direction
	Year       *int
}

// DatasetSummary describes a dataset for listings.
type DatasetSummary struct {
	DatasetInfo
	Years []int `json:"years"`
}
