// Package core provides the business logic of the province atlas.
//
// This package holds all domain rules independent of any transport or
// storage engine. The HTTP API, the atlasctl command line and the tests all
// drive the same [Service].
//
// # Architecture
//
// The package is organized around a few concepts:
//
//   - Provinces: the canonical identity every dataset joins on. References
//     resolve by id, code or normalized name ([NormalizeName]).
//   - Datasets: registered via [Register]. Each [DatasetDefinition] lists
//     its variables as [FieldSpec]s and a pure classifier.
//   - Bulk reconciliation: [Service.SubmitBulk] upserts rows by natural key,
//     one transaction per chunk and one savepoint per row.
//   - Map composition: [Service.ComposeMap] joins facts to geometry and
//     emits a GeoJSON [FeatureCollection].
//   - Connections: a directed, per-year trade graph with degree statistics
//     and a dense [TradeMatrix].
//
// # Dataset Registry
//
// Datasets are registered at init time, usually from the datasets
// subpackage:
//
//	core.Register(core.DatasetDefinition{
//	    Info: core.DatasetInfo{Key: "climate", Table: "climate", Monthly: true, ClassName: "condition"},
//	    FieldSpecs: []core.FieldSpec{
//	        {Name: "rainfall_mm", Type: core.FieldNumeric, Required: true, Min: core.Bound(0)},
//	    },
//	    Classify: func(v core.Values) string { ... },
//	})
//
// # Bulk Calls
//
// Rows that fail validation, resolution or a uniqueness race are reported
// in [BulkImportResult] and the rest of the batch is kept. Only
// infrastructure failures and cancellation abort a call; chunks committed
// before the abort stay committed and are reported.
//
// # Error Handling
//
// Every error belongs to a [Kind] ([KindOf]). Technical errors are mapped
// to user-facing messages with support codes by [MapError]:
//
//   - VAL001-VAL011: validation (datasets, numbers, enums, years, bodies)
//   - PRV001-PRV002: province references
//   - MAP001-MAP002: map requests (no data, filters)
//   - DB001-DB009: storage (duplicates, constraints, connectivity)
//   - IMP001-IMP006: bulk imports (busy, size, cancellation, timeouts)
//   - AUTH001-AUTH002: principals and roles
package core
