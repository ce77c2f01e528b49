package store

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/geoatlas/internal/core"
)

const connectionColumns = `id, source_id, source_name, target_id, target_name, year, volume, commodity,
	created_by, created_role, created_at, updated_by, updated_at`

func scanConnection(r row) (*core.Connection, error) {
	var (
		c         core.Connection
		volume    *float64
		commodity *string
		updatedBy *string
		updatedAt *time.Time
	)
	err := r.Scan(&c.ID, &c.SourceID, &c.SourceName, &c.TargetID, &c.TargetName, &c.Year,
		&volume, &commodity, &c.CreatedBy, &c.CreatedRole, &c.CreatedAt, &updatedBy, &updatedAt)
	if err != nil {
		return nil, err
	}
	c.Volume = volume
	if commodity != nil {
		c.Commodity = *commodity
	}
	if updatedBy != nil {
		c.UpdatedBy = *updatedBy
	}
	c.UpdatedAt = updatedAt
	return &c, nil
}

// ListConnections returns edges matching cq ordered by year, source, target.
func (q queries) ListConnections(ctx context.Context, cq core.ConnectionQuery) ([]core.Connection, error) {
	var (
		where []string
		args  []any
	)
	if cq.ProvinceID != "" {
		switch cq.Direction {
		case core.DirectionOut:
			where = append(where, "source_id = ?")
			args = append(args, cq.ProvinceID)
		case core.DirectionIn:
			where = append(where, "target_id = ?")
			args = append(args, cq.ProvinceID)
		default:
			where = append(where, "(source_id = ? OR target_id = ?)")
			args = append(args, cq.ProvinceID, cq.ProvinceID)
		}
	}
	if cq.Year != nil {
		where = append(where, "year = ?")
		args = append(args, *cq.Year)
	}

	query := `SELECT ` + connectionColumns + ` FROM connections`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY year, source_name, target_name, id"

	rs, err := q.x.query(ctx, query, args...)
	if err != nil {
		return nil, wrap("list connections", err)
	}
	defer rs.Close()

	var out []core.Connection
	for rs.Next() {
		c, err := scanConnection(rs)
		if err != nil {
			return nil, wrap("scan connection", err)
		}
		out = append(out, *c)
	}
	return out, wrap("list connections", rs.Err())
}

// ConnectionYears returns the distinct years holding edges, ascending.
func (q queries) ConnectionYears(ctx context.Context) ([]int, error) {
	return q.years(ctx, "SELECT DISTINCT year FROM connections ORDER BY year")
}

// ConnectionDegrees aggregates every province's degree in one query: each
// edge contributes an outgoing entry for its source and an incoming entry
// for its target.
func (q queries) ConnectionDegrees(ctx context.Context, year *int) ([]core.DegreeRow, error) {
	filter := ""
	var args []any
	if year != nil {
		filter = " WHERE year = ?"
		args = []any{*year, *year}
	}

	query := `SELECT p.id, p.name,
			SUM(e.out_edge) AS out_degree,
			SUM(e.in_edge) AS in_degree,
			COUNT(DISTINCT e.neighbor_id) AS neighbor_count
		FROM (
			SELECT source_id AS province_id, target_id AS neighbor_id, 1 AS out_edge, 0 AS in_edge
			FROM connections` + filter + `
			UNION ALL
			SELECT target_id, source_id, 0, 1
			FROM connections` + filter + `
		) e
		JOIN provinces p ON p.id = e.province_id
		GROUP BY p.id, p.name
		ORDER BY p.name`

	rs, err := q.x.query(ctx, query, args...)
	if err != nil {
		return nil, wrap("connection degrees", err)
	}
	defer rs.Close()

	var out []core.DegreeRow
	for rs.Next() {
		var d core.DegreeRow
		if err := rs.Scan(&d.ProvinceID, &d.ProvinceName, &d.OutDegree, &d.InDegree, &d.NeighborCount); err != nil {
			return nil, wrap("scan degree", err)
		}
		out = append(out, d)
	}
	return out, wrap("connection degrees", rs.Err())
}

// FindConnection returns the edge with the natural key, or nil.
func (t *tx) FindConnection(ctx context.Context, sourceID, targetID string, year int) (*core.Connection, error) {
	c, err := scanConnection(t.x.queryRow(ctx,
		`SELECT `+connectionColumns+` FROM connections WHERE source_id = ? AND target_id = ? AND year = ?`,
		sourceID, targetID, year))
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("find connection", err)
	}
	return c, nil
}

// InsertConnection stores a new edge.
func (t *tx) InsertConnection(ctx context.Context, c *core.Connection) error {
	_, err := t.x.exec(ctx,
		`INSERT INTO connections (`+connectionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, NULL)`,
		c.ID, c.SourceID, c.SourceName, c.TargetID, c.TargetName, c.Year,
		c.Volume, nullString(c.Commodity), c.CreatedBy, c.CreatedRole, c.CreatedAt)
	return translate("insert connection", "connection", connectionKey(c), err)
}

// UpdateConnection rewrites an edge's attributes and cached names.
func (t *tx) UpdateConnection(ctx context.Context, c *core.Connection) error {
	_, err := t.x.exec(ctx,
		`UPDATE connections
		 SET source_name = ?, target_name = ?, volume = ?, commodity = ?, updated_by = ?, updated_at = ?
		 WHERE id = ?`,
		c.SourceName, c.TargetName, c.Volume, nullString(c.Commodity), nullString(c.UpdatedBy), c.UpdatedAt, c.ID)
	return translate("update connection", "connection", connectionKey(c), err)
}

// DeleteConnection removes an edge by id, reporting whether it existed.
func (t *tx) DeleteConnection(ctx context.Context, id string) (bool, error) {
	n, err := t.x.exec(ctx, `DELETE FROM connections WHERE id = ?`, id)
	if err != nil {
		return false, wrap("delete connection", err)
	}
	return n > 0, nil
}

func connectionKey(c *core.Connection) string {
	return c.SourceName + " -> " + c.TargetName + "/" + itoa(c.Year)
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
