package store

import (
	"context"
	"time"

	"github.com/JonMunkholm/geoatlas/internal/core"
)

const provinceColumns = `id, name, normalized_name, code, geometry, created_at, updated_at`

func scanProvince(r row) (*core.Province, error) {
	var (
		p       core.Province
		code    *string
		geom    []byte
		updated *time.Time
	)
	if err := r.Scan(&p.ID, &p.Name, &p.NormalizedName, &code, &geom, &p.CreatedAt, &updated); err != nil {
		return nil, err
	}
	if code != nil {
		p.Code = *code
	}
	if len(geom) > 0 {
		p.Geometry = geom
	}
	p.UpdatedAt = updated
	return &p, nil
}

func (q queries) findProvince(ctx context.Context, op, where string, arg any) (*core.Province, error) {
	p, err := scanProvince(q.x.queryRow(ctx,
		`SELECT `+provinceColumns+` FROM provinces WHERE `+where, arg))
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap(op, err)
	}
	return p, nil
}

// GetProvince returns the province with the given id, or nil.
func (q queries) GetProvince(ctx context.Context, id string) (*core.Province, error) {
	return q.findProvince(ctx, "get province", "id = ?", id)
}

// FindProvinceByCode returns the province with the given code, or nil.
// Codes match case-insensitively.
func (q queries) FindProvinceByCode(ctx context.Context, code string) (*core.Province, error) {
	return q.findProvince(ctx, "find province by code", "UPPER(code) = UPPER(?)", code)
}

// FindProvinceByName returns the province with the given normalized name, or nil.
func (q queries) FindProvinceByName(ctx context.Context, normalizedName string) (*core.Province, error) {
	return q.findProvince(ctx, "find province by name", "normalized_name = ?", normalizedName)
}

// ListProvinces returns every province ordered by name.
func (q queries) ListProvinces(ctx context.Context) ([]core.Province, error) {
	rs, err := q.x.query(ctx, `SELECT `+provinceColumns+` FROM provinces ORDER BY name, id`)
	if err != nil {
		return nil, wrap("list provinces", err)
	}
	defer rs.Close()

	var out []core.Province
	for rs.Next() {
		p, err := scanProvince(rs)
		if err != nil {
			return nil, wrap("scan province", err)
		}
		out = append(out, *p)
	}
	return out, wrap("list provinces", rs.Err())
}

// UpsertProvince inserts a province or updates the one sharing its
// normalized name. On update p.ID is set to the stored id and existing
// geometry is kept when p has none.
func (t *tx) UpsertProvince(ctx context.Context, p *core.Province) (bool, error) {
	existing, err := t.FindProvinceByName(ctx, p.NormalizedName)
	if err != nil {
		return false, err
	}

	if existing != nil {
		p.ID = existing.ID
		_, err := t.x.exec(ctx,
			`UPDATE provinces
			 SET name = ?, code = COALESCE(?, code), geometry = COALESCE(?, geometry), updated_at = ?
			 WHERE id = ?`,
			p.Name, nullString(p.Code), t.geometryArg(p.Geometry), p.CreatedAt, p.ID)
		return false, translate("update province", "province", p.Name, err)
	}

	_, err = t.x.exec(ctx,
		`INSERT INTO provinces (`+provinceColumns+`) VALUES (?, ?, ?, ?, ?, ?, NULL)`,
		p.ID, p.Name, p.NormalizedName, nullString(p.Code), t.geometryArg(p.Geometry), p.CreatedAt)
	if err != nil {
		return false, translate("insert province", "province", p.Name, err)
	}
	return true, nil
}

// geometryArg binds GeoJSON for the JSONB (postgres) or TEXT (sqlite) column.
func (q queries) geometryArg(g []byte) any {
	if len(g) == 0 || string(g) == "null" {
		return nil
	}
	if q.pg {
		return g
	}
	return string(g)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
