package store

import (
	"context"
	"strings"
	"time"

	"github.com/JonMunkholm/geoatlas/internal/core"
)

// Fact tables share a fixed layout around the dataset's variable columns:
//
//	id, province_id, province_name, year, [month], <variables>, <class>,
//	created_by, created_role, created_at, updated_by, updated_at

func factColumns(def core.DatasetDefinition) []string {
	cols := []string{"id", "province_id", "province_name", "year"}
	if def.Info.Monthly {
		cols = append(cols, "month")
	}
	for _, spec := range def.FieldSpecs {
		cols = append(cols, spec.Column())
	}
	cols = append(cols, def.Info.ClassName, "created_by", "created_role", "created_at", "updated_by", "updated_at")
	return cols
}

func selectFacts(def core.DatasetDefinition) string {
	return "SELECT " + strings.Join(factColumns(def), ", ") + " FROM " + def.Info.Table
}

func scanFact(def core.DatasetDefinition, r row) (*core.FactRecord, error) {
	rec := core.FactRecord{Values: core.Values{}}
	var (
		month     *int
		class     *string
		updatedBy *string
		updatedAt *time.Time
	)

	dest := []any{&rec.ID, &rec.ProvinceID, &rec.ProvinceName, &rec.Year}
	if def.Info.Monthly {
		dest = append(dest, &month)
	}

	vals := make([]any, len(def.FieldSpecs))
	for i, spec := range def.FieldSpecs {
		if spec.Type == core.FieldNumeric {
			vals[i] = new(*float64)
		} else {
			vals[i] = new(*string)
		}
	}
	dest = append(dest, vals...)
	dest = append(dest, &class, &rec.CreatedBy, &rec.CreatedRole, &rec.CreatedAt, &updatedBy, &updatedAt)

	if err := r.Scan(dest...); err != nil {
		return nil, err
	}

	for i, spec := range def.FieldSpecs {
		switch v := vals[i].(type) {
		case **float64:
			if *v != nil {
				rec.Values[spec.Name] = **v
			}
		case **string:
			if *v != nil {
				rec.Values[spec.Name] = **v
			}
		}
	}
	rec.Month = month
	if class != nil {
		rec.Class = *class
	}
	if updatedBy != nil {
		rec.UpdatedBy = *updatedBy
	}
	rec.UpdatedAt = updatedAt
	return &rec, nil
}

// ListFacts returns a dataset's rows matching q, ordered by province name
// then period.
func (q queries) ListFacts(ctx context.Context, def core.DatasetDefinition, fq core.FactQuery) ([]core.FactRecord, error) {
	var (
		where []string
		args  []any
	)
	if fq.Year != nil {
		where = append(where, "year = ?")
		args = append(args, *fq.Year)
	}
	if fq.Month != nil && def.Info.Monthly {
		where = append(where, "month = ?")
		args = append(args, *fq.Month)
	}
	if fq.ProvinceID != "" {
		where = append(where, "province_id = ?")
		args = append(args, fq.ProvinceID)
	}

	query := selectFacts(def)
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY province_name, year"
	if def.Info.Monthly {
		query += ", month"
	}

	rs, err := q.x.query(ctx, query, args...)
	if err != nil {
		return nil, wrap("list "+def.Info.Key, err)
	}
	defer rs.Close()

	var out []core.FactRecord
	for rs.Next() {
		rec, err := scanFact(def, rs)
		if err != nil {
			return nil, wrap("scan "+def.Info.Key, err)
		}
		out = append(out, *rec)
	}
	return out, wrap("list "+def.Info.Key, rs.Err())
}

// FactYears returns the distinct years holding rows, ascending.
func (q queries) FactYears(ctx context.Context, def core.DatasetDefinition) ([]int, error) {
	return q.years(ctx, "SELECT DISTINCT year FROM "+def.Info.Table+" ORDER BY year")
}

func (q queries) years(ctx context.Context, query string) ([]int, error) {
	rs, err := q.x.query(ctx, query)
	if err != nil {
		return nil, wrap("list years", err)
	}
	defer rs.Close()

	years := []int{}
	for rs.Next() {
		var y int
		if err := rs.Scan(&y); err != nil {
			return nil, wrap("scan year", err)
		}
		years = append(years, y)
	}
	return years, wrap("list years", rs.Err())
}

// FindFact returns the row with the natural key, or nil.
func (t *tx) FindFact(ctx context.Context, def core.DatasetDefinition, provinceID string, year int, month *int) (*core.FactRecord, error) {
	query := selectFacts(def) + " WHERE province_id = ? AND year = ?"
	args := []any{provinceID, year}
	if def.Info.Monthly {
		query += " AND month = ?"
		args = append(args, monthArg(month))
	}

	rec, err := scanFact(def, t.x.queryRow(ctx, query, args...))
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("find "+def.Info.Key, err)
	}
	return rec, nil
}

// InsertFact stores a new row.
func (t *tx) InsertFact(ctx context.Context, def core.DatasetDefinition, rec *core.FactRecord) error {
	cols := factColumns(def)
	args := []any{rec.ID, rec.ProvinceID, rec.ProvinceName, rec.Year}
	if def.Info.Monthly {
		args = append(args, monthArg(rec.Month))
	}
	args = append(args, valueArgs(def, rec.Values)...)
	args = append(args, nullString(rec.Class), rec.CreatedBy, rec.CreatedRole, rec.CreatedAt, nil, nil)

	query := "INSERT INTO " + def.Info.Table + " (" + strings.Join(cols, ", ") + ") VALUES (" +
		strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ") + ")"

	_, err := t.x.exec(ctx, query, args...)
	return translate("insert "+def.Info.Key, def.Info.Key, factKey(rec), err)
}

// UpdateFact rewrites a row's variables, class, cached name and update stamp.
func (t *tx) UpdateFact(ctx context.Context, def core.DatasetDefinition, rec *core.FactRecord) error {
	sets := []string{"province_name = ?"}
	args := []any{rec.ProvinceName}
	for _, spec := range def.FieldSpecs {
		sets = append(sets, spec.Column()+" = ?")
	}
	args = append(args, valueArgs(def, rec.Values)...)
	sets = append(sets, def.Info.ClassName+" = ?", "updated_by = ?", "updated_at = ?")
	args = append(args, nullString(rec.Class), nullString(rec.UpdatedBy), rec.UpdatedAt, rec.ID)

	_, err := t.x.exec(ctx,
		"UPDATE "+def.Info.Table+" SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	return translate("update "+def.Info.Key, def.Info.Key, factKey(rec), err)
}

func valueArgs(def core.DatasetDefinition, vals core.Values) []any {
	args := make([]any, 0, len(def.FieldSpecs))
	for _, spec := range def.FieldSpecs {
		v, ok := vals[spec.Name]
		if !ok || v == nil {
			args = append(args, nil)
			continue
		}
		args = append(args, v)
	}
	return args
}

func monthArg(m *int) any {
	if m == nil {
		return nil
	}
	return *m
}

func factKey(rec *core.FactRecord) string {
	var b strings.Builder
	b.WriteString(rec.ProvinceName)
	b.WriteString("/")
	b.WriteString(itoa(rec.Year))
	if rec.Month != nil {
		b.WriteString("-")
		b.WriteString(itoa(*rec.Month))
	}
	return b.String()
}
