package core

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"
)

// SubmitBulkCSV parses a CSV document and reconciles its rows into a dataset.
//
// The first non-empty record is the header. Header names are matched
// case-insensitively, with spaces, hyphens and camelCase mapped to
// snake_case. Blank lines are skipped and blank cells are treated as absent.
// Row indices in the result count data rows only, starting at 1.
func (s *Service) SubmitBulkCSV(ctx context.Context, p Principal, dataset string, r io.Reader) (*BulkImportResult, error) {
	if err := s.authorizeWrite(p); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}

	rows, err := ParseCSVRows(dataset, data)
	if err != nil {
		return nil, err
	}
	return s.SubmitBulk(ctx, p, dataset, rows)
}

// ParseCSVRows converts a CSV document into bulk rows for a dataset,
// checking that the header carries every column the dataset requires.
func ParseCSVRows(dataset string, data []byte) ([]Row, error) {
	data = sanitizeUTF8(stripBOM(data))

	reader := csv.NewReader(bytes.NewReader(data))
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var (
		header []string
		rows   []Row
	)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &ValidationError{Field: "csv", Message: fmt.Sprintf("invalid csv: %v", err)}
		}
		if isEmptyRow(record) {
			continue
		}

		if header == nil {
			header = make([]string, len(record))
			for i, h := range record {
				header[i] = csvHeaderKey(h)
			}
			if err := checkRequiredColumns(dataset, MakeHeaderIndex(header)); err != nil {
				return nil, err
			}
			continue
		}

		row := make(Row, len(header))
		for i, key := range header {
			if key == "" || i >= len(record) {
				continue
			}
			if _, dup := row[key]; dup {
				continue
			}
			if cell := CleanCell(record[i]); cell != "" {
				row[key] = cell
			}
		}
		rows = append(rows, row)
	}

	if header == nil {
		return nil, &ValidationError{Field: "csv", Message: "invalid csv: missing header row"}
	}
	if len(rows) == 0 {
		return nil, &ValidationError{Field: "rows", Message: "empty batch"}
	}
	return rows, nil
}

// csvHeaderKey maps a header cell to a row key.
// "Province Name", "province-name" and "provinceName" all become "province_name".
func csvHeaderKey(h string) string {
	h = CleanCell(h)
	var b strings.Builder
	b.Grow(len(h) + 4)
	prevLower := false
	for _, r := range h {
		switch {
		case r == ' ' || r == '-' || r == '_':
			if b.Len() > 0 && !strings.HasSuffix(b.String(), "_") {
				b.WriteByte('_')
			}
			prevLower = false
		case unicode.IsUpper(r):
			if prevLower {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			prevLower = false
		default:
			b.WriteRune(r)
			prevLower = unicode.IsLower(r) || unicode.IsDigit(r)
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}

// checkRequiredColumns reports every required column the header lacks.
func checkRequiredColumns(dataset string, idx HeaderIndex) error {
	var missing []string

	need := func(label string, keys ...string) {
		for _, k := range keys {
			if _, ok := idx[k]; ok {
				return
			}
		}
		missing = append(missing, label)
	}

	if dataset == ConnectionsDataset {
		need("source", sourceRefKeys...)
		need("target", targetRefKeys...)
		need("year", "year")
	} else {
		def, err := lookupDataset(dataset)
		if err != nil {
			return err
		}
		need("province", provinceRefKeys...)
		need("year", "year")
		if def.Info.Monthly {
			need("month", "month")
		}
		for _, spec := range def.FieldSpecs {
			if spec.Required {
				need(spec.Name, spec.Name)
			}
		}
	}

	if len(missing) > 0 {
		return &ValidationError{
			Field:   "header",
			Message: "missing required column(s): " + strings.Join(missing, ", "),
		}
	}
	return nil
}
