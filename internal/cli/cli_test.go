package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/geoatlas/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const provincesFile = `{"type":"FeatureCollection","features":[
	{"type":"Feature","properties":{"NAME_1":"Aceh","code":"ID-AC"},"geometry":{"type":"Point","coordinates":[96.7,4.7]}},
	{"type":"Feature","properties":{"NAME_1":"Bali","code":"ID-BA"},"geometry":{"type":"Point","coordinates":[115.2,-8.4]}},
	{"type":"Feature","properties":{"NAME_1":"Papua","code":"ID-PA"},"geometry":null}
]}`

// atlas runs atlasctl commands against one SQLite file.
type atlas struct {
	t   *testing.T
	dir string
	db  string
}

func newAtlas(t *testing.T) *atlas {
	t.Helper()
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("GEOMETRY_SOURCE", "")
	dir := t.TempDir()
	return &atlas{t: t, dir: dir, db: filepath.Join(dir, "atlas.db")}
}

func (a *atlas) file(name, content string) string {
	a.t.Helper()
	path := filepath.Join(a.dir, name)
	require.NoError(a.t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// run executes atlasctl and returns its stdout. Logs go to stderr, which
// is kept aside for failure messages.
func (a *atlas) run(args ...string) (string, error) {
	a.t.Helper()
	out, _, err := a.runWithStderr(args...)
	return out, err
}

func (a *atlas) runWithStderr(args ...string) (string, string, error) {
	a.t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--db-driver", "sqlite", "--database-url", a.db, "--as", "dewi", "--log-level", "error"}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func (a *atlas) mustRun(args ...string) string {
	a.t.Helper()
	out, stderr, err := a.runWithStderr(args...)
	require.NoError(a.t, err, stderr)
	return out
}

func TestAtlasctlWorkflow(t *testing.T) {
	a := newAtlas(t)

	out := a.mustRun("migrate")
	assert.Equal(t, "sqlite schema at version 3\n", out)

	out = a.mustRun("seed", a.file("provinces.geojson", provincesFile), "--name-property", "NAME_1")
	assert.Equal(t, "provinces: 3 created, 0 updated, 0 skipped\n", out)

	csv := a.file("food.csv", "Province,Year,Food Security Index\nAceh,2023,40\nBali,2024,70\nAtlantis,2024,50\n")
	out, err := a.run("import", "food-security", csv)
	require.NoError(t, err, out)
	assert.Contains(t, out, "food-security")
	assert.Contains(t, out, "PRV001")

	conns := a.file("connections.json", `{"rows": [
		{"source": "Aceh", "target": "Bali", "year": 2024, "volume": 10},
		{"source": "Bali", "target": "Papua", "year": 2024}
	]}`)
	out = a.mustRun("import", "connections", conns, "-o", "json")
	var res core.BulkImportResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, 2, res.Created)
	assert.Equal(t, 0, res.Failed)

	out = a.mustRun("stats")
	assert.Contains(t, out, "2023-2024")
	assert.Contains(t, out, "supply-chain")

	out = a.mustRun("stats", "connections", "--top", "1", "-o", "json")
	var ranked []core.RankedProvince
	require.NoError(t, json.Unmarshal([]byte(out), &ranked))
	require.Len(t, ranked, 1)
	assert.Equal(t, "Bali", ranked[0].ProvinceName)

	out = a.mustRun("stats", "matrix", "--year", "2024")
	assert.Contains(t, strings.ToLower(out), "trade matrix 2024")
	assert.Contains(t, out, "Papua")

	out = a.mustRun("map", "food-security", "--year", "2024")
	var fc core.FeatureCollection
	require.NoError(t, json.Unmarshal([]byte(out), &fc))
	require.Len(t, fc.Features, 1)
	assert.Equal(t, "Bali", fc.Features[0].Properties["provinceName"])

	_, err = a.run("map", "food-security", "--year", "2020")
	var nd *core.NoDataError
	require.ErrorAs(t, err, &nd)
	assert.Equal(t, []int{2023, 2024}, nd.AvailableYears)

	_, err = a.run("reset", "food-security")
	assert.ErrorContains(t, err, "--yes")

	_, err = a.run("reset", "food-security", "--yes", "--role", "analyst")
	assert.Equal(t, core.KindAuth, core.KindOf(err))

	out = a.mustRun("reset", "food-security", "--yes")
	assert.Equal(t, "food-security: 2 records deleted\n", out)
}

func TestImportRejectsUnknownFileType(t *testing.T) {
	a := newAtlas(t)
	_, err := a.run("import", "food-security", a.file("rows.xlsx", "x"))
	assert.ErrorContains(t, err, "unsupported file type")
}

func TestDecodeRows(t *testing.T) {
	rows, err := decodeRows([]byte(`[{"province": "Aceh"}]`))
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	rows, err = decodeRows([]byte(`{"rows": [{"a": 1}, {"a": 2}]}`))
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	_, err = decodeRows([]byte(`[{`))
	assert.ErrorContains(t, err, "invalid json")
}

func TestYearRange(t *testing.T) {
	tests := []struct {
		years []int
		want  string
	}{
		{nil, "-"},
		{[]int{2024}, "2024"},
		{[]int{2019, 2020, 2021}, "2019-2021"},
		{[]int{2019, 2020, 2021, 2023}, "2019-2021, 2023"},
		{[]int{2010, 2012, 2014, 2015}, "2010, 2012, 2014-2015"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, yearRange(tt.years))
	}
}

func TestRenderBulkResultCapsErrors(t *testing.T) {
	res := &core.BulkImportResult{
		Dataset:         "climate",
		TotalProcessed:  30,
		Failed:          25,
		Chunks:          1,
		CommittedChunks: 1,
		Duration:        1500 * time.Microsecond,
	}
	for i := 1; i <= 25; i++ {
		res.Errors = append(res.Errors, core.RowError{Index: i, Code: "VAL007", Error: "invalid month 13"})
	}

	var buf bytes.Buffer
	renderBulkResult(&buf, res)
	out := buf.String()

	assert.Contains(t, out, "climate")
	assert.Contains(t, out, "1/1")
	assert.Contains(t, strings.ToLower(out), "... 5 more")
	assert.Equal(t, maxErrorRows, strings.Count(out, "invalid month 13"))
}
