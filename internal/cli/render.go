package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/geoatlas/internal/core"
	"github.com/jedib0t/go-pretty/v6/table"
)

// maxErrorRows caps how many row errors a bulk summary prints.
const maxErrorRows = 20

func renderJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer, header ...any) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row(header))
	return t
}

func renderBulkResult(w io.Writer, res *core.BulkImportResult) {
	t := newTable(w, "dataset", "processed", "created", "updated", "failed", "chunks", "duration")
	t.AppendRow(table.Row{
		res.Dataset, res.TotalProcessed, res.Created, res.Updated, res.Failed,
		fmt.Sprintf("%d/%d", res.CommittedChunks, res.Chunks),
		res.Duration.Round(time.Millisecond).String(),
	})
	t.Render()

	if len(res.Errors) == 0 {
		return
	}
	e := newTable(w, "row", "code", "error")
	for i, re := range res.Errors {
		if i == maxErrorRows {
			e.AppendFooter(table.Row{"", "", fmt.Sprintf("... %d more", len(res.Errors)-maxErrorRows)})
			break
		}
		e.AppendRow(table.Row{re.Index, re.Code, re.Error})
	}
	e.Render()
}

func renderDatasets(w io.Writer, datasets []core.DatasetSummary) {
	t := newTable(w, "dataset", "label", "monthly", "class", "years")
	for _, d := range datasets {
		t.AppendRow(table.Row{d.Key, d.Label, d.Monthly, d.ClassName, yearRange(d.Years)})
	}
	t.Render()
}

func renderRanking(w io.Writer, ranked []core.RankedProvince) {
	t := newTable(w, "#", "province", "out", "in", "total", "neighbors")
	for _, r := range ranked {
		t.AppendRow(table.Row{r.Rank, r.ProvinceName, r.OutDegree, r.InDegree, r.TotalDegree, r.NeighborCount})
	}
	if len(ranked) == 0 {
		t.AppendFooter(table.Row{"", "(no connections)"})
	}
	t.Render()
}

func renderMatrix(w io.Writer, m *core.TradeMatrix) {
	header := table.Row{"from \\ to"}
	for _, p := range m.Provinces {
		header = append(header, p.Name)
	}
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle("Trade matrix %d (edge counts)", m.Year)
	t.AppendHeader(header)
	for i, p := range m.Provinces {
		row := table.Row{p.Name}
		for _, n := range m.Counts[i] {
			row = append(row, n)
		}
		t.AppendRow(row)
	}
	t.Render()
}

// yearRange compresses consecutive years: 2019-2021, 2023.
func yearRange(years []int) string {
	if len(years) == 0 {
		return "-"
	}
	var parts []string
	start, prev := years[0], years[0]
	flush := func() {
		if start == prev {
			parts = append(parts, strconv.Itoa(start))
		} else {
			parts = append(parts, fmt.Sprintf("%d-%d", start, prev))
		}
	}
	for _, y := range years[1:] {
		if y == prev+1 {
			prev = y
			continue
		}
		flush()
		start, prev = y, y
	}
	flush()
	return strings.Join(parts, ", ")
}
