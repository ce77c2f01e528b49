package web

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/JonMunkholm/geoatlas/internal/core"
	"github.com/go-chi/chi/v5"
)

// healthResponse is the body of GET /healthz.
type healthResponse struct {
	Status  string                   `json:"status"`
	Imports core.ImportLimiterStatus `json:"imports"`
	Error   string                   `json:"error,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Imports: s.service.ImportLimiterStatus()}
	if err := s.service.Ping(r.Context()); err != nil {
		resp.Status = "unavailable"
		resp.Error = core.MapError(err).Message
		writeJSONStatus(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, resp)
}

// ---------------------------------------------------------------------------
// Provinces
// ---------------------------------------------------------------------------

func (s *Server) handleListProvinces(w http.ResponseWriter, r *http.Request) {
	provinces, err := s.service.ListProvinces(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	// Geometry is large; listings carry it only on request.
	if r.URL.Query().Get("geometry") != "true" {
		for i := range provinces {
			provinces[i].Geometry = nil
		}
	}
	if provinces == nil {
		provinces = []core.Province{}
	}
	writeJSON(w, provinces)
}

func (s *Server) handleGetProvince(w http.ResponseWriter, r *http.Request) {
	p, err := s.service.ResolveProvince(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, p)
}

func (s *Server) handleSeedProvinces(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(w, r, s.cfg.Server.MaxBodyBytes)
	if err != nil {
		respondError(w, r, err)
		return
	}
	fc, err := core.ParseFeatureCollection(data)
	if err != nil {
		respondError(w, r, err)
		return
	}

	opts := core.SeedOptions{
		NameProperty: s.cfg.Geometry.NameProperty,
		CodeProperty: s.cfg.Geometry.CodeProperty,
	}
	if v := r.URL.Query().Get("name_property"); v != "" {
		opts.NameProperty = v
	}
	if v := r.URL.Query().Get("code_property"); v != "" {
		opts.CodeProperty = v
	}

	result, err := s.service.SeedProvinces(r.Context(), principal(r), fc, opts)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// ---------------------------------------------------------------------------
// Datasets
// ---------------------------------------------------------------------------

func (s *Server) handleListDatasets(w http.ResponseWriter, r *http.Request) {
	datasets, err := s.service.ListDatasets(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, datasets)
}

func (s *Server) handleAvailableYears(w http.ResponseWriter, r *http.Request) {
	dataset := chi.URLParam(r, "dataset")
	years, err := s.service.AvailableYears(r.Context(), dataset)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"dataset": dataset, "years": years})
}

func (s *Server) handleCreateFact(w http.ResponseWriter, r *http.Request) {
	var row core.Row
	if err := decodeJSON(w, r, s.cfg.Server.MaxBodyBytes, &row); err != nil {
		respondError(w, r, err)
		return
	}

	rec, err := s.service.CreateFact(r.Context(), principal(r), chi.URLParam(r, "dataset"), row)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, rec)
}

func (s *Server) handleResetDataset(w http.ResponseWriter, r *http.Request) {
	dataset := chi.URLParam(r, "dataset")
	deleted, err := s.service.ResetDataset(r.Context(), principal(r), dataset)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"dataset": dataset, "deleted": deleted})
}

// bulkErrorResponse pairs an aborted bulk call's error with the chunks that
// did commit.
type bulkErrorResponse struct {
	ErrorResponse
	Result *core.BulkImportResult `json:"result"`
}

// handleBulk accepts a JSON array of rows or a text/csv document.
func (s *Server) handleBulk(w http.ResponseWriter, r *http.Request) {
	dataset := chi.URLParam(r, "dataset")
	p := principal(r)

	data, err := readBody(w, r, s.cfg.Server.MaxBodyBytes)
	if err != nil {
		respondError(w, r, err)
		return
	}

	var result *core.BulkImportResult
	if isCSV(r) {
		result, err = s.service.SubmitBulkCSV(r.Context(), p, dataset, bytes.NewReader(data))
	} else {
		var rows []core.Row
		if err := decodeRows(data, &rows); err != nil {
			respondError(w, r, err)
			return
		}
		result, err = s.service.SubmitBulk(r.Context(), p, dataset, rows)
	}

	if err != nil {
		if result == nil {
			respondError(w, r, err)
			return
		}
		status, msg := logError(r, err)
		writeJSONStatus(w, status, bulkErrorResponse{
			ErrorResponse: ErrorResponse{Error: msg.Message, Message: msg.Message, Action: msg.Action, Code: msg.Code},
			Result:        result,
		})
		return
	}
	writeJSON(w, result)
}

// decodeRows accepts either a bare array or {"rows": [...]}.
func decodeRows(data []byte, rows *[]core.Row) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var env struct {
			Rows []core.Row `json:"rows"`
		}
		if err := unmarshalBody(trimmed, &env); err != nil {
			return err
		}
		*rows = env.Rows
		return nil
	}
	return unmarshalBody(trimmed, rows)
}

// ---------------------------------------------------------------------------
// Maps
// ---------------------------------------------------------------------------

// handleMap serves GET /api/maps/{dataset}.
//
// ?with=other turns a fact map into a combined map of both datasets;
// /api/maps/combined?with=a,b names the pair explicitly.
func (s *Server) handleMap(w http.ResponseWriter, r *http.Request) {
	year, err := requireYear(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	month, err := queryInt(r, "month")
	if err != nil {
		respondError(w, r, err)
		return
	}

	q := r.URL.Query()
	req := core.MapRequest{
		Dataset:   chi.URLParam(r, "dataset"),
		Year:      year,
		Month:     month,
		Category:  strings.TrimSpace(q.Get("category")),
		Condition: strings.TrimSpace(q.Get("condition")),
	}
	if with := splitList(q.Get("with")); len(with) > 0 {
		if req.Dataset == core.CombinedDataset {
			req.Combine = with
		} else {
			req.Combine = append([]string{req.Dataset}, with...)
			req.Dataset = core.CombinedDataset
		}
	}

	fc, err := s.service.ComposeMap(r.Context(), req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	writeJSON(w, fc)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Connections
// ---------------------------------------------------------------------------

func (s *Server) handleQueryConnections(w http.ResponseWriter, r *http.Request) {
	year, err := queryInt(r, "year")
	if err != nil {
		respondError(w, r, err)
		return
	}
	direction := core.Direction(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("direction"))))
	if direction == "" {
		direction = core.DirectionBoth
	}

	edges, err := s.service.QueryConnections(r.Context(), chi.URLParam(r, "ref"), direction, year)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, edges)
}

func (s *Server) handleConnectionStats(w http.ResponseWriter, r *http.Request) {
	top, err := queryInt(r, "top")
	if err != nil {
		respondError(w, r, err)
		return
	}
	year, err := queryInt(r, "year")
	if err != nil {
		respondError(w, r, err)
		return
	}

	n := 0
	if top != nil {
		n = *top
	}
	ranked, err := s.service.ConnectionStatistics(r.Context(), n, year)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, ranked)
}

func (s *Server) handleTradeMatrix(w http.ResponseWriter, r *http.Request) {
	year, err := requireYear(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	m, err := s.service.TradeMatrix(r.Context(), year)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, m)
}

func (s *Server) handleUpsertConnection(w http.ResponseWriter, r *http.Request) {
	var row core.Row
	if err := decodeJSON(w, r, s.cfg.Server.MaxBodyBytes, &row); err != nil {
		respondError(w, r, err)
		return
	}

	conn, created, err := s.service.UpsertConnection(r.Context(), principal(r), row)
	if err != nil {
		respondError(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSONStatus(w, status, conn)
}

func (s *Server) handleDeleteConnection(w http.ResponseWriter, r *http.Request) {
	err := s.service.DeleteConnection(r.Context(), principal(r), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
