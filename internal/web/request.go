package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/JonMunkholm/geoatlas/internal/core"
	mw "github.com/JonMunkholm/geoatlas/internal/web/middleware"
)

// principal returns the caller recorded by JWTAuth. Anonymous callers get
// the zero Principal, which core rejects for writes.
func principal(r *http.Request) core.Principal {
	p, _ := mw.PrincipalFrom(r.Context())
	return p
}

// clientIP returns the host part of r.RemoteAddr.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, name string) (*int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		msg := fmt.Sprintf("invalid number %q", raw)
		if name == "year" || name == "month" {
			msg = fmt.Sprintf("invalid %s %q", name, raw)
		}
		return nil, &core.ValidationError{Field: name, Value: raw, Message: msg}
	}
	return &n, nil
}

// requireYear parses the mandatory year query parameter.
func requireYear(r *http.Request) (int, error) {
	year, err := queryInt(r, "year")
	if err != nil {
		return 0, err
	}
	if year == nil {
		return 0, &core.ValidationError{Field: "year", Message: "invalid year: query parameter is required"}
	}
	return *year, nil
}

// readBody reads a request body bounded by limit.
func readBody(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return nil, &core.ValidationError{Field: "body", Message: fmt.Sprintf("request body too large (max %d bytes)", mbe.Limit)}
		}
		return nil, fmt.Errorf("read request body: %w", err)
	}
	return data, nil
}

// decodeJSON decodes a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, v any) error {
	data, err := readBody(w, r, limit)
	if err != nil {
		return err
	}
	return unmarshalBody(data, v)
}

func unmarshalBody(data []byte, v any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return &core.ValidationError{Field: "body", Message: "invalid json: empty request body"}
	}
	if err := json.Unmarshal(data, v); err != nil {
		return &core.ValidationError{Field: "body", Message: "invalid json: " + err.Error()}
	}
	return nil
}

// isCSV reports whether the request carries CSV content.
func isCSV(r *http.Request) bool {
	ct := strings.ToLower(r.Header.Get("Content-Type"))
	return strings.HasPrefix(ct, "text/csv") || strings.HasPrefix(ct, "application/csv")
}
