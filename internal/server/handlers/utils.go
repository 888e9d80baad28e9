package handlers

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"

	"git.home.luguber.info/inful/showroom/internal/logfields"
)

// writeJSON encodes v into a buffer first so a failed encode never leaves a
// half-written response behind. Encode errors are returned for the caller's
// error adapter to report.
func writeJSON(w http.ResponseWriter, status int, v any) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		return err
	}
	return writeBody(w, status, buf.Bytes())
}

// writeJSONPretty indents the output when the request carries ?pretty=1.
func writeJSONPretty(w http.ResponseWriter, r *http.Request, status int, v any) error {
	if r == nil || !wantsPretty(r) {
		return writeJSON(w, status, v)
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		slog.Warn("Pretty JSON marshal failed, using compact form", logfields.Error(err))
		return writeJSON(w, status, v)
	}
	return writeBody(w, status, append(b, '\n'))
}

func wantsPretty(r *http.Request) bool {
	p := r.URL.Query().Get("pretty")
	return p == "1" || p == "true"
}

func writeBody(w http.ResponseWriter, status int, body []byte) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		slog.Error("Failed writing JSON response body", logfields.Error(err))
		return err
	}
	return nil
}
