package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/wongsyrone/truenas-scale-middleware/internal/logger"
)

// writeJSON renders v as the response body with the given status code.
// The body is staged in a buffer first so that an encoding failure can
// still be reported as a 500 instead of truncating output after the
// headers went out.
func writeJSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		logger.Error("Failed to encode response body", "error", err)
		http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}
