package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/MegaGrindStone/wonder/internal/services"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeUpstreamError maps a failed upstream call to the response of a function. Rate limits and
// exhausted credits keep their status so the client can tell the human, everything else is a 500.
func (m Main) writeUpstreamError(w http.ResponseWriter, function string, err error) {
	var uerr *services.UpstreamError
	if !errors.As(err, &uerr) {
		m.metrics.recordUpstreamError(function, 0)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	m.metrics.recordUpstreamError(function, uerr.StatusCode)
	switch uerr.StatusCode {
	case http.StatusTooManyRequests:
		writeError(w, http.StatusTooManyRequests, "Rate limited. Please wait a moment.")
	case http.StatusPaymentRequired:
		writeError(w, http.StatusPaymentRequired, "Usage limit reached.")
	default:
		writeError(w, http.StatusInternalServerError, "AI gateway error")
	}
}
