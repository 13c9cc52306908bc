package handlers

import (
	"net/http"

	"github.com/MegaGrindStone/wonder/internal/services"
)

type homeResponse struct {
	Name      string   `json:"name"`
	Functions []string `json:"functions"`
}

// HandleHome lists the served functions. Any other unknown path is a 404.
func (m Main) HandleHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	functions := []string{
		services.FunctionChat,
		services.FunctionTTS,
		services.FunctionSFX,
		services.FunctionVisuals,
		services.FunctionImage,
	}
	for i, f := range functions {
		functions[i] = FunctionsPrefix + f
	}
	writeJSON(w, http.StatusOK, homeResponse{Name: "wonder", Functions: functions})
}
