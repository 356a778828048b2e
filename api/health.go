package api

import (
	"net/http"
)

// HealthResponse is the liveness payload.
type HealthResponse struct {
	Status      string `json:"status" example:"ok"`
	App         string `json:"app" example:"Keystone"`
	Version     string `json:"version" example:"0.0.0-dev"`
	Environment string `json:"environment" example:"development"`
}

// healthCheck godoc
//
//	@Summary		Health check
//	@Description	Reports liveness with the running version and environment
//	@Tags			system
//	@Produce		json
//	@Success		200	{object}	HealthResponse
//	@Router			/health [get]
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, HealthResponse{
		Status:      "ok",
		App:         s.settings.AppName,
		Version:     s.settings.Version,
		Environment: s.settings.Environment.String(),
	})
}
