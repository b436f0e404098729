package handlers

import "net/http"

// HealthHandler reports liveness along with which deployment is answering.
type HealthHandler struct {
	environment string
	location    string
	service     string
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(environment, location, service string) *HealthHandler {
	return &HealthHandler{
		environment: environment,
		location:    location,
		service:     service,
	}
}

// HealthCheck returns a simple health check response.
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":      "ok",
		"environment": h.environment,
		"location":    h.location,
		"service":     h.service,
	})
}
