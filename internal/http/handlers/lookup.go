package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/appointment-lookup/internal/lookup"
	"github.com/wolfman30/appointment-lookup/internal/meevo"
	"github.com/wolfman30/appointment-lookup/internal/observability/metrics"
	"github.com/wolfman30/appointment-lookup/pkg/logging"
)

const maxLookupBody = 64 << 10

// Looker runs an appointment lookup.
type Looker interface {
	Lookup(ctx context.Context, q lookup.Query) (*lookup.Result, error)
}

// LookupHandler serves the voice agent's appointment lookup tool.
type LookupHandler struct {
	service Looker
	metrics *metrics.LookupMetrics
	logger  *logging.Logger
}

// NewLookupHandler creates a lookup handler. metrics may be nil.
func NewLookupHandler(service Looker, m *metrics.LookupMetrics, logger *logging.Logger) *LookupHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &LookupHandler{
		service: service,
		metrics: m,
		logger:  logger,
	}
}

// LookupRequest is the tool call payload.
type LookupRequest struct {
	Phone string `json:"phone"`
	Email string `json:"email"`
}

// LinkedProfileResponse is a dependent reported alongside the caller.
type LinkedProfileResponse struct {
	ClientID string `json:"client_id"`
	Name     string `json:"name"`
	IsMinor  bool   `json:"is_minor"`
}

// LookupResponse is the found-caller payload. Every lookup answer is sent
// with HTTP 200; callers branch on success and found.
type LookupResponse struct {
	Success        bool                    `json:"success"`
	Found          bool                    `json:"found"`
	ClientName     string                  `json:"client_name"`
	ClientID       string                  `json:"client_id"`
	Appointments   []lookup.Appointment    `json:"appointments"`
	Total          int                     `json:"total"`
	LinkedProfiles []LinkedProfileResponse `json:"linked_profiles"`
	Message        string                  `json:"message"`
}

// NotFoundResponse is sent when no client matched.
type NotFoundResponse struct {
	Success      bool                 `json:"success"`
	Found        bool                 `json:"found"`
	Appointments []lookup.Appointment `json:"appointments"`
	Message      string               `json:"message"`
}

// ErrorResponse carries a business-level failure.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// Lookup handles POST /lookup.
func (h *LookupHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	log := h.logger.With("request_id", middleware.GetReqID(r.Context()))

	var req LookupRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, maxLookupBody))
	if err == nil && len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			log.Warn("lookup: unreadable request body, treating as empty", "error", err)
			req = LookupRequest{}
		}
	}

	res, err := h.service.Lookup(r.Context(), lookup.Query{Phone: req.Phone, Email: req.Email})
	if err != nil {
		if errors.Is(err, lookup.ErrMissingContact) {
			h.metrics.ObserveLookup("invalid", time.Since(start).Seconds())
			writeJSON(w, http.StatusOK, ErrorResponse{Error: "Please provide phone or email"})
			return
		}
		h.metrics.ObserveLookup("error", time.Since(start).Seconds())
		log.Error("lookup failed", "error", err)
		writeJSON(w, http.StatusOK, ErrorResponse{Error: errorMessage(err)})
		return
	}

	if !res.Found {
		h.metrics.ObserveLookup("not_found", time.Since(start).Seconds())
		writeJSON(w, http.StatusOK, notFoundResponse(res))
		return
	}

	h.metrics.ObserveLookup("found", time.Since(start).Seconds())
	log.Info("lookup complete",
		"client_id", res.ClientID,
		"appointments", len(res.Appointments),
		"linked_profiles", len(res.LinkedProfiles),
		"pages_scanned", res.Search.PagesScanned,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	writeJSON(w, http.StatusOK, foundResponse(res))
}

func notFoundResponse(res *lookup.Result) NotFoundResponse {
	return NotFoundResponse{
		Success:      true,
		Found:        false,
		Appointments: []lookup.Appointment{},
		Message:      res.Message(),
	}
}

func foundResponse(res *lookup.Result) LookupResponse {
	appointments := res.Appointments
	if appointments == nil {
		appointments = []lookup.Appointment{}
	}
	linked := make([]LinkedProfileResponse, 0, len(res.LinkedProfiles))
	for _, p := range res.LinkedProfiles {
		linked = append(linked, LinkedProfileResponse{ClientID: p.ClientID, Name: p.Name, IsMinor: p.IsMinor})
	}
	return LookupResponse{
		Success:        true,
		Found:          true,
		ClientName:     res.ClientName,
		ClientID:       res.ClientID,
		Appointments:   appointments,
		Total:          len(appointments),
		LinkedProfiles: linked,
		Message:        res.Message(),
	}
}

// errorMessage prefers the message Meevo put in its error body.
func errorMessage(err error) string {
	var apiErr *meevo.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return err.Error()
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
