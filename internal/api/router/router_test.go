package router

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/appointment-lookup/internal/http/handlers"
	"github.com/wolfman30/appointment-lookup/internal/lookup"
	"github.com/wolfman30/appointment-lookup/internal/meevo"
	"github.com/wolfman30/appointment-lookup/internal/observability/metrics"
	"github.com/wolfman30/appointment-lookup/pkg/logging"
)

// fakeMeevo serves a tiny tenant: a guardian and one phone-less dependent on
// page 1, nothing else.
func fakeMeevo(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"access_token":"tok-e2e","expires_in":3600,"token_type":"Bearer"}`)
	})
	mux.HandleFunc("/publicapi/v1/clients", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-e2e" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Query().Get("PageNumber") != "1" {
			_, _ = io.WriteString(w, `{"data":[]}`)
			return
		}
		_, _ = io.WriteString(w, `{"data":[
			{"clientId":"guardian-1","firstName":"Ana","lastName":"Ruiz","primaryPhoneNumber":"6025550100","emailAddress":"ana@example.com"},
			{"clientId":"kid-1","firstName":"Mia","lastName":"Ruiz"}
		]}`)
	})
	mux.HandleFunc("/publicapi/v1/client/kid-1", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"data":{"clientId":"kid-1","firstName":"Mia","lastName":"Ruiz","guardianId":"guardian-1","isMinor":true}}`)
	})
	mux.HandleFunc("/publicapi/v1/book/client/guardian-1/services", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"data":[
			{"appointmentId":"g-1","appointmentServiceId":"gs-1","startTime":"2099-03-02T10:00:00","servicingEndTime":"2099-03-02T11:00:00","serviceId":"cut","employeeId":"emp-1","isCancelled":false},
			{"appointmentId":"g-2","startTime":"2099-03-03T10:00:00","isCancelled":true}
		]}`)
	})
	mux.HandleFunc("/publicapi/v1/book/client/kid-1/services", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[{"appointmentId":"k-1","startTime":"2099-03-01T09:00:00","isCancelled":false}]`)
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func newTestRouter(t *testing.T, rateLimit float64) http.Handler {
	t.Helper()
	upstream := fakeMeevo(t)
	logger := logging.NewWithWriter("error", io.Discard)
	reg := prometheus.NewRegistry()
	m := metrics.NewLookupMetrics(reg)

	tokens, err := meevo.NewTokenProvider(meevo.TokenProviderConfig{
		AuthURL:      upstream.URL + "/oauth2/token",
		ClientID:     "client",
		ClientSecret: "secret",
		Metrics:      m,
		Logger:       logger,
	})
	if err != nil {
		t.Fatalf("token provider: %v", err)
	}
	client, err := meevo.New(meevo.Config{
		BaseURL:    upstream.URL + "/publicapi/v1",
		TenantID:   "200507",
		LocationID: "201664",
		Timeout:    5 * time.Second,
	}, tokens, logger)
	if err != nil {
		t.Fatalf("meevo client: %v", err)
	}
	svc := lookup.NewService(client, lookup.Options{Location: time.UTC}, m, logger)

	done := make(chan struct{})
	t.Cleanup(func() { close(done) })
	return New(&Config{
		Logger:         logger,
		LookupHandler:  handlers.NewLookupHandler(svc, m, logger),
		HealthHandler:  handlers.NewHealthHandler("test", "Phoenix Encanto", "Lookup Appointment"),
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		RateLimitRPS:   rateLimit,
		RateLimitBurst: 1,
		Done:           done,
	})
}

func TestRouterHealthEndpoint(t *testing.T) {
	router := newTestRouter(t, 0)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}

	var resp map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}

	if resp["status"] != "ok" {
		t.Errorf("expected status 'ok', got %q", resp["status"])
	}
	if resp["location"] != "Phoenix Encanto" {
		t.Errorf("expected location, got %q", resp["location"])
	}
}

func TestRouterLookupEndToEnd(t *testing.T) {
	router := newTestRouter(t, 0)

	req := httptest.NewRequest(http.MethodPost, "/lookup", strings.NewReader(`{"phone":"+1 (602) 555-0100"}`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}

	var resp struct {
		Success        bool   `json:"success"`
		Found          bool   `json:"found"`
		ClientID       string `json:"client_id"`
		ClientName     string `json:"client_name"`
		Total          int    `json:"total"`
		Message        string `json:"message"`
		LinkedProfiles []struct {
			ClientID string `json:"client_id"`
			IsMinor  bool   `json:"is_minor"`
		} `json:"linked_profiles"`
		Appointments []struct {
			AppointmentID string `json:"appointment_id"`
			ClientID      string `json:"client_id"`
			StylistID     string `json:"stylist_id"`
		} `json:"appointments"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if !resp.Success || !resp.Found {
		t.Fatalf("expected a found result, got %+v", resp)
	}
	if resp.ClientID != "guardian-1" || resp.ClientName != "Ana Ruiz" {
		t.Fatalf("unexpected client %q %q", resp.ClientID, resp.ClientName)
	}
	if len(resp.LinkedProfiles) != 1 || resp.LinkedProfiles[0].ClientID != "kid-1" || !resp.LinkedProfiles[0].IsMinor {
		t.Fatalf("unexpected linked profiles %+v", resp.LinkedProfiles)
	}
	if resp.Total != 2 || len(resp.Appointments) != 2 {
		t.Fatalf("expected 2 appointments, got %d", len(resp.Appointments))
	}
	if resp.Appointments[0].AppointmentID != "k-1" || resp.Appointments[1].AppointmentID != "g-1" {
		t.Fatalf("appointments not time ordered: %+v", resp.Appointments)
	}
	if resp.Appointments[1].StylistID != "emp-1" {
		t.Fatalf("expected stylist passthrough, got %q", resp.Appointments[1].StylistID)
	}
	if resp.Message != "Found 2 upcoming appointment(s) (including 1 for linked profiles)" {
		t.Fatalf("unexpected message %q", resp.Message)
	}
}

func TestRouterLookupNotFound(t *testing.T) {
	router := newTestRouter(t, 0)

	req := httptest.NewRequest(http.MethodPost, "/lookup", strings.NewReader(`{"email":"x@example.com"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	var resp map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["success"] != true || resp["found"] != false {
		t.Fatalf("unexpected response %v", resp)
	}
	if appts, ok := resp["appointments"].([]any); !ok || len(appts) != 0 {
		t.Fatalf("expected empty appointments array, got %v", resp["appointments"])
	}
}

func TestRouterMetricsEndpoint(t *testing.T) {
	router := newTestRouter(t, 0)

	lookupReq := httptest.NewRequest(http.MethodPost, "/lookup", strings.NewReader(`{}`))
	router.ServeHTTP(httptest.NewRecorder(), lookupReq)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `appointment_lookup_lookup_requests_total{outcome="invalid"} 1`) {
		t.Fatalf("expected lookup counter in metrics output")
	}
}

func TestRouterRateLimitsLookup(t *testing.T) {
	router := newTestRouter(t, 0.001)

	send := func() map[string]any {
		req := httptest.NewRequest(http.MethodPost, "/lookup", strings.NewReader(`{}`))
		req.RemoteAddr = "203.0.113.9:4000"
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		var resp map[string]any
		if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		return resp
	}

	if resp := send(); resp["error"] != "Please provide phone or email" {
		t.Fatalf("first request should reach the handler, got %v", resp)
	}
	if resp := send(); resp["success"] != false || resp["error"] != "rate limit exceeded" {
		t.Fatalf("second request should be rate limited, got %v", resp)
	}

	health := httptest.NewRecorder()
	router.ServeHTTP(health, httptest.NewRequest(http.MethodGet, "/health", nil))
	if health.Code != http.StatusOK {
		t.Fatalf("health must not be rate limited, got %d", health.Code)
	}
}

func TestRouterUnknownRoute(t *testing.T) {
	router := newTestRouter(t, 0)

	req := httptest.NewRequest(http.MethodGet, "/lookup", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
}
