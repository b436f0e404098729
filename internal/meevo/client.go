package meevo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/wolfman30/appointment-lookup/pkg/logging"
)

const defaultTimeout = 20 * time.Second

// Config holds what the client needs to reach one Meevo location.
type Config struct {
	BaseURL    string // e.g. https://na1pub.meevo.com/publicapi/v1
	TenantID   string
	LocationID string
	Timeout    time.Duration
}

// Client is a narrow REST client for the Meevo public API: client listing,
// client detail and booked services. It is read-only.
type Client struct {
	baseURL    string
	tenantID   string
	locationID string
	httpClient *http.Client
	tokens     TokenSource
	logger     *logging.Logger
}

// New creates a Meevo client that authenticates through tokens.
func New(cfg Config, tokens TokenSource, logger *logging.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("meevo: BaseURL is required")
	}
	if cfg.TenantID == "" {
		return nil, fmt.Errorf("meevo: TenantID is required")
	}
	if cfg.LocationID == "" {
		return nil, fmt.Errorf("meevo: LocationID is required")
	}
	if tokens == nil {
		return nil, fmt.Errorf("meevo: token source is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		tenantID:   cfg.TenantID,
		locationID: cfg.LocationID,
		httpClient: &http.Client{Timeout: timeout},
		tokens:     tokens,
		logger:     logger,
	}, nil
}

// Authenticate makes sure a usable access token is available.
func (c *Client) Authenticate(ctx context.Context) error {
	if _, err := c.tokens.Token(ctx); err != nil {
		return fmt.Errorf("meevo: authenticate: %w", err)
	}
	return nil
}

// ListClients returns one page of the location's client listing.
// Meevo: GET /clients?tenantid={t}&locationid={l}&PageNumber={n}&ItemsPerPage={k}
func (c *Client) ListClients(ctx context.Context, page, perPage int) ([]ClientSummary, error) {
	q := url.Values{}
	q.Set("tenantid", c.tenantID)
	q.Set("locationid", c.locationID)
	q.Set("PageNumber", strconv.Itoa(page))
	q.Set("ItemsPerPage", strconv.Itoa(perPage))

	var clients []ClientSummary
	if err := c.getData(ctx, "/clients", q, &clients); err != nil {
		return nil, fmt.Errorf("meevo: list clients page %d: %w", page, err)
	}
	return clients, nil
}

// GetClient returns a single client's full record.
// Meevo: GET /client/{id}?TenantId={t}&LocationId={l}
func (c *Client) GetClient(ctx context.Context, clientID string) (*ClientDetail, error) {
	var detail ClientDetail
	if err := c.getData(ctx, "/client/"+url.PathEscape(clientID), c.scopedQuery(), &detail); err != nil {
		return nil, fmt.Errorf("meevo: get client %s: %w", clientID, err)
	}
	if detail.ClientID == "" {
		return nil, fmt.Errorf("meevo: get client %s: empty record", clientID)
	}
	return &detail, nil
}

// GetBookedServices returns every booked service line for a client.
// Meevo: GET /book/client/{id}/services?TenantId={t}&LocationId={l}
func (c *Client) GetBookedServices(ctx context.Context, clientID string) ([]BookedService, error) {
	var services []BookedService
	path := fmt.Sprintf("/book/client/%s/services", url.PathEscape(clientID))
	if err := c.getData(ctx, path, c.scopedQuery(), &services); err != nil {
		return nil, fmt.Errorf("meevo: booked services for %s: %w", clientID, err)
	}
	return services, nil
}

func (c *Client) scopedQuery() url.Values {
	q := url.Values{}
	q.Set("TenantId", c.tenantID)
	q.Set("LocationId", c.locationID)
	return q
}

// getData decodes either a {"data": ...} envelope or a bare payload into out.
func (c *Client) getData(ctx context.Context, path string, q url.Values, out interface{}) error {
	var raw json.RawMessage
	if err := c.get(ctx, path, q, &raw); err != nil {
		return err
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '{' {
		var env envelope
		if err := json.Unmarshal(raw, &env); err == nil && env.Data != nil {
			raw = bytes.TrimSpace(env.Data)
		}
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out interface{}) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("access token: %w", err)
	}

	endpoint := c.baseURL + path
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := newAPIError(resp.StatusCode, body)
		c.logger.Warn("meevo API non-2xx response", "status", resp.StatusCode, "path", path, "body", apiErr.Body)
		return apiErr
	}
	if len(body) == 0 || out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
