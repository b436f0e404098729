package meevo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/wolfman30/appointment-lookup/internal/observability/metrics"
	"github.com/wolfman30/appointment-lookup/pkg/logging"
)

const defaultRefreshSkew = 5 * time.Minute

// Token is a bearer credential and the instant it stops being valid.
type Token struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Fresh reports whether the token can still be used at now, keeping skew in reserve.
func (t Token) Fresh(now time.Time, skew time.Duration) bool {
	return t.AccessToken != "" && now.Before(t.ExpiresAt.Add(-skew))
}

// TokenSource hands out a bearer token for API calls.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// TokenProviderConfig configures a TokenProvider.
type TokenProviderConfig struct {
	AuthURL      string
	ClientID     string
	ClientSecret string
	// RefreshSkew is how long before expiry a token is replaced. Defaults to 5m.
	RefreshSkew time.Duration
	HTTPClient  *http.Client
	Store       TokenStore
	Metrics     *metrics.LookupMetrics
	Logger      *logging.Logger
	Now         func() time.Time
}

// TokenProvider exchanges the client credential pair for an access token and
// keeps it in a TokenStore until it is about to expire. A fresh token is also
// memoized in process, so the store is read only when that copy runs out.
// Concurrent refreshes in one process share a single exchange.
type TokenProvider struct {
	authURL      string
	clientID     string
	clientSecret string
	skew         time.Duration
	httpClient   *http.Client
	store        TokenStore
	metrics      *metrics.LookupMetrics
	logger       *logging.Logger
	now          func() time.Time
	group        singleflight.Group

	mu   sync.RWMutex
	memo Token
}

// NewTokenProvider validates cfg and builds a provider.
func NewTokenProvider(cfg TokenProviderConfig) (*TokenProvider, error) {
	if strings.TrimSpace(cfg.AuthURL) == "" {
		return nil, fmt.Errorf("meevo: AuthURL is required")
	}
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("meevo: ClientID is required")
	}
	if cfg.ClientSecret == "" {
		return nil, fmt.Errorf("meevo: ClientSecret is required")
	}
	if cfg.RefreshSkew <= 0 {
		cfg.RefreshSkew = defaultRefreshSkew
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: defaultTimeout}
	}
	if cfg.Store == nil {
		cfg.Store = NewMemoryTokenStore()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &TokenProvider{
		authURL:      cfg.AuthURL,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		skew:         cfg.RefreshSkew,
		httpClient:   cfg.HTTPClient,
		store:        cfg.Store,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger,
		now:          cfg.Now,
	}, nil
}

// Token returns a cached token or performs a credential exchange.
func (p *TokenProvider) Token(ctx context.Context) (string, error) {
	if tok, ok := p.cached(ctx); ok {
		return tok.AccessToken, nil
	}

	v, err, _ := p.group.Do("token", func() (interface{}, error) {
		// Another caller may have refreshed while we waited to enter.
		if tok, ok := p.cached(ctx); ok {
			return tok, nil
		}
		// The exchange outlives any single caller; the HTTP client timeout bounds it.
		return p.refresh(context.WithoutCancel(ctx))
	})
	if err != nil {
		return "", err
	}
	return v.(Token).AccessToken, nil
}

func (p *TokenProvider) cached(ctx context.Context) (Token, bool) {
	p.mu.RLock()
	memo := p.memo
	p.mu.RUnlock()
	if memo.Fresh(p.now(), p.skew) {
		return memo, true
	}

	tok, ok, err := p.store.Load(ctx)
	if err != nil {
		p.logger.Warn("meevo: token cache read failed", "error", err)
		return Token{}, false
	}
	if !ok || !tok.Fresh(p.now(), p.skew) {
		return Token{}, false
	}
	p.remember(tok)
	return tok, true
}

func (p *TokenProvider) remember(tok Token) {
	p.mu.Lock()
	p.memo = tok
	p.mu.Unlock()
}

func (p *TokenProvider) refresh(ctx context.Context) (Token, error) {
	tok, err := p.exchange(ctx)
	p.metrics.ObserveTokenRefresh(err == nil)
	if err != nil {
		p.logger.Error("meevo: token exchange failed", "error", err)
		return Token{}, err
	}
	p.remember(tok)
	if err := p.store.Save(ctx, tok); err != nil {
		p.logger.Warn("meevo: token cache write failed", "error", err)
	}
	p.logger.Info("meevo: access token refreshed", "expires_at", tok.ExpiresAt)
	return tok, nil
}

func (p *TokenProvider) exchange(ctx context.Context) (Token, error) {
	body, err := json.Marshal(tokenRequest{ClientID: p.clientID, ClientSecret: p.clientSecret})
	if err != nil {
		return Token{}, fmt.Errorf("meevo: marshal token request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.authURL, bytes.NewReader(body))
	if err != nil {
		return Token{}, fmt.Errorf("meevo: create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return Token{}, fmt.Errorf("meevo: token request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Token{}, fmt.Errorf("meevo: read token response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Token{}, newAPIError(resp.StatusCode, respBody)
	}

	var out tokenResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return Token{}, fmt.Errorf("meevo: decode token response: %w", err)
	}
	if out.AccessToken == "" {
		return Token{}, fmt.Errorf("meevo: token response missing access_token")
	}
	return Token{
		AccessToken: out.AccessToken,
		ExpiresAt:   p.now().Add(time.Duration(out.ExpiresIn) * time.Second),
	}, nil
}
