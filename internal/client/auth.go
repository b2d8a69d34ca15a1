package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/mhollis/netatmo-publisher/internal/models"
	"github.com/mhollis/netatmo-publisher/internal/observability"
)

// DefaultTokenURL is the weather-map token exchange endpoint.
const DefaultTokenURL = "https://weathermap.netatmo.com/access_token"

// expirySkew is subtracted from the provider-declared lifetime so a token is
// never used right at the expiry boundary.
const expirySkew = 30 * time.Second

// CredentialCache obtains and caches the weather-map access token. At most
// one token exchange is in flight at a time; concurrent callers wait for the
// same pending exchange instead of issuing duplicates. A failed exchange
// leaves the cache empty so the next call retries.
type CredentialCache struct {
	tokenURL string
	timeout  time.Duration
	client   *http.Client
	now      func() time.Time

	mu       sync.Mutex
	cred     models.Credential
	inflight *exchange
}

// exchange tracks one pending token acquisition. Result fields are written
// before done is closed.
type exchange struct {
	done chan struct{}
	cred models.Credential
	err  error
}

// NewCredentialCache creates a cache for the given token endpoint.
func NewCredentialCache(tokenURL string, timeout time.Duration) (*CredentialCache, error) {
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	if _, err := url.Parse(tokenURL); err != nil {
		return nil, fmt.Errorf("invalid token URL: %w", err)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &CredentialCache{
		tokenURL: tokenURL,
		timeout:  timeout,
		client:   &http.Client{Timeout: timeout},
		now:      time.Now,
	}, nil
}

// SetClock overrides the time source. Tests only.
func (c *CredentialCache) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Token returns the cached credential if still valid, otherwise performs (or
// joins) a token exchange. Errors wrap ErrAuthentication.
func (c *CredentialCache) Token(ctx context.Context) (models.Credential, error) {
	c.mu.Lock()
	if c.cred.ValidAt(c.now()) {
		cred := c.cred
		c.mu.Unlock()
		return cred, nil
	}

	ex := c.inflight
	if ex == nil {
		ex = &exchange{done: make(chan struct{})}
		c.inflight = ex
		go c.acquire(ex)
	}
	c.mu.Unlock()

	select {
	case <-ex.done:
		return ex.cred, ex.err
	case <-ctx.Done():
		return models.Credential{}, ctx.Err()
	}
}

// Invalidate drops the cached credential so the next Token call re-acquires.
// Called after a 401/403 station response.
func (c *CredentialCache) Invalidate() {
	c.mu.Lock()
	c.cred = models.Credential{}
	c.mu.Unlock()
}

func (c *CredentialCache) acquire(ex *exchange) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	cred, err := c.exchangeToken(ctx)

	c.mu.Lock()
	if err == nil {
		c.cred = cred
		observability.TokenAcquisitionsTotal.WithLabelValues("success").Inc()
	} else {
		observability.TokenAcquisitionsTotal.WithLabelValues("error").Inc()
	}
	c.inflight = nil
	c.mu.Unlock()

	ex.cred = cred
	ex.err = err
	close(ex.done)
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (c *CredentialCache) exchangeToken(ctx context.Context) (models.Credential, error) {
	form := url.Values{}
	form.Set("grant_type", "public")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return models.Credential{}, fmt.Errorf("%w: build token request: %v", ErrAuthentication, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	issuedAt := c.now()
	resp, err := c.client.Do(req)
	if err != nil {
		return models.Credential{}, fmt.Errorf("%w: token exchange: %v", ErrAuthentication, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return models.Credential{}, fmt.Errorf("%w: token exchange HTTP %d", ErrAuthentication, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.Credential{}, fmt.Errorf("%w: read token response: %v", ErrAuthentication, err)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return models.Credential{}, fmt.Errorf("%w: parse token response: %v", ErrAuthentication, err)
	}
	if tr.AccessToken == "" || tr.ExpiresIn <= 0 {
		return models.Credential{}, fmt.Errorf("%w: token response missing access_token or expires_in", ErrAuthentication)
	}

	lifetime := time.Duration(tr.ExpiresIn) * time.Second
	if lifetime > expirySkew {
		lifetime -= expirySkew
	}
	return models.Credential{
		Token:     tr.AccessToken,
		ExpiresAt: issuedAt.Add(lifetime),
	}, nil
}
