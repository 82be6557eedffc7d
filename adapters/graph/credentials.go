package graph

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/sync/singleflight"

	"sheetrelay/internal/errors"
)

const (
	defaultTokenLifetime = time.Hour
	tokenExpirySkew      = time.Minute
)

// CredentialOptions configures the client-credentials exchange
type CredentialOptions struct {
	AuthorityURL string
	TenantID     string
	ClientID     string
	ClientSecret string
	Scope        string
	Timeout      time.Duration
	HTTPClient   *http.Client
}

// CredentialProvider caches an app-only bearer token for the Graph API.
// Refreshes are lazy: a token is fetched when none is cached or the cached
// one has expired, and concurrent callers share a single exchange.
type CredentialProvider struct {
	tokenURL     string
	clientID     string
	clientSecret string
	scope        string
	timeout      time.Duration
	httpClient   *http.Client
	now          func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time

	group singleflight.Group
}

// NewCredentialProvider creates a provider for the tenant's token endpoint
func NewCredentialProvider(opts CredentialOptions) *CredentialProvider {
	authority := strings.TrimRight(opts.AuthorityURL, "/")
	if authority == "" {
		authority = "https://login.microsoftonline.com"
	}
	scope := opts.Scope
	if scope == "" {
		scope = "https://graph.microsoft.com/.default"
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &CredentialProvider{
		tokenURL:     fmt.Sprintf("%s/%s/oauth2/v2.0/token", authority, url.PathEscape(opts.TenantID)),
		clientID:     opts.ClientID,
		clientSecret: opts.ClientSecret,
		scope:        scope,
		timeout:      timeout,
		httpClient:   httpClient,
		now:          time.Now,
	}
}

// Token returns the cached token or performs a client-credentials exchange
func (p *CredentialProvider) Token(ctx context.Context) (string, error) {
	if token, ok := p.cached(); ok {
		return token, nil
	}

	v, err, _ := p.group.Do("token", func() (interface{}, error) {
		if token, ok := p.cached(); ok {
			return token, nil
		}
		token, lifetime, err := p.exchange(ctx)
		if err != nil {
			return "", err
		}
		p.mu.Lock()
		p.token = token
		p.expiresAt = p.now().Add(lifetime)
		p.mu.Unlock()
		return token, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate clears the cached token; the next Token call refreshes it
func (p *CredentialProvider) Invalidate() {
	p.mu.Lock()
	p.token = ""
	p.expiresAt = time.Time{}
	p.mu.Unlock()
}

func (p *CredentialProvider) cached() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.token != "" && p.now().Before(p.expiresAt) {
		return p.token, true
	}
	return "", false
}

func (p *CredentialProvider) exchange(ctx context.Context) (string, time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	form := url.Values{}
	form.Set("client_id", p.clientID)
	form.Set("client_secret", p.clientSecret)
	form.Set("grant_type", "client_credentials")
	form.Set("scope", p.scope)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, errors.AuthError("failed to build token request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", 0, errors.AuthError("token request failed", err)
	}
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return "", 0, errors.AuthError("failed to read token response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", 0, errors.AuthError(
			fmt.Sprintf("token endpoint returned %d", resp.StatusCode),
			fmt.Errorf("%s: %s",
				gjson.GetBytes(body, "error").String(),
				gjson.GetBytes(body, "error_description").String()),
		)
	}

	token := gjson.GetBytes(body, "access_token").String()
	if token == "" {
		return "", 0, errors.AuthError("token response has no access_token", nil)
	}

	lifetime := defaultTokenLifetime
	if expiresIn := gjson.GetBytes(body, "expires_in").Int(); expiresIn > 0 {
		lifetime = time.Duration(expiresIn) * time.Second
	}
	if lifetime > 2*tokenExpirySkew {
		lifetime -= tokenExpirySkew
	} else {
		lifetime /= 2
	}
	return token, lifetime, nil
}
