// Package graph is the Microsoft Graph adapter: app-only credentials, drive
// path resolution, resumable uploads, downloads and workbook table calls.
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"sheetrelay/internal"
	"sheetrelay/internal/errors"
	"sheetrelay/ports"
)

const (
	// DefaultBaseURL is the Graph v1.0 endpoint
	DefaultBaseURL = "https://graph.microsoft.com/v1.0"
	// DefaultChunkSize is a multiple of 320 KiB as required by upload sessions
	DefaultChunkSize int64 = 10 * 1024 * 1024

	defaultControlTimeout  = 30 * time.Second
	defaultTransferTimeout = 120 * time.Second
	defaultBaseBackoff     = time.Second
	defaultMaxBackoff      = 20 * time.Second
)

// Options configures a Client
type Options struct {
	BaseURL         string
	UserEmail       string
	ControlTimeout  time.Duration
	TransferTimeout time.Duration
	BaseBackoff     time.Duration
	MaxBackoff      time.Duration
	HTTPClient      *http.Client
	Logger          *internal.Logger
}

// Client talks to one user's drive. It implements ports.DriveDirectory,
// ports.FileUploader, ports.FileDownloader and ports.WorkbookAPI.
type Client struct {
	baseURL         string
	user            string
	tokens          ports.TokenSource
	httpClient      *http.Client
	controlTimeout  time.Duration
	transferTimeout time.Duration
	baseBackoff     time.Duration
	maxBackoff      time.Duration
	sleep           func(ctx context.Context, d time.Duration) error
	logger          *internal.Logger
}

// NewClient creates a Graph client authenticated by tokens
func NewClient(tokens ports.TokenSource, opts Options) *Client {
	c := &Client{
		baseURL:         strings.TrimRight(opts.BaseURL, "/"),
		user:            opts.UserEmail,
		tokens:          tokens,
		httpClient:      opts.HTTPClient,
		controlTimeout:  opts.ControlTimeout,
		transferTimeout: opts.TransferTimeout,
		baseBackoff:     opts.BaseBackoff,
		maxBackoff:      opts.MaxBackoff,
		sleep:           waitWithContext,
		logger:          opts.Logger,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	if c.controlTimeout <= 0 {
		c.controlTimeout = defaultControlTimeout
	}
	if c.transferTimeout <= 0 {
		c.transferTimeout = defaultTransferTimeout
	}
	if c.baseBackoff <= 0 {
		c.baseBackoff = defaultBaseBackoff
	}
	if c.maxBackoff <= 0 {
		c.maxBackoff = defaultMaxBackoff
	}
	if c.maxBackoff < c.baseBackoff {
		c.maxBackoff = c.baseBackoff
	}
	if c.logger == nil {
		c.logger = internal.DefaultLogger
	}
	c.logger = c.logger.With("graph")
	return c
}

type request struct {
	method      string
	url         string
	body        []byte
	contentType string
	headers     map[string]string
	anonymous   bool
	timeout     time.Duration
}

type response struct {
	status int
	header http.Header
	body   []byte
}

func (r *response) ok() bool {
	return r.status >= 200 && r.status < 300
}

// send performs r, refreshing the credential and retrying once when an
// authorized call comes back 401.
func (c *Client) send(ctx context.Context, r request) (*response, error) {
	resp, err := c.sendOnce(ctx, r)
	if err != nil {
		return nil, err
	}
	if resp.status == http.StatusUnauthorized && !r.anonymous {
		c.logger.Debug("401 from %s %s, refreshing credential", r.method, redact(r.url))
		c.tokens.Invalidate()
		return c.sendOnce(ctx, r)
	}
	return resp, nil
}

func (c *Client) sendOnce(ctx context.Context, r request) (*response, error) {
	timeout := r.timeout
	if timeout <= 0 {
		timeout = c.controlTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if r.body != nil {
		body = bytes.NewReader(r.body)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, r.url, body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build graph request")
	}
	requestID := uuid.NewString()
	req.Header.Set("client-request-id", requestID)
	req.Header.Set("Accept", "application/json")
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}
	if !r.anonymous {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.ExternalServiceError("graph", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.ExternalServiceError("graph", fmt.Errorf("read response body: %w", err))
	}
	c.logger.Debug("%s %s -> %d in %s (request %s)", r.method, redact(r.url), resp.StatusCode, time.Since(start).Round(time.Millisecond), requestID)

	return &response{status: resp.StatusCode, header: resp.Header, body: payload}, nil
}

// doJSON sends a JSON request and returns the response when its status is
// one of accept (any 2xx when accept is empty).
func (c *Client) doJSON(ctx context.Context, method, target string, payload interface{}, accept ...int) (*response, error) {
	r := request{method: method, url: target}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, errors.Wrap(err, "failed to encode graph request")
		}
		r.body = data
		r.contentType = "application/json"
	}
	resp, err := c.send(ctx, r)
	if err != nil {
		return nil, err
	}
	if !accepted(resp, accept) {
		return nil, newStatusError(method, redact(target), resp)
	}
	return resp, nil
}

func accepted(resp *response, accept []int) bool {
	if len(accept) == 0 {
		return resp.ok()
	}
	for _, status := range accept {
		if resp.status == status {
			return true
		}
	}
	return false
}

func (c *Client) userURL() string {
	return c.baseURL + "/users/" + url.PathEscape(c.user)
}

// itemURL addresses a drive item by path relative to the drive root
func (c *Client) itemURL(path string) string {
	path = strings.Trim(path, "/")
	if path == "" {
		return c.userURL() + "/drive/root"
	}
	return c.userURL() + "/drive/root:/" + escapePath(path) + ":"
}

func childrenURL(itemURL string) string {
	return itemURL + "/children"
}

func escapePath(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

func joinPath(folder, name string) string {
	folder = strings.Trim(folder, "/")
	name = strings.Trim(name, "/")
	switch {
	case folder == "":
		return name
	case name == "":
		return folder
	default:
		return folder + "/" + name
	}
}

// redact strips the query string, which carries the upload session token
func redact(raw string) string {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		return raw[:i]
	}
	return raw
}

// backoff doubles from the base delay per attempt, capped at the maximum.
// A server-provided Retry-After wins when present.
func (c *Client) backoff(attempt int, retryAfter time.Duration) time.Duration {
	if retryAfter > 0 {
		if retryAfter > c.maxBackoff {
			return c.maxBackoff
		}
		return retryAfter
	}
	if attempt < 1 {
		attempt = 1
	}
	delay := c.baseBackoff
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.maxBackoff {
			return c.maxBackoff
		}
	}
	return delay
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var (
	_ ports.TokenSource    = (*CredentialProvider)(nil)
	_ ports.DriveDirectory = (*Client)(nil)
	_ ports.FileUploader   = (*Client)(nil)
	_ ports.FileDownloader = (*Client)(nil)
	_ ports.WorkbookAPI    = (*Client)(nil)
)
