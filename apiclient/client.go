// Package apiclient is the single path between the portal UI and the
// backend. Every outbound call gets the bearer credential attached, a 401 is
// recovered exactly once through a shared token renewal, and unrecoverable
// authorization failures terminate the session instead of looping.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/manleysolutions/true911-portal/credentials"
	errs "github.com/manleysolutions/true911-portal/internal/errors"
)

const (
	contentTypeJSON  = "application/json"
	maxResponseBytes = 256 * 1024
	defaultTimeout   = 20 * time.Second
)

// Client wraps every call to the portal backend. It owns no navigation and
// no UI state; session terminations are surfaced through the error return
// and the registered session-ended hooks so the lifecycle controller can
// react.
type Client struct {
	baseURL    string
	httpClient *http.Client
	store      credentials.Store
	refresher  *Refresher
	log        zerolog.Logger

	hookMu sync.Mutex
	ended  []func()
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client (primarily for tests
// and custom transports).
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.httpClient = h
	}
}

// WithLogger sets the client's logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

// New creates a Client for the backend at baseURL, reading and writing
// credentials through store.
func New(baseURL string, store credentials.Store, options ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("[New] baseURL is required")
	}
	if store == nil {
		return nil, errors.New("[New] credential store is required")
	}

	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		store:      store,
		log:        zerolog.Nop(),
	}
	for _, opt := range options {
		opt(c)
	}
	c.refresher = newRefresher(c.baseURL+"/auth/refresh", store, c.httpClient, c.log)
	return c, nil
}

// Refresher exposes the single-flight renewal coordinator.
func (c *Client) Refresher() *Refresher {
	return c.refresher
}

// OnSessionEnded registers fn to run whenever the client terminates the
// session (renewal failed or a retried request was rejected again). Hooks
// must not block.
func (c *Client) OnSessionEnded(fn func()) {
	c.hookMu.Lock()
	defer c.hookMu.Unlock()
	c.ended = append(c.ended, fn)
}

// CallJSON issues method path with an optional JSON body and decodes the
// JSON response into out (which may be nil to discard it).
func (c *Client) CallJSON(ctx context.Context, method, path string, body any, out any) error {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return errs.Wrapf(err, "encode request body")
		}
		payload = b
	}
	return c.call(ctx, method, path, payload, contentTypeJSON, out)
}

// CallRaw issues method path with a pre-encoded body and explicit content
// type. Binary and multipart uploads go through here so the pipeline never
// forces a JSON content type onto them.
func (c *Client) CallRaw(ctx context.Context, method, path string, body []byte, contentType string, out any) error {
	return c.call(ctx, method, path, body, contentType, out)
}

// call drives the renewal-and-retry-once contract: at most two network
// attempts per logical call, renewal only on 401, termination on anything
// the renewal cannot fix.
func (c *Client) call(ctx context.Context, method, path string, body []byte, contentType string, out any) error {
	requestID := uuid.NewString()
	accessToken := c.store.Get().AccessToken

	status, respBody, err := c.attempt(ctx, method, path, body, contentType, accessToken, requestID)
	if err != nil {
		return err
	}

	// Renewal only applies when a bearer token was presented and rejected.
	// A 401 on an unauthenticated request (bad login credentials, say) is a
	// plain request failure and falls through to the structured error below.
	if status == http.StatusUnauthorized && accessToken != "" {
		if c.store.Get().RefreshToken == "" {
			c.terminate(requestID, "unauthorized with no refresh token")
			return ErrSessionExpired
		}

		token, err := c.refresher.Refresh(ctx)
		if err != nil {
			// A caller cancelling its own context while attached to a pending
			// renewal is a plain call failure; only a failed renewal ends the
			// session.
			if errors.Is(err, ErrSessionExpired) {
				c.terminate(requestID, "token renewal failed")
			}
			return err
		}

		c.log.Debug().Str("request_id", requestID).Str("path", path).Msg("retrying after token renewal")
		status, respBody, err = c.attempt(ctx, method, path, body, contentType, token, requestID)
		if err != nil {
			return err
		}
		if status == http.StatusUnauthorized {
			c.terminate(requestID, "retry rejected after renewal")
			return ErrSessionExpired
		}
	}

	if status < 200 || status >= 300 {
		var parsed map[string]any
		_ = json.Unmarshal(respBody, &parsed)
		return newAPIError(status, parsed)
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return errs.Wrapf(err, "decode response")
	}
	return nil
}

// attempt is a single network round trip. Transport-level failures are
// returned as-is and never trigger a renewal.
func (c *Client) attempt(ctx context.Context, method, path string, body []byte, contentType, accessToken, requestID string) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, errs.Wrapf(err, "build request")
	}
	req.Header.Set("Accept", contentTypeJSON)
	req.Header.Set("X-Request-ID", requestID)
	if body != nil && contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, errs.Wrapf(err, "request %s %s failed", method, path)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, errs.Wrapf(err, "read response for %s %s", method, path)
	}
	return resp.StatusCode, respBody, nil
}

// terminate ends the session: credentials are cleared and the registered
// hooks fire so the lifecycle controller can transition and redirect. The
// client itself never navigates.
func (c *Client) terminate(requestID, reason string) {
	c.log.Warn().Str("request_id", requestID).Str("reason", reason).Msg("terminating session")
	c.store.Clear()

	c.hookMu.Lock()
	hooks := make([]func(), len(c.ended))
	copy(hooks, c.ended)
	c.hookMu.Unlock()

	for _, fn := range hooks {
		fn()
	}
}
