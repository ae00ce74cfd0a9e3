package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"

	"github.com/rs/zerolog"

	"github.com/manleysolutions/true911-portal/credentials"
	errs "github.com/manleysolutions/true911-portal/internal/errors"
)

// refreshCall is one in-flight renewal. Waiters block on done and then all
// observe the same token/err outcome.
type refreshCall struct {
	done  chan struct{}
	token string
	err   error
}

// Refresher collapses concurrent token renewals into a single network
// operation. The pending slot is the explicit idle|pending state container:
// nil means idle, non-nil means a renewal is in flight and later callers
// attach to it instead of starting their own. Once the call settles the slot
// resets to nil so the next 401 can trigger a fresh renewal.
type Refresher struct {
	mu      sync.Mutex
	pending *refreshCall

	endpoint   string
	store      credentials.Store
	httpClient *http.Client
	log        zerolog.Logger
}

func newRefresher(endpoint string, store credentials.Store, httpClient *http.Client, log zerolog.Logger) *Refresher {
	return &Refresher{
		endpoint:   endpoint,
		store:      store,
		httpClient: httpClient,
		log:        log,
	}
}

// Idle reports whether no renewal is currently in flight.
func (r *Refresher) Idle() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending == nil
}

// Refresh returns a fresh access token, starting a renewal if none is in
// flight or joining the pending one otherwise. On success the new pair is
// already written to the credential store; on failure the store has been
// cleared and the error wraps ErrSessionExpired.
func (r *Refresher) Refresh(ctx context.Context) (string, error) {
	r.mu.Lock()
	if call := r.pending; call != nil {
		r.mu.Unlock()
		select {
		case <-call.done:
			return call.token, call.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	call := &refreshCall{done: make(chan struct{})}
	r.pending = call
	r.mu.Unlock()

	call.token, call.err = r.renew(ctx)
	close(call.done)

	r.mu.Lock()
	r.pending = nil
	r.mu.Unlock()

	return call.token, call.err
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type refreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// renew performs the actual renewal round trip.
func (r *Refresher) renew(ctx context.Context) (string, error) {
	prior := r.store.Get()
	if prior.RefreshToken == "" {
		return "", errs.Wrapf(ErrSessionExpired, "no refresh token")
	}

	body, err := json.Marshal(refreshRequest{RefreshToken: prior.RefreshToken})
	if err != nil {
		return "", errs.Wrapf(err, "encode refresh request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", errs.Wrapf(err, "build refresh request")
	}
	req.Header.Set("Content-Type", contentTypeJSON)
	req.Header.Set("Accept", contentTypeJSON)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		r.store.Clear()
		return "", errs.Wrapf(ErrSessionExpired, "token renewal failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		r.store.Clear()
		r.log.Warn().Int("status", resp.StatusCode).Msg("refresh endpoint rejected renewal")
		return "", errs.Wrapf(ErrSessionExpired, "token renewal rejected (%d)", resp.StatusCode)
	}

	var tok refreshResponse
	if err := json.Unmarshal(respBody, &tok); err != nil || tok.AccessToken == "" {
		r.store.Clear()
		return "", errs.Wrapf(ErrSessionExpired, "invalid refresh response")
	}

	// Rotation is optional server-side; keep the prior refresh token when the
	// response omits one.
	newRefresh := tok.RefreshToken
	if newRefresh == "" {
		newRefresh = prior.RefreshToken
	}

	// A logout while this renewal was in flight must not resurrect the
	// session: only apply the result if the pair we renewed is still the
	// current one.
	if current := r.store.Get(); current.RefreshToken != prior.RefreshToken {
		r.log.Debug().Msg("discarding renewal result, credentials changed mid-flight")
		return "", errs.Wrapf(ErrSessionExpired, "session ended during renewal")
	}

	r.store.Set(tok.AccessToken, newRefresh)
	r.log.Debug().Msg("access token renewed")
	return tok.AccessToken, nil
}
