package apiclient_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/manleysolutions/true911-portal/apiclient"
	"github.com/manleysolutions/true911-portal/credentials"
)

// fixture wires a client against a fake backend, the way the dashboard wires
// it against the real one.
type fixture struct {
	store  *credentials.MemoryStore
	client *apiclient.Client
}

func newFixture(t *testing.T, handler http.Handler) *fixture {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	store := credentials.NewMemoryStore()
	client, err := apiclient.New(srv.URL, store)
	require.NoError(t, err)

	return &fixture{store: store, client: client}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// refreshHandler answers /auth/refresh with a fixed new pair after an
// optional delay, counting invocations.
func refreshHandler(calls *int32, delay time.Duration, access, refresh string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		time.Sleep(delay)
		writeJSON(w, http.StatusOK, map[string]string{
			"access_token":  access,
			"refresh_token": refresh,
		})
	}
}

func TestClient_AttachesBearerAndRequestID(t *testing.T) {
	var gotAuth, gotRequestID, gotContentType string

	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotRequestID = r.Header.Get("X-Request-ID")
		gotContentType = r.Header.Get("Content-Type")
		writeJSON(w, http.StatusOK, map[string]string{"ok": "yes"})
	}))
	f.store.Set("access-1", "refresh-1")

	var out map[string]string
	err := f.client.CallJSON(context.Background(), "POST", "/sites", map[string]string{"site_id": "S-1"}, &out)
	require.NoError(t, err)

	require.Equal(t, "Bearer access-1", gotAuth)
	require.NotEmpty(t, gotRequestID)
	require.Equal(t, "application/json", gotContentType)
	require.Equal(t, "yes", out["ok"])
}

func TestClient_NoBearerWhenStoreEmpty(t *testing.T) {
	var gotAuth string
	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		writeJSON(w, http.StatusOK, map[string]string{})
	}))

	require.NoError(t, f.client.CallJSON(context.Background(), "GET", "/auth/login", nil, nil))
	require.Empty(t, gotAuth)
}

func TestClient_RawBodyKeepsContentType(t *testing.T) {
	var gotContentType string
	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		writeJSON(w, http.StatusOK, map[string]string{})
	}))

	err := f.client.CallRaw(context.Background(), "POST", "/upload",
		[]byte("--x\r\ncontent\r\n--x--"), "multipart/form-data; boundary=x", nil)
	require.NoError(t, err)
	require.Equal(t, "multipart/form-data; boundary=x", gotContentType)
}

func TestClient_SingleFlightRenewal(t *testing.T) {
	const (
		staleToken = "stale"
		freshToken = "fresh"
		callers    = 5
	)
	var refreshCalls int32

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/refresh", refreshHandler(&refreshCalls, 50*time.Millisecond, freshToken, "refresh-2"))
	mux.HandleFunc("/sites", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+freshToken {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "token expired"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"ok": "yes"})
	})

	f := newFixture(t, mux)
	f.store.Set(staleToken, "refresh-1")

	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = f.client.CallJSON(context.Background(), "GET", "/sites", nil, nil)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "caller %d", i)
	}
	require.Equal(t, int32(1), atomic.LoadInt32(&refreshCalls),
		"concurrent 401s must collapse into one renewal")

	pair := f.store.Get()
	require.Equal(t, freshToken, pair.AccessToken)
	require.Equal(t, "refresh-2", pair.RefreshToken)
	require.True(t, f.client.Refresher().Idle())
}

func TestClient_NeverRetriesTwice(t *testing.T) {
	var protectedAttempts, refreshCalls int32
	var hookFired int32

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/refresh", refreshHandler(&refreshCalls, 0, "fresh", "refresh-2"))
	mux.HandleFunc("/sites", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&protectedAttempts, 1)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "nope"})
	})

	f := newFixture(t, mux)
	f.store.Set("stale", "refresh-1")
	f.client.OnSessionEnded(func() { atomic.AddInt32(&hookFired, 1) })

	err := f.client.CallJSON(context.Background(), "GET", "/sites", nil, nil)
	require.ErrorIs(t, err, apiclient.ErrSessionExpired)

	require.Equal(t, int32(2), atomic.LoadInt32(&protectedAttempts),
		"exactly the original attempt and one retry, never a third")
	require.Equal(t, int32(1), atomic.LoadInt32(&refreshCalls))
	require.True(t, f.store.Get().Empty())
	require.Equal(t, int32(1), atomic.LoadInt32(&hookFired))
}

func TestClient_UnauthorizedWithoutRefreshTokenTerminates(t *testing.T) {
	var protectedAttempts, refreshCalls int32
	hookFired := false

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/refresh", refreshHandler(&refreshCalls, 0, "fresh", ""))
	mux.HandleFunc("/auth/me", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&protectedAttempts, 1)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "invalid token"})
	})

	f := newFixture(t, mux)
	f.store.Set("stale-access", "") // stale cache state: access token only
	f.client.OnSessionEnded(func() { hookFired = true })

	err := f.client.CallJSON(context.Background(), "GET", "/auth/me", nil, nil)
	require.ErrorIs(t, err, apiclient.ErrSessionExpired)

	require.Equal(t, int32(1), atomic.LoadInt32(&protectedAttempts), "no retry without a refresh token")
	require.Zero(t, atomic.LoadInt32(&refreshCalls))
	require.True(t, f.store.Get().Empty())
	require.True(t, hookFired)
}

func TestClient_RenewalFailureTerminatesWithoutRetry(t *testing.T) {
	var protectedAttempts int32

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "refresh token revoked"})
	})
	mux.HandleFunc("/sites", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&protectedAttempts, 1)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "token expired"})
	})

	f := newFixture(t, mux)
	f.store.Set("stale", "refresh-1")

	err := f.client.CallJSON(context.Background(), "GET", "/sites", nil, nil)
	require.ErrorIs(t, err, apiclient.ErrSessionExpired)
	require.Equal(t, int32(1), atomic.LoadInt32(&protectedAttempts),
		"the original request must not be replayed when renewal fails")
	require.True(t, f.store.Get().Empty())
}

func TestClient_CancelledWaiterDoesNotTerminateSession(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var startOnce sync.Once
	var hookFired int32

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		startOnce.Do(func() { close(started) })
		<-release
		writeJSON(w, http.StatusOK, map[string]string{
			"access_token":  "fresh",
			"refresh_token": "refresh-2",
		})
	})
	mux.HandleFunc("/sites", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer fresh" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "token expired"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"ok": "yes"})
	})

	f := newFixture(t, mux)
	f.store.Set("stale", "refresh-1")
	f.client.OnSessionEnded(func() { atomic.AddInt32(&hookFired, 1) })

	initiatorDone := make(chan error, 1)
	go func() {
		initiatorDone <- f.client.CallJSON(context.Background(), "GET", "/sites", nil, nil)
	}()
	<-started

	// A second caller attaches to the in-flight renewal and then gives up on
	// its own deadline. That is its failure alone, not a session expiry.
	waiterCtx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	waiterErr := f.client.CallJSON(waiterCtx, "GET", "/sites", nil, nil)
	require.ErrorIs(t, waiterErr, context.DeadlineExceeded)
	require.NotErrorIs(t, waiterErr, apiclient.ErrSessionExpired)
	require.Zero(t, atomic.LoadInt32(&hookFired))
	require.Equal(t, "refresh-1", f.store.Get().RefreshToken,
		"a waiter's cancellation must not clear the credentials")

	close(release)
	require.NoError(t, <-initiatorDone)

	pair := f.store.Get()
	require.Equal(t, "fresh", pair.AccessToken)
	require.Equal(t, "refresh-2", pair.RefreshToken)
	require.Zero(t, atomic.LoadInt32(&hookFired))
}

func TestClient_UnauthenticatedUnauthorizedIsStructuredError(t *testing.T) {
	// Bad login credentials come back as 401 on a request that carried no
	// bearer token. That is a request failure to show the user, not a
	// session expiry.
	hookFired := false
	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Incorrect email or password"})
	}))
	f.client.OnSessionEnded(func() { hookFired = true })

	err := f.client.CallJSON(context.Background(), "POST", "/auth/login",
		map[string]string{"email": "x@x.com", "password": "bad"}, nil)

	var apiErr *apiclient.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusUnauthorized, apiErr.Status)
	require.Equal(t, "Incorrect email or password", apiErr.Detail)
	require.False(t, hookFired)
}

func TestClient_ValidationErrorCarriesStatusAndBody(t *testing.T) {
	var refreshCalls int32

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/refresh", refreshHandler(&refreshCalls, 0, "fresh", ""))
	mux.HandleFunc("/actions/update-e911", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"detail": "zip must be 5 digits",
		})
	})

	f := newFixture(t, mux)
	f.store.Set("access-1", "refresh-1")

	err := f.client.CallJSON(context.Background(), "POST", "/actions/update-e911", map[string]string{}, nil)

	var apiErr *apiclient.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusUnprocessableEntity, apiErr.Status)
	require.Equal(t, "zip must be 5 digits", apiErr.Detail)
	require.True(t, apiErr.IsValidation())
	require.False(t, apiErr.IsServer())
	require.Zero(t, atomic.LoadInt32(&refreshCalls), "4xx other than 401 never triggers renewal")
	require.False(t, f.store.Get().Empty(), "credentials survive validation errors")
}

func TestClient_ServerErrorNeverTriggersRenewal(t *testing.T) {
	var refreshCalls int32

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/refresh", refreshHandler(&refreshCalls, 0, "fresh", ""))
	mux.HandleFunc("/sites", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "database unavailable"})
	})

	f := newFixture(t, mux)
	f.store.Set("access-1", "refresh-1")

	err := f.client.CallJSON(context.Background(), "GET", "/sites", nil, nil)

	var apiErr *apiclient.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusInternalServerError, apiErr.Status)
	require.True(t, apiErr.IsServer())
	require.Zero(t, atomic.LoadInt32(&refreshCalls))
	require.False(t, f.store.Get().Empty(), "5xx is not an authorization problem")
}

func TestClient_TransportErrorSurfacesWithoutRenewal(t *testing.T) {
	store := credentials.NewMemoryStore()
	store.Set("access-1", "refresh-1")

	client, err := apiclient.New("http://127.0.0.1:1", store) // nothing listens here
	require.NoError(t, err)

	callErr := client.CallJSON(context.Background(), "GET", "/sites", nil, nil)
	require.Error(t, callErr)
	require.NotErrorIs(t, callErr, apiclient.ErrSessionExpired)
	require.False(t, store.Get().Empty(), "transient network failure must not clear credentials")
}
