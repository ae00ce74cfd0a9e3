// Package session is the top-level lifecycle state machine the UI talks to.
// It bootstraps from stored credentials, exposes login/register/logout and
// the permission gate, and signals session end through a hook instead of
// driving navigation itself.
package session

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/rs/zerolog"

	"github.com/manleysolutions/true911-portal/apiclient"
	"github.com/manleysolutions/true911-portal/credentials"
	"github.com/manleysolutions/true911-portal/rbac"
)

// State is the current phase of the session lifecycle.
type State string

const (
	StateBootstrapping   State = "bootstrapping"
	StateUnauthenticated State = "unauthenticated"
	StateAuthenticated   State = "authenticated"
)

// User is the authenticated portal user as reported by the backend.
type User struct {
	ID       int       `json:"id"`
	Email    string    `json:"email"`
	Name     string    `json:"name"`
	Role     rbac.Role `json:"role"`
	TenantID string    `json:"tenant_id"`
}

type tokenGrant struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Controller is the session lifecycle state machine. All methods are safe
// for concurrent use. Once terminated (logout or expiry) the only way back
// to StateAuthenticated is a fresh Login or Register.
type Controller struct {
	api   *apiclient.Client
	store credentials.Store
	log   zerolog.Logger

	mu    sync.RWMutex
	state State
	user  *User
	ready bool

	hookMu sync.Mutex
	ended  []func()
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithLogger sets the controller's logger.
func WithLogger(log zerolog.Logger) ControllerOption {
	return func(c *Controller) {
		c.log = log
	}
}

// NewController builds a Controller in StateBootstrapping and wires it to
// the client's session-ended signal. Call Bootstrap before rendering
// anything protected.
func NewController(api *apiclient.Client, store credentials.Store, options ...ControllerOption) (*Controller, error) {
	if api == nil {
		return nil, errors.New("[NewController] api client is required")
	}
	if store == nil {
		return nil, errors.New("[NewController] credential store is required")
	}

	c := &Controller{
		api:   api,
		store: store,
		log:   zerolog.Nop(),
		state: StateBootstrapping,
	}
	for _, opt := range options {
		opt(c)
	}

	api.OnSessionEnded(c.handleTermination)
	return c, nil
}

// Bootstrap resolves the initial session state from stored credentials. With
// no stored access token it goes straight to unauthenticated without any
// network call; otherwise it asks the backend who the token belongs to, and
// any failure (including a failed silent renewal inside the pipeline) clears
// credentials and lands unauthenticated. Ready is true afterwards either way.
func (c *Controller) Bootstrap(ctx context.Context) State {
	if c.store.Get().Empty() {
		c.setUnauthenticated(false)
		return c.State()
	}

	user, err := c.whoAmI(ctx)
	if err != nil {
		c.log.Warn().Err(err).Msg("bootstrap identity check failed")
		c.store.Clear()
		c.setUnauthenticated(false)
		return c.State()
	}

	c.setAuthenticated(user)
	return c.State()
}

// Login authenticates with email and password. On success the returned token
// pair is stored and the user identity fetched; on any failure the stored
// credentials are left untouched and the error carries the backend's detail
// message.
func (c *Controller) Login(ctx context.Context, email, password string) (*User, error) {
	var grant tokenGrant
	err := c.api.CallJSON(ctx, http.MethodPost, "/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, &grant)
	if err != nil {
		return nil, err
	}

	return c.establish(ctx, grant)
}

// Register creates an account and signs it in, following the same
// credential-handling contract as Login.
func (c *Controller) Register(ctx context.Context, email, password, name string) (*User, error) {
	var grant tokenGrant
	err := c.api.CallJSON(ctx, http.MethodPost, "/auth/register", map[string]string{
		"email":    email,
		"password": password,
		"name":     name,
	}, &grant)
	if err != nil {
		return nil, err
	}

	return c.establish(ctx, grant)
}

// Logout clears credentials and returns to unauthenticated. Safe to call in
// any state, any number of times; the session-ended hooks fire so the UI can
// navigate to the sign-in route.
func (c *Controller) Logout() {
	c.store.Clear()

	c.mu.Lock()
	c.state = StateUnauthenticated
	c.user = nil
	c.ready = true
	c.mu.Unlock()

	c.log.Info().Msg("logged out")
	c.fireEnded()
}

// Can reports whether the current user may perform action. Unauthenticated
// sessions can do nothing.
func (c *Controller) Can(action rbac.Action) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state != StateAuthenticated || c.user == nil {
		return false
	}
	return rbac.Can(action, c.user.Role)
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Ready reports whether the initial bootstrap has settled. It is monotonic:
// once true it stays true for the life of the controller, so the UI never
// flickers back to a loading state.
func (c *Controller) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

// CurrentUser returns a copy of the authenticated user, or nil.
func (c *Controller) CurrentUser() *User {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.user == nil {
		return nil
	}
	u := *c.user
	return &u
}

// OnSessionEnded registers fn to run when the session terminates, either by
// explicit logout or by the pipeline escalating an unrecoverable
// authorization failure. This is where the UI hangs its redirect to the
// sign-in route.
func (c *Controller) OnSessionEnded(fn func()) {
	c.hookMu.Lock()
	defer c.hookMu.Unlock()
	c.ended = append(c.ended, fn)
}

// establish finishes a successful login/register: persist the pair, fetch
// the identity, transition to authenticated.
func (c *Controller) establish(ctx context.Context, grant tokenGrant) (*User, error) {
	c.store.Set(grant.AccessToken, grant.RefreshToken)

	user, err := c.whoAmI(ctx)
	if err != nil {
		return nil, err
	}

	c.setAuthenticated(user)
	c.log.Info().Str("email", user.Email).Str("role", string(user.Role)).Msg("session established")
	return c.CurrentUser(), nil
}

func (c *Controller) whoAmI(ctx context.Context) (*User, error) {
	var user User
	if err := c.api.CallJSON(ctx, http.MethodGet, "/auth/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Controller) setAuthenticated(user *User) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateAuthenticated
	c.user = user
	c.ready = true
}

func (c *Controller) setUnauthenticated(fireHooks bool) {
	c.mu.Lock()
	c.state = StateUnauthenticated
	c.user = nil
	c.ready = true
	c.mu.Unlock()

	if fireHooks {
		c.fireEnded()
	}
}

// handleTermination reacts to the pipeline ending the session mid-flight.
// Credentials are already cleared by the client; only an authenticated
// session transitions and notifies, so racing terminations stay idempotent.
func (c *Controller) handleTermination() {
	c.mu.Lock()
	wasAuthenticated := c.state == StateAuthenticated
	if wasAuthenticated {
		c.state = StateUnauthenticated
		c.user = nil
	}
	c.mu.Unlock()

	if wasAuthenticated {
		c.log.Warn().Msg("session expired")
		c.fireEnded()
	}
}

func (c *Controller) fireEnded() {
	c.hookMu.Lock()
	hooks := make([]func(), len(c.ended))
	copy(hooks, c.ended)
	c.hookMu.Unlock()

	for _, fn := range hooks {
		fn()
	}
}
