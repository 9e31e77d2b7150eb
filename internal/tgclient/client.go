package tgclient

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"github.com/hrygo/telecopilot/internal/apperr"
	"github.com/hrygo/telecopilot/internal/model"
)

// Recorder receives auth state transition events. *metrics.Exporter
// satisfies it.
type Recorder interface {
	RecordAuthTransition(state string)
}

// Client owns the single authenticated transport, the auth state
// machine, the chat object cache, and the event bus. Exactly one
// instance lives per process.
type Client struct {
	transport   Transport
	sessionPath string
	reconnect   func(ctx context.Context) (Transport, error)
	metrics     Recorder

	stateMu     sync.RWMutex
	state       model.AuthState
	currentUser *model.User
	loginToken  string
	passwordTok string

	// transportMu guards swapping the transport handle during reconnect.
	// Reads acquire it for use; reconnection acquires it to swap.
	transportMu sync.RWMutex

	bus   *eventBus
	cache *chatCache
}

// NewClientOption configures a Client at construction.
type NewClientOption func(*Client)

// WithSessionPath overrides the session file path. This implementation
// requires the real path up front rather than injecting it after
// construction.
func WithSessionPath(path string) NewClientOption {
	return func(c *Client) { c.sessionPath = path }
}

// WithMetrics wires an auth-transition recorder into the Client.
func WithMetrics(m Recorder) NewClientOption {
	return func(c *Client) { c.metrics = m }
}

// New constructs a Client in the WaitPhoneNumber state. reconnect builds
// a fresh Transport bound to the same credentials — used by the
// auto-reconnect wrapper.
func New(transport Transport, reconnect func(ctx context.Context) (Transport, error), opts ...NewClientOption) *Client {
	c := &Client{
		transport: transport,
		reconnect: reconnect,
		state:     model.WaitPhoneNumber{},
		bus:       newEventBus(),
		cache:     newChatCache(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Subscribe returns an event stream and an unsubscribe function.
func (c *Client) Subscribe() (<-chan Event, func()) {
	return c.bus.Subscribe()
}

// GetAuthState returns the current login state.
func (c *Client) GetAuthState() model.AuthState {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

// GetCurrentUser returns the authenticated user, if any.
func (c *Client) GetCurrentUser() (model.User, bool) {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	if c.currentUser == nil {
		return model.User{}, false
	}
	return *c.currentUser, true
}

func (c *Client) setState(s model.AuthState) {
	c.stateMu.Lock()
	c.state = s
	c.stateMu.Unlock()
	if c.metrics != nil {
		c.metrics.RecordAuthTransition(model.AuthStateName(s))
	}
	c.bus.Publish(Event{Kind: EventAuthStateChanged, AuthState: s})
}

// Connect establishes the transport connection. If IsAuthorized reports an
// existing session, it loads the current user and moves to Ready;
// otherwise the auth state is left unchanged.
func (c *Client) Connect(ctx context.Context) error {
	c.transportMu.RLock()
	defer c.transportMu.RUnlock()
	if err := c.transport.Connect(ctx); err != nil {
		return apperr.Connection(err)
	}
	authorized, err := c.transport.IsAuthorized(ctx)
	if err != nil {
		return apperr.Connection(err)
	}
	if authorized {
		me, err := c.transport.GetMe(ctx)
		if err != nil {
			return apperr.Connection(err)
		}
		c.stateMu.Lock()
		c.currentUser = &me
		c.stateMu.Unlock()
		c.setState(model.Ready{})
	}
	return nil
}

// withReconnect wraps a read-path operation with the auto-reconnect
// trigger: try once; on a transport-reset error reconnect and retry
// exactly once; further failure surfaces to the caller.
func withReconnect[T any](ctx context.Context, c *Client, op func(ctx context.Context) (T, error)) (T, error) {
	c.transportMu.RLock()
	result, err := op(ctx)
	c.transportMu.RUnlock()
	if err == nil || !apperr.IsTransportReset(err) {
		return result, err
	}

	if rerr := c.doReconnect(ctx); rerr != nil {
		var zero T
		return zero, rerr
	}

	c.transportMu.RLock()
	defer c.transportMu.RUnlock()
	return op(ctx)
}

// doReconnect loads the session, re-establishes the transport, verifies
// it's still authorized, saves the session, and clears the chat object
// cache.
func (c *Client) doReconnect(ctx context.Context) error {
	c.transportMu.Lock()
	defer c.transportMu.Unlock()

	slog.Warn("tgclient: transport reset detected, reconnecting")

	fresh, err := c.reconnect(ctx)
	if err != nil {
		return apperr.Connection(err)
	}
	if err := fresh.Connect(ctx); err != nil {
		return apperr.Connection(err)
	}
	authorized, err := fresh.IsAuthorized(ctx)
	if err != nil {
		return apperr.Connection(err)
	}
	if !authorized {
		return apperr.NotAuthorized()
	}

	c.transport = fresh
	c.cache.invalidate()
	if err := c.saveSession(); err != nil {
		return apperr.Session(err)
	}
	return nil
}

func (c *Client) saveSession() error {
	blob := c.transport.SessionBlob()
	if len(blob) == 0 {
		return nil
	}
	if c.sessionPath == "" {
		return nil
	}
	return os.WriteFile(c.sessionPath, blob, 0o600)
}

func removeSessionFile(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
