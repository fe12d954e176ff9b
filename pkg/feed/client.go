// Package feed implements the viewer side of the notification system:
// connection lifecycle management, role-based topic subscriptions and
// the dual-path (push + poll) reconciliation of notification state
// against the persisted store.
package feed

import (
	"context"
	"time"

	"github.com/nsyszr/notify/pkg/model"
	log "github.com/sirupsen/logrus"
)

// Config carries everything needed to run a feed client.
type Config struct {
	// NATSURL is the transport server, e.g. nats://localhost:4222.
	NATSURL string

	// StoreURL is the base URL of the store REST API, e.g.
	// http://localhost:8080/api/v1.
	StoreURL string

	// Identity is the viewer identity, fixed for the client lifetime.
	Identity Identity

	// Policy overrides the connect retry policy (default: constant 5s).
	Policy RetryPolicy

	// ReconnectDelay overrides the pause before an explicit reconnect.
	ReconnectDelay time.Duration

	// RequestTimeout bounds store round trips (default 10s).
	RequestTimeout time.Duration

	// DebounceWindow overrides the reconciliation debounce (default 500ms).
	DebounceWindow time.Duration

	// OnChange receives a snapshot after every state change. This is
	// the projection hook; it must not block for long.
	OnChange func(State)
}

// Client wires lifecycle manager, router, engine and gateway into one
// runnable viewer.
type Client struct {
	identity Identity
	gateway  *Gateway
	engine   *Engine
	router   *Router
	manager  *Manager
}

// New creates a feed client. Run starts it.
func New(cfg Config) *Client {
	c := &Client{identity: cfg.Identity}

	c.gateway = NewGateway(cfg.StoreURL, cfg.RequestTimeout)
	c.engine = NewEngine(EngineConfig{
		Identity:       cfg.Identity,
		Poller:         c.gateway,
		DebounceWindow: cfg.DebounceWindow,
		OnChange:       cfg.OnChange,
	})
	c.router = NewRouter(cfg.Identity, c.engine)
	c.manager = NewManager(ManagerConfig{
		Dial:           NATSDialer(cfg.NATSURL),
		Policy:         cfg.Policy,
		ReconnectDelay: cfg.ReconnectDelay,
		OnSession: func(sess *Session) {
			if err := c.router.Route(sess); err != nil {
				// Treat a failed subscription setup like a transport
				// failure: tear down and retry.
				log.Error("feed: failed to establish subscriptions: ", err)
				c.manager.Reconnect()
			}
		},
	})

	return c
}

// Run connects and processes events until the context is cancelled.
func (c *Client) Run(ctx context.Context) {
	go c.engine.Run(ctx)
	c.manager.Connect()
	<-ctx.Done()
	c.manager.Close()
}

// Status returns the current connectivity state for rendering.
func (c *Client) Status() SessionStatus {
	return c.manager.Status()
}

// Reconnect tears down the session and dials fresh.
func (c *Client) Reconnect() {
	c.manager.Reconnect()
}

// Snapshot returns the current reconciled state.
func (c *Client) Snapshot() State {
	return c.engine.Snapshot()
}

// Send creates a notification through the store. On success the admin
// view schedules a reconciliation; on failure local state is untouched.
func (c *Client) Send(ctx context.Context, message string, priority model.Priority, username string) (*model.Notification, error) {
	m, err := c.gateway.Send(ctx, message, priority, username)
	if err != nil {
		return nil, err
	}
	if c.identity.Role() == RoleAdministrator {
		c.engine.RequestReconciliation()
	}
	return m, nil
}

// Delete removes a notification from the store. Only after the store
// confirms does the engine drop it locally and issue the superseding
// poll.
func (c *Client) Delete(ctx context.Context, id int64) error {
	if err := c.gateway.Delete(ctx, id); err != nil {
		return err
	}
	c.engine.DeletionConfirmed(id)
	return nil
}

// Users lists the user roster.
func (c *Client) Users(ctx context.Context) ([]model.User, error) {
	return c.gateway.FetchUsers(ctx)
}

// CreateUser registers a username on the roster.
func (c *Client) CreateUser(ctx context.Context, username string, notificationsEnabled bool) (*model.User, error) {
	return c.gateway.CreateUser(ctx, username, notificationsEnabled)
}
