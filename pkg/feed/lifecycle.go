package feed

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	defaultRetryDelay     = 5 * time.Second
	defaultReconnectDelay = 500 * time.Millisecond
)

// RetryPolicy yields the delay before retry number attempt (1-based).
type RetryPolicy interface {
	Delay(attempt int) time.Duration
}

// ConstantDelay retries after the same fixed delay forever.
type ConstantDelay time.Duration

func (d ConstantDelay) Delay(int) time.Duration {
	return time.Duration(d)
}

// ExponentialBackoff doubles the delay per attempt up to Max. It can be
// substituted for the default policy without touching the manager
// contract.
type ExponentialBackoff struct {
	Initial time.Duration
	Max     time.Duration
}

func (b ExponentialBackoff) Delay(attempt int) time.Duration {
	d := b.Initial
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= b.Max {
			return b.Max
		}
	}
	if d > b.Max {
		return b.Max
	}
	return d
}

// ManagerConfig carries the collaborators of a lifecycle manager.
type ManagerConfig struct {
	Dial Dialer

	// Policy decides the retry delay. Defaults to a constant 5s.
	Policy RetryPolicy

	// ReconnectDelay is the pause between an explicit teardown and the
	// fresh connect. Defaults to 500ms.
	ReconnectDelay time.Duration

	// OnSession is invoked with every newly established session so the
	// router can (re)subscribe.
	OnSession func(*Session)
}

// Manager owns the single live transport session: it establishes the
// connection, detects failure and retries without limit. Transport
// failures are never fatal, the client stays eventually reachable.
type Manager struct {
	mu             sync.RWMutex
	dial           Dialer
	policy         RetryPolicy
	reconnectDelay time.Duration
	onSession      func(*Session)

	status   SessionStatus
	sess     *Session
	epoch    int64
	attempts int
	closed   bool
}

// NewManager creates a lifecycle manager. Connect must be called to
// establish the first session.
func NewManager(cfg ManagerConfig) *Manager {
	m := &Manager{
		dial:           cfg.Dial,
		policy:         cfg.Policy,
		reconnectDelay: cfg.ReconnectDelay,
		onSession:      cfg.OnSession,
		status:         StatusDisconnected,
	}
	if m.policy == nil {
		m.policy = ConstantDelay(defaultRetryDelay)
	}
	if m.reconnectDelay <= 0 {
		m.reconnectDelay = defaultReconnectDelay
	}
	return m
}

// Status returns the current connectivity state. It is a plain readable
// value so any consumer can render it without correlating events.
func (m *Manager) Status() SessionStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// Session returns the current session, or nil while disconnected.
func (m *Manager) Session() *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sess
}

// Connect attempts to establish one session. On failure a retry is
// scheduled according to the retry policy; on success the OnSession
// callback fires with the new session.
func (m *Manager) Connect() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.epoch++
	epoch := m.epoch
	m.status = StatusConnecting
	m.mu.Unlock()

	conn, err := m.dial(func(cause error) {
		m.connectionLost(epoch, cause)
	})
	if err != nil {
		m.scheduleRetry(err)
		return
	}

	m.mu.Lock()
	if m.closed || epoch != m.epoch {
		// Superseded while dialing, e.g. by an explicit reconnect.
		m.mu.Unlock()
		conn.Close()
		return
	}
	m.sess = &Session{epoch: epoch, conn: conn}
	m.status = StatusConnected
	m.attempts = 0
	sess := m.sess
	onSession := m.onSession
	m.mu.Unlock()

	log.Infof("feed: session %d established", epoch)
	if onSession != nil {
		onSession(sess)
	}
}

// Reconnect tears down the current session, if any, and schedules a
// fresh connect after a short delay. Close failures are ignored.
func (m *Manager) Reconnect() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	sess := m.sess
	m.sess = nil
	// Bump the epoch right away: late events of the old session must
	// not be mistaken for current ones.
	m.epoch++
	m.status = StatusDisconnected
	delay := m.reconnectDelay
	m.mu.Unlock()

	if sess != nil {
		sess.conn.Close()
	}
	log.Info("feed: reconnect requested")
	time.AfterFunc(delay, m.Connect)
}

// Close shuts the manager down for good. No further sessions are
// established.
func (m *Manager) Close() {
	m.mu.Lock()
	sess := m.sess
	m.sess = nil
	m.closed = true
	m.status = StatusDisconnected
	m.mu.Unlock()

	if sess != nil {
		sess.conn.Close()
	}
}

func (m *Manager) connectionLost(epoch int64, cause error) {
	m.mu.Lock()
	if m.closed || epoch != m.epoch {
		m.mu.Unlock()
		return
	}
	m.sess = nil
	m.status = StatusDisconnected
	m.mu.Unlock()

	if cause != nil {
		log.Warnf("feed: session %d lost: %s", epoch, cause)
	} else {
		log.Warnf("feed: session %d lost", epoch)
	}
	m.scheduleRetry(cause)
}

func (m *Manager) scheduleRetry(cause error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.attempts++
	m.status = StatusFailedRetrying
	delay := m.policy.Delay(m.attempts)
	attempt := m.attempts
	m.mu.Unlock()

	if cause != nil {
		log.Warnf("feed: connect attempt %d failed, retrying in %s: %s", attempt, delay, cause)
	} else {
		log.Warnf("feed: connect attempt %d failed, retrying in %s", attempt, delay)
	}
	time.AfterFunc(delay, m.Connect)
}
