package feed

import (
	nats "github.com/nats-io/nats.go"
)

// Subscription is an active topic subscription. It is valid only as
// long as the connection it was created on.
type Subscription interface {
	Unsubscribe() error
}

// Conn is one live transport connection.
type Conn interface {
	Subscribe(subject string, handler func(data []byte)) (Subscription, error)
	Close()
}

// Dialer establishes a transport connection. The onClosed callback is
// invoked exactly once when an established connection is lost; the
// lifecycle manager uses it to schedule the retry.
type Dialer func(onClosed func(cause error)) (Conn, error)

// NATSDialer returns a Dialer backed by a NATS connection. Automatic
// reconnection inside the NATS client is disabled: the lifecycle
// manager owns retry so that session supersession stays observable.
func NATSDialer(url string) Dialer {
	return func(onClosed func(cause error)) (Conn, error) {
		nc, err := nats.Connect(url,
			nats.NoReconnect(),
			nats.ClosedHandler(func(c *nats.Conn) {
				onClosed(c.LastError())
			}),
		)
		if err != nil {
			return nil, err
		}
		return &natsConn{nc: nc}, nil
	}
}

type natsConn struct {
	nc *nats.Conn
}

func (c *natsConn) Subscribe(subject string, handler func(data []byte)) (Subscription, error) {
	sub, err := c.nc.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func (c *natsConn) Close() {
	c.nc.Close()
}
