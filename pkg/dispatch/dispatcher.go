package dispatch

import (
	"encoding/json"

	nats "github.com/nats-io/nats.go"
	"github.com/nsyszr/notify/pkg/model"
	"github.com/nsyszr/notify/pkg/storage"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	subjectQueueCritical = "notify.v1.queue.critical"
	subjectQueueNormal   = "notify.v1.queue.normal"
	queueGroup           = "notify.v1.dispatchers"

	subjectTopicPublic     = "notify.v1.topic.public"
	subjectTopicUserPrefix = "notify.v1.topic.user."
)

// Conn is the slice of a NATS connection the dispatcher needs.
type Conn interface {
	QueueSubscribe(subject, queue string, handler nats.MsgHandler) (*nats.Subscription, error)
	Publish(subject string, data []byte) error
}

// Dispatcher consumes queued notifications, marks them sent in the
// store and republishes them on the delivery topics. Both priority
// queues are consumed under one queue group so multiple instances
// share the load without duplicating deliveries.
type Dispatcher struct {
	nc    Conn
	store storage.Interface
}

// New creates a dispatcher on top of the given connection and store.
func New(nc Conn, store storage.Interface) *Dispatcher {
	return &Dispatcher{
		nc:    nc,
		store: store,
	}
}

// Subscribe attaches the dispatcher to both intake queues.
func (d *Dispatcher) Subscribe() error {
	if d.nc == nil {
		return errors.New("dispatch: connection to nats is missing")
	}

	for _, subject := range []string{subjectQueueCritical, subjectQueueNormal} {
		if _, err := d.nc.QueueSubscribe(subject, queueGroup, func(msg *nats.Msg) {
			if err := d.handleQueued(msg); err != nil {
				log.Errorf("dispatch: failed to handle queued notification: %s", err)
			}
		}); err != nil {
			return errors.Wrapf(err, "dispatch: failed to subscribe %s", subject)
		}
	}

	return nil
}

func (d *Dispatcher) handleQueued(msg *nats.Msg) error {
	queued := model.Notification{}
	if err := json.Unmarshal(msg.Data, &queued); err != nil {
		// Malformed payloads are dropped, not retried.
		return errors.Wrap(err, "invalid payload")
	}

	// Re-read the stored entity: the queue payload may be stale, e.g.
	// the notification was deleted while waiting in the queue.
	m, err := d.store.Notifications().FindByID(queued.ID)
	if err != nil {
		if err == storage.ErrNotFound {
			log.Warnf("dispatch: notification %d vanished before delivery", queued.ID)
			return nil
		}
		return err
	}

	deliver := true
	if !m.Broadcast() {
		user, err := d.store.Users().FindByUsername(m.RecipientUsername())
		if err != nil && err != storage.ErrNotFound {
			return err
		}
		if err == storage.ErrNotFound || !user.NotificationsEnabled {
			// Still mark as processed, just skip the live delivery.
			log.Infof("dispatch: skipping delivery for muted user '%s'", m.RecipientUsername())
			deliver = false
		}
	}

	m.Status = model.StatusSent
	if err := d.store.Notifications().Update(m); err != nil {
		return err
	}

	if !deliver {
		return nil
	}

	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	if err := d.nc.Publish(deliverySubject(m), data); err != nil {
		return errors.Wrap(err, "failed to publish delivery")
	}

	log.Infof("dispatch: notification %d delivered on %s", m.ID, deliverySubject(m))
	return nil
}

func deliverySubject(m *model.Notification) string {
	if m.Broadcast() {
		return subjectTopicPublic
	}
	return subjectTopicUserPrefix + m.RecipientUsername()
}
