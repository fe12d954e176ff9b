package feed

import (
	"encoding/json"

	"github.com/nsyszr/notify/pkg/model"
	log "github.com/sirupsen/logrus"
)

// Delivery topics of the notification transport.
const (
	topicPublic     = "notify.v1.topic.public"
	topicUserPrefix = "notify.v1.topic.user."
)

// Router establishes the topic subscriptions appropriate for a viewer
// role on a freshly connected session and dispatches inbound pushes to
// the engine. Subscriptions are tied to the session: a new session gets
// a full set of fresh subscriptions, nothing is reused.
type Router struct {
	identity Identity
	engine   *Engine
}

// NewRouter creates a router for the given viewer.
func NewRouter(identity Identity, engine *Engine) *Router {
	return &Router{
		identity: identity,
		engine:   engine,
	}
}

// Route is invoked once per successful connection.
func (r *Router) Route(sess *Session) error {
	epoch := sess.Epoch()
	r.engine.Enqueue(sessionEstablished{epoch: epoch})

	switch r.identity.Role() {
	case RoleAdministrator:
		// The broadcast topic is only a change signal for this role:
		// any message schedules a debounced refresh of history and
		// stats from the store, the pushed payload itself is ignored.
		_, err := sess.Subscribe(topicPublic, func([]byte) {
			r.engine.Enqueue(reconcileRequested{epoch: epoch})
		})
		if err == nil {
			log.Infof("feed: session %d routed as %s", epoch, r.identity)
		}
		return err

	case RoleNamedUser:
		if _, err := sess.Subscribe(topicPublic, r.pushHandler(epoch)); err != nil {
			return err
		}
		if _, err := sess.Subscribe(topicUserPrefix+r.identity.Username(), r.pushHandler(epoch)); err != nil {
			return err
		}
		log.Infof("feed: session %d routed as %s", epoch, r.identity)
		return nil

	default:
		// Guests get public alerts only, never a per-user topic.
		_, err := sess.Subscribe(topicPublic, r.pushHandler(epoch))
		if err == nil {
			log.Infof("feed: session %d routed as %s", epoch, r.identity)
		}
		return err
	}
}

func (r *Router) pushHandler(epoch int64) func(data []byte) {
	return func(data []byte) {
		n := model.Notification{}
		if err := json.Unmarshal(data, &n); err != nil {
			log.Warn("feed: dropping malformed push payload: ", err)
			return
		}
		r.engine.Enqueue(pushReceived{epoch: epoch, notification: n})
	}
}
