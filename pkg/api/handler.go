package api

import (
	"time"

	"github.com/labstack/echo"
	"github.com/nsyszr/notify/pkg/storage"
	log "github.com/sirupsen/logrus"
)

// Subjects of the notification intake queues. Send requests are routed
// by priority: critical and warning payloads take the high priority
// queue, everything else the normal one.
const (
	subjectQueueCritical = "notify.v1.queue.critical"
	subjectQueueNormal   = "notify.v1.queue.normal"

	// Delivery topics, relayed by the realtime endpoint.
	subjectTopicWildcard = "notify.v1.topic.>"
)

// Publisher is the transport side the API needs: fire-and-forget
// publishing of queued payloads. *nats.Conn satisfies it.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Subscriber delivers raw messages for a subject until unsubscribed.
// It decouples the realtime bridge from a concrete NATS connection.
type Subscriber interface {
	Subscribe(subject string, handler func(subject string, data []byte)) (Unsubscriber, error)
}

// Unsubscriber tears down a single subscription.
type Unsubscriber interface {
	Unsubscribe() error
}

// Handler contains all properties to serve the API
type Handler struct {
	pub   Publisher
	sub   Subscriber
	store storage.Interface
	guard *rateGuard
}

// NewHandler create a new API handler
func NewHandler(pub Publisher, sub Subscriber, store storage.Interface) *Handler {
	return &Handler{
		pub:   pub,
		sub:   sub,
		store: store,
		guard: newRateGuard(2 * time.Second),
	}
}

// RegisterRoutes attaches the handlers to the echo web server
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	log.Debug("Register API routes")
	api := e.Group("/api/v1")
	api.GET("/notifications", h.handleFetchNotifications)
	api.GET("/notifications/stats", h.handleGetStats)
	api.GET("/notifications/user/:username", h.handleFetchUserNotifications)
	api.POST("/notifications/send", h.handleSendNotification)
	api.DELETE("/notifications/:id", h.handleDeleteNotification)

	api.GET("/users", h.handleFetchUsers)
	api.POST("/users", h.handleCreateUser)

	api.Any("/realtime", h.realtimeEventsHandler())
}
