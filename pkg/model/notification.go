package model

import "time"

// Priority is the severity of a notification. Critical and warning
// notifications travel through the high priority intake queue.
type Priority string

const (
	PriorityCritical Priority = "CRITICAL"
	PriorityWarning  Priority = "WARNING"
	PriorityNormal   Priority = "NORMAL"
	PriorityInfo     Priority = "INFO"
)

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityCritical, PriorityWarning, PriorityNormal, PriorityInfo:
		return true
	}
	return false
}

// Status tracks the delivery state of a persisted notification.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusSent    Status = "SENT"
)

// Notification is the core entity. It is both the persistency model and
// the wire payload: the store API returns it as JSON and the dispatcher
// publishes the same JSON on the delivery topics. A zero ID marks an
// entity that is not confirmed by the store yet.
type Notification struct {
	ID        int64     `json:"id,omitempty"`
	Message   string    `json:"message"`
	Priority  Priority  `json:"priority"`
	Recipient *User     `json:"recipient,omitempty"`
	Status    Status    `json:"status,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// Broadcast reports whether the notification has no dedicated recipient.
func (n *Notification) Broadcast() bool {
	return n.Recipient == nil
}

// RecipientUsername returns the recipient username or an empty string
// for broadcasts.
func (n *Notification) RecipientUsername() string {
	if n.Recipient == nil {
		return ""
	}
	return n.Recipient.Username
}
