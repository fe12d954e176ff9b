package model

import "time"

// User is a model of the persistency layer
type User struct {
	ID                   int64  `json:"id,omitempty"`
	Username             string `json:"username"`
	NotificationsEnabled bool   `json:"notificationsEnabled"`

	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}
