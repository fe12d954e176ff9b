package postgres

import (
	"github.com/jmoiron/sqlx"
	"github.com/nsyszr/notify/pkg/storage"
)

// store contains all PostgreSQL based sub-stores for managing the models
type store struct {
	notifications *notificationStore
	users         *userStore
}

// NewStore creates a new PostgreSQL based Storage interface
func NewStore(db *sqlx.DB) storage.Interface {
	return &store{
		notifications: newNotificationStore(db),
		users:         newUserStore(db),
	}
}

// Notifications returns a sub-store for managing the Notification model
func (s *store) Notifications() storage.NotificationStore {
	return s.notifications
}

// Users returns a sub-store for managing the User model
func (s *store) Users() storage.UserStore {
	return s.users
}
