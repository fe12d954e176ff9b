package memory

import "github.com/nsyszr/notify/pkg/storage"

// Store contains all memory-based sub-stores for managing the persistent models
type store struct {
	notifications *notificationStore
	users         *userStore
}

// NewStore creates a new memory-based Storage interface
func NewStore() storage.Interface {
	return &store{
		notifications: newNotificationStore(),
		users:         newUserStore(),
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
