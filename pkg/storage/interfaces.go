package storage

import "github.com/nsyszr/notify/pkg/model"

// Interface is implemented by the storage
type Interface interface {
	Notifications() NotificationStore
	Users() UserStore
}

// NotificationStore is responsible for managing the Notification model.
// All list results are ordered by timestamp, newest first, because that
// is the only order the API and the reconciliation clients consume.
type NotificationStore interface {
	FetchAll() ([]model.Notification, error)
	FetchByRecipient(username string) ([]model.Notification, error)
	FindByID(id int64) (*model.Notification, error)
	Create(m *model.Notification) error
	Update(m *model.Notification) error
	Delete(id int64) error
	Count() (int64, error)
}

// UserStore is responsible for managing the User model
type UserStore interface {
	FetchAll() ([]model.User, error)
	FindByUsername(username string) (*model.User, error)
	Create(m *model.User) error
	Count() (int64, error)
}
