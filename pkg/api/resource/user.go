package resource

// CreateUserRequest is the payload of POST /users.
type CreateUserRequest struct {
	Username             string `json:"username"`
	NotificationsEnabled bool   `json:"notificationsEnabled"`
}
