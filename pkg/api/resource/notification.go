package resource

// SendNotificationRequest is the payload of POST /notifications/send.
// An empty username means broadcast.
type SendNotificationRequest struct {
	Message  string `json:"message"`
	Priority string `json:"priority"`
	Username string `json:"username,omitempty"`
}

// ErrorResource is the error payload returned by all handlers.
type ErrorResource struct {
	Error string `json:"error"`
}

func NewError(message string) *ErrorResource {
	return &ErrorResource{
		Error: message,
	}
}
