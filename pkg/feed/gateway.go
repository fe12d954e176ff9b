package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nsyszr/notify/pkg/model"
	"github.com/pkg/errors"
)

const defaultRequestTimeout = 10 * time.Second

// RequestError is a store call the server answered with a non-2xx
// status. The reason carries the error payload when one was returned.
type RequestError struct {
	StatusCode int
	Reason     string
}

func (e *RequestError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("store request failed (%d): %s", e.StatusCode, e.Reason)
	}
	return fmt.Sprintf("store request failed (%d)", e.StatusCode)
}

// Gateway issues request/response operations against the persisted
// store. Failures are surfaced to the caller and never mutate local
// state; the engine only learns about mutations once the store
// confirmed them.
type Gateway struct {
	baseURL string
	hc      *http.Client
}

// NewGateway creates a gateway for the store REST API. The timeout
// bounds every request; zero selects the 10s default.
func NewGateway(baseURL string, timeout time.Duration) *Gateway {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &Gateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		hc:      &http.Client{Timeout: timeout},
	}
}

// PollNotifications fetches the full persisted history, store-ordered.
func (g *Gateway) PollNotifications(ctx context.Context) ([]model.Notification, error) {
	out := make([]model.Notification, 0)
	if err := g.getJSON(ctx, "/notifications", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// PollUserNotifications fetches targeted plus broadcast notifications
// for one username, newest first.
func (g *Gateway) PollUserNotifications(ctx context.Context, username string) ([]model.Notification, error) {
	out := make([]model.Notification, 0)
	if err := g.getJSON(ctx, "/notifications/user/"+url.PathEscape(username), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// PollStats fetches the aggregate counters.
func (g *Gateway) PollStats(ctx context.Context) (*model.Stats, error) {
	out := &model.Stats{}
	if err := g.getJSON(ctx, "/notifications/stats", out); err != nil {
		return nil, err
	}
	return out, nil
}

// Send creates a notification. An empty username broadcasts.
func (g *Gateway) Send(ctx context.Context, message string, priority model.Priority, username string) (*model.Notification, error) {
	payload := struct {
		Message  string `json:"message"`
		Priority string `json:"priority"`
		Username string `json:"username,omitempty"`
	}{
		Message:  message,
		Priority: string(priority),
		Username: username,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "feed: failed to marshal send request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		g.baseURL+"/notifications/send", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "feed: failed to build send request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.hc.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "feed: send request failed")
	}
	defer resp.Body.Close()

	if err := checkResponse(resp); err != nil {
		return nil, err
	}

	out := &model.Notification{}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return nil, errors.Wrap(err, "feed: failed to decode send response")
	}
	return out, nil
}

// Delete removes a persisted notification.
func (g *Gateway) Delete(ctx context.Context, id int64) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		fmt.Sprintf("%s/notifications/%d", g.baseURL, id), nil)
	if err != nil {
		return errors.Wrap(err, "feed: failed to build delete request")
	}

	resp, err := g.hc.Do(req)
	if err != nil {
		return errors.Wrap(err, "feed: delete request failed")
	}
	defer resp.Body.Close()

	return checkResponse(resp)
}

// FetchUsers lists the user roster.
func (g *Gateway) FetchUsers(ctx context.Context) ([]model.User, error) {
	out := make([]model.User, 0)
	if err := g.getJSON(ctx, "/users", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateUser registers a username on the roster.
func (g *Gateway) CreateUser(ctx context.Context, username string, notificationsEnabled bool) (*model.User, error) {
	payload := struct {
		Username             string `json:"username"`
		NotificationsEnabled bool   `json:"notificationsEnabled"`
	}{
		Username:             username,
		NotificationsEnabled: notificationsEnabled,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "feed: failed to marshal user request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		g.baseURL+"/users", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "feed: failed to build user request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.hc.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "feed: user request failed")
	}
	defer resp.Body.Close()

	if err := checkResponse(resp); err != nil {
		return nil, err
	}

	out := &model.User{}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return nil, errors.Wrap(err, "feed: failed to decode user response")
	}
	return out, nil
}

func (g *Gateway) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		return errors.Wrapf(err, "feed: failed to build request for %s", path)
	}

	resp, err := g.hc.Do(req)
	if err != nil {
		return errors.Wrapf(err, "feed: request for %s failed", path)
	}
	defer resp.Body.Close()

	if err := checkResponse(resp); err != nil {
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "feed: failed to decode response of %s", path)
	}
	return nil
}

func checkResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	reqErr := &RequestError{StatusCode: resp.StatusCode}
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err == nil {
		reqErr.Reason = payload.Error
	}
	return reqErr
}
