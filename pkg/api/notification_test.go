package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo"

	"github.com/nsyszr/notify/pkg/model"
	"github.com/nsyszr/notify/pkg/storage/memory"
)

type fakePublisher struct {
	subjects []string
	payloads [][]byte
}

func (p *fakePublisher) Publish(subject string, data []byte) error {
	p.subjects = append(p.subjects, subject)
	p.payloads = append(p.payloads, data)
	return nil
}

func newTestServer(t *testing.T) (*echo.Echo, *fakePublisher, *Handler) {
	t.Helper()
	pub := &fakePublisher{}
	h := NewHandler(pub, nil, memory.NewStore())
	e := echo.New()
	h.RegisterRoutes(e)
	return e, pub, h
}

func doJSON(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func mustCreateUser(t *testing.T, e *echo.Echo, username string, enabled bool) {
	t.Helper()
	rec := doJSON(e, http.MethodPost, "/api/v1/users",
		`{"username":"`+username+`","notificationsEnabled":`+boolString(enabled)+`}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("failed to create user %s: %d %s", username, rec.Code, rec.Body.String())
	}
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func TestSendBroadcastUsesNormalQueue(t *testing.T) {
	e, pub, _ := newTestServer(t)

	rec := doJSON(e, http.MethodPost, "/api/v1/notifications/send",
		`{"message":"deploy done","priority":"INFO"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var n model.Notification
	if err := json.Unmarshal(rec.Body.Bytes(), &n); err != nil {
		t.Fatal(err)
	}
	if n.ID == 0 {
		t.Error("expected a store-assigned id in the response")
	}
	if n.Status != model.StatusPending {
		t.Errorf("expected PENDING status, got %s", n.Status)
	}
	if n.Recipient != nil {
		t.Errorf("broadcast must have no recipient, got %+v", n.Recipient)
	}

	if len(pub.subjects) != 1 || pub.subjects[0] != subjectQueueNormal {
		t.Fatalf("expected one publish on the normal queue, got %v", pub.subjects)
	}
	var queued model.Notification
	if err := json.Unmarshal(pub.payloads[0], &queued); err != nil {
		t.Fatal(err)
	}
	if queued.ID != n.ID {
		t.Errorf("queued payload id %d differs from response id %d", queued.ID, n.ID)
	}
}

func TestSendCriticalUsesCriticalQueue(t *testing.T) {
	e, pub, _ := newTestServer(t)
	mustCreateUser(t, e, "alice", true)

	rec := doJSON(e, http.MethodPost, "/api/v1/notifications/send",
		`{"message":"db down","priority":"CRITICAL","username":"alice"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(pub.subjects) != 1 || pub.subjects[0] != subjectQueueCritical {
		t.Fatalf("expected one publish on the critical queue, got %v", pub.subjects)
	}

	var n model.Notification
	if err := json.Unmarshal(rec.Body.Bytes(), &n); err != nil {
		t.Fatal(err)
	}
	if n.Recipient == nil || n.Recipient.Username != "alice" {
		t.Errorf("expected alice as recipient, got %+v", n.Recipient)
	}
}

func TestSendWarningUsesCriticalQueue(t *testing.T) {
	e, pub, _ := newTestServer(t)

	rec := doJSON(e, http.MethodPost, "/api/v1/notifications/send",
		`{"message":"disk at 90%","priority":"WARNING"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if pub.subjects[0] != subjectQueueCritical {
		t.Errorf("warning must take the critical queue, got %s", pub.subjects[0])
	}
}

func TestSendRejectsUnknownPriority(t *testing.T) {
	e, pub, _ := newTestServer(t)

	rec := doJSON(e, http.MethodPost, "/api/v1/notifications/send",
		`{"message":"x","priority":"URGENT"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if len(pub.subjects) != 0 {
		t.Error("rejected send must not publish")
	}
}

func TestSendRejectsUnknownRecipient(t *testing.T) {
	e, pub, _ := newTestServer(t)

	rec := doJSON(e, http.MethodPost, "/api/v1/notifications/send",
		`{"message":"x","priority":"NORMAL","username":"nobody"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if len(pub.subjects) != 0 {
		t.Error("rejected send must not publish")
	}
}

func TestSendRateLimited(t *testing.T) {
	e, _, _ := newTestServer(t)

	first := doJSON(e, http.MethodPost, "/api/v1/notifications/send",
		`{"message":"one","priority":"NORMAL"}`)
	if first.Code != http.StatusOK {
		t.Fatalf("expected first send to pass, got %d", first.Code)
	}

	second := doJSON(e, http.MethodPost, "/api/v1/notifications/send",
		`{"message":"two","priority":"NORMAL"}`)
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 for the immediate follow-up, got %d", second.Code)
	}
}

func TestSendRateLimitIsPerRecipient(t *testing.T) {
	e, _, _ := newTestServer(t)
	mustCreateUser(t, e, "alice", true)
	mustCreateUser(t, e, "bob", true)

	a := doJSON(e, http.MethodPost, "/api/v1/notifications/send",
		`{"message":"x","priority":"NORMAL","username":"alice"}`)
	b := doJSON(e, http.MethodPost, "/api/v1/notifications/send",
		`{"message":"x","priority":"NORMAL","username":"bob"}`)
	if a.Code != http.StatusOK || b.Code != http.StatusOK {
		t.Fatalf("sends to different recipients must not throttle each other: %d, %d", a.Code, b.Code)
	}
}

func TestFetchNotificationsNewestFirst(t *testing.T) {
	e, _, _ := newTestServer(t)
	mustCreateUser(t, e, "alice", true)

	doJSON(e, http.MethodPost, "/api/v1/notifications/send", `{"message":"broadcast","priority":"INFO"}`)
	doJSON(e, http.MethodPost, "/api/v1/notifications/send", `{"message":"direct","priority":"NORMAL","username":"alice"}`)

	rec := doJSON(e, http.MethodGet, "/api/v1/notifications", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var list []model.Notification
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(list))
	}
}

func TestFetchUserNotifications(t *testing.T) {
	e, _, _ := newTestServer(t)
	mustCreateUser(t, e, "alice", true)
	mustCreateUser(t, e, "bob", true)

	doJSON(e, http.MethodPost, "/api/v1/notifications/send", `{"message":"for everyone","priority":"INFO"}`)
	doJSON(e, http.MethodPost, "/api/v1/notifications/send", `{"message":"for alice","priority":"NORMAL","username":"alice"}`)
	doJSON(e, http.MethodPost, "/api/v1/notifications/send", `{"message":"for bob","priority":"NORMAL","username":"bob"}`)

	rec := doJSON(e, http.MethodGet, "/api/v1/notifications/user/alice", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var list []model.Notification
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("expected broadcast plus targeted entry, got %d", len(list))
	}
	for _, n := range list {
		if n.Recipient != nil && n.Recipient.Username != "alice" {
			t.Errorf("foreign notification leaked into alice's view: %+v", n)
		}
	}
}

func TestFetchUserNotificationsUnknownUser(t *testing.T) {
	e, _, _ := newTestServer(t)

	rec := doJSON(e, http.MethodGet, "/api/v1/notifications/user/ghost", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown user, got %d", rec.Code)
	}
}

func TestStats(t *testing.T) {
	e, _, _ := newTestServer(t)
	mustCreateUser(t, e, "alice", true)
	doJSON(e, http.MethodPost, "/api/v1/notifications/send", `{"message":"x","priority":"INFO"}`)

	rec := doJSON(e, http.MethodGet, "/api/v1/notifications/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var stats model.Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatal(err)
	}
	if stats.TotalNotifications != 1 || stats.TotalUsers != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestDeleteNotification(t *testing.T) {
	e, _, _ := newTestServer(t)

	rec := doJSON(e, http.MethodPost, "/api/v1/notifications/send", `{"message":"x","priority":"INFO"}`)
	var n model.Notification
	if err := json.Unmarshal(rec.Body.Bytes(), &n); err != nil {
		t.Fatal(err)
	}

	del := doJSON(e, http.MethodDelete, "/api/v1/notifications/1", "")
	if del.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", del.Code)
	}

	again := doJSON(e, http.MethodDelete, "/api/v1/notifications/1", "")
	if again.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for a repeated delete, got %d", again.Code)
	}

	list := doJSON(e, http.MethodGet, "/api/v1/notifications", "")
	var remaining []model.Notification
	if err := json.Unmarshal(list.Body.Bytes(), &remaining); err != nil {
		t.Fatal(err)
	}
	if len(remaining) != 0 {
		t.Errorf("expected an empty history after delete, got %d entries", len(remaining))
	}
}

func TestDeleteRejectsMalformedID(t *testing.T) {
	e, _, _ := newTestServer(t)

	rec := doJSON(e, http.MethodDelete, "/api/v1/notifications/abc", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
