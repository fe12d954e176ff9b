package feed

import (
	"errors"
	"testing"
	"time"

	"github.com/nsyszr/notify/pkg/model"
)

// newTestEngine builds an engine whose timer and poll seams are
// recorded instead of executed, so tests drive the event loop
// synchronously through handleEvent.
func newTestEngine(id Identity) (*Engine, *pollRecorder, *timerRecorder) {
	e := NewEngine(EngineConfig{Identity: id})
	polls := &pollRecorder{}
	timers := &timerRecorder{}
	e.startPoll = polls.record
	e.startTimer = timers.record
	return e, polls, timers
}

type pollRecorder struct {
	gens []int64
}

func (r *pollRecorder) record(gen int64) {
	r.gens = append(r.gens, gen)
}

type timerRecorder struct {
	count int
}

func (r *timerRecorder) record() {
	r.count++
}

func notification(id int64, message string, priority model.Priority, ts time.Time) model.Notification {
	return model.Notification{
		ID:        id,
		Message:   message,
		Priority:  priority,
		Timestamp: ts,
	}
}

func TestApplyPushDeduplicatesProvisional(t *testing.T) {
	e, _, _ := newTestEngine(Guest())
	e.handleEvent(sessionEstablished{epoch: 1})

	push := notification(0, "disk almost full", model.PriorityWarning, time.Time{})
	e.handleEvent(pushReceived{epoch: 1, notification: push})
	e.handleEvent(pushReceived{epoch: 1, notification: push})

	s := e.Snapshot()
	if len(s.Notifications) != 1 {
		t.Fatalf("expected exactly one entry after duplicate push, got %d", len(s.Notifications))
	}
}

func TestApplyPushDeduplicatesByID(t *testing.T) {
	e, _, _ := newTestEngine(Guest())
	e.handleEvent(sessionEstablished{epoch: 1})

	push := notification(42, "maintenance window", model.PriorityInfo, time.Now())
	e.handleEvent(pushReceived{epoch: 1, notification: push})
	e.handleEvent(pushReceived{epoch: 1, notification: push})

	if got := len(e.Snapshot().Notifications); got != 1 {
		t.Fatalf("expected one entry, got %d", got)
	}
}

func TestApplyPushPrependsNewestFirst(t *testing.T) {
	e, _, _ := newTestEngine(Guest())
	e.handleEvent(sessionEstablished{epoch: 1})

	e.handleEvent(pushReceived{epoch: 1, notification: notification(1, "first", model.PriorityNormal, time.Now())})
	e.handleEvent(pushReceived{epoch: 1, notification: notification(2, "second", model.PriorityNormal, time.Now())})

	s := e.Snapshot()
	if len(s.Notifications) != 2 {
		t.Fatalf("expected two entries, got %d", len(s.Notifications))
	}
	if s.Notifications[0].Message != "second" {
		t.Errorf("expected newest entry first, got %q", s.Notifications[0].Message)
	}
}

func TestAdminPollReplacesWorkingSet(t *testing.T) {
	e, polls, _ := newTestEngine(Administrator())
	e.handleEvent(sessionEstablished{epoch: 1})
	if len(polls.gens) != 1 {
		t.Fatalf("expected initial poll on session establish, got %d polls", len(polls.gens))
	}

	// Pushes interleaved before the poll result lands.
	e.handleEvent(pushReceived{epoch: 1, notification: notification(0, "residue", model.PriorityNormal, time.Time{})})
	e.handleEvent(pushReceived{epoch: 1, notification: notification(99, "more residue", model.PriorityNormal, time.Now())})

	list := []model.Notification{
		notification(2, "stored b", model.PriorityNormal, time.Now()),
		notification(1, "stored a", model.PriorityCritical, time.Now().Add(-time.Minute)),
	}
	stats := &model.Stats{TotalNotifications: 2, TotalUsers: 5}
	e.handleEvent(pollCompleted{gen: polls.gens[0], list: list, stats: stats})

	s := e.Snapshot()
	if len(s.Notifications) != 2 {
		t.Fatalf("expected working set to equal poll list, got %d entries", len(s.Notifications))
	}
	for i := range list {
		if s.Notifications[i].ID != list[i].ID {
			t.Errorf("entry %d: expected id %d, got %d", i, list[i].ID, s.Notifications[i].ID)
		}
	}
	if s.Stats == nil || s.Stats.TotalNotifications != 2 || s.Stats.TotalUsers != 5 {
		t.Errorf("expected stats snapshot from poll, got %+v", s.Stats)
	}
}

func TestDebounceCollapsesTriggers(t *testing.T) {
	e, polls, timers := newTestEngine(Administrator())
	e.handleEvent(sessionEstablished{epoch: 1})
	initial := len(polls.gens)

	for i := 0; i < 10; i++ {
		e.handleEvent(reconcileRequested{epoch: 1})
	}
	if timers.count != 1 {
		t.Fatalf("expected a single debounce timer for a burst of triggers, got %d", timers.count)
	}

	e.handleEvent(timerFired{})
	if got := len(polls.gens) - initial; got != 1 {
		t.Fatalf("expected exactly one poll after the debounce window, got %d", got)
	}

	// A timer firing without a pending request must not poll again.
	e.handleEvent(timerFired{})
	if got := len(polls.gens) - initial; got != 1 {
		t.Fatalf("expected no poll for a spurious timer, got %d", got)
	}
}

func TestDeletionSupersedesInflightPoll(t *testing.T) {
	e, polls, _ := newTestEngine(Administrator())
	e.handleEvent(sessionEstablished{epoch: 1})

	withSeven := []model.Notification{notification(7, "stale entry", model.PriorityNormal, time.Now())}
	e.handleEvent(pollCompleted{gen: polls.gens[0], list: withSeven, stats: &model.Stats{TotalNotifications: 1}})

	// A push-triggered poll goes out and is still in flight when the
	// deletion completes.
	e.handleEvent(reconcileRequested{epoch: 1})
	e.handleEvent(timerFired{})
	inflight := polls.gens[len(polls.gens)-1]

	e.handleEvent(mutationCompleted{deletedID: 7})
	superseding := polls.gens[len(polls.gens)-1]
	if superseding == inflight {
		t.Fatal("expected the deletion to issue a fresh poll")
	}

	// The stale poll still contains id 7; it must be discarded.
	e.handleEvent(pollCompleted{gen: inflight, list: withSeven})
	for _, n := range e.Snapshot().Notifications {
		if n.ID == 7 {
			t.Fatal("stale poll resurrected a deleted notification")
		}
	}

	// The superseding poll reflects store truth.
	e.handleEvent(pollCompleted{gen: superseding, list: []model.Notification{}, stats: &model.Stats{}})
	if got := len(e.Snapshot().Notifications); got != 0 {
		t.Fatalf("expected empty working set after superseding poll, got %d entries", got)
	}
}

func TestSlowPollCannotRegressNewerResult(t *testing.T) {
	e, polls, _ := newTestEngine(Administrator())
	e.handleEvent(sessionEstablished{epoch: 1})
	older := polls.gens[0]

	// A push-triggered poll overlaps the session-establish poll.
	e.handleEvent(reconcileRequested{epoch: 1})
	e.handleEvent(timerFired{})
	newer := polls.gens[len(polls.gens)-1]

	fresh := []model.Notification{notification(1, "fresh", model.PriorityNormal, time.Now())}
	e.handleEvent(pollCompleted{gen: newer, list: fresh, stats: &model.Stats{TotalNotifications: 1}})

	// The older poll completes last, carrying older store data.
	e.handleEvent(pollCompleted{gen: older, list: []model.Notification{}, stats: &model.Stats{}})

	s := e.Snapshot()
	if len(s.Notifications) != 1 || s.Notifications[0].Message != "fresh" {
		t.Fatalf("slow poll overwrote newer state: %+v", s.Notifications)
	}
	if s.Stats == nil || s.Stats.TotalNotifications != 1 {
		t.Fatalf("slow poll overwrote newer stats: %+v", s.Stats)
	}
}

func TestProvisionalConfirmedByPoll(t *testing.T) {
	e, polls, _ := newTestEngine(NamedUser("bob"))
	e.handleEvent(sessionEstablished{epoch: 1})

	// Push arrives without a store-assigned id.
	e.handleEvent(pushReceived{epoch: 1, notification: model.Notification{
		Message:  "A",
		Priority: model.PriorityNormal,
	}})
	if got := len(e.Snapshot().Notifications); got != 1 {
		t.Fatalf("expected one provisional entry, got %d", got)
	}

	// The poll confirms the same logical entity with id 7.
	confirmed := notification(7, "A", model.PriorityNormal, time.Now())
	e.handleEvent(pollCompleted{gen: polls.gens[0], list: []model.Notification{confirmed}})

	s := e.Snapshot()
	if len(s.Notifications) != 1 {
		t.Fatalf("expected exactly one entry after confirmation, got %d", len(s.Notifications))
	}
	if s.Notifications[0].ID != 7 {
		t.Errorf("expected the authoritative record (id 7), got id %d", s.Notifications[0].ID)
	}
}

func TestRedeliveredPushAfterConfirmationIgnored(t *testing.T) {
	e, polls, _ := newTestEngine(NamedUser("bob"))
	e.handleEvent(sessionEstablished{epoch: 1})

	push := model.Notification{Message: "A", Priority: model.PriorityNormal}
	e.handleEvent(pushReceived{epoch: 1, notification: push})

	confirmed := notification(7, "A", model.PriorityNormal, time.Now())
	e.handleEvent(pollCompleted{gen: polls.gens[0], list: []model.Notification{confirmed}})

	// The transport redelivers the id-less push after the poll already
	// confirmed it.
	e.handleEvent(pushReceived{epoch: 1, notification: push})

	s := e.Snapshot()
	if len(s.Notifications) != 1 {
		t.Fatalf("redelivered push re-entered after confirmation: %+v", s.Notifications)
	}
	if s.Notifications[0].ID != 7 {
		t.Errorf("expected the confirmed record, got id %d", s.Notifications[0].ID)
	}
}

func TestUnconfirmedProvisionalSurvivesPoll(t *testing.T) {
	e, polls, _ := newTestEngine(NamedUser("bob"))
	e.handleEvent(sessionEstablished{epoch: 1})

	e.handleEvent(pushReceived{epoch: 1, notification: model.Notification{
		Message:  "not persisted yet",
		Priority: model.PriorityInfo,
	}})

	list := []model.Notification{notification(3, "older stored", model.PriorityNormal, time.Now())}
	e.handleEvent(pollCompleted{gen: polls.gens[0], list: list})

	s := e.Snapshot()
	if len(s.Notifications) != 2 {
		t.Fatalf("expected provisional head plus polled list, got %d entries", len(s.Notifications))
	}
	if s.Notifications[0].Message != "not persisted yet" {
		t.Errorf("expected the provisional entry at the head, got %q", s.Notifications[0].Message)
	}
	if s.Notifications[1].ID != 3 {
		t.Errorf("expected the polled entry after the head, got id %d", s.Notifications[1].ID)
	}
}

func TestStaleSessionEventsIgnored(t *testing.T) {
	e, polls, timers := newTestEngine(Administrator())
	e.handleEvent(sessionEstablished{epoch: 1})
	e.handleEvent(sessionEstablished{epoch: 2})
	pollCount, timerCount := len(polls.gens), timers.count

	e.handleEvent(pushReceived{epoch: 1, notification: notification(1, "late push", model.PriorityNormal, time.Now())})
	if got := len(e.Snapshot().Notifications); got != 0 {
		t.Fatalf("push from superseded session mutated state: %d entries", got)
	}

	e.handleEvent(reconcileRequested{epoch: 1})
	if timers.count != timerCount || len(polls.gens) != pollCount {
		t.Fatal("trigger from superseded session scheduled work")
	}
}

func TestGuestNeverPolls(t *testing.T) {
	e, polls, timers := newTestEngine(Guest())
	e.handleEvent(sessionEstablished{epoch: 1})
	e.handleEvent(reconcileRequested{epoch: 1})
	e.handleEvent(timerFired{})

	if len(polls.gens) != 0 || timers.count != 0 {
		t.Fatalf("guest scheduled reconciliation: %d polls, %d timers", len(polls.gens), timers.count)
	}
}

func TestPollErrorKeepsLastKnownGood(t *testing.T) {
	e, polls, _ := newTestEngine(Administrator())
	e.handleEvent(sessionEstablished{epoch: 1})

	list := []model.Notification{notification(1, "known good", model.PriorityNormal, time.Now())}
	e.handleEvent(pollCompleted{gen: polls.gens[0], list: list, stats: &model.Stats{TotalNotifications: 1}})

	e.handleEvent(reconcileRequested{epoch: 1})
	e.handleEvent(timerFired{})
	failed := polls.gens[len(polls.gens)-1]
	e.handleEvent(pollCompleted{gen: failed, err: errors.New("store unreachable")})

	s := e.Snapshot()
	if len(s.Notifications) != 1 || s.Notifications[0].Message != "known good" {
		t.Fatalf("failed poll clobbered last-known-good state: %+v", s.Notifications)
	}
}

func TestOnChangeReceivesImmutableSnapshot(t *testing.T) {
	var seen []State
	e := NewEngine(EngineConfig{
		Identity: Guest(),
		OnChange: func(s State) { seen = append(seen, s) },
	})
	e.startPoll = func(int64) {}
	e.startTimer = func() {}

	e.handleEvent(sessionEstablished{epoch: 1})
	e.handleEvent(pushReceived{epoch: 1, notification: notification(1, "one", model.PriorityNormal, time.Now())})
	e.handleEvent(pushReceived{epoch: 1, notification: notification(2, "two", model.PriorityNormal, time.Now())})

	if len(seen) != 2 {
		t.Fatalf("expected a snapshot per change, got %d", len(seen))
	}
	if len(seen[0].Notifications) != 1 {
		t.Fatalf("first snapshot mutated after the fact: %d entries", len(seen[0].Notifications))
	}
}
