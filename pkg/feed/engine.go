package feed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nsyszr/notify/pkg/model"
	log "github.com/sirupsen/logrus"
)

const (
	defaultDebounceWindow = 500 * time.Millisecond
	defaultPollTimeout    = 10 * time.Second

	// provisionalWindow bounds the dedupe scan: only this many of the
	// most recently seen entries are checked against an incoming push.
	provisionalWindow = 32
)

// Poller is the store side the engine polls during reconciliation. The
// Gateway implements it.
type Poller interface {
	PollNotifications(ctx context.Context) ([]model.Notification, error)
	PollUserNotifications(ctx context.Context, username string) ([]model.Notification, error)
	PollStats(ctx context.Context) (*model.Stats, error)
}

// State is an immutable snapshot of the reconciled view. Consumers may
// keep it around; the engine never mutates a handed-out snapshot.
type State struct {
	Notifications []model.Notification
	Stats         *model.Stats
}

type debounceState int

const (
	debounceIdle debounceState = iota
	debouncePending
)

// EngineConfig carries the collaborators of a reconciliation engine.
type EngineConfig struct {
	Identity Identity
	Poller   Poller

	// DebounceWindow collapses bursts of reconciliation triggers into a
	// single poll. Defaults to 500ms.
	DebounceWindow time.Duration

	// PollTimeout bounds one reconciliation round trip. Defaults to 10s.
	PollTimeout time.Duration

	// OnChange, if set, is invoked with a fresh snapshot after every
	// state change. It runs on the consumer loop, never concurrently.
	OnChange func(State)
}

// Engine maintains the authoritative in-memory notification state for
// one viewer by merging live pushes with store polls and applying
// confirmed deletions. All inputs arrive as events on one queue; Run
// drains it with a single consumer goroutine.
type Engine struct {
	identity Identity
	poller   Poller
	window   time.Duration
	timeout  time.Duration
	onChange func(State)

	eventCh chan event

	mu      sync.RWMutex
	entries []model.Notification
	stats   *model.Stats

	// recentKeys is the bounded window of provisional composite keys
	// used for push dedupe.
	recentKeys []string

	epoch    int64
	debounce debounceState

	// pollGen numbers issued polls. Results below minPollGen were
	// superseded by a deletion; results at or below appliedGen are
	// older than state already applied. Both are discarded, so a slow
	// poll completing out of order can never regress the working set.
	pollGen    int64
	minPollGen int64
	appliedGen int64

	// Seams for tests; production uses the defaults set in NewEngine.
	startTimer func()
	startPoll  func(gen int64)
}

// NewEngine creates a reconciliation engine for the given viewer.
func NewEngine(cfg EngineConfig) *Engine {
	e := &Engine{
		identity: cfg.Identity,
		poller:   cfg.Poller,
		window:   cfg.DebounceWindow,
		timeout:  cfg.PollTimeout,
		onChange: cfg.OnChange,
		eventCh:  make(chan event, 64),
	}
	if e.window <= 0 {
		e.window = defaultDebounceWindow
	}
	if e.timeout <= 0 {
		e.timeout = defaultPollTimeout
	}
	e.startTimer = func() {
		time.AfterFunc(e.window, func() {
			e.Enqueue(timerFired{})
		})
	}
	e.startPoll = e.pollStore
	return e
}

// Run processes events until the context is cancelled. It must be
// running for the engine to make progress; exactly one Run per engine.
func (e *Engine) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-e.eventCh:
			e.handleEvent(ev)
		}
	}
}

// Enqueue places an event on the engine's queue.
func (e *Engine) Enqueue(ev event) {
	e.eventCh <- ev
}

// RequestReconciliation schedules a debounced store poll. Bursts within
// the debounce window collapse into a single poll.
func (e *Engine) RequestReconciliation() {
	e.Enqueue(reconcileRequested{})
}

// DeletionConfirmed tells the engine that the store confirmed deletion
// of the given id. The entity is removed locally and a fresh,
// superseding poll is issued so that no stale in-flight poll can
// resurrect it.
func (e *Engine) DeletionConfirmed(id int64) {
	e.Enqueue(mutationCompleted{deletedID: id})
}

// Snapshot returns an immutable copy of the reconciled state.
func (e *Engine) Snapshot() State {
	e.mu.RLock()
	defer e.mu.RUnlock()

	s := State{
		Notifications: make([]model.Notification, len(e.entries)),
	}
	copy(s.Notifications, e.entries)
	if e.stats != nil {
		stats := *e.stats
		s.Stats = &stats
	}
	return s
}

func (e *Engine) handleEvent(ev event) {
	switch ev := ev.(type) {
	case sessionEstablished:
		e.handleSessionEstablished(ev)
	case pushReceived:
		e.handlePush(ev)
	case reconcileRequested:
		e.handleReconcileRequested(ev)
	case timerFired:
		e.handleTimerFired()
	case pollCompleted:
		e.handlePollCompleted(ev)
	case mutationCompleted:
		e.handleMutationCompleted(ev)
	}
}

func (e *Engine) handleSessionEstablished(ev sessionEstablished) {
	e.mu.Lock()
	e.epoch = ev.epoch
	e.mu.Unlock()

	// Admin and named-user views reload from the store on every
	// (re)connect; the push channel cannot carry deletions, counts or
	// history missed while disconnected. Guests have no store view.
	if e.identity.Role() != RoleGuest {
		e.issuePoll(false)
	}
}

func (e *Engine) handlePush(ev pushReceived) {
	if e.staleEpoch(ev.epoch) {
		log.Debugf("feed: dropping push from superseded session %d", ev.epoch)
		return
	}

	n := ev.notification
	e.mu.Lock()
	if e.isDuplicate(&n) {
		e.mu.Unlock()
		return
	}
	if n.ID == 0 {
		e.rememberKey(compositeKey(&n))
	}
	e.entries = append([]model.Notification{n}, e.entries...)
	e.mu.Unlock()

	e.notifyChange()
}

func (e *Engine) handleReconcileRequested(ev reconcileRequested) {
	if ev.epoch != 0 && e.staleEpoch(ev.epoch) {
		return
	}
	// Guests have no store view to reconcile against.
	if e.identity.Role() == RoleGuest {
		return
	}
	if e.debounce == debounceIdle {
		e.debounce = debouncePending
		e.startTimer()
	}
}

func (e *Engine) handleTimerFired() {
	if e.debounce != debouncePending {
		return
	}
	e.debounce = debounceIdle
	e.issuePoll(false)
}

func (e *Engine) handleMutationCompleted(ev mutationCompleted) {
	if ev.deletedID == 0 {
		return
	}

	e.mu.Lock()
	kept := e.entries[:0]
	for _, n := range e.entries {
		if n.ID != ev.deletedID {
			kept = append(kept, n)
		}
	}
	e.entries = kept
	e.mu.Unlock()

	// A pending debounced poll is obsolete: the superseding poll below
	// is the authoritative one.
	e.debounce = debounceIdle

	e.notifyChange()
	e.issuePoll(true)
}

func (e *Engine) handlePollCompleted(ev pollCompleted) {
	if ev.gen < e.minPollGen || ev.gen <= e.appliedGen {
		log.Debugf("feed: discarding superseded poll result (gen %d)", ev.gen)
		return
	}
	if ev.err != nil {
		// Keep the last known good state; the next trigger retries.
		log.Warn("feed: reconciliation poll failed: ", ev.err)
		return
	}

	e.mu.Lock()
	switch e.identity.Role() {
	case RoleAdministrator:
		// Full resynchronization: the store is the sole source of truth
		// for this role, partial merges risk resurrecting deleted items.
		e.entries = append([]model.Notification(nil), ev.list...)
		if ev.stats != nil {
			e.stats = ev.stats
		}
		e.recentKeys = nil
	default:
		e.mergePollResult(ev.list)
	}
	e.mu.Unlock()

	e.appliedGen = ev.gen
	e.notifyChange()
}

// mergePollResult reconciles the named-user view: the polled list is
// authoritative, but provisional pushes the store has not confirmed yet
// stay at the head. Caller holds the lock.
func (e *Engine) mergePollResult(list []model.Notification) {
	merged := make([]model.Notification, 0, len(list)+4)
	keys := make([]string, 0, 4)

	for _, n := range e.entries {
		if n.ID != 0 {
			continue
		}
		if confirmedBy(&n, list) {
			continue
		}
		merged = append(merged, n)
		keys = append(keys, compositeKey(&n))
	}
	merged = append(merged, list...)

	e.entries = merged
	e.recentKeys = keys
}

func (e *Engine) issuePoll(supersede bool) {
	e.pollGen++
	gen := e.pollGen
	if supersede {
		e.minPollGen = gen
	}
	e.startPoll(gen)
}

// pollStore performs the actual store round trip off the consumer loop
// and reports back as a pollCompleted event.
func (e *Engine) pollStore(gen int64) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
		defer cancel()

		var (
			list  []model.Notification
			stats *model.Stats
			err   error
		)
		switch e.identity.Role() {
		case RoleAdministrator:
			list, err = e.poller.PollNotifications(ctx)
			if err == nil {
				stats, err = e.poller.PollStats(ctx)
			}
		case RoleNamedUser:
			list, err = e.poller.PollUserNotifications(ctx, e.identity.Username())
		default:
			return
		}

		e.Enqueue(pollCompleted{gen: gen, list: list, stats: stats, err: err})
	}()
}

func (e *Engine) staleEpoch(epoch int64) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return epoch != e.epoch
}

// isDuplicate reports whether the push is already represented. The scan
// is bounded to the head of the working set: duplicates only ever
// arrive close to their original. Caller holds the lock.
func (e *Engine) isDuplicate(n *model.Notification) bool {
	if n.ID != 0 {
		limit := len(e.entries)
		if limit > provisionalWindow {
			limit = provisionalWindow
		}
		for _, ex := range e.entries[:limit] {
			if ex.ID == n.ID {
				return true
			}
		}
		return false
	}

	key := compositeKey(n)
	for _, k := range e.recentKeys {
		if k == key {
			return true
		}
	}

	// The key window is rebuilt on every poll, so a transport duplicate
	// arriving after its original was confirmed would slip through it.
	// Match the head entries as well, confirmed ones included.
	limit := len(e.entries)
	if limit > provisionalWindow {
		limit = provisionalWindow
	}
	for i := range e.entries[:limit] {
		if sameAlert(n, &e.entries[i]) {
			return true
		}
	}
	return false
}

func (e *Engine) rememberKey(key string) {
	e.recentKeys = append(e.recentKeys, key)
	if len(e.recentKeys) > provisionalWindow {
		e.recentKeys = e.recentKeys[len(e.recentKeys)-provisionalWindow:]
	}
}

func (e *Engine) notifyChange() {
	if e.onChange == nil {
		return
	}
	e.onChange(e.Snapshot())
}

// compositeKey identifies a provisional entry: recipient, message,
// priority and the second-granularity timestamp bucket.
func compositeKey(n *model.Notification) string {
	bucket := int64(0)
	if !n.Timestamp.IsZero() {
		bucket = n.Timestamp.Truncate(time.Second).Unix()
	}
	return fmt.Sprintf("%s|%s|%s|%d", n.RecipientUsername(), n.Message, n.Priority, bucket)
}

// sameAlert reports whether two notifications describe the same logical
// alert: recipient, message, priority and the second-granularity
// timestamp bucket. A provisional push may lack the store-assigned
// timestamp, in which case the bucket is not compared.
func sameAlert(a, b *model.Notification) bool {
	if a.Message != b.Message ||
		a.Priority != b.Priority ||
		a.RecipientUsername() != b.RecipientUsername() {
		return false
	}
	if a.Timestamp.IsZero() || b.Timestamp.IsZero() {
		return true
	}
	return a.Timestamp.Truncate(time.Second).Equal(b.Timestamp.Truncate(time.Second))
}

// confirmedBy reports whether a provisional entry matches an
// authoritative one from the poll.
func confirmedBy(provisional *model.Notification, list []model.Notification) bool {
	for i := range list {
		if sameAlert(provisional, &list[i]) {
			return true
		}
	}
	return false
}
