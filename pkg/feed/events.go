package feed

import "github.com/nsyszr/notify/pkg/model"

// The engine consumes all inputs as discrete events on one queue,
// processed by a single goroutine. Transport callbacks, timer callbacks
// and mutation results only ever enqueue; nothing outside the consumer
// loop touches engine state.

type event interface {
	isEvent()
}

// sessionEstablished announces a new session epoch. Pushes and poll
// triggers tagged with an older epoch are discarded from then on.
type sessionEstablished struct {
	epoch int64
}

// pushReceived carries a notification delivered on a live topic.
type pushReceived struct {
	epoch        int64
	notification model.Notification
}

// reconcileRequested asks for a debounced store poll. A zero epoch
// marks a trigger that is not session-scoped (e.g. a completed admin
// mutation).
type reconcileRequested struct {
	epoch int64
}

// timerFired signals the end of a debounce window.
type timerFired struct{}

// pollCompleted delivers the outcome of one reconciliation poll.
type pollCompleted struct {
	gen   int64
	list  []model.Notification
	stats *model.Stats
	err   error
}

// mutationCompleted reports a store mutation confirmed by the gateway.
type mutationCompleted struct {
	deletedID int64
}

func (sessionEstablished) isEvent() {}
func (pushReceived) isEvent()       {}
func (reconcileRequested) isEvent() {}
func (timerFired) isEvent()         {}
func (pollCompleted) isEvent()      {}
func (mutationCompleted) isEvent()  {}
