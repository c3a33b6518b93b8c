package service

import (
	"context"
	"sync"
	"time"

	"github.com/Franc-dev/donate-artist/internal/donation/domain"
	"github.com/Franc-dev/donate-artist/internal/payment/poller"
)

const watcherBuffer = 64

type attempt struct {
	mu         sync.Mutex
	view       domain.AttemptView
	session    *poller.Session
	settled    chan struct{}
	release    func(context.Context)
	finishedAt time.Time

	// Events of the current poll session, replayed to late subscribers.
	history  []poller.Event
	watchers map[int]chan poller.Event
	nextID   int
}

func newAttempt(view domain.AttemptView, release func(context.Context)) *attempt {
	return &attempt{
		view:     view,
		release:  release,
		watchers: make(map[int]chan poller.Event),
	}
}

func (a *attempt) setState(state domain.State, now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.view.State = state
	a.view.UpdatedAt = now.UTC()
}

// retryableLocked reports whether polling ended without a gateway verdict.
func (a *attempt) retryableLocked() bool {
	return a.view.State == domain.StateDiscarded &&
		a.session != nil &&
		!a.view.Donation.Status.Terminal()
}

func (a *attempt) expired(now time.Time, retention time.Duration) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.view.State.Terminal() && !a.finishedAt.IsZero() && now.Sub(a.finishedAt) > retention
}

func (a *attempt) publish(ev poller.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history = append(a.history, ev)
	if !ev.Terminal {
		a.view.PaymentStatus = ev.Status
		a.view.Message = ev.Message
		a.view.UpdatedAt = ev.At.UTC()
	}
	for _, ch := range a.watchers {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (a *attempt) subscribe() (<-chan poller.Event, func()) {
	a.mu.Lock()
	defer a.mu.Unlock()

	ch := make(chan poller.Event, len(a.history)+watcherBuffer)
	for _, ev := range a.history {
		ch <- ev
	}
	if !a.view.State.InFlight() {
		close(ch)
		return ch, func() {}
	}

	id := a.nextID
	a.nextID++
	a.watchers[id] = ch
	return ch, func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		if w, ok := a.watchers[id]; ok {
			delete(a.watchers, id)
			close(w)
		}
	}
}

// closeWatchers must be called with a.mu held.
func (a *attempt) closeWatchers() {
	for id, ch := range a.watchers {
		close(ch)
		delete(a.watchers, id)
	}
}
