// Package poller drives a payment status lookup loop until the gateway
// reports a terminal outcome, the user cancels, or the local deadline passes.
package poller

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Franc-dev/donate-artist/internal/clock"
	"github.com/Franc-dev/donate-artist/internal/observability/metrics"
	"github.com/Franc-dev/donate-artist/internal/payment/classifier"
)

type Status string

const (
	StatusProcessing Status = "processing"
	StatusSuccess    Status = "success"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
	StatusTimeout    Status = "timeout"
)

// Origin tells who decided a terminal result.
type Origin string

const (
	OriginGateway Origin = "gateway"
	OriginUser    Origin = "user"
	OriginLocal   Origin = "local"
)

const (
	MessageTimeout          = "Payment timed out. Please try again."
	MessageUserCancelled    = "Payment cancelled by user."
	MessageMissingReference = "Payment reference missing"
	MessageStopped          = "Payment status polling stopped"
)

const eventBuffer = 64

// Source answers one status query for a reference. A returned error is
// treated as inconclusive.
type Source interface {
	Query(ctx context.Context, reference string) (classifier.Classification, error)
}

type Config struct {
	PendingInterval time.Duration
	ErrorInterval   time.Duration
	Timeout         time.Duration
}

func DefaultConfig() Config {
	return Config{
		PendingInterval: 2 * time.Second,
		ErrorInterval:   3 * time.Second,
		Timeout:         60 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.PendingInterval <= 0 {
		c.PendingInterval = def.PendingInterval
	}
	if c.ErrorInterval <= 0 {
		c.ErrorInterval = def.ErrorInterval
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	return c
}

// Event is one observation made while a session runs.
type Event struct {
	Reference      string    `json:"reference"`
	Attempt        int       `json:"attempt"`
	Status         Status    `json:"status"`
	Message        string    `json:"message"`
	TransportError bool      `json:"transportError,omitempty"`
	Terminal       bool      `json:"terminal,omitempty"`
	Origin         Origin    `json:"origin,omitempty"`
	At             time.Time `json:"at"`
}

// Result is the single terminal outcome of a session.
type Result struct {
	Reference string        `json:"reference"`
	Status    Status        `json:"status"`
	Message   string        `json:"message"`
	Origin    Origin        `json:"origin"`
	Attempts  int           `json:"attempts"`
	Elapsed   time.Duration `json:"elapsed"`
}

type Poller struct {
	source  Source
	clock   clock.Clock
	cfg     Config
	metrics *metrics.PaymentMetrics
	log     *zap.Logger
}

func New(source Source, clk clock.Clock, cfg Config, m *metrics.PaymentMetrics, log *zap.Logger) *Poller {
	if clk == nil {
		clk = clock.SystemClock{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Poller{
		source:  source,
		clock:   clk,
		cfg:     cfg.withDefaults(),
		metrics: m,
		log:     log.Named("payment.poller"),
	}
}

// Start launches a session for reference. ctx bounds the whole session;
// its cancellation is a shutdown, not a user cancel.
func (p *Poller) Start(ctx context.Context, reference string) *Session {
	s := &Session{
		poller:    p,
		reference: strings.TrimSpace(reference),
		events:    make(chan Event, eventBuffer),
		done:      make(chan struct{}),
		cancelled: make(chan struct{}),
	}
	go s.run(ctx)
	return s
}

// Session is one running poll loop.
type Session struct {
	poller    *Poller
	reference string

	events    chan Event
	done      chan struct{}
	cancelled chan struct{}
	once      sync.Once

	result Result
}

// Events is closed after the terminal event.
func (s *Session) Events() <-chan Event { return s.events }

// Wait blocks until the session ends.
func (s *Session) Wait() Result {
	<-s.done
	return s.result
}

// Cancel forces a user cancellation. A query already in flight is not
// aborted; its answer is ignored, as it is after the deadline.
func (s *Session) Cancel() {
	s.once.Do(func() { close(s.cancelled) })
}

// Retry stops this session and starts a fresh one on the same reference with
// a new attempt count and deadline.
func (s *Session) Retry(ctx context.Context) *Session {
	s.Cancel()
	<-s.done
	return s.poller.Start(ctx, s.reference)
}

type answer struct {
	classification classifier.Classification
	err            error
}

func (s *Session) run(ctx context.Context) {
	p := s.poller
	started := p.clock.Now()
	deadline := started.Add(p.cfg.Timeout)
	expired := p.clock.Deadline(deadline)
	attempts := 0

	finish := func(status Status, message string, origin Origin) {
		s.result = Result{
			Reference: s.reference,
			Status:    status,
			Message:   message,
			Origin:    origin,
			Attempts:  attempts,
			Elapsed:   p.clock.Now().Sub(started),
		}
		s.emit(Event{
			Reference: s.reference,
			Attempt:   attempts,
			Status:    status,
			Message:   message,
			Terminal:  true,
			Origin:    origin,
			At:        p.clock.Now(),
		})
		p.metrics.RecordPollOutcome(string(status), string(origin), s.result.Elapsed)
		p.log.Info("payment poll finished",
			zap.String("payment_reference", s.reference),
			zap.String("status", string(status)),
			zap.String("origin", string(origin)),
			zap.Int("attempts", attempts),
		)
		close(s.events)
		close(s.done)
	}

	if s.reference == "" {
		finish(StatusFailed, MessageMissingReference, OriginLocal)
		return
	}

	for {
		select {
		case <-s.cancelled:
			finish(StatusCancelled, MessageUserCancelled, OriginUser)
			return
		case <-ctx.Done():
			finish(StatusCancelled, MessageStopped, OriginLocal)
			return
		default:
		}

		if !p.clock.Now().Before(deadline) {
			finish(StatusTimeout, MessageTimeout, OriginLocal)
			return
		}

		attempts++
		replies := make(chan answer, 1)
		go func() {
			c, err := p.source.Query(ctx, s.reference)
			replies <- answer{classification: c, err: err}
		}()

		// A reply that arrives after cancel or the deadline is dropped.
		var reply answer
		select {
		case <-s.cancelled:
			finish(StatusCancelled, MessageUserCancelled, OriginUser)
			return
		case <-ctx.Done():
			finish(StatusCancelled, MessageStopped, OriginLocal)
			return
		case <-expired:
			finish(StatusTimeout, MessageTimeout, OriginLocal)
			return
		case reply = <-replies:
		}

		wait := p.cfg.PendingInterval
		switch {
		case reply.err != nil:
			p.metrics.RecordPollQuery(metrics.PollResultTransport)
			p.log.Debug("payment status query inconclusive",
				zap.String("payment_reference", s.reference),
				zap.Int("attempt", attempts),
				zap.Error(reply.err),
			)
			s.emit(Event{
				Reference:      s.reference,
				Attempt:        attempts,
				Status:         StatusProcessing,
				Message:        classifier.MessageProcessing,
				TransportError: true,
				At:             p.clock.Now(),
			})
			wait = p.cfg.ErrorInterval
		case reply.classification.Bucket.Terminal():
			p.metrics.RecordPollQuery(metrics.PollResultTerminal)
			finish(statusFor(reply.classification.Bucket), reply.classification.Message, OriginGateway)
			return
		default:
			p.metrics.RecordPollQuery(metrics.PollResultPending)
			s.emit(Event{
				Reference: s.reference,
				Attempt:   attempts,
				Status:    StatusProcessing,
				Message:   reply.classification.Message,
				At:        p.clock.Now(),
			})
		}

		if remaining := deadline.Sub(p.clock.Now()); remaining < wait {
			wait = remaining
		}
		if wait <= 0 {
			continue
		}
		select {
		case <-p.clock.After(wait):
		case <-s.cancelled:
			finish(StatusCancelled, MessageUserCancelled, OriginUser)
			return
		case <-ctx.Done():
			finish(StatusCancelled, MessageStopped, OriginLocal)
			return
		}
	}
}

// emit never blocks the loop; slow readers lose intermediate events but can
// always read the terminal result through Wait.
func (s *Session) emit(ev Event) {
	select {
	case s.events <- ev:
	default:
		s.poller.log.Debug("payment poll event dropped",
			zap.String("payment_reference", s.reference),
			zap.Int("attempt", ev.Attempt),
		)
	}
}

func statusFor(b classifier.Bucket) Status {
	switch b {
	case classifier.BucketCompleted:
		return StatusSuccess
	case classifier.BucketCancelled:
		return StatusCancelled
	default:
		return StatusFailed
	}
}
