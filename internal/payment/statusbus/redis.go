// Package statusbus fans payment status events out over Redis pub/sub so
// that any replica holding an open status stream sees every callback.
package statusbus

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Franc-dev/donate-artist/internal/payment/domain"
)

const channelPrefix = "payment:status:"

func Channel(reference string) string {
	return channelPrefix + strings.TrimSpace(reference)
}

type Bus struct {
	client *redis.Client
	log    *zap.Logger
}

func New(client *redis.Client, log *zap.Logger) *Bus {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bus{client: client, log: log.Named("payment.statusbus")}
}

func (b *Bus) Publish(ctx context.Context, event domain.StatusEvent) error {
	if strings.TrimSpace(event.Reference) == "" {
		return domain.ErrMissingReference
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, Channel(event.Reference), payload).Err()
}

func (b *Bus) Subscribe(ctx context.Context, reference string) (domain.Subscription, error) {
	if strings.TrimSpace(reference) == "" {
		return nil, domain.ErrMissingReference
	}
	pubsub := b.client.Subscribe(ctx, Channel(reference))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	sub := &subscription{
		pubsub: pubsub,
		events: make(chan domain.StatusEvent, 8),
		closed: make(chan struct{}),
	}
	go sub.forward(b.log)
	return sub, nil
}

type subscription struct {
	pubsub *redis.PubSub
	events chan domain.StatusEvent
	closed chan struct{}
	once   sync.Once
}

func (s *subscription) Events() <-chan domain.StatusEvent { return s.events }

func (s *subscription) Close() error {
	s.once.Do(func() { close(s.closed) })
	return s.pubsub.Close()
}

func (s *subscription) forward(log *zap.Logger) {
	defer close(s.events)
	for msg := range s.pubsub.Channel() {
		var event domain.StatusEvent
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			log.Warn("discarding malformed status event", zap.String("channel", msg.Channel), zap.Error(err))
			continue
		}
		select {
		case s.events <- event:
		case <-s.closed:
			return
		}
	}
}
