package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/openmusicplayer/bilimusic/internal/download"
)

const (
	// Redis keys
	keyEvents = "bilimusic:events"
	keyJob    = "bilimusic:job:"

	// DefaultFinishedTTL is how long a finished job stays readable in Redis
	DefaultFinishedTTL = 24 * time.Hour
)

var ErrJobNotFound = errors.New("job not found")

// RedisPublisher mirrors the event stream onto Redis pub/sub and keeps the
// latest snapshot of every job under its own key, so other processes can
// follow downloads without talking to the scheduler.
type RedisPublisher struct {
	client *redis.Client
	lookup SnapshotFunc
	ttl    time.Duration
}

func NewRedisPublisher(client *redis.Client, lookup SnapshotFunc, finishedTTL time.Duration) *RedisPublisher {
	if finishedTTL <= 0 {
		finishedTTL = DefaultFinishedTTL
	}
	return &RedisPublisher{client: client, lookup: lookup, ttl: finishedTTL}
}

func (p *RedisPublisher) Name() string { return "redis" }

func (p *RedisPublisher) Handle(ctx context.Context, ev download.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := p.client.Publish(ctx, keyEvents, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	// Progress ticks are published only; the stored snapshot follows status
	if ev.Kind == download.EventProgress || p.lookup == nil {
		return nil
	}
	snap, ok := p.lookup(ev.JobID)
	if !ok {
		return nil
	}

	var ttl time.Duration
	if IsFinal(ev) {
		ttl = p.ttl
	}
	return p.saveJob(ctx, snap, ttl)
}

func (p *RedisPublisher) saveJob(ctx context.Context, snap download.Snapshot, ttl time.Duration) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	if err := p.client.Set(ctx, keyJob+string(snap.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	return nil
}

// GetJob reads the last stored snapshot of a job
func (p *RedisPublisher) GetJob(ctx context.Context, id download.JobID) (*download.Snapshot, error) {
	data, err := p.client.Get(ctx, keyJob+string(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	var snap download.Snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &snap, nil
}

// Subscribe follows the published event stream
func (p *RedisPublisher) Subscribe(ctx context.Context) (*Subscription, error) {
	pubsub := p.client.Subscribe(ctx, keyEvents)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}
	return &Subscription{pubsub: pubsub, ch: pubsub.Channel()}, nil
}

// Subscription wraps a Redis pub/sub subscription for job events
type Subscription struct {
	pubsub *redis.PubSub
	ch     <-chan *redis.Message
}

// Channel returns a channel of decoded events. Malformed payloads are
// dropped. The channel closes when the subscription does.
func (s *Subscription) Channel() <-chan download.Event {
	out := make(chan download.Event)

	go func() {
		defer close(out)
		for msg := range s.ch {
			var ev download.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				continue
			}
			out <- ev
		}
	}()

	return out
}

func (s *Subscription) Close() error {
	return s.pubsub.Close()
}
