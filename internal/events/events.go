// Package events fans submission lifecycle events out to notification
// consumers over Redis pub/sub and NATS.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Event types emitted after a successful transition.
const (
	TypeDraftSaved = "submission.draft_saved"
	TypeSubmitted  = "submission.submitted"
	TypeCancelled  = "submission.cancelled"
	TypeGraded     = "submission.graded"
)

// Event describes one committed submission transition.
type Event struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	Source        string    `json:"source"`
	AssignmentID  uint      `json:"assignment_id"`
	StudentID     uint      `json:"student_id"`
	SubmissionID  uint      `json:"submission_id"`
	Status        string    `json:"status"`
	ActorID       uint      `json:"actor_id"`
	ActorRole     string    `json:"actor_role"`
	RejectedFiles []string  `json:"rejected_files,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Publisher delivers events to interested consumers.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Bus publishes to whichever transports are configured. Either client may be nil.
type Bus struct {
	redis        *redis.Client
	redisChannel string
	nats         *nats.Conn
	natsSubject  string
	nodeID       string
	logger       zerolog.Logger
}

// NewBus derives the Redis channel and NATS subject from channelBase,
// e.g. "tugas" → "tugas:submissions" and "tugas.submissions".
func NewBus(redisClient *redis.Client, natsConn *nats.Conn, channelBase string, logger zerolog.Logger) *Bus {
	base := strings.TrimSpace(channelBase)
	if base == "" {
		base = "tugas"
	}
	return &Bus{
		redis:        redisClient,
		redisChannel: base + ":submissions",
		nats:         natsConn,
		natsSubject:  strings.ReplaceAll(base, ":", ".") + ".submissions",
		nodeID:       uuid.NewString(),
		logger:       logger.With().Str("component", "event_bus").Logger(),
	}
}

// RedisChannel returns the pub/sub channel events are published on.
func (b *Bus) RedisChannel() string {
	return b.redisChannel
}

// NATSSubject returns the subject events are published on.
func (b *Bus) NATSSubject() string {
	return b.natsSubject
}

func (b *Bus) Publish(ctx context.Context, event Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	event.Source = b.nodeID

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	var errs []error
	if b.redis != nil {
		if err := b.redis.Publish(ctx, b.redisChannel, payload).Err(); err != nil {
			errs = append(errs, err)
		}
	}
	if b.nats != nil {
		if err := b.nats.Publish(b.natsSubject, payload); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	b.logger.Debug().Str("event_type", event.Type).Uint("submission_id", event.SubmissionID).Msg("event published")
	return nil
}

// Handler receives events published by other nodes.
type Handler func(Event)

// Consume delivers events from the configured transport to handler until ctx
// is done. Redis is preferred when both transports are set. Events published
// by this node are skipped.
func (b *Bus) Consume(ctx context.Context, handler Handler) error {
	switch {
	case b.redis != nil:
		pubsub := b.redis.Subscribe(ctx, b.redisChannel)
		if _, err := pubsub.Receive(ctx); err != nil {
			_ = pubsub.Close()
			return err
		}
		go func() {
			defer func() { _ = pubsub.Close() }()
			for {
				msg, err := pubsub.ReceiveMessage(ctx)
				if err != nil {
					if !errors.Is(err, context.Canceled) {
						b.logger.Error().Err(err).Msg("event redis subscription closed")
					}
					return
				}
				b.dispatch([]byte(msg.Payload), handler)
			}
		}()
	case b.nats != nil:
		sub, err := b.nats.QueueSubscribe(b.natsSubject, "tugas-events", func(msg *nats.Msg) {
			b.dispatch(msg.Data, handler)
		})
		if err != nil {
			return err
		}
		go func() {
			<-ctx.Done()
			if err := sub.Drain(); err != nil {
				b.logger.Warn().Err(err).Msg("failed to drain event nats subscription")
			}
		}()
	}
	return nil
}

func (b *Bus) dispatch(payload []byte, handler Handler) {
	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		b.logger.Warn().Err(err).Msg("invalid event payload")
		return
	}
	if event.Source == b.nodeID {
		return
	}
	handler(event)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
