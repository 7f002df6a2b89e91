package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestBusPublishesToRedis(t *testing.T) {
	mini, err := miniredis.Run()
	require.NoError(t, err)
	defer mini.Close()

	client := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	defer client.Close()

	bus := NewBus(client, nil, "school:tugas", zerolog.Nop())
	require.Equal(t, "school:tugas:submissions", bus.RedisChannel())
	require.Equal(t, "school.tugas.submissions", bus.NATSSubject())

	ctx := context.Background()
	sub := client.Subscribe(ctx, bus.RedisChannel())
	defer sub.Close()
	_, err = sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, Event{
		Type:          TypeSubmitted,
		AssignmentID:  4,
		StudentID:     9,
		SubmissionID:  12,
		Status:        "submitted",
		RejectedFiles: []string{"virus.exe"},
	}))

	select {
	case msg := <-sub.Channel():
		var event Event
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &event))
		require.Equal(t, TypeSubmitted, event.Type)
		require.Equal(t, uint(12), event.SubmissionID)
		require.Equal(t, []string{"virus.exe"}, event.RejectedFiles)
		require.NotEmpty(t, event.ID)
		require.NotEmpty(t, event.Source)
		require.False(t, event.OccurredAt.IsZero())
	case <-time.After(2 * time.Second):
		t.Fatal("event not received")
	}
}

func TestBusWithoutTransportsIsNoop(t *testing.T) {
	bus := NewBus(nil, nil, "", zerolog.Nop())
	require.Equal(t, "tugas:submissions", bus.RedisChannel())
	require.NoError(t, bus.Publish(context.Background(), Event{Type: TypeGraded}))
	require.NoError(t, Nop{}.Publish(context.Background(), Event{}))
}

func TestConsumeSkipsOwnEvents(t *testing.T) {
	mini, err := miniredis.Run()
	require.NoError(t, err)
	defer mini.Close()

	client := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	defer client.Close()

	producer := NewBus(client, nil, "tugas", zerolog.Nop())
	consumer := NewBus(client, nil, "tugas", zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan Event, 4)
	require.NoError(t, consumer.Consume(ctx, func(event Event) { received <- event }))

	require.NoError(t, consumer.Publish(ctx, Event{Type: TypeDraftSaved}))
	require.NoError(t, producer.Publish(ctx, Event{Type: TypeCancelled, SubmissionID: 3}))

	select {
	case event := <-received:
		require.Equal(t, TypeCancelled, event.Type)
		require.Equal(t, uint(3), event.SubmissionID)
	case <-time.After(2 * time.Second):
		t.Fatal("event not consumed")
	}
	require.Empty(t, received)
}
