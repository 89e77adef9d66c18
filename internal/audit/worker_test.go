package audit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWorkerPersistsEmittedEvents(t *testing.T) {
	sink := NewInMemorySink()
	publisher := NewPublisher(discardLogger())
	worker := NewWorker(sink, publisher.Inbox(), discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = worker.Run(ctx)
	}()

	publisher.Emit(ctx, Event{Action: ActionContactCreated, ContactID: 1, PrimaryID: 1})
	publisher.Emit(ctx, Event{Action: ActionClusterMerged, ContactID: 2, PrimaryID: 1, RelinkedIDs: []int64{3}})

	require.Eventually(t, func() bool {
		return len(sink.Events()) == 2
	}, time.Second, 5*time.Millisecond)

	events := sink.Events()
	assert.Equal(t, ActionContactCreated, events[0].Action)
	assert.NotEmpty(t, events[0].ID)
	assert.False(t, events[0].Timestamp.IsZero())
	assert.Equal(t, []int64{3}, events[1].RelinkedIDs)

	cancel()
	<-done
}

func TestWorkerStopsOnContextCancel(t *testing.T) {
	publisher := NewPublisher(discardLogger())
	worker := NewWorker(NewInMemorySink(), publisher.Inbox(), discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := worker.Run(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestEmitDropsWhenInboxFull(t *testing.T) {
	publisher := NewPublisher(discardLogger())
	// No worker draining: fill the inbox past capacity. Emit must not block.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < defaultInboxSize+10; i++ {
			publisher.Emit(context.Background(), Event{Action: ActionContactCreated, ContactID: int64(i)})
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked on a full inbox")
	}
	assert.Len(t, publisher.inbox, defaultInboxSize)
}

func TestNilPublisherEmitIsSafe(t *testing.T) {
	var publisher *Publisher
	publisher.Emit(context.Background(), Event{Action: ActionContactCreated})
}
