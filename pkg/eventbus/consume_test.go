package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStream hands out a pre-loaded message channel per subject.
type fakeStream struct {
	msgs chan Message
	err  error
}

func (f *fakeStream) Subscribe(subject string) (<-chan Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.msgs, nil
}

func collectorHandler() (func(context.Context, DriverRejectedEvent) error, func() []DriverRejectedEvent) {
	var mu sync.Mutex
	var got []DriverRejectedEvent
	handler := func(_ context.Context, e DriverRejectedEvent) error {
		mu.Lock()
		got = append(got, e)
		mu.Unlock()
		return nil
	}
	snapshot := func() []DriverRejectedEvent {
		mu.Lock()
		defer mu.Unlock()
		return append([]DriverRejectedEvent(nil), got...)
	}
	return handler, snapshot
}

func TestConsumeDispatchesDecodedEvents(t *testing.T) {
	stream := &fakeStream{msgs: make(chan Message, 4)}
	handler, snapshot := collectorHandler()

	event := DriverRejectedEvent{RideID: uuid.New(), DriverID: uuid.New()}
	data, _ := json.Marshal(event)
	stream.msgs <- Message{Subject: SubjectDriverRejected, Data: data}

	require.NoError(t, Consume(context.Background(), stream, SubjectDriverRejected, handler))

	require.Eventually(t, func() bool { return len(snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, event, snapshot()[0])
}

func TestConsumeDropsUndecodableAndInvalidMessages(t *testing.T) {
	stream := &fakeStream{msgs: make(chan Message, 4)}
	handler, snapshot := collectorHandler()

	good := DriverRejectedEvent{RideID: uuid.New(), DriverID: uuid.New()}
	goodData, _ := json.Marshal(good)
	missingDriver, _ := json.Marshal(DriverRejectedEvent{RideID: uuid.New()})

	stream.msgs <- Message{Subject: SubjectDriverRejected, Data: []byte("{broken")}
	stream.msgs <- Message{Subject: SubjectDriverRejected, Data: missingDriver}
	stream.msgs <- Message{Subject: SubjectDriverRejected, Data: goodData}

	require.NoError(t, Consume(context.Background(), stream, SubjectDriverRejected, handler))

	// Only the well-formed event reaches the handler; the consumer advances
	// past the broken ones.
	require.Eventually(t, func() bool { return len(snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, good, snapshot()[0])
}

func TestConsumeSurvivesHandlerErrors(t *testing.T) {
	stream := &fakeStream{msgs: make(chan Message, 4)}

	var mu sync.Mutex
	var calls int
	handler := func(context.Context, DriverRejectedEvent) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return errors.New("downstream down")
	}

	for i := 0; i < 3; i++ {
		data, _ := json.Marshal(DriverRejectedEvent{RideID: uuid.New(), DriverID: uuid.New()})
		stream.msgs <- Message{Subject: SubjectDriverRejected, Data: data}
	}

	require.NoError(t, Consume(context.Background(), stream, SubjectDriverRejected, handler))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls == 3
	}, time.Second, 5*time.Millisecond)
}

func TestConsumeSubscribeFailure(t *testing.T) {
	stream := &fakeStream{err: errors.New("no connection")}
	handler, _ := collectorHandler()

	err := Consume(context.Background(), stream, SubjectDriverRejected, handler)
	require.Error(t, err)
}

func TestConsumeStopsOnContextCancel(t *testing.T) {
	stream := &fakeStream{msgs: make(chan Message, 1)}
	handler, snapshot := collectorHandler()

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, Consume(ctx, stream, SubjectDriverRejected, handler))
	cancel()

	// Give the consumer a beat to observe cancellation, then verify later
	// messages go unprocessed.
	time.Sleep(50 * time.Millisecond)
	data, _ := json.Marshal(DriverRejectedEvent{RideID: uuid.New(), DriverID: uuid.New()})
	stream.msgs <- Message{Subject: SubjectDriverRejected, Data: data}

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, snapshot())
}
