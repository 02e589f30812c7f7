package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventManagerFanout(t *testing.T) {
	em := NewEventManager(testLogger())
	go em.Run()
	ctx := context.Background()

	all, cleanupAll, err := em.Subscribe(nil)
	require.NoError(t, err)
	defer cleanupAll()

	trustOnly, cleanupTrust, err := em.Subscribe(func(evt *Event) bool {
		return evt.Kind == KindTrustUpdated
	})
	require.NoError(t, err)
	defer cleanupTrust()

	payload, _ := json.Marshal(TrustUpdated{UserID: "user-9", Reason: "appeal_upheld"})
	require.NoError(t, em.AddEvent(ctx, &Event{ID: 1, Kind: KindTrustUpdated, Payload: payload}))
	require.NoError(t, em.AddEvent(ctx, &Event{ID: 2, Kind: KindModerationActionRequested}))

	recv := func(ch <-chan *Event) *Event {
		select {
		case evt := <-ch:
			return evt
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
			return nil
		}
	}

	evt := recv(all)
	assert.Equal(t, uint64(1), evt.ID)
	evt = recv(all)
	assert.Equal(t, uint64(2), evt.ID)

	evt = recv(trustOnly)
	assert.Equal(t, KindTrustUpdated, evt.Kind)
	select {
	case extra := <-trustOnly:
		t.Fatalf("filtered subscriber got unexpected event %d", extra.ID)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEventManagerShutdown(t *testing.T) {
	em := NewEventManager(testLogger())
	go em.Run()
	ctx := context.Background()

	em.Shutdown()

	err := em.AddEvent(ctx, &Event{ID: 1, Kind: KindTrustUpdated})
	require.Error(t, err)

	_, _, err = em.Subscribe(nil)
	require.Error(t, err)
}

func TestAddEventHonorsContext(t *testing.T) {
	// no Run loop draining ops, so AddEvent must give up via the context
	em := NewEventManager(testLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := em.AddEvent(ctx, &Event{ID: 1, Kind: KindTrustUpdated})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
