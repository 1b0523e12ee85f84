package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishSubscribe_Basic(t *testing.T) {
	eb := New(4)
	defer eb.Close()

	ch := eb.Subscribe(TopicCheckResult, 0)
	eb.Publish(TopicCheckResult, 42, CheckResultPayload{InstanceID: 42, Outcome: "UP"})

	select {
	case ev := <-ch:
		assert.Equal(t, TopicCheckResult, ev.Topic)
		assert.EqualValues(t, 42, ev.InstanceID)
	case <-time.After(time.Second):
		t.Fatal("expected event, got none")
	}
}

func TestSubscribe_InstanceFilter(t *testing.T) {
	eb := New(4)
	defer eb.Close()

	ch := eb.Subscribe(TopicStateChange, 7)
	eb.Publish(TopicStateChange, 9, StateChangePayload{InstanceID: 9})

	select {
	case <-ch:
		t.Fatal("subscriber filtered to instance 7 should not see instance 9's event")
	case <-time.After(50 * time.Millisecond):
	}

	eb.Publish(TopicStateChange, 7, StateChangePayload{InstanceID: 7})
	select {
	case ev := <-ch:
		assert.EqualValues(t, 7, ev.InstanceID)
	case <-time.After(time.Second):
		t.Fatal("expected event for instance 7")
	}
}

func TestPublish_DropsWhenBufferFull(t *testing.T) {
	eb := New(1)
	defer eb.Close()

	ch := eb.Subscribe(TopicRunActiveMonitor, 0)
	eb.Publish(TopicRunActiveMonitor, 1, nil)
	eb.Publish(TopicRunActiveMonitor, 1, nil) // dropped, buffer already full

	<-ch
	select {
	case <-ch:
		t.Fatal("second event should have been dropped")
	default:
	}
}

func TestSubscribeMultiple_RelaysAllTopics(t *testing.T) {
	eb := New(4)
	defer eb.Close()

	mux := eb.SubscribeMultiple(0, TopicScheduleActiveMonitor, TopicDeleteActiveMonitor)
	eb.Publish(TopicScheduleActiveMonitor, 1, nil)
	eb.Publish(TopicDeleteActiveMonitor, 1, nil)

	seen := map[Topic]bool{}
	for i := 0; i < 2; i++ {
		select {
		case ev := <-mux:
			seen[ev.Topic] = true
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for relayed event")
		}
	}
	require.True(t, seen[TopicScheduleActiveMonitor])
	require.True(t, seen[TopicDeleteActiveMonitor])
}

func TestListen_StopListeningRemovesSubscriptionAndStopsRelay(t *testing.T) {
	eb := New(4)
	defer eb.Close()

	mux, handle := eb.Listen(0, TopicScheduleActiveMonitor, TopicDeleteActiveMonitor)
	eb.Publish(TopicScheduleActiveMonitor, 1, nil)

	select {
	case <-mux:
	case <-time.After(time.Second):
		t.Fatal("expected event before StopListening")
	}

	eb.StopListening(handle)

	eb.mu.RLock()
	for _, sub := range eb.subscribers[TopicScheduleActiveMonitor] {
		assert.NotEqual(t, handle.subs[0], sub)
	}
	eb.mu.RUnlock()

	eb.Publish(TopicScheduleActiveMonitor, 1, nil)
	eb.Publish(TopicDeleteActiveMonitor, 1, nil)
	select {
	case ev, ok := <-mux:
		t.Fatalf("expected no further events after StopListening, got %+v (open=%v)", ev, ok)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestStopListening_Nil_IsNoOp(t *testing.T) {
	eb := New(4)
	defer eb.Close()
	eb.StopListening(nil)
}

func TestClose_ClosesSubscriberChannels(t *testing.T) {
	eb := New(1)
	ch := eb.Subscribe(TopicCheckResult, 0)
	eb.Close()

	_, ok := <-ch
	assert.False(t, ok)
}
