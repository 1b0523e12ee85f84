// Package eventbus is a thread-safe, non-blocking in-process publish-
// subscribe bus. Grounded directly on the teacher's internal/eventbus
// package (same subscriber-channel-per-topic shape, same copy-then-send
// non-blocking Publish, same relay-goroutine SubscribeMultiple), adapted
// from NMS Lite's discovery/monitor topics to the six stable event names
// spec.md §4.7 requires and to per-instance filtering (an observer that
// only cares about one monitor instance shouldn't have to discard every
// other instance's events itself).
package eventbus

import (
	"sync"
	"time"
)

// Topic is the name of an event topic. The six values below are the
// stable names spec.md §4.7 requires observers to be able to rely on.
type Topic string

const (
	TopicScheduleActiveMonitor Topic = "SCHEDULE_ACTIVE_MONITOR"
	TopicCreateActiveMonitor   Topic = "CREATE_ACTIVE_MONITOR"
	TopicRunActiveMonitor      Topic = "RUN_ACTIVE_MONITOR"
	TopicCheckResult           Topic = "ACTIVE_MONITOR_CHECK_RESULT"
	TopicStateChange           Topic = "ACTIVE_MONITOR_STATE_CHANGE"
	TopicDeleteActiveMonitor   Topic = "DELETE_ACTIVE_MONITOR"
)

// Event is one published occurrence. InstanceID is 0 when the event has
// no single owning monitor instance (e.g. a bus-wide notice).
type Event struct {
	Topic      Topic
	InstanceID int64
	Timestamp  time.Time
	Payload    any
}

// CheckResultPayload is published on TopicCheckResult.
type CheckResultPayload struct {
	InstanceID int64
	Outcome    string // "UP" | "DOWN" | "UNKNOWN"
	Message    string
}

// StateChangePayload is published on TopicStateChange.
type StateChangePayload struct {
	InstanceID int64
	From       string
	To         string
	Message    string
}

// subscription is one Subscribe/SubscribeMultiple registration: a channel
// plus the instance filter (0 means "all instances") to apply before send.
type subscription struct {
	ch         chan Event
	instanceID int64 // 0 = no filter
	topic      Topic
}

// Handle identifies a registration returned by Listen/SubscribeMultiple so
// it can later be torn down with StopListening. It is opaque to callers.
type Handle struct {
	subs  []*subscription
	relay []chan struct{} // one stop signal per SubscribeMultiple relay goroutine
}

// EventBus is a thread-safe, non-blocking publish-subscribe bus. Events
// are dropped for any subscriber whose buffer is full rather than
// blocking the publisher.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[Topic][]*subscription
	bufferSize  int
	done        chan struct{}
	wg          sync.WaitGroup
	closeOnce   sync.Once
}

// New creates an EventBus whose subscriber channels are each buffered to
// bufferSize (clamped to a minimum of 1).
func New(bufferSize int) *EventBus {
	if bufferSize < 1 {
		bufferSize = 10
	}
	return &EventBus{
		subscribers: make(map[Topic][]*subscription),
		bufferSize:  bufferSize,
		done:        make(chan struct{}),
	}
}

// Subscribe registers for every event on topic. Pass instanceID > 0 to
// receive only events for that monitor instance; pass 0 for all of them.
func (eb *EventBus) Subscribe(topic Topic, instanceID int64) <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	sub := &subscription{ch: make(chan Event, eb.bufferSize), instanceID: instanceID, topic: topic}
	eb.subscribers[topic] = append(eb.subscribers[topic], sub)
	return sub.ch
}

// SubscribeMultiple registers for several topics at once (optionally
// filtered to one instance) and relays them onto a single channel. The
// registration lives until Close; callers that need to tear down a single
// registration (e.g. on client disconnect) should use Listen instead.
func (eb *EventBus) SubscribeMultiple(instanceID int64, topics ...Topic) <-chan Event {
	ch, _ := eb.listen(instanceID, topics...)
	return ch
}

// Listen is SubscribeMultiple plus a Handle that StopListening can later
// use to remove this registration and stop its relay goroutines, so a
// caller that outlives many short-lived listeners (a WebSocket relay
// across reconnects) doesn't leak a subscriber slot per connection.
func (eb *EventBus) Listen(instanceID int64, topics ...Topic) (<-chan Event, *Handle) {
	return eb.listen(instanceID, topics...)
}

func (eb *EventBus) listen(instanceID int64, topics ...Topic) (<-chan Event, *Handle) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	mux := make(chan Event, eb.bufferSize)
	handle := &Handle{}
	for _, topic := range topics {
		sub := &subscription{ch: make(chan Event, eb.bufferSize), instanceID: instanceID, topic: topic}
		eb.subscribers[topic] = append(eb.subscribers[topic], sub)
		handle.subs = append(handle.subs, sub)

		stop := make(chan struct{})
		handle.relay = append(handle.relay, stop)

		eb.wg.Add(1)
		go func(relay <-chan Event, stop <-chan struct{}) {
			defer eb.wg.Done()
			for {
				select {
				case ev, ok := <-relay:
					if !ok {
						return
					}
					select {
					case mux <- ev:
					default:
					}
				case <-stop:
					return
				case <-eb.done:
					return
				}
			}
		}(sub.ch, stop)
	}
	return mux, handle
}

// StopListening removes every subscription held by handle and stops its
// relay goroutines. Safe to call once per Handle; nil is a no-op.
func (eb *EventBus) StopListening(handle *Handle) {
	if handle == nil {
		return
	}

	eb.mu.Lock()
	for _, sub := range handle.subs {
		list := eb.subscribers[sub.topic]
		for i, s := range list {
			if s == sub {
				eb.subscribers[sub.topic] = append(list[:i], list[i+1:]...)
				break
			}
		}
	}
	eb.mu.Unlock()

	for _, stop := range handle.relay {
		close(stop)
	}
}

// Publish sends an event to every subscriber of topic whose instance
// filter matches (0 or instanceID). Never blocks: a full subscriber
// buffer silently drops the event for that subscriber only.
func (eb *EventBus) Publish(topic Topic, instanceID int64, payload any) {
	eb.mu.RLock()
	subs := eb.subscribers[topic]
	subsCopy := make([]*subscription, len(subs))
	copy(subsCopy, subs)
	eb.mu.RUnlock()

	if len(subsCopy) == 0 {
		return
	}

	event := Event{Topic: topic, InstanceID: instanceID, Timestamp: time.Now(), Payload: payload}
	for _, sub := range subsCopy {
		if sub.instanceID != 0 && sub.instanceID != instanceID {
			continue
		}
		select {
		case sub.ch <- event:
		default:
		}
	}
}

// Close shuts the bus down: every subscriber channel is closed and every
// relay goroutine allowed to finish. The bus must not be used afterward.
func (eb *EventBus) Close() {
	eb.closeOnce.Do(func() {
		close(eb.done)

		eb.mu.Lock()
		for _, subs := range eb.subscribers {
			for _, sub := range subs {
				close(sub.ch)
			}
		}
		eb.subscribers = make(map[Topic][]*subscription)
		eb.mu.Unlock()

		eb.wg.Wait()
	})
}
