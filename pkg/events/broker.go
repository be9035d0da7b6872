package events

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	TopicContent    = "content"
	TopicImages     = "images"
	TopicQueue      = "queue"
	TopicAttributes = "attributes"
	TopicErrors     = "errors"
	TopicHistory    = "history"
)

var Topics = []string{TopicContent, TopicImages, TopicQueue, TopicAttributes, TopicErrors, TopicHistory}

const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
	ActionReset   = "reset"
)

const defaultBuffer = 64

var droppedEvents = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "stacks_events_dropped_total",
	Help: "Events dropped because a subscriber wasn't keeping up",
}, []string{"topic"})

// Event tells subscribers that a class of entities changed. Subscribers
// re-read what they need.
type Event struct {
	Topic      string    `json:"topic"`
	Action     string    `json:"action"`
	ContentIDs []int     `json:"content_ids,omitempty"`
	At         time.Time `json:"at"`
}

// Publisher is what services need to announce committed writes.
type Publisher interface {
	Publish(topic, action string, contentIDs ...int)
}

type discard struct{}

func (discard) Publish(string, string, ...int) {}

// Discard is a Publisher that drops everything.
var Discard Publisher = discard{}

// Broker fans events out to subscribers by topic.
type Broker struct {
	mu   sync.RWMutex
	subs map[*Subscription]struct{}
}

func NewBroker() *Broker {
	return &Broker{subs: map[*Subscription]struct{}{}}
}

type Subscription struct {
	C <-chan Event

	ch     chan Event
	topics map[string]struct{}
	broker *Broker
	once   sync.Once
}

// Subscribe registers a subscription for the given topics, or for every
// topic when none are given.
func (b *Broker) Subscribe(topics ...string) *Subscription {
	ch := make(chan Event, defaultBuffer)
	sub := &Subscription{C: ch, ch: ch, topics: map[string]struct{}{}, broker: b}
	for _, t := range topics {
		sub.topics[t] = struct{}{}
	}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

// Close unregisters the subscription and closes its channel.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.broker.mu.Lock()
		delete(s.broker.subs, s)
		close(s.ch)
		s.broker.mu.Unlock()
	})
}

func (s *Subscription) wants(topic string) bool {
	if len(s.topics) == 0 {
		return true
	}
	_, ok := s.topics[topic]
	return ok
}

// Publish never blocks. A subscriber whose buffer is full misses the event.
func (b *Broker) Publish(topic, action string, contentIDs ...int) {
	evt := Event{Topic: topic, Action: action, ContentIDs: contentIDs, At: time.Now()}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs {
		if !sub.wants(topic) {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			droppedEvents.WithLabelValues(topic).Inc()
		}
	}
}

// Subscribers returns the number of open subscriptions.
func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
