package server

import (
	"context"
	"sync"
	"time"
)

const (
	// RealtimeEventPreferenceChanged announces committed mutations of an entity's preferences.
	RealtimeEventPreferenceChanged = "preference-change"
	realtimeEventHeartbeat         = "heartbeat"
	realtimeSourceBackend          = "plangrid-store"
)

// RealtimeMessage is one change notification scoped to a "resource/uuid" entity key.
type RealtimeMessage struct {
	EntityKey   string
	EventType   string
	CellIndexes []string
	Timestamp   time.Time
}

// RealtimeDispatcher fans change notifications out to stream subscribers.
type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*realtimeSubscriber
	nextID      int64
	bufferSize  int
}

type realtimeSubscriber struct {
	id     int64
	stream chan RealtimeMessage
}

func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{
		subscribers: make(map[string]map[int64]*realtimeSubscriber),
		bufferSize:  16,
	}
}

// Subscribe registers a stream for the entity until ctx is done or cleanup is called.
func (d *RealtimeDispatcher) Subscribe(ctx context.Context, entityKey string) (<-chan RealtimeMessage, func()) {
	if entityKey == "" {
		ch := make(chan RealtimeMessage)
		close(ch)
		return ch, func() {}
	}
	subscriber := &realtimeSubscriber{
		id:     d.nextSequence(),
		stream: make(chan RealtimeMessage, d.bufferSize),
	}
	d.registerSubscriber(entityKey, subscriber)
	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			d.unregisterSubscriber(entityKey, subscriber.id)
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

// Publish delivers the message to every subscriber of its entity. Slow subscribers drop messages.
func (d *RealtimeDispatcher) Publish(message RealtimeMessage) {
	if message.EntityKey == "" || message.EventType == "" {
		return
	}
	d.mu.RLock()
	subscribers := d.subscribers[message.EntityKey]
	if len(subscribers) == 0 {
		d.mu.RUnlock()
		return
	}
	copies := make([]*realtimeSubscriber, 0, len(subscribers))
	for _, subscriber := range subscribers {
		copies = append(copies, subscriber)
	}
	d.mu.RUnlock()
	for _, subscriber := range copies {
		select {
		case subscriber.stream <- message:
		default:
		}
	}
}

// SubscriberCount returns the number of open streams for an entity.
func (d *RealtimeDispatcher) SubscriberCount(entityKey string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers[entityKey])
}

func (d *RealtimeDispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *RealtimeDispatcher) registerSubscriber(entityKey string, subscriber *realtimeSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscribers[entityKey]; !ok {
		d.subscribers[entityKey] = make(map[int64]*realtimeSubscriber)
	}
	d.subscribers[entityKey][subscriber.id] = subscriber
}

func (d *RealtimeDispatcher) unregisterSubscriber(entityKey string, subscriberID int64) {
	d.mu.Lock()
	subscribers := d.subscribers[entityKey]
	if subscribers != nil {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(d.subscribers, entityKey)
		}
	}
	d.mu.Unlock()
}
