// Package events fans workspace change notifications out to change-feed
// subscribers.
package events

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/corvex/corvex/internal/metrics"
	"github.com/corvex/corvex/internal/models"
	"github.com/corvex/corvex/internal/protocol"
)

// DefaultBuffer is the number of events a subscriber may fall behind by
// before further events are dropped for it.
const DefaultBuffer = 64

// Broadcaster delivers every published change to every open Subscription.
// Publishing never blocks on a slow subscriber.
type Broadcaster struct {
	buffer int

	mu   sync.RWMutex
	subs map[*Subscription]struct{}
}

// Subscription is one change-feed listener.
type Subscription struct {
	b      *Broadcaster
	ch     chan protocol.ChangeEvent
	closed sync.Once
}

// NewBroadcaster returns a broadcaster with DefaultBuffer per subscriber.
func NewBroadcaster() *Broadcaster {
	return NewBroadcasterSize(DefaultBuffer)
}

// NewBroadcasterSize returns a broadcaster whose subscribers buffer up to
// buffer events.
func NewBroadcasterSize(buffer int) *Broadcaster {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Broadcaster{buffer: buffer, subs: make(map[*Subscription]struct{})}
}

// Subscribe opens a subscription. Close it when done.
func (b *Broadcaster) Subscribe() *Subscription {
	s := &Subscription{b: b, ch: make(chan protocol.ChangeEvent, b.buffer)}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	n := len(b.subs)
	b.mu.Unlock()
	metrics.SetSSEConnectionsActive(int64(n))
	return s
}

// Events returns the channel changes arrive on. It is closed by Close.
func (s *Subscription) Events() <-chan protocol.ChangeEvent {
	return s.ch
}

// Close detaches the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.closed.Do(func() {
		s.b.mu.Lock()
		delete(s.b.subs, s)
		close(s.ch)
		n := len(s.b.subs)
		s.b.mu.Unlock()
		metrics.SetSSEConnectionsActive(int64(n))
	})
}

// Publish stamps event and hands it to every subscriber with room for it.
// It returns how many subscribers missed it.
func (b *Broadcaster) Publish(event protocol.ChangeEvent) int {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().Unix()
	}
	dropped := 0
	b.mu.RLock()
	for s := range b.subs {
		select {
		case s.ch <- event:
		default:
			dropped++
		}
	}
	b.mu.RUnlock()
	metrics.RecordSSEEvent(event.Type)
	return dropped
}

// Count returns the number of open subscriptions.
func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Created describes a new file or folder at path.
func Created(kind models.Kind, path string) protocol.ChangeEvent {
	return protocol.ChangeEvent{Type: protocol.EventCreate, Kind: kind.String(), Path: path}
}

// Deleted describes the removal of path and everything below it.
func Deleted(kind models.Kind, path string) protocol.ChangeEvent {
	return protocol.ChangeEvent{Type: protocol.EventDelete, Kind: kind.String(), Path: path}
}

// Relocated describes a rename or move from oldPath to newPath. eventType
// is protocol.EventRename or protocol.EventMove.
func Relocated(eventType string, kind models.Kind, oldPath, newPath string) protocol.ChangeEvent {
	return protocol.ChangeEvent{Type: eventType, Kind: kind.String(), Path: oldPath, NewPath: newPath}
}

// Modified describes new content saved to the file at path.
func Modified(path string) protocol.ChangeEvent {
	return protocol.ChangeEvent{Type: protocol.EventModify, Kind: models.KindFile.String(), Path: path}
}

// WriteSSE writes event as one server-sent-events frame.
func WriteSSE(w io.Writer, event protocol.ChangeEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
	return err
}
