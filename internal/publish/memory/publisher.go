// Package memory records run notifications in memory for tests and dev runs.
package memory

import (
	"context"
	"fmt"
	"sync"
)

// Notification is one recorded run announcement.
type Notification struct {
	Topic   string
	RunID   string
	Payload any
}

// Publisher implements publish.Publisher by keeping every notification in
// memory. Safe for concurrent use.
type Publisher struct {
	mu    sync.RWMutex
	notes []Notification
}

// New returns an empty recorder.
func New() *Publisher {
	return &Publisher{}
}

// Publish records the notification and returns a sequential pseudo ID. The
// run ID is lifted out of the payload when it carries one, so tests can
// assert on runs without digging through the payload shape.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notes = append(p.notes, Notification{
		Topic:   topic,
		RunID:   payloadRunID(payload),
		Payload: payload,
	})
	return fmt.Sprintf("note-%d", len(p.notes)), nil
}

// Notifications returns a copy of everything recorded so far.
func (p *Publisher) Notifications() []Notification {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Notification, len(p.notes))
	copy(out, p.notes)
	return out
}

// payloadRunID extracts the run_id field from the map payloads the scrape
// handler publishes; other payload shapes record an empty run ID.
func payloadRunID(payload any) string {
	m, ok := payload.(map[string]any)
	if !ok {
		return ""
	}
	id, _ := m["run_id"].(string)
	return id
}
