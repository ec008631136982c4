package memory

import (
	"context"
	"sync"

	"wheelshare/contexts/vehicle-governance/governance-engine/ports"
)

// SentNotification is one recorded dispatch, kept for test assertions.
type SentNotification struct {
	VoterIDs []string
	Event    ports.NotificationEvent
}

// Dispatcher is an in-memory notification collaborator.
type Dispatcher struct {
	mu   sync.Mutex
	sent []SentNotification
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

func (d *Dispatcher) Notify(_ context.Context, voterIDs []string, event ports.NotificationEvent) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, SentNotification{
		VoterIDs: append([]string(nil), voterIDs...),
		Event:    event,
	})
	return nil
}

func (d *Dispatcher) Sent() []SentNotification {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]SentNotification(nil), d.sent...)
}

var _ ports.NotificationDispatcher = (*Dispatcher)(nil)
