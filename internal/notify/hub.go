package notify

import (
	"context"

	"github.com/denster32/HealthAI-2030-sub022/internal/types"
)

// Broadcaster pushes a typed payload to connected live clients
type Broadcaster interface {
	Broadcast(kind string, payload interface{}) error
}

// HubNotifier forwards alerts to live WebSocket clients through a Broadcaster
type HubNotifier struct {
	hub Broadcaster
}

// NewHubNotifier creates a notifier backed by a broadcaster
func NewHubNotifier(hub Broadcaster) *HubNotifier {
	return &HubNotifier{hub: hub}
}

// Send implements Notifier
func (h *HubNotifier) Send(ctx context.Context, alert types.Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return h.hub.Broadcast("alert", alert)
}
