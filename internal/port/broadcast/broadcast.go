// Package broadcast defines the port for pushing live coordinator status to
// connected UI clients.
package broadcast

import "context"

// Broadcaster fans a typed event out to every connected client. Delivery is
// best-effort; slow or gone clients never block the coordinator.
type Broadcaster interface {
	BroadcastEvent(ctx context.Context, eventType string, payload any)
}
