// Package channels holds the delivery adapters. The core only relies on the
// boolean success contract: Send returns nil on delivery, an error otherwise.
// Network semantics beyond that belong to the external services.
package channels

import (
	"context"
	"fmt"

	xerrors "finpost-workers/internal/common/errors"
	"finpost-workers/internal/queue"
)

// Message is what a channel adapter delivers.
type Message struct {
	Platform queue.Platform
	Text     string
	Metadata map[string]interface{}
}

// Sender delivers a message to one platform.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Registry maps platforms to their adapters.
type Registry struct {
	senders map[queue.Platform]Sender
}

func NewRegistry() *Registry {
	return &Registry{senders: make(map[queue.Platform]Sender)}
}

func (r *Registry) Register(platform queue.Platform, s Sender) {
	r.senders[platform] = s
}

// Send routes a message to the adapter registered for its platform.
func (r *Registry) Send(ctx context.Context, msg Message) error {
	sender, ok := r.senders[msg.Platform]
	if !ok {
		return xerrors.NewUnknownPlatformError(string(msg.Platform))
	}
	if err := sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("send to %s: %w", msg.Platform, err)
	}
	return nil
}

// Platforms returns the registered platforms.
func (r *Registry) Platforms() []queue.Platform {
	out := make([]queue.Platform, 0, len(r.senders))
	for p := range r.senders {
		out = append(out, p)
	}
	return out
}
