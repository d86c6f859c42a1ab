package mail

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/phishrange/apiserver/internal/mq"
)

// QueueDispatcher publishes outbound messages to a queue consumed by the
// external sender. Enqueue success is what "dispatch requested" means; nothing
// here waits for delivery.
type QueueDispatcher struct {
	backend mq.Backend
	queue   string
}

// NewQueueDispatcher constructs a dispatcher publishing to the named queue.
func NewQueueDispatcher(backend mq.Backend, queue string) *QueueDispatcher {
	return &QueueDispatcher{backend: backend, queue: queue}
}

// Send marshals the message and publishes it.
func (d *QueueDispatcher) Send(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode mail message: %w", err)
	}

	attrs := map[string]string{
		"challenge": strconv.Itoa(msg.ChallengeNumber),
	}
	if _, err := d.backend.Publish(ctx, d.queue, data, attrs); err != nil {
		return fmt.Errorf("enqueue mail message: %w", err)
	}
	return nil
}
