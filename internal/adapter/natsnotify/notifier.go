// Package natsnotify implements the notifier port on top of the message queue.
package natsnotify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/convoke-ai/convoke/internal/port/messagequeue"
	"github.com/convoke-ai/convoke/internal/port/notifier"
)

// Notifier publishes notifications to the message queue so that external
// operator tooling (dashboards, chat bridges) can subscribe to them.
type Notifier struct {
	queue messagequeue.Queue
}

// New creates a queue-backed notifier.
func New(queue messagequeue.Queue) *Notifier {
	return &Notifier{queue: queue}
}

// Name returns the notifier identifier.
func (n *Notifier) Name() string { return "nats" }

// Send publishes the notification as JSON on a subject derived from its
// source (e.g. "approval.requested" -> "approvals.created").
func (n *Notifier) Send(ctx context.Context, notification notifier.Notification) error {
	if n.queue == nil {
		return notifier.ErrNotConfigured
	}

	data, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	subject := subjectFor(notification.Source)
	if err := n.queue.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	return nil
}

func subjectFor(source string) string {
	switch source {
	case "approval.requested":
		return messagequeue.SubjectApprovalCreated
	case "approval.decided":
		return messagequeue.SubjectApprovalDecided
	case "approval.expired":
		return messagequeue.SubjectApprovalExpired
	default:
		return messagequeue.SubjectApprovalCreated
	}
}
