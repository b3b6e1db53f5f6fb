package notifier

import (
	"context"
	"errors"
)

// Multi fans a notification out to every configured notifier. Send
// returns the joined errors of all failed deliveries; one broken channel
// does not suppress the others.
type Multi struct {
	notifiers []Notifier
}

// NewMulti creates a fan-out notifier. Nil entries are skipped.
func NewMulti(notifiers ...Notifier) *Multi {
	out := make([]Notifier, 0, len(notifiers))
	for _, n := range notifiers {
		if n != nil {
			out = append(out, n)
		}
	}
	return &Multi{notifiers: out}
}

func (m *Multi) Name() string { return "multi" }

func (m *Multi) Send(ctx context.Context, notification Notification) error {
	var errs []error
	for _, n := range m.notifiers {
		if err := n.Send(ctx, notification); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
