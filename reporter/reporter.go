// Package reporter generalizes "something broke and a human should know"
// behind a small interface, since no error-reporting vendor SDK appears
// anywhere in this lineage's dependency stack. A Discord incoming-webhook
// implementation (adapted from the teacher's notify/discord notifier)
// stands in for it; swapping in a vendor SDK later means implementing this
// same interface.
package reporter

import "context"

// Reporter notifies an external collaborator of an operational failure.
// Implementations must never block the caller for long or panic.
type Reporter interface {
	Report(ctx context.Context, err error, fields map[string]any)
}

// Noop discards every report; used when no webhook URL is configured.
type Noop struct{}

func (Noop) Report(context.Context, error, map[string]any) {}

var _ Reporter = Noop{}
