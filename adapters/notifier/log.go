// Package notifier delivers one-time codes to email addresses and phones.
package notifier

import (
	"context"
	"log/slog"
)

const redactedBody = "[redacted]"

// LogNotifier writes messages to the logger instead of sending them.
// Used in development where no provider is configured.
type LogNotifier struct {
	logger     *slog.Logger
	kind       string
	revealBody bool
}

// NewLogNotifier creates a notifier that logs under the given kind ("email" or "sms").
// Message bodies carry one-time codes and are only logged when revealBody is set.
func NewLogNotifier(logger *slog.Logger, kind string, revealBody bool) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger, kind: kind, revealBody: revealBody}
}

func (n *LogNotifier) Send(ctx context.Context, destination, subject, body string) error {
	if !n.revealBody {
		body = redactedBody
	}
	n.logger.InfoContext(ctx, "dev notification",
		"component", "notifier",
		"kind", n.kind,
		"destination", destination,
		"subject", subject,
		"body", body,
	)
	return nil
}
