package ports

import "context"

// Notifier delivers a message to an email address or phone number.
// SMS implementations ignore the subject.
type Notifier interface {
	Send(ctx context.Context, destination, subject, body string) error
}
