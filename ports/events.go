package ports

import "context"

// Event types published by the auth flow
const (
	EventRegistered      = "auth.registered"
	EventChallengeIssued = "auth.challenge_issued"
	EventAuthenticated   = "auth.authenticated"
	EventLogout          = "auth.logout"
)

// AuthEvent is a best-effort notification about a lifecycle transition
type AuthEvent struct {
	Type      string `json:"type"`
	SubjectID string `json:"subject_id"`
	Channel   string `json:"channel,omitempty"`
}

// EventPublisher publishes events to notify other instances
type EventPublisher interface {
	Publish(ctx context.Context, event AuthEvent) error
}
