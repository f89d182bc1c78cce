// Package provider defines the interface for relay backends that carry a
// forwarded inbound message to another mailbox.
package provider

import (
	"context"

	"github.com/shineum/mail2sms/internal/email"
)

// Provider is the interface that relay backends must implement.
// A provider delivers the raw inbound message, unmodified, to a single
// recipient (e.g., stdout for development, AWS SES in production).
type Provider interface {
	// Relay delivers msg to rcpt.
	// It returns an error if the delivery fails.
	Relay(ctx context.Context, rcpt string, msg *email.Message) error

	// Name returns the human-readable name of this provider.
	Name() string
}
