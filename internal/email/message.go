// Package email defines the inbound email event handed from the SMTP
// listener to the SMS forwarder.
package email

import (
	"context"
	"errors"
	"net/mail"
)

// ErrForwardUnavailable is returned by Forward when the listener that
// delivered the message has no relay configured.
var ErrForwardUnavailable = errors.New("forwarding is not available for this message")

// Hooks are the dispositions the delivering runtime offers for a message.
type Hooks interface {
	// Forward relays the original message to rcpt.
	Forward(ctx context.Context, rcpt string, msg *Message) error

	// Reject marks the message as refused. The runtime reports reason to
	// the sending server.
	Reject(reason string)
}

// Message is a single inbound email. It only lives for the duration of
// one handler invocation.
type Message struct {
	// From is the envelope sender (MAIL FROM).
	From string

	// To is the envelope recipient (first RCPT TO).
	To string

	// Header holds the parsed RFC 5322 header fields. Lookups through
	// Header.Get are case-insensitive.
	Header mail.Header

	// Subject is the decoded Subject header.
	Subject string

	// Raw is the message exactly as received.
	Raw []byte

	// Hooks may be nil, in which case Forward fails and SetReject is a no-op.
	Hooks Hooks
}

// Size returns the raw message size in bytes.
func (m *Message) Size() int {
	return len(m.Raw)
}

// Forward asks the delivering runtime to relay this message to rcpt.
func (m *Message) Forward(ctx context.Context, rcpt string) error {
	if m.Hooks == nil {
		return ErrForwardUnavailable
	}
	return m.Hooks.Forward(ctx, rcpt, m)
}

// SetReject asks the delivering runtime to refuse this message.
func (m *Message) SetReject(reason string) {
	if m.Hooks != nil {
		m.Hooks.Reject(reason)
	}
}
