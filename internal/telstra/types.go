// Package telstra is a minimal client for the three Telstra Messaging API v2
// endpoints used to send an SMS: health check, OAuth token and send.
package telstra

import "fmt"

// Health statuses reported by the health check endpoint.
const (
	StatusUp   = "up"
	StatusDown = "down"
)

// SMS is an outgoing text message.
type SMS struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

// SendResult describes the first message accepted by the send endpoint.
type SendResult struct {
	To               string
	DeliveryStatus   string
	MessageID        string
	MessageStatusURL string
	MessageType      string
}

// healthResponse is the health check endpoint body.
type healthResponse struct {
	Status string `json:"status"`
}

// sendResponse is the body of a 201 from the send endpoint.
type sendResponse struct {
	Messages    []sentMessage `json:"messages"`
	MessageType string        `json:"messageType"`
}

type sentMessage struct {
	To               string `json:"to"`
	DeliveryStatus   string `json:"deliveryStatus"`
	MessageID        string `json:"messageId"`
	MessageStatusURL string `json:"messageStatusURL"`
}

// HealthError is returned when the health check endpoint does not answer
// with 200 and a status body.
type HealthError struct {
	StatusCode int
	Body       string
}

func (e *HealthError) Error() string {
	return fmt.Sprintf("health check returned HTTP %d: %s", e.StatusCode, e.Body)
}

// AuthError is returned when the token endpoint refuses the client
// credentials. Code holds the OAuth error code, e.g. "invalid_client".
type AuthError struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *AuthError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("token endpoint returned HTTP %d", e.StatusCode)
	}
	return e.Code
}

// SendError is returned when the send endpoint answers with anything other
// than 201. Body is the raw response text.
type SendError struct {
	StatusCode int
	Body       string
}

func (e *SendError) Error() string {
	return fmt.Sprintf("%d %s", e.StatusCode, e.Body)
}
