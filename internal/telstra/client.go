package telstra

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2/clientcredentials"
)

// DefaultBaseURL is the production Messaging API v2 root.
const DefaultBaseURL = "https://tapi.telstra.com/v2"

// Endpoint paths relative to the base URL.
const (
	healthPath = "/messages/sms/healthcheck"
	tokenPath  = "/oauth/token"
	sendPath   = "/messages/sms"
)

// ErrNoMessages is returned when the send endpoint accepts a request but
// reports no messages.
var ErrNoMessages = errors.New("send response contained no messages")

// Config holds the connection settings for a Client.
type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
}

// Client talks to the Telstra Messaging API. It holds no per-request state
// and is safe for concurrent use.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	tokenConfig *clientcredentials.Config
}

// New creates a Client. If httpClient is nil a client without a timeout is
// used; callers bound requests through the context.
func New(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &Client{
		baseURL:     baseURL,
		httpClient:  httpClient,
		tokenConfig: newTokenConfig(baseURL+tokenPath, cfg.ClientID, cfg.ClientSecret),
	}
}

// BaseURL returns the API root the client sends requests to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Health performs the unauthenticated health check and returns the reported
// status, normally StatusUp or StatusDown.
func (c *Client) Health(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+healthPath, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create health request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("health request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read health response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", &HealthError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var health healthResponse
	if err := json.Unmarshal(body, &health); err != nil {
		return "", fmt.Errorf("failed to parse health response: %w", err)
	}

	return health.Status, nil
}

// SendSMS submits msg using the given bearer token. Only a 201 response is
// success; the first reported message is returned.
func (c *Client) SendSMS(ctx context.Context, accessToken string, msg SMS) (*SendResult, error) {
	bodyJSON, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+sendPath, bytes.NewReader(bodyJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to create send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read send response: %w", err)
	}

	if resp.StatusCode != http.StatusCreated {
		return nil, &SendError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var sent sendResponse
	if err := json.Unmarshal(body, &sent); err != nil {
		return nil, fmt.Errorf("failed to parse send response: %w", err)
	}
	if len(sent.Messages) == 0 {
		return nil, ErrNoMessages
	}

	first := sent.Messages[0]
	return &SendResult{
		To:               first.To,
		DeliveryStatus:   first.DeliveryStatus,
		MessageID:        first.MessageID,
		MessageStatusURL: first.MessageStatusURL,
		MessageType:      sent.MessageType,
	}, nil
}
