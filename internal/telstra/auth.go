package telstra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Scope is the OAuth scope granting access to the SMS API.
const Scope = "NSMS"

// newTokenConfig builds the client credentials exchange for the token
// endpoint. Credentials are sent in the form body, not as basic auth.
func newTokenConfig(tokenURL, clientID, clientSecret string) *clientcredentials.Config {
	return &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
		Scopes:       []string{Scope},
		AuthStyle:    oauth2.AuthStyleInParams,
	}
}

// statusRecorder remembers the status of the last response it carried.
type statusRecorder struct {
	base   http.RoundTripper
	status int
}

func (r *statusRecorder) RoundTrip(req *http.Request) (*http.Response, error) {
	base := r.base
	if base == nil {
		base = http.DefaultTransport
	}
	resp, err := base.RoundTrip(req)
	if err == nil {
		r.status = resp.StatusCode
	}
	return resp, err
}

// Token requests a new access token. Tokens are never cached: every call
// performs a fresh client credentials exchange.
func (c *Client) Token(ctx context.Context) (string, error) {
	rec := &statusRecorder{base: c.httpClient.Transport}
	hc := *c.httpClient
	hc.Transport = rec
	ctx = context.WithValue(ctx, oauth2.HTTPClient, &hc)

	tok, err := c.tokenConfig.Token(ctx)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return "", newAuthError(retrieveErr)
		}
		return "", fmt.Errorf("token request failed: %w", err)
	}

	// oauth2 accepts any 2xx; the token endpoint answers exactly 200.
	if rec.status != http.StatusOK {
		return "", &AuthError{StatusCode: rec.status}
	}

	return tok.AccessToken, nil
}

// newAuthError translates an oauth2 token failure. oauth2 only decodes the
// error body when it is labelled as JSON, so an unlabelled body is decoded
// here.
func newAuthError(retrieveErr *oauth2.RetrieveError) *AuthError {
	authErr := &AuthError{
		Code:        retrieveErr.ErrorCode,
		Description: retrieveErr.ErrorDescription,
	}
	if retrieveErr.Response != nil {
		authErr.StatusCode = retrieveErr.Response.StatusCode
	}

	if authErr.Code == "" {
		var body struct {
			Error            string `json:"error"`
			ErrorDescription string `json:"error_description"`
		}
		if json.Unmarshal(retrieveErr.Body, &body) == nil {
			authErr.Code = body.Error
			if authErr.Description == "" {
				authErr.Description = body.ErrorDescription
			}
		}
	}
	return authErr
}
