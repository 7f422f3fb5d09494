package oauth

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	// HTTP request timeout for token endpoint calls
	defaultTimeout = 10 * time.Second

	// Upper bound on token response bodies
	maxBodySize = 1 << 20

	// Longest token lifetime accepted from a provider, in seconds. Keeps
	// expiry arithmetic clear of time.Duration overflow.
	maxLifetime = 10 * 365 * 24 * 60 * 60
)

// ExchangeClient performs token endpoint round trips for code and refresh grants
type ExchangeClient struct {
	client  *http.Client
	timeout time.Duration
}

// ClientOption configures an ExchangeClient
type ClientOption func(*ExchangeClient)

// WithHTTPClient sets the HTTP client used for token requests
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *ExchangeClient) {
		c.client = client
	}
}

// WithTimeout bounds every token request
func WithTimeout(d time.Duration) ClientOption {
	return func(c *ExchangeClient) {
		c.timeout = d
	}
}

// NewExchangeClient creates a token endpoint client. Certificate validation is
// always on; a client that skips it is rejected.
func NewExchangeClient(opts ...ClientOption) (*ExchangeClient, error) {
	c := &ExchangeClient{}
	for _, opt := range opts {
		opt(c)
	}

	if c.client == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		c.client = &http.Client{Transport: transport}
	}

	if tr, ok := c.client.Transport.(*http.Transport); ok {
		if tr.TLSClientConfig != nil && tr.TLSClientConfig.InsecureSkipVerify {
			return nil, ErrInsecureTLS
		}
	}

	// Copy so the caller's client is never mutated
	client := *c.client
	switch {
	case c.timeout > 0:
		client.Timeout = c.timeout
	case client.Timeout == 0:
		client.Timeout = defaultTimeout
	}
	c.client = &client

	return c, nil
}

// Exchange posts a grant to the provider's token endpoint. The body is decoded
// whatever the HTTP status so the caller can inspect provider error fields.
// Transport failures are returned as KindTransport errors.
func (c *ExchangeClient) Exchange(ctx context.Context, grant GrantType, credential string, p *Provider) (*TokenResponse, error) {
	if err := p.Validate(StepExchange); err != nil {
		return nil, err
	}
	if credential == "" {
		return nil, fmt.Errorf("empty %s", grant.credentialField())
	}

	// Prepare token request
	data := url.Values{
		"grant_type":            {string(grant)},
		grant.credentialField(): {credential},
		"client_id":             {p.ClientID},
		"client_secret":         {p.ClientSecret},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.TokenEndpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("creating token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	// Send request and handle response
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &Error{
			Kind:     KindTransport,
			Provider: p.Name,
			Err:      fmt.Errorf("sending token request: %w", err),
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &Error{
			Kind:     KindTransport,
			Provider: p.Name,
			Err:      fmt.Errorf("reading token response: %w", err),
		}
	}

	return parseTokenResponse(p, resp.StatusCode, body)
}

// parseTokenResponse decodes a token endpoint body using the provider's field names
func parseTokenResponse(p *Provider, status int, body []byte) (*TokenResponse, error) {
	var raw map[string]any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, &Error{
			Kind:     KindUnknownProvider,
			Provider: p.Name,
			Err:      fmt.Errorf("decoding token response (status %d): %w", status, err),
		}
	}

	token := &TokenResponse{
		AccessToken:      stringValue(raw["access_token"]),
		RefreshToken:     stringValue(raw["refresh_token"]),
		TokenType:        stringValue(raw["token_type"]),
		ExpiresIn:        lifetime(raw["expires_in"]),
		RefreshExpiresIn: lifetime(raw["refresh_expires_in"]),
		ErrorCode:        stringValue(raw[p.errorField()]),
		ErrorDescription: stringValue(raw["error_description"]),
		StatusCode:       status,
		Raw:              raw,
	}
	if p.AccountIDField != "" {
		token.AccountID = stringValue(raw[p.AccountIDField])
	}

	return token, nil
}

func stringValue(input any) string {
	switch v := input.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

// lifetime reads a seconds field clamped to [0, maxLifetime]
func lifetime(input any) int64 {
	var f float64
	switch v := input.(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			f = float64(n)
		} else if n, err := v.Float64(); err == nil {
			f = n
		}
	case float64:
		f = v
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			f = float64(n)
		}
	}

	switch {
	case f <= 0:
		return 0
	case f >= maxLifetime:
		return maxLifetime
	default:
		return int64(f)
	}
}
