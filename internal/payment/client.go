// Package payment provides the client and webhook handling for the
// external payment processor.
package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// Client encapsulates HTTP interaction with the payment processor.
type Client struct {
	baseURL    string
	secretKey  string
	httpClient *retryablehttp.Client
}

// Intent describes a processor-issued payment handle.
type Intent struct {
	ID           string            `json:"id"`
	ClientSecret string            `json:"client_secret"`
	Status       string            `json:"status"`
	Amount       int64             `json:"amount"`
	Currency     string            `json:"currency"`
	Metadata     map[string]string `json:"metadata"`
}

// NewClient creates a processor client for the given API address and
// secret key. Transient failures are retried with backoff.
func NewClient(baseURL, secretKey string) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 3 * time.Second
	rc.HTTPClient.Timeout = 10 * time.Second
	rc.Logger = nil

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		secretKey:  secretKey,
		httpClient: rc,
	}
}

// Configured reports whether the client has a secret key to authenticate with.
func (c *Client) Configured() bool {
	return c != nil && c.secretKey != ""
}

// CreateIntent creates a payment intent for the given amount in minor
// currency units. The metadata travels to the processor and comes back in
// webhook events; the order number is placed there so that the webhook can
// find the order.
func (c *Client) CreateIntent(ctx context.Context, amount int64, currency, description string, metadata map[string]string) (*Intent, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("payment processor not configured")
	}

	form := url.Values{}
	form.Set("amount", strconv.FormatInt(amount, 10))
	form.Set("currency", currency)
	form.Set("automatic_payment_methods[enabled]", "true")
	if description != "" {
		form.Set("description", description)
	}
	for k, v := range metadata {
		form.Set(fmt.Sprintf("metadata[%s]", k), v)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/payment_intents", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("processor returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var intent Intent
	if err := json.NewDecoder(resp.Body).Decode(&intent); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &intent, nil
}
