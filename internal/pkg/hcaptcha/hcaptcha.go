package hcaptcha

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ManuelReschke/TicketFox/internal/pkg/env"
)

const DefaultEndpoint = "https://hcaptcha.com/siteverify"

type Response struct {
	Success     bool     `json:"success"`
	ChallengeTS string   `json:"challenge_ts"`
	Hostname    string   `json:"hostname"`
	ErrorCodes  []string `json:"error-codes"`
}

// Client verifies hCaptcha response tokens against siteverify.
type Client struct {
	Secret   string
	Endpoint string
	HTTP     *http.Client
}

// New returns a client for secret. An empty secret disables verification.
func New(secret string) *Client {
	return &Client{
		Secret:   secret,
		Endpoint: DefaultEndpoint,
		HTTP:     &http.Client{Timeout: 5 * time.Second},
	}
}

// NewFromEnv reads HCAPTCHA_SECRET.
func NewFromEnv() *Client {
	return New(env.GetEnv("HCAPTCHA_SECRET", ""))
}

// Enabled reports whether a secret is configured.
func (c *Client) Enabled() bool {
	return c != nil && c.Secret != ""
}

func (c *Client) Verify(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, errors.New("hCaptcha token is empty")
	}
	if c.Secret == "" {
		return false, errors.New("hCaptcha secret is not set")
	}

	formData := url.Values{
		"secret":   {c.Secret},
		"response": {token},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, strings.NewReader(formData.Encode()))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to send request to hCaptcha API: %w", err)
	}
	defer resp.Body.Close()

	var response Response
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return false, fmt.Errorf("failed to decode hCaptcha API response: %w", err)
	}

	if !response.Success {
		errorMsg := "hCaptcha validation failed"
		if len(response.ErrorCodes) > 0 {
			errorMsg = errorMsg + ": " + strings.Join(response.ErrorCodes, ", ")
		}
		return false, errors.New(errorMsg)
	}

	return true, nil
}
