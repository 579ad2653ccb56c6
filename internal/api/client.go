// Package api fetches grade data from the Schoology REST API using
// two-legged OAuth 1.0 and maps the payloads onto the snapshot model.
package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.schoology.com/v1"

// Client is a thin authenticated HTTP client for the API.
type Client struct {
	apiKey    string
	apiSecret string
	baseURL   string
	http      *http.Client
}

// NewClient creates an API client for the given consumer credentials.
// baseURL overrides the default API endpoint when non-empty.
func NewClient(apiKey, apiSecret, baseURL string) (*Client, error) {
	if apiKey == "" || apiSecret == "" {
		return nil, fmt.Errorf("api key and secret are required")
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	} else if !strings.Contains(baseURL, "://") {
		// A host-only value like "myschool.schoology.com" is a valid
		// config; requests without a scheme are not.
		baseURL = "https://" + baseURL
	}
	return &Client{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		baseURL:   strings.TrimRight(baseURL, "/"),
		http:      &http.Client{Timeout: 60 * time.Second},
	}, nil
}

// authHeader builds the OAuth 1.0 Authorization header. The API uses
// two-legged auth with the PLAINTEXT signature method, so the
// signature is just the percent-encoded consumer secret with an empty
// token secret.
func (c *Client) authHeader() string {
	nonce := make([]byte, 16)
	_, _ = rand.Read(nonce)
	return fmt.Sprintf(`OAuth realm="",`+
		`oauth_consumer_key=%q,`+
		`oauth_token="",`+
		`oauth_nonce=%q,`+
		`oauth_timestamp=%q,`+
		`oauth_signature_method="PLAINTEXT",`+
		`oauth_version="1.0",`+
		`oauth_signature=%q`,
		c.apiKey,
		hex.EncodeToString(nonce),
		strconv.FormatInt(time.Now().Unix(), 10),
		url.QueryEscape(c.apiSecret)+"%26")
}

// get performs an authenticated GET and decodes the JSON response into
// out.
func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", c.authHeader())
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("GET %s: status %d: %s", endpoint, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("GET %s: failed to decode response: %w", endpoint, err)
	}
	return nil
}
