// Package client submits security events to a remote ingestion endpoint.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/upb/tutoring-platform/backend/models"
)

const (
	securityLogsPath = "/api/v1/security-logs"
	eventsPath       = "/api/v1/security-logs/events"

	defaultHeader = "X-Security-Log-Key"
)

// Event is the payload accepted by the ingestion endpoint
type Event struct {
	Event    models.SecurityEvent   `json:"event"`
	Outcome  models.Outcome         `json:"outcome"`
	UserID   string                 `json:"userId,omitempty"`
	Email    string                 `json:"email,omitempty"`
	Resource string                 `json:"resource,omitempty"`
	Message  string                 `json:"message,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Catalogue lists the events and outcomes a server accepts
type Catalogue struct {
	Events   []models.CatalogueEntry `json:"events"`
	Outcomes []models.Outcome        `json:"outcomes"`
}

// APIError is returned for every non-2xx response
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]interface{}
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error: %s (status %d)", e.Code, e.StatusCode)
	}
	return fmt.Sprintf("api error: %s: %s (status %d)", e.Code, e.Message, e.StatusCode)
}

// Client talks to a security log server
type Client struct {
	baseURL    string
	header     string
	credential string
	httpClient *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithCredential sets the shared ingestion credential
func WithCredential(credential string) Option {
	return func(c *Client) {
		c.credential = credential
	}
}

// WithHeader overrides the header the credential is sent in
func WithHeader(name string) Option {
	return func(c *Client) {
		if name != "" {
			c.header = name
		}
	}
}

// WithHTTPClient replaces the default http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// New creates a client for the server at baseURL
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		header:     defaultHeader,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit posts one event. The server assigns the id, timestamp and origin IP.
func (c *Client) Submit(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+securityLogsPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.credential != "" {
		req.Header.Set(c.header, c.credential)
	}

	return c.do(req, nil)
}

// Events fetches the server's event catalogue
func (c *Client) Events(ctx context.Context) (*Catalogue, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+eventsPath, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	var catalogue Catalogue
	if err := c.do(req, &catalogue); err != nil {
		return nil, err
	}
	return &catalogue, nil
}

func (c *Client) do(req *http.Request, result any) error {
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}
	defer func(Body io.ReadCloser) {
		_ = Body.Close()
	}(resp.Body)

	if resp.StatusCode >= 300 {
		return parseErrorResponse(resp)
	}

	if result == nil {
		return nil
	}

	envelope := struct {
		Data any `json:"data"`
	}{Data: result}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func parseErrorResponse(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		apiErr.Message = fmt.Sprintf("unreadable body: %v", err)
		return apiErr
	}

	var errResp struct {
		Error   string                 `json:"error"`
		Message string                 `json:"message"`
		Details map[string]interface{} `json:"details"`
	}
	if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
		apiErr.Code = errResp.Error
		apiErr.Message = errResp.Message
		apiErr.Details = errResp.Details
		return apiErr
	}

	apiErr.Code = http.StatusText(resp.StatusCode)
	apiErr.Message = strings.TrimSpace(string(body))
	return apiErr
}
