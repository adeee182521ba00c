package impact

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/martinsuchenak/gestion-impacts/internal/api"
)

// Client talks to the REST API of a running server
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

// NewClient creates a client for the server at baseURL
func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

// APIError is a non-2xx response
type APIError struct {
	Status  int
	Message string
	Details []string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
	if len(e.Details) > 0 {
		msg += "\n  " + strings.Join(e.Details, "\n  ")
	}
	return msg
}

// Do sends body to path, relative to the plugin API base, and decodes a
// JSON response into out when out is not nil.
func (c *Client) Do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	data, err := c.Raw(ctx, method, path, contentType, body)
	if err != nil {
		return err
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// Raw sends a request and returns the response body
func (c *Client) Raw(ctx context.Context, method, path, contentType string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+api.BasePath+path, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("connecting to server: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apiError(resp.StatusCode, data)
	}
	return data, nil
}

func apiError(status int, data []byte) error {
	var body struct {
		Error          string              `json:"error"`
		NonFieldErrors []string            `json:"non_field_errors"`
		Fields         map[string][]string `json:"fields"`
	}
	e := &APIError{Status: status, Message: http.StatusText(status)}
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		e.Message = body.Error
		e.Details = body.NonFieldErrors
		for field, msgs := range body.Fields {
			for _, m := range msgs {
				e.Details = append(e.Details, field+": "+m)
			}
		}
	}
	return e
}
