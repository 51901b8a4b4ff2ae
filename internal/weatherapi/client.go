// Package weatherapi talks to the remote weather-email service.
package weatherapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gometeo/weathermail/internal/model"
)

const DefaultBaseURL = "https://server-weather-workflow.onrender.com"

// APIError is returned for any non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("API error (HTTP %d)", e.Status)
	}
	return fmt.Sprintf("API error (HTTP %d): %s", e.Status, e.Message)
}

// Client wraps an HTTP client configured for the weather-email API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a Client with an explicit timeout instead of http.DefaultClient.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Send asks the service to email the weather for city to email.
// The returned message is empty when the service supplies none.
func (c *Client) Send(ctx context.Context, city, email string) (string, error) {
	body, err := json.Marshal(model.SendRequest{City: city, Email: email})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	var out model.SendResponse
	if err := c.do(ctx, http.MethodPost, "/api/weather", bytes.NewReader(body), &out); err != nil {
		return "", err
	}
	return out.Message, nil
}

// ListLogs returns every past submission in the order the service sends them.
func (c *Client) ListLogs(ctx context.Context) ([]model.WeatherLog, error) {
	var logs []model.WeatherLog
	if err := c.do(ctx, http.MethodGet, "/api/weather/logs", nil, &logs); err != nil {
		return nil, err
	}
	if logs == nil {
		logs = []model.WeatherLog{}
	}
	return logs, nil
}

// DeleteLog removes the entry with the given id. Any response body is ignored.
func (c *Client) DeleteLog(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/weather/delete/"+url.PathEscape(id), nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, dst any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Status: resp.StatusCode, Message: errorMessage(resp.Body)}
	}

	if dst == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil && err != io.EOF {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// errorMessage pulls "message" or "error" out of a JSON error body, falling
// back to the trimmed raw text.
func errorMessage(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(raw) == 0 {
		return ""
	}
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	return strings.TrimSpace(string(raw))
}
