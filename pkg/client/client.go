// Package client talks to the game API over HTTP. The console and the
// Telegram bot both play through it.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vishan-khatavkar/echoes-game/pkg/chat"
)

// DefaultTimeout bounds every non-streaming request. Turns wait on the
// narrator, so it is generous.
const DefaultTimeout = 90 * time.Second

// APIError is a non-success response from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API returned status %d: %s", e.StatusCode, e.Message)
}

// ErrUnsaved is returned alongside a turn that was played but not stored.
var ErrUnsaved = errors.New("turn was not saved")

// Client is an HTTP client for the game API.
type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a client for the API at baseURL. A nil httpClient gets a
// default with DefaultTimeout.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

// Health reports whether the API is up with a healthy store.
func (c *Client) Health(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()
	return resp.StatusCode == http.StatusOK
}

// StartSession starts or resumes the session for username.
func (c *Client) StartSession(ctx context.Context, username string) (*chat.SessionResponse, error) {
	var out chat.SessionResponse
	if _, err := c.do(ctx, http.MethodPost, "/v1/session", chat.SessionRequest{Username: username}, &out); err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}
	return &out, nil
}

// GetSession reads the session for username.
func (c *Client) GetSession(ctx context.Context, username string) (*chat.SessionResponse, error) {
	var out chat.SessionResponse
	if _, err := c.do(ctx, http.MethodGet, "/v1/session/"+url.PathEscape(username), nil, &out); err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &out, nil
}

// PlayTurn sends one line of input. When the API played the turn but could
// not store it, the turn is returned together with ErrUnsaved.
func (c *Client) PlayTurn(ctx context.Context, username, message string) (*chat.TurnResponse, error) {
	var out chat.TurnResponse
	status, err := c.do(ctx, http.MethodPost, "/v1/turn", chat.TurnRequest{Username: username, Message: message}, &out)
	if err != nil {
		if status == http.StatusServiceUnavailable && out.State != "" {
			return &out, fmt.Errorf("%w: %s", ErrUnsaved, out.Error)
		}
		return nil, fmt.Errorf("failed to play turn: %w", err)
	}
	return &out, nil
}

// EnqueueTurn hands a turn to the worker queue. Its outcome is published on
// the session's event stream.
func (c *Client) EnqueueTurn(ctx context.Context, username, message string) (*chat.QueuedResponse, error) {
	var out chat.QueuedResponse
	if _, err := c.do(ctx, http.MethodPost, "/v1/queue", chat.TurnRequest{Username: username, Message: message}, &out); err != nil {
		return nil, fmt.Errorf("failed to queue turn: %w", err)
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) (int, error) {
	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// A 503 turn response still carries the played turn.
		if resp.StatusCode == http.StatusServiceUnavailable && out != nil {
			_ = json.Unmarshal(respBody, out)
		}
		var errorResp chat.ErrorResponse
		if err := json.Unmarshal(respBody, &errorResp); err != nil || errorResp.Error == "" {
			return resp.StatusCode, &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
		}
		return resp.StatusCode, &APIError{StatusCode: resp.StatusCode, Message: errorResp.Error}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return resp.StatusCode, fmt.Errorf("failed to parse response: %w", err)
	}
	return resp.StatusCode, nil
}

// Event is one event from the session event stream.
type Event struct {
	Type string                 `json:"type"`
	Data map[string]interface{} `json:"data"`
}

// ListenEvents streams username's session events into events until ctx is
// cancelled or the stream ends. It does not close events.
func (c *Client) ListenEvents(ctx context.Context, username string, events chan<- Event) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/events/"+url.PathEscape(username), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	// The stream outlives any request timeout.
	streamClient := *c.http
	streamClient.Timeout = 0
	resp, err := streamClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to SSE: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("SSE connection failed with status %d: %s", resp.StatusCode, string(body))
	}

	scanner := bufio.NewScanner(resp.Body)
	var current Event
	for scanner.Scan() {
		line := scanner.Text()

		if line == "" {
			// Empty line signals end of event
			if current.Type != "" {
				select {
				case events <- current:
				case <-ctx.Done():
					return ctx.Err()
				}
				current = Event{}
			}
			continue
		}

		if strings.HasPrefix(line, "event: ") {
			current.Type = strings.TrimPrefix(line, "event: ")
		} else if strings.HasPrefix(line, "data: ") {
			var data map[string]interface{}
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &data); err == nil {
				current.Data = data
			}
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("error reading SSE stream: %w", err)
	}
	return ctx.Err()
}
