// Package apiclient is the HTTP client CLI commands use to talk to a
// running recall server.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/papercomputeco/recall/pkg/memory"
	"github.com/papercomputeco/recall/pkg/metrics"
	"github.com/papercomputeco/recall/pkg/processor"
	"github.com/papercomputeco/recall/pkg/sse"
)

// DefaultTimeout bounds whole requests. LLM responses can be slow.
const DefaultTimeout = 5 * time.Minute

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned status %d: %s", e.StatusCode, e.Message)
}

// Client calls the recall HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client for the server at target, e.g. "http://localhost:8081".
func New(target string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(target, "/"),
		httpClient: httpClient,
	}
}

// Chat sends a web-chat request and returns the full answer.
func (c *Client) Chat(ctx context.Context, req processor.ChatRequest) (*processor.ChatResult, error) {
	var res processor.ChatResult
	if err := c.doJSON(ctx, http.MethodPost, "/v1/chat", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ChatStream sends a streaming web-chat request, calling onFragment for each
// answer fragment as it arrives. It returns the answering model.
func (c *Client) ChatStream(ctx context.Context, req processor.ChatRequest, onFragment func(string)) (string, error) {
	resp, err := c.send(ctx, http.MethodPost, "/v1/chat/stream", req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	reader := sse.NewReader(resp.Body)
	for {
		ev, err := reader.Next()
		if err != nil {
			return "", fmt.Errorf("reading stream: %w", err)
		}
		if ev == nil {
			return "", errors.New("stream ended without a done event")
		}

		switch ev.Type {
		case sse.EventDone:
			var done struct {
				Model string `json:"model_name"`
			}
			if err := json.Unmarshal([]byte(ev.Data), &done); err != nil {
				return "", fmt.Errorf("decoding done event: %w", err)
			}
			return done.Model, nil
		case sse.EventError:
			return "", fmt.Errorf("stream failed: %s", ev.Data)
		default:
			onFragment(ev.Data)
		}
	}
}

// Metrics returns the server's processing counters.
func (c *Client) Metrics(ctx context.Context) (metrics.Snapshot, error) {
	var s metrics.Snapshot
	err := c.doJSON(ctx, http.MethodGet, "/v1/metrics", nil, &s)
	return s, err
}

// ResetMetrics zeroes the server's processing counters.
func (c *Client) ResetMetrics(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodPost, "/v1/metrics/reset", nil, nil)
}

// Memories lists stored memories for a scope. limit <= 0 lists everything.
func (c *Client) Memories(ctx context.Context, scope memory.Scope, limit int) ([]memory.Item, error) {
	q := url.Values{}
	q.Set("user_id", scope.UserID)
	if scope.GroupID != "" {
		q.Set("group_id", scope.GroupID)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var res struct {
		Memories []memory.Item `json:"memories"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/memories?"+q.Encode(), nil, &res); err != nil {
		return nil, err
	}
	return res.Memories, nil
}

// Ping checks that the server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodGet, "/ping", nil, nil)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	resp, err := c.send(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// send performs the request and turns non-2xx responses into a StatusError.
func (c *Client) send(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request to %s: %w", c.baseURL, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, &StatusError{StatusCode: resp.StatusCode, Message: errorMessage(resp.Body)}
	}
	return resp, nil
}

// errorMessage extracts the "error" field of an error body, falling back
// to the raw body.
func errorMessage(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, 64*1024))
	var body struct {
		Error  string `json:"error"`
		Reason string `json:"reason"`
	}
	if json.Unmarshal(data, &body) == nil {
		if body.Error != "" {
			return body.Error
		}
		if body.Reason != "" {
			return body.Reason
		}
	}
	return strings.TrimSpace(string(data))
}

