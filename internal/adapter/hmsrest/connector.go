// Package hmsrest implements the record connector against hospital systems
// that expose their task queue over a JSON REST API.
package hmsrest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/openhms/diagbridge/internal/domain"
	"github.com/openhms/diagbridge/internal/domain/finding"
	"github.com/openhms/diagbridge/internal/domain/task"
	"github.com/openhms/diagbridge/internal/port/connector"
	"github.com/openhms/diagbridge/internal/resilience"
)

// Connector talks to a record system REST API:
//
//	GET  /tasks?status=PENDING&limit=N   -> {"tasks": [...]}
//	POST /tasks/{id}/findings            <- finding.Report
type Connector struct {
	baseURL    string
	token      string
	batchSize  int
	httpClient *http.Client
	breaker    *resilience.Breaker
}

// NewConnector creates an HTTP-backed connector.
func NewConnector(baseURL, token string, batchSize int, timeout time.Duration) *Connector {
	return &Connector{
		baseURL:   baseURL,
		token:     token,
		batchSize: batchSize,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// SetBreaker attaches a circuit breaker to all outgoing HTTP calls.
func (c *Connector) SetBreaker(b *resilience.Breaker) {
	c.breaker = b
}

// Connect validates the session against the record system's health route.
func (c *Connector) Connect(ctx context.Context) error {
	if _, err := c.doRequest(ctx, http.MethodGet, "/health", nil); err != nil {
		return fmt.Errorf("%w: %w", connector.ErrConnection, err)
	}
	return nil
}

// FetchPendingTasks returns the record system's current PENDING page.
func (c *Connector) FetchPendingTasks(ctx context.Context) ([]task.Task, error) {
	path := fmt.Sprintf("/tasks?status=PENDING&limit=%d", c.batchSize)
	resp, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", connector.ErrFetch, err)
	}

	var result struct {
		Tasks []task.Task `json:"tasks"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("%w: unmarshal: %v", connector.ErrFetch, err)
	}

	// Normalize foreign kind tags; the record system may use labels we
	// do not recognize and those must fail analysis, not crash it.
	for i := range result.Tasks {
		result.Tasks[i].Kind = task.ParseKind(string(result.Tasks[i].Kind))
	}
	return result.Tasks, nil
}

// UpdateResult posts findings for one task. The record system is expected to
// overwrite on repeat posts for the same task.
func (c *Connector) UpdateResult(ctx context.Context, taskID string, report *finding.Report) error {
	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("%w: marshal findings: %v", connector.ErrWrite, err)
	}

	if _, err := c.doRequest(ctx, http.MethodPost, "/tasks/"+taskID+"/findings", body); err != nil {
		return fmt.Errorf("%w: %w", connector.ErrWrite, err)
	}
	return nil
}

func (c *Connector) doRequest(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var result []byte
	call := func() error {
		var bodyReader io.Reader
		if body != nil {
			bodyReader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}

		req.Header.Set("Content-Type", "application/json")
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("http request: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}

		if resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("record system API error 404: %w", domain.ErrNotFound)
		}
		if resp.StatusCode >= 400 {
			return fmt.Errorf("record system API error %d: %s", resp.StatusCode, string(data))
		}

		result = data
		return nil
	}

	if c.breaker != nil {
		if err := c.breaker.Execute(call); err != nil {
			return nil, err
		}
		return result, nil
	}

	if err := call(); err != nil {
		return nil, err
	}
	return result, nil
}
