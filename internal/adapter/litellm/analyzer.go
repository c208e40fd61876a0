// Package litellm implements the analyzer port against a LiteLLM proxy,
// which fronts the actual diagnostic model (Gemini, GPT-4o, ...).
package litellm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/openhms/diagbridge/internal/domain/finding"
	"github.com/openhms/diagbridge/internal/domain/task"
	"github.com/openhms/diagbridge/internal/port/analyzer"
	"github.com/openhms/diagbridge/internal/resilience"
)

const systemPrompt = `You are a medical diagnostic assistant. Given an artifact reference and its
modality, respond with a single JSON object and nothing else:
{"summary": string, "abnormalities": [string], "confidence": number in [0,1], "urgency": "LOW"|"MEDIUM"|"HIGH"}`

// analyzableKinds are the modalities the configured model is prompted for.
var analyzableKinds = map[task.Kind]bool{
	task.KindXRay:   true,
	task.KindReport: true,
}

// Analyzer calls a LiteLLM proxy's chat completion endpoint and parses the
// model reply into a findings report.
type Analyzer struct {
	baseURL    string
	apiKey     string
	model      string
	maxTokens  int
	httpClient *http.Client
	breaker    *resilience.Breaker
}

// NewAnalyzer creates an LLM-backed analyzer.
func NewAnalyzer(baseURL, apiKey, model string, maxTokens int, timeout time.Duration) *Analyzer {
	return &Analyzer{
		baseURL:   baseURL,
		apiKey:    apiKey,
		model:     model,
		maxTokens: maxTokens,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// SetBreaker attaches a circuit breaker to all outgoing HTTP calls.
func (a *Analyzer) SetBreaker(b *resilience.Breaker) {
	a.breaker = b
}

// Analyze prompts the model for the given artifact. Unsupported kinds are
// declined without an API call; transport and parse failures are returned
// as errors (the task is left FAILED by the caller).
func (a *Analyzer) Analyze(ctx context.Context, artifactRef string, kind task.Kind) (*finding.Report, error) {
	if !analyzableKinds[kind] {
		return &finding.Report{Error: analyzer.ErrUnknownFileType}, nil
	}

	reqBody, err := json.Marshal(chatRequest{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: fmt.Sprintf("Modality: %s\nArtifact: %s", kind, artifactRef)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	resp, err := a.doRequest(ctx, reqBody)
	if err != nil {
		return nil, err
	}

	var completion chatResponse
	if err := json.Unmarshal(resp, &completion); err != nil {
		return nil, fmt.Errorf("unmarshal completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("model returned no choices")
	}

	report, err := parseReport(completion.Choices[0].Message.Content)
	if err != nil {
		return nil, fmt.Errorf("parse model reply: %w", err)
	}
	return report, nil
}

// parseReport extracts the findings JSON from a model reply, tolerating
// markdown code fences around the object.
func parseReport(content string) (*finding.Report, error) {
	content = strings.TrimSpace(content)
	if i := strings.Index(content, "{"); i >= 0 {
		if j := strings.LastIndex(content, "}"); j > i {
			content = content[i : j+1]
		}
	}

	var report finding.Report
	if err := json.Unmarshal([]byte(content), &report); err != nil {
		return nil, err
	}
	if report.Error == "" {
		if report.Confidence < 0 || report.Confidence > 1 {
			return nil, fmt.Errorf("confidence %f out of range", report.Confidence)
		}
		switch report.Urgency {
		case finding.UrgencyLow, finding.UrgencyMedium, finding.UrgencyHigh:
		default:
			return nil, fmt.Errorf("unknown urgency %q", report.Urgency)
		}
	}
	return &report, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens,omitempty"`
	Messages  []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (a *Analyzer) doRequest(ctx context.Context, body []byte) ([]byte, error) {
	var result []byte
	call := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}

		req.Header.Set("Content-Type", "application/json")
		if a.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+a.apiKey)
		}

		resp, err := a.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("http request: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}

		if resp.StatusCode >= 400 {
			return fmt.Errorf("litellm API error %d: %s", resp.StatusCode, string(data))
		}

		result = data
		return nil
	}

	if a.breaker != nil {
		if err := a.breaker.Execute(call); err != nil {
			return nil, err
		}
		return result, nil
	}

	if err := call(); err != nil {
		return nil, err
	}
	return result, nil
}
