package gen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OpenAIClient implements CandidateGenerator using the OpenAI Chat
// Completions API. It also works with any OpenAI-compatible service by
// setting a custom base URL.
type OpenAIClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// OpenAIOption configures the OpenAI client.
type OpenAIOption func(*OpenAIClient)

// WithModel sets the model name (default: gpt-4o-mini).
func WithModel(model string) OpenAIOption {
	return func(c *OpenAIClient) { c.model = model }
}

// WithBaseURL overrides the API endpoint (default: https://api.openai.com/v1).
func WithBaseURL(url string) OpenAIOption {
	return func(c *OpenAIClient) { c.baseURL = strings.TrimRight(url, "/") }
}

// WithHTTPTimeout overrides the request timeout.
func WithHTTPTimeout(d time.Duration) OpenAIOption {
	return func(c *OpenAIClient) { c.httpClient.Timeout = d }
}

// NewOpenAIClient creates a new OpenAI candidate generator.
func NewOpenAIClient(apiKey string, opts ...OpenAIOption) *OpenAIClient {
	c := &OpenAIClient{
		apiKey:  apiKey,
		baseURL: "https://api.openai.com/v1",
		model:   "gpt-4o-mini",
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// apiError represents an error from a collaborator API that may or may not
// be retryable.
type apiError struct {
	StatusCode int
	Body       string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// isRetryable returns true for transient errors (rate limit, server errors).
func (e *apiError) isRetryable() bool {
	return e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode >= http.StatusInternalServerError
}

// GenerateCandidates asks the model for candidate cards. It retries once with
// backoff on transient failures. Malformed entries in the response are
// dropped rather than surfaced.
func (c *OpenAIClient) GenerateCandidates(ctx context.Context, req CandidateRequest) ([]Candidate, error) {
	reqBody := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "user", Content: buildCandidatePrompt(req)},
		},
		Temperature: 0.7,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	raw, err := c.complete(ctx, body)
	if err != nil {
		return nil, err
	}
	return parseCandidates(raw)
}

func (c *OpenAIClient) complete(ctx context.Context, body []byte) (string, error) {
	const maxAttempts = 2
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		result, err := c.doRequest(ctx, body)
		if err == nil {
			return result, nil
		}
		lastErr = err

		// Only retry on transient/retryable errors.
		var ae *apiError
		if errors.As(err, &ae) && !ae.isRetryable() {
			return "", fmt.Errorf("openai: %w", err)
		}

		// Backoff before retry (skip on last attempt).
		if attempt < maxAttempts-1 {
			backoff := time.Duration(attempt+1) * 2 * time.Second
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return "", fmt.Errorf("openai: %w", lastErr)
}

func (c *OpenAIClient) doRequest(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", &apiError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}

	if chatResp.Error != nil {
		return "", fmt.Errorf("api error: %s", chatResp.Error.Message)
	}

	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	return chatResp.Choices[0].Message.Content, nil
}

// parseCandidates extracts the JSON array from the model output, tolerating
// surrounding prose or a markdown code fence, and drops entries without a
// front value.
func parseCandidates(raw string) ([]Candidate, error) {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("no JSON array in model output")
	}

	var all []Candidate
	if err := json.Unmarshal([]byte(raw[start:end+1]), &all); err != nil {
		return nil, fmt.Errorf("unmarshal candidates: %w", err)
	}

	out := all[:0]
	for _, cand := range all {
		if strings.TrimSpace(cand.Front) == "" {
			continue
		}
		out = append(out, cand)
	}
	return out, nil
}
