package gen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ---------------------------------------------------------------------------
// Remote artwork generator (OpenAI-compatible images API)
// ---------------------------------------------------------------------------

// RemoteArtworkClient implements ArtworkGenerator using an OpenAI-compatible
// image generation API.
type RemoteArtworkClient struct {
	apiKey     string
	baseURL    string
	model      string
	size       string
	httpClient *http.Client
}

// RemoteArtworkOption configures the remote artwork client.
type RemoteArtworkOption func(*RemoteArtworkClient)

// WithArtworkModel sets the image model name (default: gpt-image-1).
func WithArtworkModel(model string) RemoteArtworkOption {
	return func(c *RemoteArtworkClient) { c.model = model }
}

// WithArtworkBaseURL overrides the API endpoint.
func WithArtworkBaseURL(url string) RemoteArtworkOption {
	return func(c *RemoteArtworkClient) { c.baseURL = strings.TrimRight(url, "/") }
}

// NewRemoteArtworkClient creates a new remote artwork generator.
func NewRemoteArtworkClient(apiKey string, opts ...RemoteArtworkOption) *RemoteArtworkClient {
	c := &RemoteArtworkClient{
		apiKey:  apiKey,
		baseURL: "https://api.openai.com/v1",
		model:   "gpt-image-1",
		size:    "1024x1024",
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type imageRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n"`
	Size           string `json:"size"`
	ResponseFormat string `json:"response_format,omitempty"`
}

type imageResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// GenerateArtwork produces image bytes for the prompt. Transient API errors
// are retried once with backoff.
func (c *RemoteArtworkClient) GenerateArtwork(ctx context.Context, prompt string) ([]byte, error) {
	reqBody := imageRequest{
		Model:          c.model,
		Prompt:         prompt,
		N:              1,
		Size:           c.size,
		ResponseFormat: "b64_json",
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	const maxAttempts = 2
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		art, err := c.doRequest(ctx, body)
		if err == nil {
			return art, nil
		}
		lastErr = err

		var ae *apiError
		if errors.As(err, &ae) && !ae.isRetryable() {
			return nil, fmt.Errorf("images: %w", err)
		}

		if attempt < maxAttempts-1 {
			backoff := time.Duration(attempt+1) * 2 * time.Second
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return nil, fmt.Errorf("images: %w", lastErr)
}

func (c *RemoteArtworkClient) doRequest(ctx context.Context, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/images/generations", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &apiError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var imgResp imageResponse
	if err := json.Unmarshal(respBody, &imgResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if imgResp.Error != nil {
		return nil, fmt.Errorf("api error: %s", imgResp.Error.Message)
	}
	if len(imgResp.Data) == 0 || imgResp.Data[0].B64JSON == "" {
		return nil, fmt.Errorf("no image in response")
	}

	art, err := base64.StdEncoding.DecodeString(imgResp.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if len(art) == 0 {
		return nil, fmt.Errorf("empty image in response")
	}
	return art, nil
}

// ---------------------------------------------------------------------------
// Local artwork generator
// ---------------------------------------------------------------------------

// LocalArtworkClient implements ArtworkGenerator against a local image
// generation server (e.g. a Stable Diffusion web API on localhost).
type LocalArtworkClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewLocalArtworkClient creates a new local artwork generator.
func NewLocalArtworkClient(baseURL string) *LocalArtworkClient {
	if baseURL == "" {
		baseURL = "http://localhost:7860"
	}
	return &LocalArtworkClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

type localImageRequest struct {
	Prompt string `json:"prompt"`
	Steps  int    `json:"steps"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type localImageResponse struct {
	Images []string `json:"images"`
	Error  string   `json:"error,omitempty"`
}

// GenerateArtwork produces image bytes via the local server. No retry: a
// failing local generator should fall through to the remote tier quickly.
func (c *LocalArtworkClient) GenerateArtwork(ctx context.Context, prompt string) ([]byte, error) {
	body, err := json.Marshal(localImageRequest{Prompt: prompt, Steps: 20, Width: 512, Height: 512})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/sdapi/v1/txt2img", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &apiError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var imgResp localImageResponse
	if err := json.Unmarshal(respBody, &imgResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if imgResp.Error != "" {
		return nil, fmt.Errorf("local generator error: %s", imgResp.Error)
	}
	if len(imgResp.Images) == 0 || imgResp.Images[0] == "" {
		return nil, fmt.Errorf("no image in response")
	}

	art, err := base64.StdEncoding.DecodeString(imgResp.Images[0])
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return art, nil
}

// ---------------------------------------------------------------------------
// Tiered composite
// ---------------------------------------------------------------------------

// TieredArtwork tries the local generator first and falls back to the remote
// one. Callers only observe the composite success or failure.
type TieredArtwork struct {
	Local  ArtworkGenerator // optional
	Remote ArtworkGenerator // optional
}

// GenerateArtwork returns the first tier's result that succeeds.
func (t *TieredArtwork) GenerateArtwork(ctx context.Context, prompt string) ([]byte, error) {
	var localErr error
	if t.Local != nil {
		art, err := t.Local.GenerateArtwork(ctx, prompt)
		if err == nil {
			return art, nil
		}
		localErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	if t.Remote != nil {
		art, err := t.Remote.GenerateArtwork(ctx, prompt)
		if err == nil {
			return art, nil
		}
		if localErr != nil {
			return nil, fmt.Errorf("local: %v; remote: %w", localErr, err)
		}
		return nil, fmt.Errorf("remote: %w", err)
	}
	if localErr != nil {
		return nil, fmt.Errorf("local: %w", localErr)
	}
	return nil, fmt.Errorf("no artwork generator configured")
}
