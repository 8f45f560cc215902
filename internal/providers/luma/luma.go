package luma

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

	"radboard/internal/domain"
	"radboard/internal/providers"
)

const providerName = "luma"

// Options controls how the Dream Machine client is configured.
type Options struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// Client generates videos through the Luma Dream Machine API. Generation is
// asynchronous: Create returns a generation id and StatusOf polls it until
// the remote state settles.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// New constructs a Dream Machine client.
func New(opts Options) *Client {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = "https://api.lumalabs.ai/dream-machine/v1"
	}
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Client{
		httpClient: client,
		baseURL:    base,
		token:      strings.TrimSpace(opts.APIKey),
	}
}

type createRequest struct {
	Prompt      string `json:"prompt"`
	AspectRatio string `json:"aspect_ratio,omitempty"`
	Loop        bool   `json:"loop"`
}

type generation struct {
	ID            string `json:"id"`
	State         string `json:"state"`
	FailureReason string `json:"failure_reason"`
	Assets        struct {
		Video string `json:"video"`
	} `json:"assets"`
}

// Create submits a generation request and returns the remote generation id.
func (c *Client) Create(ctx context.Context, params domain.GenerationParams) (string, error) {
	if c.token == "" {
		return "", providers.NewPermanent(providerName, errors.New("api key is not configured"))
	}
	aspect := params.AspectRatio
	if aspect == "" {
		aspect = "16:9"
	}
	body, err := json.Marshal(createRequest{Prompt: params.Prompt, AspectRatio: aspect, Loop: true})
	if err != nil {
		return "", providers.NewPermanent(providerName, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/generations", bytes.NewReader(body))
	if err != nil {
		return "", providers.NewPermanent(providerName, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", providers.NewTransient(providerName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return "", providers.FromHTTPStatus(providerName, resp.StatusCode, readBody(resp.Body))
	}
	var out generation
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", providers.NewTransient(providerName, fmt.Errorf("decode response: %w", err))
	}
	if out.ID == "" {
		return "", providers.NewPermanent(providerName, errors.New("response missing generation id"))
	}
	return out.ID, nil
}

// StatusOf polls the generation and maps Dream Machine states onto the
// provider contract: queued/dreaming are in progress, completed carries the
// video URL, failed carries the failure reason.
func (c *Client) StatusOf(ctx context.Context, providerRef string) (providers.Status, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/generations/"+providerRef, nil)
	if err != nil {
		return providers.Status{}, providers.NewPermanent(providerName, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return providers.Status{}, providers.NewTransient(providerName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return providers.Status{}, providers.FromHTTPStatus(providerName, resp.StatusCode, readBody(resp.Body))
	}
	var out generation
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return providers.Status{}, providers.NewTransient(providerName, fmt.Errorf("decode response: %w", err))
	}
	switch out.State {
	case "completed":
		if out.Assets.Video == "" {
			return providers.Status{}, providers.NewTransient(providerName, errors.New("completed generation missing video asset"))
		}
		return providers.Status{Kind: providers.StatusSucceeded, ResultRef: out.Assets.Video}, nil
	case "failed":
		reason := out.FailureReason
		if reason == "" {
			reason = "generation failed"
		}
		return providers.Status{Kind: providers.StatusFailed, Reason: reason}, nil
	default:
		// queued, dreaming
		return providers.Status{Kind: providers.StatusInProgress}, nil
	}
}

// Cancel deletes the remote generation. Best effort only.
func (c *Client) Cancel(ctx context.Context, providerRef string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/generations/"+providerRef, nil)
	if err != nil {
		return providers.NewPermanent(providerName, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return providers.NewTransient(providerName, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return providers.FromHTTPStatus(providerName, resp.StatusCode, readBody(resp.Body))
	}
	return nil
}

func readBody(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, 2048))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(raw))
}

var _ providers.Client = (*Client)(nil)
