package stability

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
	"sync"
	"time"

	"github.com/google/uuid"

	"radboard/internal/domain"
	"radboard/internal/providers"
)

const providerName = "stability"

// ArtifactWriter persists decoded image bytes and returns the storage key
// clients can fetch the artifact under.
type ArtifactWriter interface {
	Write(ctx context.Context, key string, data []byte) (string, error)
}

// Options controls how the Stability client is configured.
type Options struct {
	APIKey     string
	BaseURL    string
	Engine     string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// Client generates images through the Stability AI text-to-image API. The
// API is synchronous: the artifact arrives in the Create response. To fit the
// uniform create-then-poll contract, Create decodes and stores the artifact
// and records the result in a ledger that StatusOf answers from.
type Client struct {
	httpClient *http.Client
	baseURL    string
	engine     string
	token      string
	store      ArtifactWriter

	mu   sync.Mutex
	done map[string]providers.Status
}

// New constructs a Stability client writing artifacts through store.
func New(opts Options, store ArtifactWriter) *Client {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = "https://api.stability.ai/v1"
	}
	engine := opts.Engine
	if engine == "" {
		engine = "stable-diffusion-xl-1024-v1-0"
	}
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Client{
		httpClient: client,
		baseURL:    base,
		engine:     engine,
		token:      strings.TrimSpace(opts.APIKey),
		store:      store,
		done:       make(map[string]providers.Status),
	}
}

type textPrompt struct {
	Text string `json:"text"`
}

type generateRequest struct {
	TextPrompts []textPrompt `json:"text_prompts"`
	CfgScale    int          `json:"cfg_scale"`
	Height      int          `json:"height"`
	Width       int          `json:"width"`
	Samples     int          `json:"samples"`
	Steps       int          `json:"steps"`
}

type generateResponse struct {
	Artifacts []struct {
		Base64       string `json:"base64"`
		FinishReason string `json:"finishReason"`
	} `json:"artifacts"`
	Message string `json:"message"`
}

// Create submits the prompt, stores the decoded artifact, and returns a
// reference the ledger resolves on the next StatusOf call.
func (c *Client) Create(ctx context.Context, params domain.GenerationParams) (string, error) {
	if c.token == "" {
		return "", providers.NewPermanent(providerName, errors.New("api key is not configured"))
	}
	payload := generateRequest{
		TextPrompts: []textPrompt{{Text: params.Prompt}},
		CfgScale:    7,
		Height:      1024,
		Width:       1024,
		Samples:     1,
		Steps:       30,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", providers.NewPermanent(providerName, err)
	}
	endpoint := fmt.Sprintf("%s/generation/%s/text-to-image", c.baseURL, c.engine)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
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
		return "", providers.FromHTTPStatus(providerName, resp.StatusCode, readErrorBody(resp.Body))
	}
	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", providers.NewTransient(providerName, fmt.Errorf("decode response: %w", err))
	}
	if len(out.Artifacts) == 0 {
		return "", providers.NewPermanent(providerName, errors.New("empty artifact list"))
	}
	data, err := base64.StdEncoding.DecodeString(out.Artifacts[0].Base64)
	if err != nil {
		return "", providers.NewPermanent(providerName, fmt.Errorf("decode artifact: %w", err))
	}

	ref := uuid.NewString()
	key := fmt.Sprintf("generated/images/%s.png", ref)
	storedKey, err := c.store.Write(ctx, key, data)
	if err != nil {
		return "", providers.NewTransient(providerName, fmt.Errorf("persist artifact: %w", err))
	}

	c.mu.Lock()
	c.done[ref] = providers.Status{Kind: providers.StatusSucceeded, ResultRef: storedKey}
	c.mu.Unlock()
	return ref, nil
}

// StatusOf resolves a reference against the completion ledger.
func (c *Client) StatusOf(ctx context.Context, providerRef string) (providers.Status, error) {
	c.mu.Lock()
	status, ok := c.done[providerRef]
	c.mu.Unlock()
	if !ok {
		return providers.Status{}, providers.NewPermanent(providerName, fmt.Errorf("unknown generation %q", providerRef))
	}
	return status, nil
}

// Cancel drops the ledger entry. The remote call has already completed by the
// time Create returns, so there is nothing to abort upstream.
func (c *Client) Cancel(ctx context.Context, providerRef string) error {
	c.mu.Lock()
	delete(c.done, providerRef)
	c.mu.Unlock()
	return nil
}

func readErrorBody(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, 2048))
	if err != nil {
		return ""
	}
	var parsed struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &parsed) == nil && parsed.Message != "" {
		return parsed.Message
	}
	return strings.TrimSpace(string(raw))
}

var _ providers.Client = (*Client)(nil)
