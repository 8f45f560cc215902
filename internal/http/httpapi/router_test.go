package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"radboard/internal/adapter/memstore"
	"radboard/internal/content"
	"radboard/internal/domain"
	"radboard/internal/eventbus"
	"radboard/internal/generation"
	"radboard/internal/http/handlers"
	"radboard/internal/infra"
	"radboard/internal/providers"
)

type stubProvider struct{}

func (stubProvider) Create(ctx context.Context, params domain.GenerationParams) (string, error) {
	return "stub-ref", nil
}

func (stubProvider) StatusOf(ctx context.Context, providerRef string) (providers.Status, error) {
	return providers.Status{Kind: providers.StatusInProgress}, nil
}

func (stubProvider) Cancel(ctx context.Context, providerRef string) error { return nil }

type testAPI struct {
	srv  *httptest.Server
	orch *generation.Orchestrator
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	logger := infra.NewLogger("test")
	bus := eventbus.New(32)
	t.Cleanup(bus.Close)

	store := memstore.NewJobStore()
	clients := map[domain.JobKind]providers.Client{
		domain.JobKindImage: stubProvider{},
		domain.JobKindVideo: stubProvider{},
	}
	orch := generation.NewOrchestrator(context.Background(), store, clients, bus, logger, generation.Options{})
	svc := content.NewService(bus, orch, logger)
	t.Cleanup(svc.Close)

	app := handlers.NewApp(logger, svc, orch)
	srv := httptest.NewServer(NewRouter(app, Options{Logger: logger}))
	t.Cleanup(srv.Close)
	return &testAPI{srv: srv, orch: orch}
}

func (a *testAPI) do(t *testing.T, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, a.srv.URL+path, &buf)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func (a *testAPI) createPost(t *testing.T, body any) string {
	t.Helper()
	resp, decoded := a.do(t, http.MethodPost, "/v1/posts", body)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create post status = %d, body %v", resp.StatusCode, decoded)
	}
	return decoded["post"].(map[string]any)["id"].(string)
}

func TestHealthEndpoint(t *testing.T) {
	api := newTestAPI(t)
	resp, decoded := api.do(t, http.MethodGet, "/v1/healthz", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if decoded["status"] != "ok" {
		t.Fatalf("body = %v", decoded)
	}
}

func TestCreateAndFetchPost(t *testing.T) {
	api := newTestAPI(t)
	postID := api.createPost(t, map[string]any{
		"author":  "ada",
		"content": "hello",
		"tags":    []string{"Go", "go"},
	})

	resp, decoded := api.do(t, http.MethodGet, "/v1/posts/"+postID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get post status = %d", resp.StatusCode)
	}
	post := decoded["post"].(map[string]any)
	if post["content"] != "hello" {
		t.Fatalf("post body = %v", post)
	}
	tags := post["tags"].([]any)
	if len(tags) != 1 || tags[0] != "go" {
		t.Fatalf("tags = %v, want deduplicated [go]", tags)
	}

	resp, _ = api.do(t, http.MethodGet, "/v1/posts/does-not-exist", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown post status = %d, want 404", resp.StatusCode)
	}
}

func TestCreatePostRejectsEmpty(t *testing.T) {
	api := newTestAPI(t)
	resp, _ := api.do(t, http.MethodPost, "/v1/posts", map[string]any{"author": "ada", "content": "   "})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestCreatePostWithGeneration(t *testing.T) {
	api := newTestAPI(t)
	resp, decoded := api.do(t, http.MethodPost, "/v1/posts", map[string]any{
		"author": "ada",
		"generate": map[string]any{
			"kind":   "image",
			"prompt": "neon skyline",
		},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, body %v", resp.StatusCode, decoded)
	}
	job := decoded["job"].(map[string]any)
	if job["status"] != string(domain.JobStatusPending) {
		t.Fatalf("job status = %v, want pending", job["status"])
	}
	post := decoded["post"].(map[string]any)
	if post["media_state"] != string(domain.MediaStateGenerating) {
		t.Fatalf("media_state = %v, want generating", post["media_state"])
	}
}

func TestGenerationLifecycleOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	postID := api.createPost(t, map[string]any{"author": "ada", "content": "plain"})

	resp, decoded := api.do(t, http.MethodPost, "/v1/generations", map[string]any{
		"post_id": postID,
		"kind":    "video",
		"prompt":  "a looping clip",
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("submit status = %d, body %v", resp.StatusCode, decoded)
	}
	jobID := decoded["id"].(string)
	api.orch.Wait()

	// The same post cannot carry two active jobs.
	resp, _ = api.do(t, http.MethodPost, "/v1/generations", map[string]any{
		"post_id": postID,
		"kind":    "video",
		"prompt":  "another",
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate submit status = %d, want 409", resp.StatusCode)
	}

	resp, decoded = api.do(t, http.MethodGet, "/v1/generations/"+jobID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get job status = %d", resp.StatusCode)
	}
	if decoded["status"] != string(domain.JobStatusSubmitted) {
		t.Fatalf("job status = %v, want submitted", decoded["status"])
	}

	resp, _ = api.do(t, http.MethodDelete, "/v1/posts/"+postID+"/generation", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("cancel status = %d, want 204", resp.StatusCode)
	}
	resp, _ = api.do(t, http.MethodDelete, "/v1/posts/"+postID+"/generation", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("second cancel status = %d, want 404", resp.StatusCode)
	}
}

func TestGenerationValidation(t *testing.T) {
	api := newTestAPI(t)
	postID := api.createPost(t, map[string]any{"author": "ada", "content": "x"})

	tests := []struct {
		name string
		body map[string]any
		want int
	}{
		{"unknown kind", map[string]any{"post_id": postID, "kind": "audio", "prompt": "x"}, http.StatusBadRequest},
		{"empty prompt", map[string]any{"post_id": postID, "kind": "image", "prompt": " "}, http.StatusBadRequest},
		{"unknown post", map[string]any{"post_id": "ghost", "kind": "image", "prompt": "x"}, http.StatusNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp, _ := api.do(t, http.MethodPost, "/v1/generations", tc.body)
			if resp.StatusCode != tc.want {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tc.want)
			}
		})
	}

	resp, _ := api.do(t, http.MethodGet, "/v1/generations/ghost", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown job status = %d, want 404", resp.StatusCode)
	}
}

func TestCommentsAndReactionsOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	postID := api.createPost(t, map[string]any{"author": "ada", "content": "x"})

	resp, decoded := api.do(t, http.MethodPost, "/v1/posts/"+postID+"/comments", map[string]any{
		"author":  "bob",
		"content": "nice",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("comment status = %d, body %v", resp.StatusCode, decoded)
	}

	resp, _ = api.do(t, http.MethodPost, "/v1/posts/ghost/comments", map[string]any{"content": "x"})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("comment on unknown post = %d, want 404", resp.StatusCode)
	}

	resp, decoded = api.do(t, http.MethodPut, "/v1/posts/"+postID+"/reactions/fire", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reaction status = %d", resp.StatusCode)
	}
	counts := decoded["reactions"].(map[string]any)
	if counts["fire"].(float64) != 1 {
		t.Fatalf("tally = %v", counts)
	}

	resp, _ = api.do(t, http.MethodDelete, "/v1/posts/"+postID, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete post status = %d, want 204", resp.StatusCode)
	}
}
