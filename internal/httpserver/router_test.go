package httpserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"ollamagate/internal/cache"
	"ollamagate/internal/handlers"
	"ollamagate/internal/ollama"
)

type stubClient struct{}

func (stubClient) Chat(ctx context.Context, p *ollama.ChatPayload) (*ollama.ChatResponse, error) {
	return &ollama.ChatResponse{Model: p.Model, Choices: []ollama.ChatChoice{
		{Message: ollama.ChatMessage{Role: ollama.RoleAssistant, Content: "pong"}},
	}}, nil
}

func (stubClient) Complete(ctx context.Context, req *ollama.CompletionRequest) (*ollama.CompletionResponse, error) {
	return &ollama.CompletionResponse{Model: req.Model, Choices: []ollama.CompletionChoice{{Text: "pong"}}}, nil
}

func newServer(t *testing.T, maxBody int64, origins ...string) *httptest.Server {
	t.Helper()

	store := cache.NewMemoryStore(cache.MemoryConfig{})

	r := chi.NewRouter()
	SetupRouter(r, zaptest.NewLogger(t), Handlers{
		Chat:       handlers.NewChatHandler(stubClient{}, store, time.Minute, "vtest", ollama.ConvertOptions{}),
		Completion: handlers.NewCompletionHandler(stubClient{}, store, time.Minute, "vtest"),
		Convert:    handlers.NewConvertHandler(ollama.ConvertOptions{}),
	}, Options{RequestTimeout: 5 * time.Second, MaxBodyBytes: maxBody, CORSOrigins: origins})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestRoutes(t *testing.T) {
	srv := newServer(t, 1<<20)

	cases := []struct {
		method, path, body string
		status             int
	}{
		{http.MethodGet, "/healthz", "", http.StatusOK},
		{http.MethodGet, "/metrics", "", http.StatusOK},
		{http.MethodPost, "/v1/chat", `{"model":"m","messages":[{"role":"user","content":"ping"}]}`, http.StatusOK},
		{http.MethodPost, "/v1/completions", `{"model":"m","prompt":"ping"}`, http.StatusOK},
		{http.MethodPost, "/v1/convert", `{"messages":[{"role":"user","content":"ping"}]}`, http.StatusOK},
		{http.MethodGet, "/v1/chat", "", http.StatusMethodNotAllowed},
		{http.MethodGet, "/nope", "", http.StatusNotFound},
	}

	for _, tc := range cases {
		req, err := http.NewRequest(tc.method, srv.URL+tc.path, strings.NewReader(tc.body))
		require.NoError(t, err)

		resp, err := srv.Client().Do(req)
		require.NoError(t, err)
		resp.Body.Close()

		require.Equal(t, tc.status, resp.StatusCode, "%s %s", tc.method, tc.path)
		if tc.path != "/healthz" && tc.path != "/metrics" && tc.status == http.StatusOK {
			require.Equal(t, "application/json", resp.Header.Get("Content-Type"))
		}
	}
}

func TestBodyLimit(t *testing.T) {
	srv := newServer(t, 32)

	body := `{"messages":[{"role":"user","content":"` + strings.Repeat("x", 100) + `"}]}`
	resp, err := srv.Client().Post(srv.URL+"/v1/convert", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestCORS(t *testing.T) {
	srv := newServer(t, 1<<20, "http://localhost:3000")

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/v1/chat", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))

	req, err = http.NewRequest(http.MethodGet, srv.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://evil.example")

	resp, err = srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	require.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}
