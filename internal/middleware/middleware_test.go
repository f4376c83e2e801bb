package middleware

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"ollamagate/pkg/logging/logging"
)

func TestRecovererReturns500(t *testing.T) {
	t.Parallel()

	h := Recoverer()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(logging.WithLogger(req.Context(), zap.NewNop()))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "internal_server_error") {
		t.Fatalf("unexpected body: %s", rr.Body.String())
	}
}

func TestTimeoutWrites504WhenHandlerIsSilent(t *testing.T) {
	t.Parallel()

	h := Timeout(10 * time.Millisecond)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(logging.WithLogger(req.Context(), zap.NewNop()))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusGatewayTimeout {
		t.Fatalf("expected 504, got %d", rr.Code)
	}
}

func TestTimeoutLeavesFastResponsesAlone(t *testing.T) {
	t.Parallel()

	h := Timeout(time.Second)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rr.Code)
	}
}

func TestMaxBodySize(t *testing.T) {
	t.Parallel()

	var readErr error
	h := MaxBodySize(4)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", strings.NewReader("too long")))

	var maxErr *http.MaxBytesError
	if readErr == nil || !errors.As(readErr, &maxErr) {
		t.Fatalf("expected MaxBytesError, got %v", readErr)
	}
}

func TestLoggingContextAddsRequestFields(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)

	h := LoggingContext(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logging.L(r.Context()).Info("inside")
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/chat", nil)
	req.Header.Set("User-Agent", "test-agent")
	h.ServeHTTP(httptest.NewRecorder(), req)

	fields := logs.All()[0].ContextMap()
	if fields["path"] != "/v1/chat" || fields["method"] != http.MethodPost || fields["user_agent"] != "test-agent" {
		t.Fatalf("unexpected fields: %#v", fields)
	}
}
