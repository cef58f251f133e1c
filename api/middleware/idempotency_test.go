package middleware

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type fakeStore struct {
	data   map[string]string
	getErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]string)}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	if f.getErr != nil {
		return "", f.getErr
	}
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	str, _ := value.(string)
	f.data[key] = str
	return true, nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("fake:%s:%s", scope, id)
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.data, key)
	}
	return nil
}

type countingHandler struct {
	calls  int
	status int
}

func (h *countingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.calls++
	body, _ := io.ReadAll(r.Body)
	w.Header().Set("Content-Type", "application/json")
	status := h.status
	if status == 0 {
		status = http.StatusCreated
	}
	w.WriteHeader(status)
	_, _ = fmt.Fprintf(w, `{"call":%d,"echo":%q}`, h.calls, string(body))
}

func postWithKey(key, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(body))
	if key != "" {
		req.Header.Set(IdempotencyHeader, key)
	}
	return req
}

func TestIdempotencyReplaysFirstResponse(t *testing.T) {
	store := newFakeStore()
	next := &countingHandler{}
	handler := Idempotency(store, time.Hour, nil)(next)

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, postWithKey("key-1", `{"a":1}`))
	second := httptest.NewRecorder()
	handler.ServeHTTP(second, postWithKey("key-1", `{"a":1}`))

	if next.calls != 1 {
		t.Fatalf("expected handler to run once, ran %d times", next.calls)
	}
	if second.Code != http.StatusCreated {
		t.Fatalf("expected replayed 201, got %d", second.Code)
	}
	if second.Body.String() != first.Body.String() {
		t.Fatalf("expected replayed body %q, got %q", first.Body.String(), second.Body.String())
	}
	if second.Header().Get("Idempotent-Replayed") != "true" {
		t.Fatalf("expected replay marker header")
	}
	if second.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("expected stored content type, got %q", second.Header().Get("Content-Type"))
	}
}

func TestIdempotencyRejectsDifferentBody(t *testing.T) {
	store := newFakeStore()
	next := &countingHandler{}
	handler := Idempotency(store, time.Hour, nil)(next)

	handler.ServeHTTP(httptest.NewRecorder(), postWithKey("key-1", `{"a":1}`))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, postWithKey("key-1", `{"a":2}`))

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.Code)
	}
	if next.calls != 1 {
		t.Fatalf("expected handler to run once, ran %d times", next.calls)
	}
}

func TestIdempotencyPassesThroughWithoutKey(t *testing.T) {
	store := newFakeStore()
	next := &countingHandler{}
	handler := Idempotency(store, time.Hour, nil)(next)

	handler.ServeHTTP(httptest.NewRecorder(), postWithKey("", `{}`))
	handler.ServeHTTP(httptest.NewRecorder(), postWithKey("", `{}`))

	if next.calls != 2 {
		t.Fatalf("expected two calls, got %d", next.calls)
	}
	if len(store.data) != 0 {
		t.Fatalf("expected nothing stored, got %d records", len(store.data))
	}
}

func TestIdempotencyNilStorePassesThrough(t *testing.T) {
	next := &countingHandler{}
	handler := Idempotency(nil, time.Hour, nil)(next)

	handler.ServeHTTP(httptest.NewRecorder(), postWithKey("key-1", `{}`))
	handler.ServeHTTP(httptest.NewRecorder(), postWithKey("key-1", `{}`))

	if next.calls != 2 {
		t.Fatalf("expected two calls, got %d", next.calls)
	}
}

func TestIdempotencyForgetsFailedRequests(t *testing.T) {
	store := newFakeStore()
	next := &countingHandler{status: http.StatusBadRequest}
	handler := Idempotency(store, time.Hour, nil)(next)

	handler.ServeHTTP(httptest.NewRecorder(), postWithKey("key-1", `{}`))
	next.status = http.StatusCreated
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, postWithKey("key-1", `{}`))

	if next.calls != 2 {
		t.Fatalf("expected retry to reach the handler, got %d calls", next.calls)
	}
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 on retry, got %d", resp.Code)
	}
}

func TestIdempotencyStoreOutageIsDependencyError(t *testing.T) {
	store := newFakeStore()
	store.getErr = errors.New("redis down")
	next := &countingHandler{}
	handler := Idempotency(store, time.Hour, nil)(next)

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, postWithKey("key-1", `{}`))

	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.Code)
	}
	if next.calls != 0 {
		t.Fatalf("expected handler to be skipped")
	}
}

func TestIdempotencyScopesByOperator(t *testing.T) {
	store := newFakeStore()
	next := &countingHandler{}
	handler := Idempotency(store, time.Hour, nil)(next)

	req := postWithKey("key-1", `{}`)
	handler.ServeHTTP(httptest.NewRecorder(), req.WithContext(WithOperator(req.Context(), "op-1", "admin")))
	req = postWithKey("key-1", `{}`)
	handler.ServeHTTP(httptest.NewRecorder(), req.WithContext(WithOperator(req.Context(), "op-2", "admin")))

	if next.calls != 2 {
		t.Fatalf("expected separate scopes per operator, got %d calls", next.calls)
	}
}
