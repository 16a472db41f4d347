package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/corvex/corvex/internal/api"
	"github.com/corvex/corvex/internal/events"
	"github.com/corvex/corvex/internal/models"
	"github.com/corvex/corvex/internal/protocol"
	"github.com/corvex/corvex/internal/retry"
	"github.com/corvex/corvex/internal/store/memory"
	"github.com/corvex/corvex/internal/workspace"
)

var _ workspace.Service = (*Client)(nil)

func testClient(handler http.Handler) (*Client, *httptest.Server) {
	ts := httptest.NewServer(handler)
	c := New(Config{
		BaseURL: ts.URL,
		RetryConfig: retry.Config{
			MaxAttempts: 3,
			InitialWait: time.Millisecond,
			MaxWait:     time.Millisecond,
		},
	})
	c.reconnectMin = time.Millisecond
	c.reconnectMax = 5 * time.Millisecond
	return c, ts
}

func TestListAllRetriesServerErrors(t *testing.T) {
	var attempts atomic.Int32
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(protocol.TreeResponse{Root: &models.Folder{
			Files: []models.FileEntry{{ID: "a.md", Name: "a.md"}},
		}})
	}))
	defer ts.Close()

	root, err := c.ListAll(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts.Load() != 3 {
		t.Errorf("attempts = %d, want 3", attempts.Load())
	}
	if len(root.Files) != 1 || root.Files[0].ID != "a.md" {
		t.Errorf("root = %+v", root)
	}
	if !c.IsOnline() {
		t.Error("client should be online after a successful read")
	}
}

func TestMutationsAreNotRetried(t *testing.T) {
	var attempts atomic.Int32
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	err := c.CreateFile(context.Background(), "a.md")
	if !errors.Is(err, models.ErrRemoteUnavailable) {
		t.Fatalf("err = %v, want remote unavailable", err)
	}
	if attempts.Load() != 1 {
		t.Errorf("attempts = %d, want 1", attempts.Load())
	}
	if c.IsOnline() {
		t.Error("client should be offline after a 503")
	}
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		kind   string
		want   error
	}{
		{"kind wins", http.StatusBadRequest, "conflict", models.ErrConflict},
		{"not found by status", http.StatusNotFound, "", models.ErrNotFound},
		{"conflict by status", http.StatusConflict, "", models.ErrConflict},
		{"forbidden", http.StatusForbidden, "", models.ErrPermissionDenied},
		{"bad request", http.StatusBadRequest, "", models.ErrInvalid},
		{"unauthorized", http.StatusUnauthorized, "unauthenticated", ErrUnauthenticated},
		{"server error ignores kind", http.StatusInternalServerError, "not_found", models.ErrRemoteUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				json.NewEncoder(w).Encode(protocol.ErrorResponse{Error: "boom", Code: tt.status, Kind: tt.kind})
			}))
			defer ts.Close()

			err := c.DeleteFile(context.Background(), "a.md")
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
			if got := retry.IsRetryable(err); got != (tt.status >= 500) {
				t.Errorf("retryable = %v", got)
			}
		})
	}
}

func TestUnauthorizedIsPermissionDenied(t *testing.T) {
	err := statusError("GET /api/v1/tree", http.StatusUnauthorized, protocol.ErrorResponse{})
	if !errors.Is(err, models.ErrPermissionDenied) || !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("err = %v", err)
	}
}

func TestTransportErrorIsRemoteUnavailable(t *testing.T) {
	c, ts := testClient(http.NotFoundHandler())
	ts.Close()

	_, err := c.ListAll(context.Background())
	if !errors.Is(err, models.ErrRemoteUnavailable) {
		t.Errorf("err = %v, want remote unavailable", err)
	}
}

func TestRequestShape(t *testing.T) {
	type seen struct {
		method, path, auth string
		body               protocol.PathChangeRequest
	}
	var got seen
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = seen{method: r.Method, path: r.URL.EscapedPath(), auth: r.Header.Get("Authorization")}
		json.NewDecoder(r.Body).Decode(&got.body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()
	c.SetAuthToken("tok")

	if err := c.CreateFolder(context.Background(), "my notes/drafts #1"); err != nil {
		t.Fatal(err)
	}
	if got.method != "POST" || got.path != "/api/v1/folders/my%20notes/drafts%20%231" {
		t.Errorf("create request = %+v", got)
	}
	if got.auth != "Bearer tok" {
		t.Errorf("auth = %q", got.auth)
	}

	if err := c.MoveFolder(context.Background(), "A", "B/A"); err != nil {
		t.Fatal(err)
	}
	want := protocol.PathChangeRequest{Kind: "folder", OldPath: "A", NewPath: "B/A"}
	if got.path != "/api/v1/move" || got.body != want {
		t.Errorf("move request = %+v", got)
	}
}

func TestSubscribe(t *testing.T) {
	var connects atomic.Int32
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := connects.Add(1)
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, ": keepalive\n\n")
		fmt.Fprintf(w, "event: create\ndata: {\"type\":\"create\",\"path\":\"n%d.md\"}\n\n", n)
		w.(http.Flusher).Flush()
	}))
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch := c.Subscribe(ctx)

	for i := 1; i <= 2; i++ {
		select {
		case ev := <-ch:
			if want := fmt.Sprintf("n%d.md", i); ev.Path != want || ev.Type != protocol.EventCreate {
				t.Errorf("event %d = %+v, want path %s", i, ev, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}

	cancel()
	for range ch {
	}
}

// TestEngineOverHTTP drives the engine through the client against a real
// server backed by the memory store.
func TestEngineOverHTTP(t *testing.T) {
	b := events.NewBroadcaster()
	srv := api.NewServer(memory.New(), nil, b)
	c, ts := testClient(srv.Handler())
	defer ts.Close()

	ctx := context.Background()
	e := workspace.New(c, workspace.Config{})
	if err := e.Load(ctx); err != nil {
		t.Fatal(err)
	}

	folder, err := e.Create(ctx, "", models.KindFolder, "notes")
	if err != nil {
		t.Fatal(err)
	}
	file, err := e.Create(ctx, folder, models.KindFile, "todo.md")
	if err != nil {
		t.Fatal(err)
	}
	if file != "notes/todo.md" {
		t.Errorf("file id = %q", file)
	}
	if err := e.SaveFile(ctx, file, "- [ ] ship"); err != nil {
		t.Fatal(err)
	}
	if err := e.Rename(ctx, folder, "done"); err != nil {
		t.Fatal(err)
	}

	text, err := e.OpenFile(ctx, "done/todo.md")
	if err != nil {
		t.Fatal(err)
	}
	if text != "- [ ] ship" {
		t.Errorf("content = %q", text)
	}

	if _, err := e.Create(ctx, "", models.KindFolder, "done"); !errors.Is(err, models.ErrConflict) {
		t.Errorf("duplicate create err = %v, want conflict", err)
	}

	if err := e.Delete(ctx, "done"); err != nil {
		t.Fatal(err)
	}
	root, err := c.ListAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(root.Files) != 0 || len(root.Subfolders) != 0 {
		t.Errorf("remote tree not empty: %+v", root)
	}
	if snap := e.Snapshot(); len(snap.Children) != 0 {
		t.Errorf("local tree not empty: %+v", snap.Children)
	}
}
