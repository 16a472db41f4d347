package api

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/corvex/corvex/internal/auth"
	"github.com/corvex/corvex/internal/events"
	"github.com/corvex/corvex/internal/models"
	"github.com/corvex/corvex/internal/protocol"
	"github.com/corvex/corvex/internal/store/memory"
)

func newTestServer(t *testing.T, a *auth.Auth, b *events.Broadcaster) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(NewServer(memory.New(), a, b).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeError(t *testing.T, resp *http.Response) protocol.ErrorResponse {
	t.Helper()
	var er protocol.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return er
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	resp := do(t, "GET", ts.URL+"/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}
}

func TestCreateAndList(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	if resp := do(t, "POST", ts.URL+"/api/v1/folders/notes", nil); resp.StatusCode != http.StatusCreated {
		t.Fatalf("create folder status = %d", resp.StatusCode)
	}
	if resp := do(t, "POST", ts.URL+"/api/v1/files/notes/my%20draft.md", nil); resp.StatusCode != http.StatusCreated {
		t.Fatalf("create file status = %d", resp.StatusCode)
	}

	resp := do(t, "GET", ts.URL+"/api/v1/tree", nil)
	var tr protocol.TreeResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		t.Fatal(err)
	}
	if len(tr.Root.Subfolders) != 1 || tr.Root.Subfolders[0].ID != "notes" {
		t.Fatalf("subfolders = %+v", tr.Root.Subfolders)
	}
	files := tr.Root.Subfolders[0].Files
	if len(files) != 1 || files[0].ID != "notes/my draft.md" {
		t.Errorf("files = %+v", files)
	}
}

func TestTreeGzip(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	do(t, "POST", ts.URL+"/api/v1/files/a.md", nil)

	req, _ := http.NewRequest("GET", ts.URL+"/api/v1/tree", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.Header.Get("Content-Encoding") != "gzip" {
		t.Fatalf("Content-Encoding = %q", resp.Header.Get("Content-Encoding"))
	}
	gr, err := gzip.NewReader(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	var tr protocol.TreeResponse
	if err := json.NewDecoder(gr).Decode(&tr); err != nil {
		t.Fatal(err)
	}
	if len(tr.Root.Files) != 1 {
		t.Errorf("files = %+v", tr.Root.Files)
	}
}

func TestErrorMapping(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	do(t, "POST", ts.URL+"/api/v1/folders/A", nil)
	do(t, "POST", ts.URL+"/api/v1/files/A/c.md", nil)
	do(t, "POST", ts.URL+"/api/v1/folders/B", nil)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		code   int
		kind   string
	}{
		{"create existing", "POST", "/api/v1/files/A/c.md", nil, 409, "conflict"},
		{"missing parent", "POST", "/api/v1/files/Z/c.md", nil, 404, "not_found"},
		{"delete root", "DELETE", "/api/v1/folders/", nil, 403, "permission_denied"},
		{"delete missing", "DELETE", "/api/v1/files/nope.md", nil, 404, "not_found"},
		{"rename root", "POST", "/api/v1/rename",
			protocol.PathChangeRequest{Kind: "folder", OldPath: "", NewPath: "C"}, 403, "permission_denied"},
		{"rename across parents", "POST", "/api/v1/rename",
			protocol.PathChangeRequest{Kind: "file", OldPath: "A/c.md", NewPath: "B/c.md"}, 400, "invalid"},
		{"rename onto sibling", "POST", "/api/v1/rename",
			protocol.PathChangeRequest{Kind: "folder", OldPath: "A", NewPath: "B"}, 409, "conflict"},
		{"move changes name", "POST", "/api/v1/move",
			protocol.PathChangeRequest{Kind: "file", OldPath: "A/c.md", NewPath: "B/d.md"}, 400, "invalid"},
		{"malformed body", "POST", "/api/v1/move", "not an object", 400, "invalid"},
		{"read missing", "GET", "/api/v1/content/missing.md", nil, 404, "not_found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, tt.method, ts.URL+tt.path, tt.body)
			if resp.StatusCode != tt.code {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.code)
			}
			if er := decodeError(t, resp); er.Kind != tt.kind || er.Code != tt.code {
				t.Errorf("error = %+v, want kind %s", er, tt.kind)
			}
		})
	}
}

func TestRenameMoveDelete(t *testing.T) {
	b := events.NewBroadcaster()
	sub := b.Subscribe()
	defer sub.Close()
	ts := newTestServer(t, nil, b)

	steps := []struct {
		method string
		path   string
		body   any
		code   int
		event  string
	}{
		{"POST", "/api/v1/folders/A", nil, 201, protocol.EventCreate},
		{"POST", "/api/v1/folders/B", nil, 201, protocol.EventCreate},
		{"POST", "/api/v1/files/A/c.md", nil, 201, protocol.EventCreate},
		{"POST", "/api/v1/rename", protocol.PathChangeRequest{Kind: "file", OldPath: "A/c.md", NewPath: "A/d.md"}, 204, protocol.EventRename},
		{"POST", "/api/v1/move", protocol.PathChangeRequest{Kind: "file", OldPath: "A/d.md", NewPath: "B/d.md"}, 204, protocol.EventMove},
		{"DELETE", "/api/v1/folders/A", nil, 204, protocol.EventDelete},
	}
	for _, st := range steps {
		resp := do(t, st.method, ts.URL+st.path, st.body)
		if resp.StatusCode != st.code {
			t.Fatalf("%s %s: status = %d, want %d", st.method, st.path, resp.StatusCode, st.code)
		}
		select {
		case ev := <-sub.Events():
			if ev.Type != st.event {
				t.Errorf("%s %s: event %q, want %q", st.method, st.path, ev.Type, st.event)
			}
		case <-time.After(time.Second):
			t.Fatalf("%s %s: no event", st.method, st.path)
		}
	}

	resp := do(t, "GET", ts.URL+"/api/v1/tree", nil)
	var tr protocol.TreeResponse
	json.NewDecoder(resp.Body).Decode(&tr)
	if len(tr.Root.Subfolders) != 1 || tr.Root.Subfolders[0].ID != "B" {
		t.Fatalf("subfolders = %+v", tr.Root.Subfolders)
	}
	if files := tr.Root.Subfolders[0].Files; len(files) != 1 || files[0].ID != "B/d.md" {
		t.Errorf("B files = %+v", files)
	}
}

func TestContent(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	do(t, "POST", ts.URL+"/api/v1/files/a.md", nil)

	if resp := do(t, "PUT", ts.URL+"/api/v1/content/a.md", protocol.ContentRequest{Content: "# Title"}); resp.StatusCode != 204 {
		t.Fatalf("put status = %d", resp.StatusCode)
	}

	resp := do(t, "GET", ts.URL+"/api/v1/content/a.md", nil)
	var cr protocol.ContentResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		t.Fatal(err)
	}
	if cr.Content != "# Title" || cr.Path != "a.md" {
		t.Errorf("content = %+v", cr)
	}
}

func TestAuthRequired(t *testing.T) {
	a := auth.New("secret")
	ts := newTestServer(t, a, nil)

	if resp := do(t, "GET", ts.URL+"/health", nil); resp.StatusCode != http.StatusOK {
		t.Errorf("health should be public, status = %d", resp.StatusCode)
	}

	resp := do(t, "GET", ts.URL+"/api/v1/tree", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}

	token, _, err := a.IssueToken("tester", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	req, _ := http.NewRequest("GET", ts.URL+"/api/v1/tree", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	authed, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer authed.Body.Close()
	if authed.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", authed.StatusCode)
	}
}

func TestEventStream(t *testing.T) {
	b := events.NewBroadcaster()
	ts := newTestServer(t, nil, b)

	resp, err := http.Get(ts.URL + "/api/v1/events")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	deadline := time.Now().Add(time.Second)
	for b.Count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	b.Publish(events.Created(models.KindFile, "x.md"))

	buf := make([]byte, 512)
	n, err := resp.Body.Read(buf)
	if err != nil {
		t.Fatal(err)
	}
	got := string(buf[:n])
	if !strings.Contains(got, "event: create") || !strings.Contains(got, `"path":"x.md"`) {
		t.Errorf("stream = %q", got)
	}
}
