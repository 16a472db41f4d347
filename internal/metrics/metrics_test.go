package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddlewareLabelsByPattern(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("DELETE /api/v1/files/{path...}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	h := Middleware(mux)

	route := "DELETE /api/v1/files/{path...}"
	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("DELETE", route, "204"))
	for _, p := range []string{"/api/v1/files/a.md", "/api/v1/files/b/c.md"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("DELETE", p, nil))
	}
	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("DELETE", route, "204"))
	if after-before != 2 {
		t.Errorf("requests recorded = %v, want 2", after-before)
	}

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/nowhere", nil))
	if n := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "unmatched", "404")); n < 1 {
		t.Errorf("unmatched requests = %v", n)
	}
}

func TestRecordRollback(t *testing.T) {
	c := rollbacksTotal.WithLabelValues("rename", "stale")
	before := testutil.ToFloat64(c)
	RecordRollback("rename", "stale")
	if got := testutil.ToFloat64(c) - before; got != 1 {
		t.Errorf("rollbacks = %v, want 1", got)
	}
}
