package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/", "/"},
		{"/courses", "/courses"},
		{"/engagement", "/engagement"},
		{"/modules", "/modules"},
		{"/metrics", "/metrics"},
		{"/courses/course-v1:OpenX+Demo+2021", "/courses/{id}"},
		{"/engagement/extra", "/engagement/{id}"},
		{"/unknown/route", "/unknown/route"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := normalizePath(tt.path); got != tt.want {
				t.Errorf("normalizePath(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestHTTPMetrics_RecordsRequest(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics()
	if err := m.Register(reg); err != nil {
		t.Fatalf("failed to register metrics: %v", err)
	}

	handler := HTTPMetrics(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("rows"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/engagement", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, family := range families {
		if family.GetName() != MetricHTTPRequestsTotal {
			continue
		}
		for _, metric := range family.GetMetric() {
			labels := map[string]string{}
			for _, lp := range metric.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["method"] == "GET" && labels["path"] == "/engagement" && labels["status"] == "200" {
				found = true
				if metric.GetCounter().GetValue() != 1 {
					t.Errorf("expected 1 request counted, got %f", metric.GetCounter().GetValue())
				}
			}
		}
	}
	if !found {
		t.Error("expected http_requests_total sample for GET /engagement 200")
	}
}

func TestHTTPMetrics_SkipsHealthEndpoints(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics()
	if err := m.Register(reg); err != nil {
		t.Fatalf("failed to register metrics: %v", err)
	}

	handler := HTTPMetrics(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for _, path := range []string{"/health", "/ready"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, family := range families {
		if family.GetName() == MetricHTTPRequestsTotal && len(family.GetMetric()) > 0 {
			t.Error("expected no samples for health endpoints")
		}
	}
}
