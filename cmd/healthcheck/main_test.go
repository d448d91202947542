package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestProbeURL(t *testing.T) {
	tests := []struct {
		addr, path, want string
	}{
		{"", "", "http://localhost:8080/healthz"},
		{":9000", "/readyz", "http://localhost:9000/readyz"},
		{"0.0.0.0:9000", "readyz", "http://localhost:9000/readyz"},
		{"127.0.0.1:8081", "", "http://127.0.0.1:8081/healthz"},
		{"[::]:8082", "", "http://localhost:8082/healthz"},
		{"garbage", "", "http://localhost:8080/healthz"},
	}
	for _, tt := range tests {
		if got := probeURL(tt.addr, tt.path); got != tt.want {
			t.Errorf("probeURL(%q, %q) = %q, want %q", tt.addr, tt.path, got, tt.want)
		}
	}
}

func TestProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/readyz" {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if err := probe(context.Background(), srv.Client(), srv.URL+"/healthz"); err != nil {
		t.Fatalf("healthz: %v", err)
	}
	if err := probe(context.Background(), srv.Client(), srv.URL+"/readyz"); err == nil {
		t.Fatal("readyz: expected error for 503")
	}
}
