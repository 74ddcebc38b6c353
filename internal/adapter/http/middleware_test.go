package http

import (
	"bufio"
	"bytes"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

type hijackableRecorder struct {
	*httptest.ResponseRecorder
	hijacked bool
}

func (h *hijackableRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h.hijacked = true
	return nil, nil, nil
}

func TestResponseWriter_Hijack(t *testing.T) {
	t.Run("delegates", func(t *testing.T) {
		inner := &hijackableRecorder{ResponseRecorder: httptest.NewRecorder()}
		rw := &responseWriter{ResponseWriter: inner, status: http.StatusOK}

		if _, _, err := rw.Hijack(); err != nil {
			t.Fatalf("Hijack: %v", err)
		}
		if !inner.hijacked {
			t.Fatal("expected upstream Hijack to be called")
		}
	})

	t.Run("unsupported upstream", func(t *testing.T) {
		rw := &responseWriter{ResponseWriter: httptest.NewRecorder(), status: http.StatusOK}
		if _, _, err := rw.Hijack(); err == nil {
			t.Fatal("expected error when upstream does not implement Hijacker")
		}
	})
}

func TestResponseWriter_CapturesStatusAndFlushes(t *testing.T) {
	inner := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: inner, status: http.StatusOK}

	rw.WriteHeader(http.StatusTeapot)
	rw.Flush()

	if rw.status != http.StatusTeapot {
		t.Fatalf("status = %d, want %d", rw.status, http.StatusTeapot)
	}
	if !inner.Flushed {
		t.Fatal("expected inner recorder to be flushed")
	}
}

func TestCORS(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := CORS("http://localhost:3000")(next)

	tests := []struct {
		method string
		want   int
	}{
		{http.MethodOptions, http.StatusNoContent},
		{http.MethodGet, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(tt.method, "/api/v1/agents", http.NoBody))

			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d", w.Code, tt.want)
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
				t.Fatalf("allow origin = %q", got)
			}
		})
	}
}

func TestSecurityHeaders(t *testing.T) {
	h := SecurityHeaders(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("X-Content-Type-Options = %q", got)
	}
	if got := w.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Fatalf("X-Frame-Options = %q", got)
	}
	if got := w.Header().Get("Cache-Control"); got != "no-store" {
		t.Fatalf("Cache-Control = %q", got)
	}
}

func TestCORS_VaryOnlyForFixedOrigin(t *testing.T) {
	next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
	for origin, wantVary := range map[string]string{"*": "", "https://app.example.com": "Origin"} {
		w := httptest.NewRecorder()
		CORS(origin)(next).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", http.NoBody))
		if got := w.Header().Get("Vary"); got != wantVary {
			t.Errorf("origin %q: Vary = %q, want %q", origin, got, wantVary)
		}
	}
}

func TestLogger_RouteStatusAndSize(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	r := chi.NewRouter()
	r.Use(Logger)
	r.Post("/api/v1/orchestrations/{id}/execute", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":"x"}`))
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/orchestrations/o1/execute", http.NoBody))

	var line struct {
		Level  string `json:"level"`
		Route  string `json:"route"`
		Path   string `json:"path"`
		Status int    `json:"status"`
		Bytes  int    `json:"bytes"`
	}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if line.Route != "/api/v1/orchestrations/{id}/execute" || line.Path != "/api/v1/orchestrations/o1/execute" {
		t.Errorf("route=%q path=%q", line.Route, line.Path)
	}
	if line.Status != http.StatusBadGateway || line.Level != "ERROR" || line.Bytes != len(`{"error":"x"}`) {
		t.Errorf("log line = %+v", line)
	}
}
