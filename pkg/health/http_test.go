package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPChecker_ReachableSubscriber(t *testing.T) {
	// Fake subscriber endpoint that accepts the probe
	subscriber := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	defer subscriber.Close()

	checker := NewHTTPChecker(subscriber.URL)

	ctx := context.Background()
	result := checker.Check(ctx)

	if !result.Healthy {
		t.Errorf("expected reachable, got unreachable: %s", result.Message)
	}

	if result.Duration <= 0 {
		t.Error("expected positive duration")
	}
}

func TestHTTPChecker_UnreachableSubscriber(t *testing.T) {
	// Fake subscriber endpoint returning a server error, like a subscriber
	// that is up but failing deliveries
	subscriber := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("error"))
	}))
	defer subscriber.Close()

	checker := NewHTTPChecker(subscriber.URL)

	ctx := context.Background()
	result := checker.Check(ctx)

	if result.Healthy {
		t.Errorf("expected unreachable, got reachable: %s", result.Message)
	}
}

func TestHTTPChecker_CustomStatusRange(t *testing.T) {
	// Some subscribers answer probes with 201 instead of 200
	subscriber := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated) // 201
	}))
	defer subscriber.Close()

	checker := NewHTTPChecker(subscriber.URL).WithStatusRange(200, 299)

	ctx := context.Background()
	result := checker.Check(ctx)

	if !result.Healthy {
		t.Errorf("expected reachable for 201 status, got unreachable: %s", result.Message)
	}
}

func TestHTTPChecker_CustomHeaders(t *testing.T) {
	// A subscriber that requires a header to be present on the probe request
	subscriber := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Custom-Header") != "test-value" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer subscriber.Close()

	checker := NewHTTPChecker(subscriber.URL).WithHeader("X-Custom-Header", "test-value")

	ctx := context.Background()
	result := checker.Check(ctx)

	if !result.Healthy {
		t.Errorf("expected reachable with custom header, got unreachable: %s", result.Message)
	}
}

func TestHTTPChecker_Timeout(t *testing.T) {
	// Subscriber endpoint that responds slower than the probe's timeout
	subscriber := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer subscriber.Close()

	checker := NewHTTPChecker(subscriber.URL).WithTimeout(50 * time.Millisecond)

	ctx := context.Background()
	result := checker.Check(ctx)

	if result.Healthy {
		t.Errorf("expected unreachable due to timeout, got reachable: %s", result.Message)
	}
}

func TestHTTPChecker_ContextCancellation(t *testing.T) {
	subscriber := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer subscriber.Close()

	checker := NewHTTPChecker(subscriber.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := checker.Check(ctx)

	if result.Healthy {
		t.Errorf("expected unreachable due to cancelled context, got reachable: %s", result.Message)
	}
}

func TestHTTPChecker_Type(t *testing.T) {
	checker := NewHTTPChecker("http://subscriber.example.com")
	if checker.Type() != CheckTypeHTTP {
		t.Errorf("expected type %s, got %s", CheckTypeHTTP, checker.Type())
	}
}
