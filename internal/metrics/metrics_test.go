package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInitIdempotent(t *testing.T) {
	Init()
	Init()

	if acquisitionsTotal == nil || escalationsTotal == nil || jobsTotal == nil ||
		httpRequestsTotal == nil || httpRequestDurationSeconds == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestObserveHelpers(t *testing.T) {
	Init()

	counter := acquisitionsTotal.WithLabelValues("headless", "twitter", "ok")
	before := testutil.ToFloat64(counter)
	ObserveAcquisition("headless", "twitter", "ok", 2*time.Second)
	if got := testutil.ToFloat64(counter); got != before+1 {
		t.Fatalf("acquisitions = %v, want %v", got, before+1)
	}

	beforeEsc := testutil.ToFloat64(escalationsTotal.WithLabelValues("empty"))
	ObserveEscalation("empty")
	if got := testutil.ToFloat64(escalationsTotal.WithLabelValues("empty")); got != beforeEsc+1 {
		t.Fatalf("escalations = %v, want %v", got, beforeEsc+1)
	}

	beforeErr := testutil.ToFloat64(summarizeCallsTotal.WithLabelValues("error"))
	ObserveSummarize(errors.New("boom"))
	if got := testutil.ToFloat64(summarizeCallsTotal.WithLabelValues("error")); got != beforeErr+1 {
		t.Fatalf("summarize errors = %v, want %v", got, beforeErr+1)
	}

	SetQueueDepth(3, 2)
	if got := testutil.ToFloat64(queueDepth.WithLabelValues("queued")); got != 3 {
		t.Fatalf("queued gauge = %v, want 3", got)
	}
	if got := testutil.ToFloat64(queueDepth.WithLabelValues("running")); got != 2 {
		t.Fatalf("running gauge = %v, want 2", got)
	}
}
