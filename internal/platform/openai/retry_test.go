package openai

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"
)

func TestRetryableClassifiesErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"deadline", context.DeadlineExceeded, true},
		{"throttled", &openAIHTTPError{StatusCode: http.StatusTooManyRequests}, true},
		{"server error", &openAIHTTPError{StatusCode: http.StatusBadGateway}, true},
		{"bad request", &openAIHTTPError{StatusCode: http.StatusBadRequest}, false},
		{"unauthorized", &openAIHTTPError{StatusCode: http.StatusUnauthorized}, false},
		{"plain error", errors.New("boom"), false},
	}
	for _, tc := range cases {
		if got := retryable(tc.err); got != tc.want {
			t.Errorf("%s: retryable = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestRetryDelayHonorsRetryAfter(t *testing.T) {
	resp := &http.Response{Header: http.Header{}}
	resp.Header.Set("Retry-After", "3")
	if d := retryDelay(resp, time.Second, 10*time.Second); d != 3*time.Second {
		t.Fatalf("retry delay = %v, want 3s", d)
	}

	// Header above the cap clamps to it.
	resp.Header.Set("Retry-After", "60")
	if d := retryDelay(resp, time.Second, 10*time.Second); d != 10*time.Second {
		t.Fatalf("capped delay = %v, want 10s", d)
	}

	// Missing header keeps the backoff fallback.
	if d := retryDelay(nil, 2*time.Second, 10*time.Second); d != 2*time.Second {
		t.Fatalf("fallback delay = %v, want 2s", d)
	}
}

func TestJitterStaysNearBase(t *testing.T) {
	if d := jitter(0); d != 0 {
		t.Fatalf("zero base jitter = %v", d)
	}
	base := time.Second
	for i := 0; i < 50; i++ {
		d := jitter(base)
		if d < 800*time.Millisecond || d > 1200*time.Millisecond {
			t.Fatalf("jitter %v outside +-20%% of %v", d, base)
		}
	}
}
