package cmsapi

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// noopSleep is a sleep function that returns immediately, for fast tests.
func noopSleep(_ context.Context, _ time.Duration) error {
	return nil
}

// staticToken is a test TokenSource that returns a fixed token.
type staticToken string

func (t staticToken) Token() (string, error) {
	return string(t), nil
}

// failingToken is a test TokenSource that always returns an error.
type failingToken struct{}

func (failingToken) Token() (string, error) {
	return "", errors.New("token error")
}

// newTestClient creates a Client pointing at the given httptest server
// with instant retry sleeps for fast tests.
func newTestClient(t *testing.T, url string) *Client {
	t.Helper()

	c := NewClient(url, http.DefaultClient, staticToken("test-token"), slog.Default(), "test-agent")
	c.sleepFunc = noopSleep

	return c
}

func TestDo_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		assert.NotEmpty(t, r.Header.Get(headerRequestID))
		assert.Equal(t, "42", r.URL.Query().Get("portalId"))
		_, _ = w.Write([]byte(`{"value":"ok"}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	resp, err := client.Do(context.Background(), http.MethodGet, "/ping", portalQuery(42), "", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"value":"ok"}`, string(body))
}

func TestDo_ErrorClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		status   int
		body     string
		sentinel error
	}{
		{"bad request", http.StatusBadRequest, `{"message":"nope"}`, ErrBadRequest},
		{"unauthorized", http.StatusUnauthorized, ``, ErrUnauthorized},
		{"forbidden", http.StatusForbidden, ``, ErrForbidden},
		{"not found", http.StatusNotFound, `not json`, ErrNotFound},
		{"conflict", http.StatusConflict, ``, ErrConflict},
		{"project locked", http.StatusBadRequest,
			`{"message":"locked","subCategory":"PipelineErrors.PROJECT_LOCKED"}`, ErrProjectLocked},
		{"missing provision", http.StatusBadRequest,
			`{"message":"gone","subCategory":"PipelineErrors.MISSING_PROJECT_PROVISION"}`, ErrMissingProjectProvision},
		{"not in progress", http.StatusBadRequest,
			`{"message":"idle","subCategory":"BuildPipelineErrorType.BUILD_NOT_IN_PROGRESS"}`, ErrBuildNotInProgress},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set(headerCorrelationID, "corr-1")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := newTestClient(t, srv.URL)
			_, err := client.Do(context.Background(), http.MethodGet, "/test", nil, "", nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.sentinel)

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, "corr-1", apiErr.RequestID)
		})
	}
}

func TestDo_CorrelationIDFromBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message":"scope missing","correlationId":"abc","category":"MISSING_SCOPES"}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.Do(context.Background(), http.MethodGet, "/x", nil, "", nil)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "abc", apiErr.RequestID)
	assert.Equal(t, "MISSING_SCOPES", apiErr.Category)
	assert.Equal(t, "scope missing", apiErr.Message)
	assert.Contains(t, apiErr.Error(), "correlation-id: abc")
}

func TestDo_RetryOn5xxResendsBody(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, `{"a":1}`, string(body))

		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)

			return
		}

		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	resp, err := client.Do(context.Background(), http.MethodPost, "/retry", nil, "application/json", []byte(`{"a":1}`))
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, int32(3), calls.Load())
}

func TestDo_RetryOn429WithRetryAfter(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)

			return
		}

		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	var (
		mu    sync.Mutex
		slept []time.Duration
	)

	client := newTestClient(t, srv.URL)
	client.sleepFunc = func(_ context.Context, d time.Duration) error {
		mu.Lock()
		defer mu.Unlock()

		slept = append(slept, d)

		return nil
	}

	resp, err := client.Do(context.Background(), http.MethodGet, "/throttle", nil, "", nil)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, []time.Duration{7 * time.Second}, slept)
}

func TestDo_MaxRetriesExhausted(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.Do(context.Background(), http.MethodGet, "/fail", nil, "", nil)
	require.ErrorIs(t, err, ErrServerError)

	// 1 initial + 5 retries = 6 total attempts.
	assert.Equal(t, int32(6), calls.Load())
}

func TestDo_NoRetryOn4xx(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.Do(context.Background(), http.MethodGet, "/missing", nil, "", nil)
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDo_TokenError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil, failingToken{}, nil, "")
	client.sleepFunc = noopSleep

	_, err := client.Do(context.Background(), http.MethodGet, "/t", nil, "", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "obtaining token")
}

func TestDo_ContextCancellation(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := newTestClient(t, srv.URL)
	_, err := client.Do(ctx, http.MethodGet, "/cancel", nil, "", nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestSetRateLimit(t *testing.T) {
	t.Parallel()

	c := NewClient("http://example.invalid", nil, staticToken("x"), nil, "")
	assert.Nil(t, c.limiter)

	c.SetRateLimit(2.5)
	require.NotNil(t, c.limiter)
	assert.Equal(t, 3, c.limiter.Burst())

	c.SetRateLimit(0)
	assert.Nil(t, c.limiter)
}

func TestCalcBackoff_WithinJitterBounds(t *testing.T) {
	t.Parallel()

	c := NewClient("http://example.invalid", nil, staticToken("x"), nil, "")

	for attempt := range 8 {
		d := c.calcBackoff(attempt)
		nominal := min(float64(baseBackoff)*float64(int(1)<<attempt), float64(maxBackoff))
		assert.GreaterOrEqual(t, float64(d), nominal*(1-jitterFraction))
		assert.LessOrEqual(t, float64(d), nominal*(1+jitterFraction))
	}
}

func TestAccessKeyTokenSource(t *testing.T) {
	t.Parallel()

	_, err := AccessKeyTokenSource("")
	require.ErrorIs(t, err, ErrNoAccessKey)

	ts, err := AccessKeyTokenSource("pak-123")
	require.NoError(t, err)

	tok, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "pak-123", tok)
}
