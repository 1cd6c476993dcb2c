package github

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-github/v75/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func newTestClient(t *testing.T, url string, opts ...GitHubClientOption) *Client {
	t.Helper()
	base := []GitHubClientOption{
		WithToken("test-token"),
		WithBaseURL(url),
		WithLimiter(rate.NewLimiter(rate.Inf, 1)),
		WithLowWater(0),
		WithBackoff(time.Millisecond, 5*time.Millisecond),
		WithResetSlack(0),
	}
	c, err := NewClient(append(base, opts...)...)
	require.NoError(t, err)
	return c
}

// scripted answers each request with the next handler, repeating the last one.
func scripted(t *testing.T, handlers ...http.HandlerFunc) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(calls.Add(1)) - 1
		handlers[min(n, len(handlers)-1)](w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func status(code int, headers ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		for i := 0; i+1 < len(headers); i += 2 {
			w.Header().Set(headers[i], headers[i+1])
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		if code == http.StatusOK {
			_, _ = w.Write([]byte(`{"login":"tester"}`))
			return
		}
		_, _ = w.Write([]byte(`{"message":"failure"}`))
	}
}

func TestVerify(t *testing.T) {
	srv, calls := scripted(t, status(http.StatusOK))
	c := newTestClient(t, srv.URL)

	login, err := c.Verify(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tester", login)
	assert.EqualValues(t, 1, calls.Load())
}

func TestDoErrors(t *testing.T) {
	tests := []struct {
		name     string
		handlers []http.HandlerFunc
		opts     []GitHubClientOption
		calls    int32
		check    func(t *testing.T, err error)
	}{
		{
			name:     "unauthorized is fatal and not retried",
			handlers: []http.HandlerFunc{status(http.StatusUnauthorized)},
			calls:    1,
			check: func(t *testing.T, err error) {
				assert.True(t, IsAuthentication(err))
			},
		},
		{
			name:     "not found is not retried",
			handlers: []http.HandlerFunc{status(http.StatusNotFound)},
			calls:    1,
			check: func(t *testing.T, err error) {
				var re *RemoteRequestError
				require.ErrorAs(t, err, &re)
				assert.Equal(t, http.StatusNotFound, re.Status)
				assert.Equal(t, "GET /user", re.Endpoint)
				assert.True(t, IsNotFound(err))
			},
		},
		{
			name:     "server errors are retried",
			handlers: []http.HandlerFunc{status(http.StatusBadGateway), status(http.StatusServiceUnavailable), status(http.StatusOK)},
			calls:    3,
			check: func(t *testing.T, err error) {
				assert.NoError(t, err)
			},
		},
		{
			name:     "server errors give up after max retries",
			handlers: []http.HandlerFunc{status(http.StatusInternalServerError)},
			opts:     []GitHubClientOption{WithMaxRetries(2)},
			calls:    3,
			check: func(t *testing.T, err error) {
				assert.Equal(t, http.StatusInternalServerError, StatusOf(err))
			},
		},
		{
			name:     "too many requests waits for retry after",
			handlers: []http.HandlerFunc{status(http.StatusTooManyRequests, "Retry-After", "0"), status(http.StatusOK)},
			calls:    2,
			check: func(t *testing.T, err error) {
				assert.NoError(t, err)
			},
		},
		{
			name: "secondary rate limit waits for retry after",
			handlers: []http.HandlerFunc{
				func(w http.ResponseWriter, r *http.Request) {
					w.Header().Set("Retry-After", "0")
					w.WriteHeader(http.StatusForbidden)
					_, _ = w.Write([]byte(`{"message":"You have exceeded a secondary rate limit","documentation_url":"https://docs.github.com/rest/overview/rate-limits-for-the-rest-api#about-secondary-rate-limits"}`))
				},
				status(http.StatusOK),
			},
			calls: 2,
			check: func(t *testing.T, err error) {
				assert.NoError(t, err)
			},
		},
		{
			name: "rate limit beyond the wait budget",
			handlers: []http.HandlerFunc{status(http.StatusForbidden,
				"X-RateLimit-Limit", "5000",
				"X-RateLimit-Remaining", "0",
				"X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(time.Hour).Unix(), 10),
			)},
			opts:  []GitHubClientOption{WithMaxWait(time.Second)},
			calls: 1,
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrRateLimitExceeded)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, calls := scripted(t, tt.handlers...)
			c := newTestClient(t, srv.URL, tt.opts...)
			_, err := c.Verify(context.Background())
			tt.check(t, err)
			assert.Equal(t, tt.calls, calls.Load())
		})
	}
}

func TestDoWaitsForRateLimitReset(t *testing.T) {
	reset := time.Now().Add(time.Second)
	srv, calls := scripted(t,
		status(http.StatusForbidden,
			"X-RateLimit-Limit", "5000",
			"X-RateLimit-Remaining", "0",
			"X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10),
		),
		status(http.StatusOK,
			"X-RateLimit-Limit", "5000",
			"X-RateLimit-Remaining", "4999",
			"X-RateLimit-Reset", strconv.FormatInt(reset.Add(time.Hour).Unix(), 10),
		),
	)
	c := newTestClient(t, srv.URL)

	start := time.Now()
	_, err := c.Verify(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls.Load())
	assert.Less(t, time.Since(start), 3*time.Second)

	remaining, ok := c.Quota().Remaining()
	assert.True(t, ok)
	assert.Equal(t, 4999, remaining)
}

func TestDoContextCancelled(t *testing.T) {
	srv, _ := scripted(t, status(http.StatusServiceUnavailable))
	c := newTestClient(t, srv.URL, WithBackoff(time.Hour, time.Hour))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Verify(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestDoSearchDoesNotTouchQuota(t *testing.T) {
	srv, _ := scripted(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Limit", "30")
		w.Header().Set("X-RateLimit-Remaining", "1")
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(time.Minute).Unix(), 10))
		_, _ = w.Write([]byte(`{"total_count":0,"items":[]}`))
	})
	c := newTestClient(t, srv.URL)

	err := c.Do(context.Background(), "GET /search/users", func(ctx context.Context) (*github.Response, error) {
		_, resp, err := c.GitHub().Search.Users(ctx, "someone@example.com in:email", nil)
		return resp, err
	})
	require.NoError(t, err)
	_, observed := c.Quota().Remaining()
	assert.False(t, observed)
}
