package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/go-github/v75/github"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
	"k8s.io/utils/ptr"
)

const (
	DefaultMaxWait    = 15 * time.Minute
	DefaultMaxRetries = 5
	defaultRetryAfter = time.Minute
	defaultResetSlack = 2 * time.Second
)

// Client wraps the GitHub API client with shared quota accounting, rate limit
// waits and bounded retries.
type Client struct {
	c          *github.Client
	q          *Quota
	maxWait    time.Duration
	maxRetries int
	resetSlack time.Duration
	newBackoff func() *backoff.ExponentialBackOff
}

// GitHubClientOptions configures the GitHub client.
type GitHubClientOptions struct {
	token      string
	limiter    *rate.Limiter
	lowWater   int
	httpClient *http.Client
	baseURL    string
	maxWait    time.Duration
	maxRetries int
	resetSlack time.Duration
	initial    time.Duration
	maxDelay   time.Duration
}

// GitHubClientOption applies a configuration to GitHubClientOptions.
type GitHubClientOption func(*GitHubClientOptions)

// WithToken sets the personal access token for authenticated requests.
func WithToken(token string) GitHubClientOption {
	return func(o *GitHubClientOptions) { o.token = token }
}

// WithLimiter sets the rate limiter shared by every API call.
func WithLimiter(l *rate.Limiter) GitHubClientOption {
	return func(o *GitHubClientOptions) { o.limiter = l }
}

// WithLowWater sets the remaining quota below which calls are paced; zero disables pacing.
func WithLowWater(n int) GitHubClientOption {
	return func(o *GitHubClientOptions) { o.lowWater = n }
}

// WithHTTPClient sets the underlying HTTP client. Its transport is instrumented.
func WithHTTPClient(c *http.Client) GitHubClientOption {
	return func(o *GitHubClientOptions) { o.httpClient = c }
}

// WithBaseURL points the client at another API root, such as a GitHub Enterprise server or a test server.
func WithBaseURL(u string) GitHubClientOption {
	return func(o *GitHubClientOptions) { o.baseURL = u }
}

// WithMaxWait bounds the total time spent waiting on rate limits by a single call.
func WithMaxWait(d time.Duration) GitHubClientOption {
	return func(o *GitHubClientOptions) { o.maxWait = d }
}

// WithMaxRetries bounds the retries of server and transport errors.
func WithMaxRetries(n int) GitHubClientOption {
	return func(o *GitHubClientOptions) { o.maxRetries = n }
}

// WithBackoff sets the initial and maximum delay between retries.
func WithBackoff(initial, maxDelay time.Duration) GitHubClientOption {
	return func(o *GitHubClientOptions) {
		o.initial = initial
		o.maxDelay = maxDelay
	}
}

// WithResetSlack sets the extra time waited past a rate limit reset.
func WithResetSlack(d time.Duration) GitHubClientOption {
	return func(o *GitHubClientOptions) { o.resetSlack = d }
}

// NewClient constructs a GitHub Client with the given options.
func NewClient(opts ...GitHubClientOption) (*Client, error) {
	o := GitHubClientOptions{
		lowWater:   DefaultLowWater,
		maxWait:    DefaultMaxWait,
		maxRetries: DefaultMaxRetries,
		resetSlack: defaultResetSlack,
		initial:    time.Second,
		maxDelay:   30 * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}

	hc := &http.Client{}
	if o.httpClient != nil {
		*hc = *o.httpClient
	}
	base := hc.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	hc.Transport = otelhttp.NewTransport(base)

	gc := github.NewClient(hc)
	if o.token != "" {
		slog.Debug("Using authenticated GitHub client")
		gc = gc.WithAuthToken(o.token)
	} else {
		slog.Warn("Using unauthenticated GitHub client (rate limited)")
	}
	if o.baseURL != "" {
		u, err := url.Parse(strings.TrimSuffix(o.baseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("invalid GitHub base URL %q: %w", o.baseURL, err)
		}
		gc.BaseURL = u
	}
	if o.limiter == nil {
		o.limiter = NewGitHubLimiter(o.token != "")
	}

	initial, maxDelay := o.initial, o.maxDelay
	return &Client{
		c:          gc,
		q:          NewQuota(o.limiter, o.lowWater),
		maxWait:    o.maxWait,
		maxRetries: o.maxRetries,
		resetSlack: o.resetSlack,
		newBackoff: func() *backoff.ExponentialBackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = initial
			b.MaxInterval = maxDelay
			b.Reset()
			return b
		},
	}, nil
}

// GitHub exposes the underlying API client.
func (c *Client) GitHub() *github.Client { return c.c }

// Quota exposes the shared rate limit state.
func (c *Client) Quota() *Quota { return c.q }

// CallFunc performs one API request. Request parameters are captured by the closure.
type CallFunc func(ctx context.Context) (*github.Response, error)

// Do runs call under the shared quota. Rate limited calls wait for the reset
// or the Retry-After delay within the wait budget, server and transport errors
// are retried with exponential backoff, and other client errors are returned
// as RemoteRequestError without retry.
func (c *Client) Do(ctx context.Context, endpoint string, call CallFunc) error {
	var (
		waited  time.Duration
		retries int
		bo      = c.newBackoff()
		search  = strings.Contains(endpoint, "/search/")
	)
	for {
		if reset, ok := c.q.Exhausted(); ok && !search {
			if err := c.wait(ctx, endpoint, time.Until(reset)+c.resetSlack, &waited); err != nil {
				return err
			}
		}
		if err := c.q.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter wait failed: %w", err)
		}

		resp, err := call(ctx)
		if resp != nil && !search {
			c.q.Observe(resp.Rate)
		}
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var (
			rle *github.RateLimitError
			are *github.AbuseRateLimitError
			ere *github.ErrorResponse
		)
		switch {
		case errors.As(err, &rle):
			if !search {
				c.q.Observe(rle.Rate)
			}
			d := time.Until(rle.Rate.Reset.Time) + c.resetSlack
			slog.WarnContext(ctx, "GitHub rate limit reached", "endpoint", endpoint, "reset", rle.Rate.Reset.Time)
			if err := c.wait(ctx, endpoint, d, &waited); err != nil {
				return err
			}
			continue
		case errors.As(err, &are):
			d := ptr.Deref(are.RetryAfter, defaultRetryAfter)
			slog.WarnContext(ctx, "GitHub secondary rate limit reached", "endpoint", endpoint, "retry_after", d)
			if err := c.wait(ctx, endpoint, d, &waited); err != nil {
				return err
			}
			continue
		case errors.As(err, &ere) && ere.Response != nil:
			status := ere.Response.StatusCode
			switch {
			case status == http.StatusUnauthorized:
				return &AuthenticationError{Endpoint: endpoint, Err: err}
			case isSecondaryLimit(ere):
				d := retryAfter(ere.Response)
				slog.WarnContext(ctx, "GitHub throttled request", "endpoint", endpoint, "status", status, "retry_after", d)
				if err := c.wait(ctx, endpoint, d, &waited); err != nil {
					return err
				}
				continue
			case status < http.StatusInternalServerError:
				return &RemoteRequestError{Endpoint: endpoint, Status: status, Err: err}
			}
			if retries >= c.maxRetries {
				return &RemoteRequestError{Endpoint: endpoint, Status: status, Err: err}
			}
		default:
			if retries >= c.maxRetries {
				return &RemoteRequestError{Endpoint: endpoint, Err: err}
			}
		}

		retries++
		d := bo.NextBackOff()
		slog.DebugContext(ctx, "Retrying GitHub request", "endpoint", endpoint, "attempt", retries, "delay", d, "error", err)
		if err := sleep(ctx, d); err != nil {
			return err
		}
	}
}

// wait sleeps d if the accumulated wait stays within the budget.
func (c *Client) wait(ctx context.Context, endpoint string, d time.Duration, waited *time.Duration) error {
	d = max(d, 0)
	if *waited+d > c.maxWait {
		return fmt.Errorf("%s: waited %s, next wait %s: %w", endpoint, *waited, d.Round(time.Second), ErrRateLimitExceeded)
	}
	*waited += d
	return sleep(ctx, d)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func isSecondaryLimit(e *github.ErrorResponse) bool {
	switch e.Response.StatusCode {
	case http.StatusTooManyRequests:
		return true
	case http.StatusForbidden:
		msg := strings.ToLower(e.Message)
		return e.Response.Header.Get("Retry-After") != "" ||
			strings.Contains(msg, "secondary rate limit") ||
			strings.Contains(msg, "abuse")
	}
	return false
}

// retryAfter reads the Retry-After or X-RateLimit-Reset headers.
func retryAfter(r *http.Response) time.Duration {
	if v := r.Header.Get("Retry-After"); v != "" {
		if s, err := strconv.Atoi(v); err == nil {
			return time.Duration(s) * time.Second
		}
	}
	if r.Header.Get("X-RateLimit-Remaining") == "0" {
		if v, err := strconv.ParseInt(r.Header.Get("X-RateLimit-Reset"), 10, 64); err == nil {
			return time.Until(time.Unix(v, 0))
		}
	}
	return defaultRetryAfter
}

// Verify checks the credentials by fetching the authenticated user.
func (c *Client) Verify(ctx context.Context) (string, error) {
	var user *github.User
	err := c.Do(ctx, "GET /user", func(ctx context.Context) (*github.Response, error) {
		var (
			resp *github.Response
			err  error
		)
		user, resp, err = c.c.Users.Get(ctx, "")
		return resp, err
	})
	if err != nil {
		return "", err
	}
	return user.GetLogin(), nil
}
