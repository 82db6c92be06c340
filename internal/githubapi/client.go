package githubapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cam3ron2/iteration-report/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// RetryConfig configures request retries for transient failures.
type RetryConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// HTTPDoer is implemented by http.Client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// CallMetadata reports execution metadata for a client call.
type CallMetadata struct {
	Attempts        int
	LastRateHeaders RateLimitHeaders
	LastDecision    Decision
}

// Client wraps GitHub HTTP requests with retry and rate-limit controls.
type Client struct {
	doer       HTTPDoer
	retry      RetryConfig
	ratePolicy RateLimitPolicy
	// Wait blocks between attempts and returns early when ctx is done.
	Wait func(ctx context.Context, d time.Duration) error
}

// NewClient creates a GitHub API client wrapper.
func NewClient(doer HTTPDoer, retry RetryConfig, ratePolicy RateLimitPolicy) *Client {
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = 1
	}
	return &Client{
		doer:       doer,
		retry:      retry,
		ratePolicy: ratePolicy,
		Wait:       waitContext,
	}
}

// Do executes a request with retry and rate-limit awareness.
//
// A response is returned for every attempt that reached GitHub, including the
// final transient or rate-limited one; callers classify it by status code.
func (c *Client) Do(req *http.Request) (*http.Response, CallMetadata, error) {
	if req == nil {
		return nil, CallMetadata{}, fmt.Errorf("request is nil")
	}

	ctx := req.Context()
	var span trace.Span
	if telemetry.ShouldTraceDependencies() {
		ctx, span = telemetry.StartSpan(
			ctx,
			"githubapi.client.do",
			attribute.String("http.method", req.Method),
			attribute.String("http.path", req.URL.EscapedPath()),
			attribute.Int("github.max_attempts", c.retry.MaxAttempts),
		)
		defer span.End()
	}

	metadata := CallMetadata{}
	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		metadata.Attempts = attempt

		attemptReq := req.Clone(ctx)
		if attempt > 1 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, metadata, fmt.Errorf("rewind request body: %w", err)
			}
			attemptReq.Body = body
		}

		resp, err := c.doer.Do(attemptReq)
		if err != nil {
			if span != nil {
				span.RecordError(err)
			}
			if attempt == c.retry.MaxAttempts || ctx.Err() != nil {
				if span != nil {
					span.SetStatus(codes.Error, err.Error())
				}
				return nil, metadata, err
			}
			if waitErr := c.wait(ctx, backoffForAttempt(c.retry, attempt)); waitErr != nil {
				return nil, metadata, waitErr
			}
			continue
		}

		headers := ParseRateLimitHeaders(resp.Header, resp.StatusCode)
		metadata.LastRateHeaders = headers
		decision := c.ratePolicy.Evaluate(headers)
		metadata.LastDecision = decision

		if span != nil {
			span.AddEvent("attempt_completed", trace.WithAttributes(
				attribute.Int("github.attempt", attempt),
				attribute.Int("http.status_code", resp.StatusCode),
				attribute.Int("github.rate_limit_remaining", headers.Remaining),
				attribute.String("github.rate_limit_reason", decision.Reason),
			))
		}

		retryable := !decision.Allow || isTransientStatus(resp.StatusCode)
		if !retryable {
			if span != nil {
				span.SetStatus(codes.Ok, "request completed")
			}
			return resp, metadata, nil
		}
		if attempt == c.retry.MaxAttempts {
			if span != nil {
				span.SetStatus(codes.Error, fmt.Sprintf("giving up with status %d (%s)", resp.StatusCode, decision.Reason))
			}
			return resp, metadata, nil
		}

		if resp.Body != nil {
			_ = resp.Body.Close()
		}
		pause := decision.WaitFor
		if decision.Allow {
			pause = backoffForAttempt(c.retry, attempt)
		}
		if waitErr := c.wait(ctx, pause); waitErr != nil {
			return nil, metadata, waitErr
		}
	}

	return nil, metadata, fmt.Errorf("request attempts exhausted")
}

func (c *Client) wait(ctx context.Context, d time.Duration) error {
	if c.Wait == nil {
		return waitContext(ctx, d)
	}
	return c.Wait(ctx, d)
}

func waitContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func isTransientStatus(statusCode int) bool {
	if statusCode == http.StatusTooManyRequests {
		return true
	}
	return statusCode >= 500 && statusCode <= 599
}

func backoffForAttempt(retry RetryConfig, attempt int) time.Duration {
	backoff := retry.InitialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if retry.MaxBackoff > 0 && backoff > retry.MaxBackoff {
			return retry.MaxBackoff
		}
	}
	if retry.MaxBackoff > 0 && backoff > retry.MaxBackoff {
		return retry.MaxBackoff
	}
	return backoff
}
