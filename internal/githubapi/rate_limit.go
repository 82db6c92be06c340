package githubapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// RateLimitHeaders contains parsed GitHub rate-limit response headers.
type RateLimitHeaders struct {
	// Resource is the budget the call was charged to: core, graphql, search.
	Resource         string
	Remaining        int
	ResetUnix        int64
	Used             int
	RetryAfter       time.Duration
	SecondaryLimited bool
	// Present is false when the response carried no rate-limit headers at all.
	Present bool
}

// Decision represents a rate-limit action decision.
type Decision struct {
	Allow   bool
	WaitFor time.Duration
	Reason  string
}

// RateLimitPolicy evaluates rate-limit actions from parsed headers.
type RateLimitPolicy struct {
	MinRemainingThreshold int
	MinResetBuffer        time.Duration
	SecondaryLimitBackoff time.Duration
	// MaxWait caps a single pause. Zero means no cap.
	MaxWait time.Duration
	Now     func() time.Time
}

// ParseRateLimitHeaders parses rate-limit and retry headers.
func ParseRateLimitHeaders(header http.Header, statusCode int) RateLimitHeaders {
	parsed := RateLimitHeaders{
		Resource: strings.TrimSpace(header.Get("X-RateLimit-Resource")),
	}
	rawRemaining := header.Get("X-RateLimit-Remaining")
	parsed.Present = strings.TrimSpace(rawRemaining) != ""
	parsed.Remaining = parseInt(rawRemaining)
	parsed.Used = parseInt(header.Get("X-RateLimit-Used"))
	parsed.ResetUnix = parseInt64(header.Get("X-RateLimit-Reset"))

	if retryAfterSeconds := parseInt(header.Get("Retry-After")); retryAfterSeconds > 0 {
		parsed.RetryAfter = time.Duration(retryAfterSeconds) * time.Second
	}

	switch {
	case statusCode == http.StatusTooManyRequests:
		parsed.SecondaryLimited = true
	case statusCode == http.StatusForbidden && parsed.RetryAfter > 0:
		parsed.SecondaryLimited = true
	case statusCode == http.StatusForbidden && parsed.Present && parsed.Remaining == 0:
		// Primary budget exhausted; the reset header says when to resume.
		parsed.SecondaryLimited = false
	}

	return parsed
}

// Evaluate decides whether calls may continue or should pause.
func (p RateLimitPolicy) Evaluate(headers RateLimitHeaders) Decision {
	now := time.Now()
	if p.Now != nil {
		now = p.Now()
	}

	if headers.SecondaryLimited {
		waitFor := p.SecondaryLimitBackoff
		if headers.RetryAfter > waitFor {
			waitFor = headers.RetryAfter
		}
		return p.capped(Decision{Allow: false, WaitFor: waitFor, Reason: "secondary_limit"})
	}

	if !headers.Present || headers.Remaining >= p.MinRemainingThreshold {
		return Decision{Allow: true, Reason: "within_budget"}
	}

	resetAt := time.Unix(headers.ResetUnix, 0)
	if !resetAt.After(now) {
		return Decision{Allow: true, Reason: "reset_elapsed"}
	}

	return p.capped(Decision{
		Allow:   false,
		WaitFor: resetAt.Sub(now) + p.MinResetBuffer,
		Reason:  "remaining_below_threshold",
	})
}

func (p RateLimitPolicy) capped(decision Decision) Decision {
	if p.MaxWait > 0 && decision.WaitFor > p.MaxWait {
		decision.WaitFor = p.MaxWait
	}
	return decision
}

func parseInt(raw string) int {
	parsed, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0
	}
	return parsed
}

func parseInt64(raw string) int64 {
	parsed, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0
	}
	return parsed
}
