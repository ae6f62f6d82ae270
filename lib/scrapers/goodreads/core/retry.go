package core

import (
	"net/http"
	"time"
)

// Outcome is the classification of a single attempt.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeRateLimited
	OutcomeTransient
	OutcomeRejected
	OutcomeChallenge
	OutcomeStatus
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeRateLimited:
		return "rate_limited"
	case OutcomeTransient:
		return "transient"
	case OutcomeRejected:
		return "rejected"
	case OutcomeChallenge:
		return "challenge"
	case OutcomeStatus:
		return "status"
	}
	return "unknown"
}

// Classify maps a response status to an outcome. the challenge check
// happens on the body before this is consulted.
func Classify(status int) Outcome {
	switch {
	case status >= 200 && status < 300:
		return OutcomeOK
	case status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable:
		return OutcomeRateLimited
	case status == http.StatusUnauthorized ||
		status == http.StatusForbidden ||
		status == http.StatusNotAcceptable:
		return OutcomeRejected
	case status >= 500:
		return OutcomeTransient
	}
	return OutcomeStatus
}

type RetryPolicy struct {
	// retries (not counting the first attempt) for 429/503
	RateLimitRetries int
	BackoffBase      time.Duration
	BackoffCap       time.Duration
	// retries for connection failures and other 5xx
	TransientRetries int
	TransientStep    time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		RateLimitRetries: 3,
		BackoffBase:      2 * time.Second,
		BackoffCap:       30 * time.Second,
		TransientRetries: 2,
		TransientStep:    2 * time.Second,
	}
}

// Next decides whether to retry after `retries` previous retries of the
// same outcome and how long to wait before doing so.
//
// challenge pages always get a rate limit style backoff, the fetcher's
// challenge counter decides when to give up on them.
func (p RetryPolicy) Next(outcome Outcome, retries int) (time.Duration, bool) {
	switch outcome {
	case OutcomeRateLimited:
		return p.exponential(retries), retries < p.RateLimitRetries
	case OutcomeChallenge:
		return p.exponential(retries), true
	case OutcomeTransient:
		return p.TransientStep * time.Duration(retries+1), retries < p.TransientRetries
	}
	return 0, false
}

func (p RetryPolicy) exponential(retries int) time.Duration {
	wait := p.BackoffBase
	for i := 0; i < retries; i++ {
		wait *= 2
		if p.BackoffCap > 0 && wait >= p.BackoffCap {
			return p.BackoffCap
		}
	}
	if p.BackoffCap > 0 && wait > p.BackoffCap {
		return p.BackoffCap
	}
	return wait
}
