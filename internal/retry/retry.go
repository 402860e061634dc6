// Package retry decides whether a failed publish attempt is retried and after
// how long. Decide is a pure function over a Policy.
package retry

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type FailureKind string

const (
	KindTimeout    FailureKind = "timeout"
	KindTransport  FailureKind = "transport"
	KindOverloaded FailureKind = "overloaded"
	KindRejected   FailureKind = "rejected"
	KindUnknown    FailureKind = "unknown"
)

// Retryable reports whether kind belongs to the transient set.
func (k FailureKind) Retryable() bool {
	switch k {
	case KindTimeout, KindTransport, KindOverloaded:
		return true
	}
	return false
}

// Policy holds the backoff table and the attempt cap. MaxRetries counts
// attempts: with MaxRetries = 3 an item is tried three times in total.
type Policy struct {
	MaxRetries int
	Backoff    []time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: 3,
		Backoff:    []time.Duration{30 * time.Second, 60 * time.Second, 120 * time.Second},
	}
}

// Delay returns the backoff for the given retry count, repeating the last
// table entry once the table runs out.
func (p Policy) Delay(retryCount int) time.Duration {
	if len(p.Backoff) == 0 {
		return 0
	}
	if retryCount < 0 {
		retryCount = 0
	}
	if retryCount >= len(p.Backoff) {
		return p.Backoff[len(p.Backoff)-1]
	}
	return p.Backoff[retryCount]
}

type Decision struct {
	Retry bool
	Delay time.Duration
}

func (d Decision) String() string {
	if d.Retry {
		return "retry after " + d.Delay.String()
	}
	return "fail"
}

// Decide returns Retry(delay) for a transient failure that still has attempts
// left, and Fail otherwise. retryCount is the number of retries already spent.
func Decide(p Policy, kind FailureKind, retryCount int) Decision {
	if !kind.Retryable() {
		return Decision{}
	}
	if retryCount+1 >= p.MaxRetries {
		return Decision{}
	}
	return Decision{Retry: true, Delay: p.Delay(retryCount)}
}

// ParseBackoff reads a comma separated list of durations, e.g. "30s,60s,120s".
func ParseBackoff(raw string) ([]time.Duration, error) {
	var out []time.Duration
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		d, err := time.ParseDuration(part)
		if err != nil {
			// bare integers are seconds
			secs, convErr := strconv.Atoi(part)
			if convErr != nil {
				return nil, fmt.Errorf("invalid backoff entry %q: %w", part, err)
			}
			d = time.Duration(secs) * time.Second
		}
		if d <= 0 {
			return nil, fmt.Errorf("backoff entry %q must be positive", part)
		}
		out = append(out, d)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("backoff table is empty")
	}
	return out, nil
}
