package retry

import (
	"testing"
	"time"
)

func TestDecideTimeoutSequence(t *testing.T) {
	t.Parallel()
	p := DefaultPolicy()

	first := Decide(p, KindTimeout, 0)
	if !first.Retry || first.Delay != 30*time.Second {
		t.Fatalf("first = %v, want retry after 30s", first)
	}
	second := Decide(p, KindTimeout, 1)
	if !second.Retry || second.Delay != 60*time.Second {
		t.Fatalf("second = %v, want retry after 60s", second)
	}
	third := Decide(p, KindTimeout, 2)
	if third.Retry {
		t.Fatalf("third = %v, want fail", third)
	}
}

func TestDecideNonRetryableFailsImmediately(t *testing.T) {
	t.Parallel()
	p := Policy{MaxRetries: 10, Backoff: []time.Duration{time.Second}}
	for _, k := range []FailureKind{KindRejected, KindUnknown, FailureKind("bogus")} {
		if d := Decide(p, k, 0); d.Retry {
			t.Errorf("%s: got %v, want fail", k, d)
		}
	}
}

func TestDecideRetryableKinds(t *testing.T) {
	t.Parallel()
	p := Policy{MaxRetries: 5, Backoff: []time.Duration{time.Second}}
	for _, k := range []FailureKind{KindTimeout, KindTransport, KindOverloaded} {
		if d := Decide(p, k, 0); !d.Retry {
			t.Errorf("%s: got %v, want retry", k, d)
		}
	}
}

func TestDelayRepeatsLastEntry(t *testing.T) {
	t.Parallel()
	p := Policy{MaxRetries: 10, Backoff: []time.Duration{10 * time.Second, 20 * time.Second}}
	tests := []struct {
		count int
		want  time.Duration
	}{
		{-1, 10 * time.Second},
		{0, 10 * time.Second},
		{1, 20 * time.Second},
		{2, 20 * time.Second},
		{7, 20 * time.Second},
	}
	for _, tt := range tests {
		if got := p.Delay(tt.count); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.count, got, tt.want)
		}
	}
	if got := (Policy{}).Delay(3); got != 0 {
		t.Errorf("empty table delay = %v, want 0", got)
	}
}

func TestParseBackoff(t *testing.T) {
	t.Parallel()
	got, err := ParseBackoff("30s, 1m,120")
	if err != nil {
		t.Fatalf("ParseBackoff: %v", err)
	}
	want := []time.Duration{30 * time.Second, time.Minute, 2 * time.Minute}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry %d = %v, want %v", i, got[i], want[i])
		}
	}

	for _, bad := range []string{"", "abc", "-5s", " , "} {
		if _, err := ParseBackoff(bad); err == nil {
			t.Errorf("ParseBackoff(%q) accepted", bad)
		}
	}
}
