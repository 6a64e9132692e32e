package database

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// pgCannotConnectNow is returned while the server starts up or shuts down.
const pgCannotConnectNow = "57P03"

// RetryPolicy bounds how often the postgres driver repeats an admin
// statement that failed transiently.
type RetryPolicy struct {
	// Attempts is the maximum number of tries, including the first.
	Attempts int
	// Backoff is the delay before the second try. It doubles for every
	// following try.
	Backoff time.Duration
	// MaxBackoff caps the delay between tries.
	MaxBackoff time.Duration
	// OnRetry is called before sleeping.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// DefaultRetryPolicy returns the policy NewPostgresDriver uses.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:   5,
		Backoff:    50 * time.Millisecond,
		MaxBackoff: time.Second,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.Attempts <= 0 {
		p.Attempts = def.Attempts
	}
	if p.Backoff <= 0 {
		p.Backoff = def.Backoff
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = def.MaxBackoff
	}
	return p
}

// do runs fn until it succeeds, returns an error retryable rejects, the
// attempts run out or ctx ends. The last error from fn is returned.
func (p RetryPolicy) do(ctx context.Context, retryable func(error) bool, fn func() error) error {
	p = p.withDefaults()

	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt >= p.Attempts || !retryable(err) {
			return err
		}

		wait := p.wait(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, wait)
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
}

// wait returns the delay after attempt with up to 10% jitter either way.
func (p RetryPolicy) wait(attempt int) time.Duration {
	d := float64(p.Backoff) * math.Pow(2, float64(attempt-1))
	d += d * 0.1 * (rand.Float64()*2 - 1)
	if d > float64(p.MaxBackoff) {
		d = float64(p.MaxBackoff)
	}
	if d <= 0 {
		d = float64(p.Backoff)
	}
	return time.Duration(d)
}

// transientAdminError reports whether an admin statement may succeed when
// repeated. Errors the server answered with a definite SQLSTATE are final
// unless the server was starting up or the database was still in use.
func transientAdminError(err error) bool {
	switch pgCode(err) {
	case pgObjectInUse, pgCannotConnectNow:
		return true
	case "":
		return IsConnectionError(err)
	}
	return false
}
