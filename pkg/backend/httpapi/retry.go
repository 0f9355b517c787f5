package httpapi

import (
	"context"
	"errors"
	"time"

	"github.com/user/chatpane/pkg/backend"
)

// backoff retries idempotent reads. The wait doubles after every failed
// attempt, starting at base and never exceeding ceiling.
type backoff struct {
	attempts int
	base     time.Duration
	ceiling  time.Duration
}

func newBackoff(retries int) *backoff {
	return &backoff{
		attempts: max(retries, 0) + 1,
		base:     250 * time.Millisecond,
		ceiling:  5 * time.Second,
	}
}

// transient reports whether a failed read is worth repeating. Only
// transport failures and 5xx answers qualify. An oversized or malformed
// body would fail the same way again, and a cancelled caller is done.
func transient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var be *backend.Error
	if !errors.As(err, &be) || !errors.Is(be, backend.ErrNetwork) {
		return false
	}
	return be.Status == 0 || be.Status >= 500 || errors.Is(be.Err, errReadBody)
}

// delay returns the wait after the given failed attempt (1-based).
func (b *backoff) delay(attempt int) time.Duration {
	d := b.base
	for i := 1; i < attempt && d < b.ceiling; i++ {
		d *= 2
	}
	return min(d, b.ceiling)
}

// run calls fn until it succeeds, fails permanently, runs out of attempts
// or ctx ends. The last error is returned.
func (b *backoff) run(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(); err == nil || !transient(err) || attempt >= b.attempts {
			return err
		}
		t := time.NewTimer(b.delay(attempt))
		select {
		case <-ctx.Done():
			t.Stop()
			return err
		case <-t.C:
		}
	}
}
