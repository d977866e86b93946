package power

import (
	"context"
	"fmt"
	"time"

	"github.com/sweeney/feeder/internal/config"
	"github.com/sweeney/feeder/internal/logger"
)

// Default credential retry delays.
const (
	DefaultRetryInitial = 2 * time.Second
	DefaultRetryMax     = time.Minute
)

// CredentialSource is the part of the config store the credential gate reads.
type CredentialSource interface {
	Load() error
	WifiCredentials() config.WifiCredentials
}

// Backoff doubles the delay after each failed attempt, up to Max.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
}

// Delay returns the wait before retry number attempt (0-based).
func (b Backoff) Delay(attempt int) time.Duration {
	initial, max := b.Initial, b.Max
	if initial <= 0 {
		initial = DefaultRetryInitial
	}
	if max < initial {
		max = initial
	}
	delay := initial
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay > max {
			return max
		}
	}
	return delay
}

// WaitForCredentials blocks until the store holds both an SSID and a
// password, reloading it between attempts. The device stays awake while
// waiting. after defaults to time.After.
func WaitForCredentials(ctx context.Context, src CredentialSource, b Backoff, log *logger.Logger, after func(time.Duration) <-chan time.Time) (config.WifiCredentials, error) {
	if after == nil {
		after = time.After
	}
	for attempt := 0; ; attempt++ {
		if creds := src.WifiCredentials(); creds.Complete() {
			return creds, nil
		}

		delay := b.Delay(attempt)
		log.Warnw("wifi credentials incomplete, retrying", "attempt", attempt+1, "delay", delay)

		select {
		case <-ctx.Done():
			return config.WifiCredentials{}, fmt.Errorf("%w: %w", config.ErrIncomplete, ctx.Err())
		case <-after(delay):
		}

		if err := src.Load(); err != nil {
			log.Warnw("reloading config failed", "err", err)
		}
	}
}
