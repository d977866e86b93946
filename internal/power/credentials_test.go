package power

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/feeder/internal/config"
	"github.com/sweeney/feeder/internal/logger"
)

func TestBackoffDelay(t *testing.T) {
	b := Backoff{Initial: time.Second, Max: 10 * time.Second}

	assert.Equal(t, time.Second, b.Delay(0))
	assert.Equal(t, 2*time.Second, b.Delay(1))
	assert.Equal(t, 4*time.Second, b.Delay(2))
	assert.Equal(t, 8*time.Second, b.Delay(3))
	assert.Equal(t, 10*time.Second, b.Delay(4))
	assert.Equal(t, 10*time.Second, b.Delay(100))
}

func TestBackoffDefaults(t *testing.T) {
	var b Backoff
	assert.Equal(t, DefaultRetryInitial, b.Delay(0))
	assert.Equal(t, DefaultRetryInitial, b.Delay(5), "max below initial clamps to initial")
}

func newCredentialStore(t *testing.T, body string) (*config.Store, *config.MemStorage) {
	t.Helper()
	mem := config.NewMemStorage(nil)
	if body != "" {
		require.NoError(t, mem.Write([]byte(body)))
	}
	s := config.NewStore(mem, logger.Nop())
	_ = s.Load()
	return s, mem
}

func TestWaitForCredentialsImmediate(t *testing.T) {
	s, _ := newCredentialStore(t, `{"wifi":{"ssid":"Futterautomat","password":"secret123"}}`)

	creds, err := WaitForCredentials(context.Background(), s, Backoff{}, logger.Nop(), func(time.Duration) <-chan time.Time {
		t.Fatal("no wait expected")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "Futterautomat", creds.SSID)
}

func TestWaitForCredentialsRetries(t *testing.T) {
	s, mem := newCredentialStore(t, "")

	var delays []time.Duration
	after := func(d time.Duration) <-chan time.Time {
		delays = append(delays, d)
		if len(delays) == 3 {
			require.NoError(t, mem.Write([]byte(`{"wifi":{"ssid":"net","password":"pw"}}`)))
		}
		ch := make(chan time.Time, 1)
		ch <- time.Time{}
		return ch
	}

	creds, err := WaitForCredentials(context.Background(), s, Backoff{Initial: time.Second, Max: 3 * time.Second}, logger.Nop(), after)
	require.NoError(t, err)
	assert.Equal(t, config.WifiCredentials{SSID: "net", Password: "pw"}, creds)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}, delays)
}

func TestWaitForCredentialsCancelled(t *testing.T) {
	s, _ := newCredentialStore(t, `{"wifi":{"ssid":"net"}}`)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := WaitForCredentials(ctx, s, Backoff{}, logger.Nop(), func(time.Duration) <-chan time.Time {
		return make(chan time.Time)
	})
	assert.ErrorIs(t, err, config.ErrIncomplete)
	assert.True(t, errors.Is(err, context.Canceled))
}
