package helpers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff(t *testing.T) {
	t.Parallel()

	b := &Backoff{Min: 1 * time.Second, Max: 3 * time.Second, K: 2}
	assert.Equal(t, time.Duration(0), b.DelayBefore(), "first delay is always 0")

	b.Failure()
	d1 := b.DelayBefore()
	assert.True(t, d1 > 0 && d1 <= 1*time.Second, "d1=%s", d1)

	b.Failure()
	d2 := b.DelayBefore()
	assert.True(t, d2 > 1*time.Second && d2 <= 2*time.Second, "d2=%s", d2)

	b.Failure()
	b.Failure()
	d3 := b.DelayBefore()
	assert.True(t, d3 > 2*time.Second && d3 <= 3*time.Second, "limited by Max d3=%s", d3)

	assert.Equal(t, 4, b.Attempts())

	b.Reset()
	d4 := b.DelayBefore()
	assert.True(t, d4 > 0 && d4 <= 1*time.Second, "reset to Min d4=%s", d4)
	assert.Equal(t, 0, b.Attempts())
}

func TestBackoffUnbounded(t *testing.T) {
	t.Parallel()

	b := &Backoff{Min: time.Minute, K: 10}
	b.Failure()
	b.Failure()
	d := b.DelayBefore()
	assert.True(t, d > 9*time.Minute && d <= 10*time.Minute, "Max=0 does not clamp d=%s", d)
}

func TestBackoffWait(t *testing.T) {
	t.Parallel()

	b := &Backoff{Min: time.Hour, Max: time.Hour, K: 2}
	assert.True(t, b.Wait(context.Background(), nil))

	b.Failure()
	stopch := make(chan struct{})
	close(stopch)
	assert.False(t, b.Wait(context.Background(), stopch))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, b.Wait(ctx, nil))
}
