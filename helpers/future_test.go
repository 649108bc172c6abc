package helpers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFuture(t *testing.T) {
	t.Parallel()

	type Case struct {
		name   string
		fun    func(f *Future)
		expect interface{}
		ok     bool
	}
	cases := []Case{
		{"complete", func(f *Future) { f.Complete(13) }, 13, true},
		{"cancel", func(f *Future) { f.Cancel("stop") }, "stop", false},
		{"complete-once", func(f *Future) {
			assert.True(t, f.Complete(1))
			assert.False(t, f.Complete(2))
			assert.False(t, f.Cancel(3))
		}, 1, true},
		{"async", func(f *Future) {
			go func() {
				time.Sleep(5 * time.Millisecond)
				f.Complete("late")
			}()
		}, "late", true},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			f := NewFuture()
			c.fun(f)
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			result, ok, err := f.Wait(ctx)
			require.NoError(t, err)
			assert.Equal(t, c.ok, ok)
			assert.Equal(t, c.expect, result)
		})
	}
}

func TestFutureWaitContext(t *testing.T) {
	t.Parallel()
	f := NewFuture()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, ok, err := f.Wait(ctx)
	assert.False(t, ok)
	assert.Equal(t, context.Canceled, err)
}
