package concurrency

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestNewPool(t *testing.T) {
	t.Cleanup(func() {
		goleak.VerifyNone(t)
	})

	t.Run("failure_does_not_cancel_siblings", func(t *testing.T) {
		var completed atomic.Int32
		errBoom := errors.New("boom")

		p := NewPool(context.Background(), 0)
		p.Go(func(ctx context.Context) error {
			return errBoom
		})
		for i := 0; i < 5; i++ {
			p.Go(func(ctx context.Context) error {
				time.Sleep(5 * time.Millisecond)
				if ctx.Err() != nil {
					return ctx.Err()
				}
				completed.Add(1)
				return nil
			})
		}

		err := p.Wait()
		require.ErrorIs(t, err, errBoom)
		require.Equal(t, int32(5), completed.Load())
	})

	t.Run("bounded_goroutines", func(t *testing.T) {
		var running, peak atomic.Int32

		p := NewPool(context.Background(), 2)
		for i := 0; i < 10; i++ {
			p.Go(func(ctx context.Context) error {
				n := running.Add(1)
				for {
					current := peak.Load()
					if n <= current || peak.CompareAndSwap(current, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				running.Add(-1)
				return nil
			})
		}

		require.NoError(t, p.Wait())
		require.LessOrEqual(t, peak.Load(), int32(2))
	})

	t.Run("tasks_see_parent_cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		p := NewPool(ctx, 1)
		p.Go(func(ctx context.Context) error {
			return ctx.Err()
		})

		require.ErrorIs(t, p.Wait(), context.Canceled)
	})
}
