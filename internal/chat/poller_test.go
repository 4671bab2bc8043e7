package chat

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPollerFetchesImmediatelyAndOnTicks(t *testing.T) {
	var fetches, results int32
	p := NewPoller(10*time.Millisecond,
		func(context.Context) (int, error) {
			return int(atomic.AddInt32(&fetches, 1)), nil
		},
		func(int) { atomic.AddInt32(&results, 1) },
		nil,
	)

	p.Start(context.Background())
	require.Eventually(t, func() bool { return atomic.LoadInt32(&results) >= 3 }, time.Second, 5*time.Millisecond)
	p.Stop()
}

func TestPollerStopsCallingAfterStop(t *testing.T) {
	var calls int32
	p := NewPoller(time.Millisecond,
		func(context.Context) (struct{}, error) {
			atomic.AddInt32(&calls, 1)
			return struct{}{}, nil
		},
		func(struct{}) { atomic.AddInt32(&calls, 1) },
		func(error) { atomic.AddInt32(&calls, 1) },
	)

	p.Start(context.Background())
	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) > 4 }, time.Second, time.Millisecond)

	p.Stop()
	after := atomic.LoadInt32(&calls)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, atomic.LoadInt32(&calls))

	p.Stop()
}

func TestPollerReportsErrors(t *testing.T) {
	boom := errors.New("boom")
	errs := make(chan error, 1)

	p := NewPoller(time.Hour,
		func(context.Context) (int, error) { return 0, boom },
		func(int) { t.Error("unexpected result") },
		func(err error) {
			select {
			case errs <- err:
			default:
			}
		},
	)
	p.Start(context.Background())
	defer p.Stop()

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, boom)
	case <-time.After(time.Second):
		t.Fatal("no error reported")
	}
}

func TestPollerStopBeforeStart(t *testing.T) {
	p := NewPoller(time.Second, func(context.Context) (int, error) { return 0, nil }, nil, nil)
	p.Stop()
}
