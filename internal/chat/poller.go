package chat

import (
	"context"
	"sync"
	"time"
)

// Poller calls fetch right away and then on every tick, handing results to
// onResult and failures to onError. After Stop returns none of the three is
// called again.
type Poller[T any] struct {
	interval time.Duration
	fetch    func(ctx context.Context) (T, error)
	onResult func(T)
	onError  func(error)

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPoller[T any](interval time.Duration, fetch func(ctx context.Context) (T, error), onResult func(T), onError func(error)) *Poller[T] {
	return &Poller[T]{
		interval: interval,
		fetch:    fetch,
		onResult: onResult,
		onError:  onError,
	}
}

// Start launches the loop. The poller runs until Stop or until ctx is done.
func (p *Poller[T]) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.loop(ctx)
}

func (p *Poller[T]) loop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *Poller[T]) poll(ctx context.Context) {
	v, err := p.fetch(ctx)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		if p.onError != nil {
			p.onError(err)
		}
		return
	}
	if p.onResult != nil {
		p.onResult(v)
	}
}

// Stop cancels the loop and waits for it to exit. It is safe to call more
// than once and before Start.
func (p *Poller[T]) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}
