package tracking

import (
	"context"
	"image"
	"sync"
	"sync/atomic"
)

// Push is the device and detector used when a browser client runs the
// landmark model itself and pushes results. Next only blocks until close;
// results enter through Deliver.
type Push struct {
	callback  atomic.Pointer[func(Result)]
	closed    chan struct{}
	closeOnce sync.Once
}

func NewPush() *Push {
	return &Push{closed: make(chan struct{})}
}

func (p *Push) Next(ctx context.Context) (image.Image, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.closed:
		return nil, ErrDeviceClosed
	}
}

func (p *Push) Send(context.Context, image.Image) error { return nil }

func (p *Push) OnResult(fn func(Result)) {
	if fn == nil {
		p.callback.Store(nil)
		return
	}
	p.callback.Store(&fn)
}

// Deliver hands a pushed result to the attached callback.
func (p *Push) Deliver(r Result) {
	if fn := p.callback.Load(); fn != nil {
		(*fn)(r)
	}
}

func (p *Push) Close() error {
	p.closeOnce.Do(func() { close(p.closed) })
	return nil
}
