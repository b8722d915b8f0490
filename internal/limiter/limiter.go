package limiter

import (
	"context"
	"sync"

	"github.com/local/pdftoolkit/internal/pdferr"
)

// Inflight bounds how many operations and how many input bytes are held in
// memory at once. Each operation materializes its inputs and output fully.
type Inflight struct {
	slots    chan struct{}
	maxBytes int64

	mu    sync.Mutex
	bytes int64
}

type Options struct {
	MaxInflight int
	// MaxBytes caps the input bytes of all running operations; 0 disables the cap.
	MaxBytes int64
}

func New(opts Options) *Inflight {
	if opts.MaxInflight <= 0 {
		opts.MaxInflight = 2
	}
	return &Inflight{slots: make(chan struct{}, opts.MaxInflight), maxBytes: opts.MaxBytes}
}

// Acquire waits for a free slot and reserves size input bytes. The returned
// release function may be called more than once.
func (l *Inflight) Acquire(ctx context.Context, size int64) (func(), error) {
	if err := l.fits(size); err != nil {
		return nil, err
	}
	select {
	case l.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	release, err := l.Reserve(size)
	if err != nil {
		<-l.slots
		return nil, err
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			release()
			<-l.slots
		})
	}, nil
}

// Reserve takes size bytes from the budget without a slot and without
// waiting. It is used for inputs that arrive after Acquire, such as fetched
// remote sources.
func (l *Inflight) Reserve(size int64) (func(), error) {
	if err := l.fits(size); err != nil {
		return nil, err
	}
	l.mu.Lock()
	if l.maxBytes > 0 && l.bytes+size > l.maxBytes {
		l.mu.Unlock()
		return nil, pdferr.New(pdferr.Busy, "server is busy, processing budget exhausted")
	}
	l.bytes += size
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			l.bytes -= size
			l.mu.Unlock()
		})
	}, nil
}

func (l *Inflight) fits(size int64) error {
	if l.maxBytes > 0 && size > l.maxBytes {
		return pdferr.New(pdferr.TooLarge, "request of %d bytes exceeds the %d byte processing budget", size, l.maxBytes)
	}
	return nil
}

// InUse is the number of occupied slots.
func (l *Inflight) InUse() int { return len(l.slots) }
