package reservation

import (
	"context"
	"errors"
	"sync"

	"github.com/iliyamo/studyroom-reservation/internal/model"
)

var (
	// ErrAlreadyResolved is returned when a handle is resolved twice.  The
	// first result is kept.
	ErrAlreadyResolved = errors.New("handle already resolved")
	// ErrPending is returned by Handle.Result before resolution.
	ErrPending = errors.New("handle not resolved yet")
)

// Handle is the single-resolution result of a submitted request.  It is
// resolved exactly once by the worker that processes the request and can
// be awaited from any number of goroutines.
type Handle struct {
	done chan struct{}

	mu       sync.Mutex
	resolved bool
	res      *model.Reservation
	err      error
}

func newHandle() *Handle {
	return &Handle{done: make(chan struct{})}
}

// resolve stores the outcome and wakes all waiters.  Exactly one of res
// and err is kept: a non-nil err always wins.
func (h *Handle) resolve(res *model.Reservation, err error) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.resolved {
		return ErrAlreadyResolved
	}
	h.resolved = true
	if err != nil {
		h.err = err
	} else if res != nil {
		cp := *res
		h.res = &cp
	} else {
		h.err = model.Fault(errors.New("resolved without result"))
	}
	close(h.done)
	return nil
}

// Done is closed once the handle has been resolved.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Result returns the outcome without blocking.  Before resolution it
// returns ErrPending.  Every call after resolution yields the same
// result; the reservation is returned as a fresh copy.
func (h *Handle) Result() (*model.Reservation, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.resolved {
		return nil, ErrPending
	}
	if h.err != nil {
		return nil, h.err
	}
	cp := *h.res
	return &cp, nil
}

// Wait blocks until the handle is resolved or ctx is done.  A cancelled
// wait does not cancel the request; the handle still resolves later.
func (h *Handle) Wait(ctx context.Context) (*model.Reservation, error) {
	select {
	case <-h.done:
		return h.Result()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
