package watcher

import (
	"context"
	"errors"
	"sync"

	"tourguide/internal/entity"

	"github.com/google/uuid"
)

var ErrCancelled = errors.New("watch cancelled")

// Handle is one step's pending completion check. It settles exactly once: either with a result
// or by cancellation, which never produces a result.
type Handle struct {
	id   uuid.UUID
	done chan struct{}

	mu        sync.Mutex
	settled   bool
	cancelled bool
	result    entity.CompletionResult
	cleanups  []func()
	confirm   func()
	onSettle  func(res entity.CompletionResult, cancelled bool)
}

func newHandle() *Handle {
	return &Handle{
		id:   uuid.New(),
		done: make(chan struct{}),
	}
}

func (h *Handle) ID() uuid.UUID {
	return h.id
}

// Done is closed once the handle settles.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Result returns the outcome and whether one exists. It is zero until Done and after Cancel.
func (h *Handle) Result() (entity.CompletionResult, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.result, h.settled && !h.cancelled
}

// Wait blocks until the handle settles or ctx ends. A cancelled handle returns ErrCancelled.
func (h *Handle) Wait(ctx context.Context) (entity.CompletionResult, error) {
	select {
	case <-ctx.Done():
		return entity.CompletionResult{}, ctx.Err()
	case <-h.done:
	}

	res, ok := h.Result()
	if !ok {
		return entity.CompletionResult{}, ErrCancelled
	}

	return res, nil
}

// Cancel releases every listener, observer and timer before returning.
func (h *Handle) Cancel() {
	h.settle(entity.CompletionResult{}, true)
}

// Confirm completes a manual step. It reports false for other completion types and for a
// handle that already settled.
func (h *Handle) Confirm() bool {
	h.mu.Lock()
	confirm := h.confirm
	settled := h.settled
	h.mu.Unlock()

	if confirm == nil || settled {
		return false
	}

	confirm()

	return true
}

// addCleanup registers teardown. On a settled handle fn runs immediately.
func (h *Handle) addCleanup(fn func()) {
	h.mu.Lock()
	if !h.settled {
		h.cleanups = append(h.cleanups, fn)
		h.mu.Unlock()

		return
	}
	h.mu.Unlock()

	fn()
}

func (h *Handle) complete(res entity.CompletionResult) bool {
	return h.settle(res, false)
}

func (h *Handle) settle(res entity.CompletionResult, cancelled bool) bool {
	h.mu.Lock()
	if h.settled {
		h.mu.Unlock()

		return false
	}

	h.settled = true
	h.cancelled = cancelled
	if !cancelled {
		h.result = res
	}

	cleanups := h.cleanups
	h.cleanups = nil
	onSettle := h.onSettle
	h.mu.Unlock()

	for i := len(cleanups) - 1; i >= 0; i-- {
		cleanups[i]()
	}

	close(h.done)

	if onSettle != nil {
		onSettle(res, cancelled)
	}

	return true
}
