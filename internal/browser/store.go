package browser

import (
	"context"
	"sync"

	"tourguide/internal/ports"
	"tourguide/pkg/apperr"
	"tourguide/pkg/logg"

	"go.uber.org/zap"
)

const pageStoreName = "PageStore"

// PageStore is the ports.DataStore of the live editor page, backed by window.wp.data.
type PageStore struct {
	logger *zap.Logger
	frame  func() (frameEvaluator, error)

	mu          sync.Mutex
	subscribers map[int]func()
	nextID      int
}

// frameEvaluator is the part of playwright.Frame the store needs.
type frameEvaluator interface {
	Evaluate(expression string, arg ...interface{}) (interface{}, error)
}

var _ ports.DataStore = (*PageStore)(nil)

func newPageStore(logger *zap.Logger, frame func() (frameEvaluator, error)) *PageStore {
	return &PageStore{
		logger:      logger.With(zap.String(logg.Layer, pageStoreName)),
		frame:       frame,
		subscribers: make(map[int]func()),
	}
}

func (s *PageStore) Select(ctx context.Context, storeName, selector string, args []any) (any, error) {
	const op = "Select"

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	frame, err := s.frame()
	if err != nil {
		return nil, apperr.Wrap(op, apperr.CodeBrowserNotReady, err, map[string]any{
			apperr.MetaReason: "page_not_active",
			apperr.MetaStage:  apperr.StageStore,
		})
	}

	if args == nil {
		args = []any{}
	}

	value, err := frame.Evaluate(selectScript, []any{storeName, selector, args})
	if err != nil {
		return nil, apperr.Wrap(op, apperr.CodeActionFailed, err, map[string]any{
			apperr.MetaReason: "select_failed",
			apperr.MetaStage:  apperr.StageStore,
			"store":           storeName,
			"selector":        selector,
		})
	}

	return value, nil
}

func (s *PageStore) Subscribe(fn func()) func() {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.subscribers[id] = fn
	s.mu.Unlock()

	var once sync.Once

	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subscribers, id)
			s.mu.Unlock()
		})
	}
}

// notify fans a store update out to subscribers. Subscribers may call Select, so it must not
// run on the goroutine delivering binding calls.
func (s *PageStore) notify() {
	s.mu.Lock()
	fns := make([]func(), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}
