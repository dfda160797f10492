package dom

import (
	"sort"
	"sync"
)

// Window groups the top-level document with the documents of its named frames.
type Window struct {
	mu     sync.RWMutex
	main   *Document
	frames map[string]*Document
}

func NewWindow(main *Document) *Window {
	return &Window{
		main:   main,
		frames: make(map[string]*Document),
	}
}

func (w *Window) Main() *Document {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return w.main
}

func (w *Window) SetMain(doc *Document) {
	w.mu.Lock()
	w.main = doc
	w.mu.Unlock()
}

// Frame returns the document loaded in the named frame, or nil.
func (w *Window) Frame(name string) *Document {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return w.frames[name]
}

// SetFrame attaches doc as the named frame's document; a nil doc detaches the frame.
func (w *Window) SetFrame(name string, doc *Document) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if doc == nil {
		delete(w.frames, name)

		return
	}

	doc.setFrameName(name)
	w.frames[name] = doc
}

// Documents lists the main document first, then frame documents by name.
func (w *Window) Documents() []*Document {
	w.mu.RLock()
	defer w.mu.RUnlock()

	names := make([]string, 0, len(w.frames))
	for name := range w.frames {
		names = append(names, name)
	}
	sort.Strings(names)

	docs := make([]*Document, 0, len(names)+1)
	if w.main != nil {
		docs = append(docs, w.main)
	}

	for _, name := range names {
		docs = append(docs, w.frames[name])
	}

	return docs
}
