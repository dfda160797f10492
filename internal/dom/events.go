package dom

import (
	"sync"
	"sync/atomic"

	"golang.org/x/net/html"
)

type Event struct {
	Type   string
	Target *Element
	Detail any
}

type Listener func(ev *Event)

type listener struct {
	id      int
	node    *html.Node // nil targets the document itself
	typ     string
	capture bool
	fn      Listener
	removed atomic.Bool
}

type observer struct {
	id      int
	node    *html.Node // nil observes the whole document
	fn      func()
	removed atomic.Bool
}

// AddEventListener registers fn on the document node. The returned func removes it and is safe
// to call more than once.
func (d *Document) AddEventListener(typ string, capture bool, fn Listener) func() {
	return d.addListener(nil, typ, capture, fn)
}

func (e *Element) AddEventListener(typ string, capture bool, fn Listener) func() {
	return e.doc.addListener(e.node, typ, capture, fn)
}

func (d *Document) addListener(node *html.Node, typ string, capture bool, fn Listener) func() {
	d.listenersMu.Lock()
	d.nextID++
	l := &listener{id: d.nextID, node: node, typ: typ, capture: capture, fn: fn}
	d.listeners = append(d.listeners, l)
	d.listenersMu.Unlock()

	var once sync.Once

	return func() {
		once.Do(func() {
			l.removed.Store(true)

			d.listenersMu.Lock()
			for i, cur := range d.listeners {
				if cur.id == l.id {
					d.listeners = append(d.listeners[:i], d.listeners[i+1:]...)
					break
				}
			}
			d.listenersMu.Unlock()
		})
	}
}

// ListenerCount is the number of registered listeners and observers.
func (d *Document) ListenerCount() int {
	d.listenersMu.Lock()
	defer d.listenersMu.Unlock()

	return len(d.listeners) + len(d.observers)
}

// Dispatch runs ev through the capture phase (document down to target's parent), the target
// phase and the bubble phase (target's parent up to the document). A nil target dispatches on
// the document alone.
func (d *Document) Dispatch(target *Element, ev *Event) {
	ev.Target = target

	var path []*html.Node
	if target != nil {
		d.mu.RLock()
		for n := target.node; n != nil && n.Type == html.ElementNode; n = n.Parent {
			path = append(path, n)
		}
		d.mu.RUnlock()
	}

	d.listenersMu.Lock()
	registered := make([]*listener, len(d.listeners))
	copy(registered, d.listeners)
	d.listenersMu.Unlock()

	pick := func(dst []*listener, node *html.Node, phase func(*listener) bool) []*listener {
		for _, l := range registered {
			if l.node == node && l.typ == ev.Type && phase(l) {
				dst = append(dst, l)
			}
		}

		return dst
	}
	capturing := func(l *listener) bool { return l.capture }
	bubbling := func(l *listener) bool { return !l.capture }
	atTarget := func(*listener) bool { return true }

	var order []*listener
	if len(path) == 0 {
		order = pick(order, nil, atTarget)
	} else {
		order = pick(order, nil, capturing)
		for i := len(path) - 1; i >= 1; i-- {
			order = pick(order, path[i], capturing)
		}
		order = pick(order, path[0], atTarget)
		for i := 1; i < len(path); i++ {
			order = pick(order, path[i], bubbling)
		}
		order = pick(order, nil, bubbling)
	}

	for _, l := range order {
		if !l.removed.Load() {
			l.fn(ev)
		}
	}
}

// Dispatch sends ev to e through its own document.
func (e *Element) Dispatch(ev *Event) {
	e.doc.Dispatch(e, ev)
}

// Click dispatches a click event on e.
func (e *Element) Click() {
	e.doc.Dispatch(e, &Event{Type: "click"})
}

// Observe calls fn after any attribute, text or child-list change inside target's subtree.
// A nil target observes the whole document.
func (d *Document) Observe(target *Element, fn func()) func() {
	var node *html.Node
	if target != nil {
		node = target.node
	}

	d.listenersMu.Lock()
	d.nextID++
	o := &observer{id: d.nextID, node: node, fn: fn}
	d.observers = append(d.observers, o)
	d.listenersMu.Unlock()

	var once sync.Once

	return func() {
		once.Do(func() {
			o.removed.Store(true)

			d.listenersMu.Lock()
			for i, cur := range d.observers {
				if cur.id == o.id {
					d.observers = append(d.observers[:i], d.observers[i+1:]...)
					break
				}
			}
			d.listenersMu.Unlock()
		})
	}
}

func (d *Document) notify(changed *html.Node) {
	d.listenersMu.Lock()
	observers := make([]*observer, len(d.observers))
	copy(observers, d.observers)
	d.listenersMu.Unlock()

	if len(observers) == 0 {
		return
	}

	d.mu.RLock()
	var fire []*observer
	for _, o := range observers {
		if o.node == nil || isAncestorOrSelf(o.node, changed) {
			fire = append(fire, o)
		}
	}
	d.mu.RUnlock()

	for _, o := range fire {
		if !o.removed.Load() {
			o.fn()
		}
	}
}
