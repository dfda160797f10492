package browser

// Bindings exposed to every frame of the browser context.
const (
	reportBinding       = "__tourReport"
	storeChangedBinding = "__tourStoreChanged"
)

// helpersScript defines tourPath and tourStamp inside a function body. tourStamp copies layout
// state of the live subtree onto its clone; the live nodes are never written to.
const helpersScript = `
	const tourPath = (el) => {
		const path = [];
		for (let n = el; n && n.parentElement; n = n.parentElement) {
			path.unshift(Array.prototype.indexOf.call(n.parentElement.children, n));
		}
		return path;
	};

	const tourStamp = (live, copy) => {
		const walk = (l, c) => {
			if (!(l instanceof Element) || !c) return;

			const view = l.ownerDocument.defaultView;
			const style = view ? view.getComputedStyle(l) : null;
			const r = l.getBoundingClientRect();

			const hidden = !style ||
				style.display === 'none' ||
				style.visibility === 'hidden' ||
				parseFloat(style.opacity) === 0 ||
				(style.display !== 'contents' && l.getClientRects().length === 0);
			if (hidden) c.setAttribute('data-tour-hidden', '');

			const round = (v) => Math.round(v * 100) / 100;
			c.setAttribute('data-tour-rect', [r.x, r.y, r.width, r.height].map(round).join(','));

			if (['INPUT', 'TEXTAREA', 'SELECT'].includes(l.tagName) && typeof l.value === 'string') {
				c.setAttribute('data-tour-value', l.value);
			}
			if (l.tagName === 'INPUT' && (l.type === 'checkbox' || l.type === 'radio')) {
				c.setAttribute('data-tour-checked', String(l.checked));
			}

			for (let i = 0; i < l.children.length; i++) {
				walk(l.children[i], c.children[i]);
			}
		};

		walk(live, copy);
		return copy;
	};
`

// snapshotScript serializes the frame's document with layout stamps.
const snapshotScript = `() => {` + helpersScript + `
	const root = document.documentElement;
	if (!root) return '';
	return '<!DOCTYPE html>' + tourStamp(root, root.cloneNode(true)).outerHTML;
}`

// initScript runs in every frame before page scripts. It reports clicks, input and change
// events, CustomEvents, attribute changes and child-list changes to the report binding, and in
// the top frame forwards wp.data updates to the store binding.
const initScript = `(() => {
	if (window.__tourInstalled) return;
	window.__tourInstalled = true;
` + helpersScript + `
	const frameName = () => {
		if (window === window.top) return '';
		if (window.frameElement && window.frameElement.name) return window.frameElement.name;
		return window.name || '';
	};

	const report = (msg) => {
		if (typeof window.` + reportBinding + ` !== 'function') return;
		msg.frame = frameName();
		window.` + reportBinding + `(msg).catch(() => {});
	};

	const detailOf = (d) => {
		if (d === undefined) return null;
		try {
			return JSON.parse(JSON.stringify(d));
		} catch (e) {
			return null;
		}
	};

	for (const type of ['click', 'input', 'change']) {
		document.addEventListener(type, (ev) => {
			const t = ev.target;
			if (!(t instanceof Element)) return;

			const msg = { kind: 'event', event: type, path: tourPath(t) };
			if (['INPUT', 'TEXTAREA', 'SELECT'].includes(t.tagName) && typeof t.value === 'string') {
				msg.value = t.value;
			}
			if (t.tagName === 'INPUT' && (t.type === 'checkbox' || t.type === 'radio')) {
				msg.checked = t.checked;
			}
			report(msg);
		}, true);
	}

	const dispatch = EventTarget.prototype.dispatchEvent;
	EventTarget.prototype.dispatchEvent = function (ev) {
		const result = dispatch.call(this, ev);
		if (!(ev instanceof CustomEvent)) return result;

		const msg = { kind: 'event', event: ev.type, detail: detailOf(ev.detail) };
		if (this === window) {
			msg.target = 'window';
		} else if (this === document) {
			msg.target = 'document';
		} else if (this instanceof Element && this.isConnected) {
			msg.path = tourPath(this);
		} else {
			return result;
		}
		report(msg);

		return result;
	};

	const observer = new MutationObserver((records) => {
		const parents = new Set();

		for (const r of records) {
			if (r.type === 'attributes') {
				if (!(r.target instanceof Element) || !r.target.isConnected) continue;
				if (r.attributeName.startsWith('data-tour-')) continue;
				report({
					kind: 'attributes',
					path: tourPath(r.target),
					name: r.attributeName,
					value: r.target.getAttribute(r.attributeName),
				});
				continue;
			}

			const p = r.type === 'characterData' ? r.target.parentElement : r.target;
			if (p instanceof Element && p.isConnected) parents.add(p);
		}

		for (const p of parents) {
			let covered = false;
			for (let a = p.parentElement; a; a = a.parentElement) {
				if (parents.has(a)) {
					covered = true;
					break;
				}
			}
			if (covered) continue;

			report({ kind: 'children', path: tourPath(p), html: tourStamp(p, p.cloneNode(true)).innerHTML });
		}
	});
	observer.observe(document, { attributes: true, childList: true, characterData: true, subtree: true });

	if (window !== window.top) return;

	let pending = null;
	const hookStore = () => {
		const data = window.wp && window.wp.data;
		if (!data || typeof data.subscribe !== 'function') return false;

		data.subscribe(() => {
			if (pending !== null) return;
			pending = setTimeout(() => {
				pending = null;
				if (typeof window.` + storeChangedBinding + ` === 'function') {
					window.` + storeChangedBinding + `().catch(() => {});
				}
			}, 16);
		});
		return true;
	};

	if (!hookStore()) {
		const timer = setInterval(() => {
			if (hookStore()) clearInterval(timer);
		}, 250);
	}
})();`

// selectScript calls a wp.data selector and returns a JSON-safe copy of its value.
const selectScript = `([storeName, selector, args]) => {
	const data = window.wp && window.wp.data;
	if (!data || typeof data.select !== 'function') {
		throw new Error('wp.data is not available');
	}

	const store = data.select(storeName);
	if (!store || typeof store[selector] !== 'function') {
		throw new Error('unknown selector ' + storeName + '.' + selector);
	}

	const value = store[selector](...(args || []));
	return value === undefined ? null : JSON.parse(JSON.stringify(value));
}`
