package ports

import (
	"context"

	"tourguide/internal/dom"
	"tourguide/internal/entity"
)

// Browser drives the host editor page and keeps its dom.Window mirror current.
type Browser interface {
	Launch(ctx context.Context) error
	Close(ctx context.Context) error
	Navigate(ctx context.Context, url string) error
	// Snapshot re-reads the page into the mirror and returns it.
	Snapshot(ctx context.Context) (*dom.Window, error)
	// Window returns the current mirror, or nil before the first snapshot.
	Window() *dom.Window
	Highlight(ctx context.Context, el *dom.Element) error
	Store() DataStore
	IsReady() bool
}

// DataStore is the read-only view of the editor's global state container.
type DataStore interface {
	Select(ctx context.Context, storeName, selector string, args []any) (any, error)
	// Subscribe registers fn for every store update; the returned func unregisters it.
	Subscribe(fn func()) (unsubscribe func())
}

// BlockEditor exposes the live block list.
type BlockEditor interface {
	Blocks(ctx context.Context) ([]entity.Block, error)
	SelectedBlockID(ctx context.Context) (string, error)
}
