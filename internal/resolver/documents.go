package resolver

import (
	"errors"
	"fmt"
	"strings"

	"tourguide/internal/dom"
	"tourguide/internal/entity"
	"tourguide/internal/locator"
)

var (
	ErrIframeUnavailable = errors.New("editor canvas is not available")
	ErrNoDocument        = errors.New("no document loaded")
)

// Containers that only exist inside the editor canvas. A target scoped to one of them is
// searched in the canvas even without SearchInEditorFrame.
var iframeOnlyContainers = map[string]bool{
	".editor-styles-wrapper":           true,
	".is-root-container":               true,
	".block-editor-block-list__layout": true,
	".wp-block-post-content":           true,
}

// DocumentLocator picks the document a target is searched in.
type DocumentLocator interface {
	Name() string
	Locate(win *dom.Window) (*dom.Document, error)
}

type MainDocument struct{}

func (MainDocument) Name() string {
	return "main"
}

func (MainDocument) Locate(win *dom.Window) (*dom.Document, error) {
	if win == nil || win.Main() == nil {
		return nil, ErrNoDocument
	}

	return win.Main(), nil
}

// CanvasDocument is the frame document hosted by iframe[name=FrameName]. Both the iframe element
// in the main document and the loaded frame document are required.
type CanvasDocument struct {
	FrameName string
}

func (c CanvasDocument) Name() string {
	return "canvas"
}

func (c CanvasDocument) Locate(win *dom.Window) (*dom.Document, error) {
	if win == nil || win.Main() == nil {
		return nil, fmt.Errorf("%w: no window", ErrIframeUnavailable)
	}

	if win.Main().QuerySelector("iframe"+locator.AttrSelector("name", c.FrameName)) == nil {
		return nil, fmt.Errorf("%w: iframe[name=%q] not found", ErrIframeUnavailable, c.FrameName)
	}

	doc := win.Frame(c.FrameName)
	if doc == nil {
		return nil, fmt.Errorf("%w: frame %q has no document", ErrIframeUnavailable, c.FrameName)
	}

	return doc, nil
}

// DocumentFor selects the canvas when the constraints ask for it, the main document otherwise.
func DocumentFor(c entity.Constraints, frameName string) DocumentLocator {
	if c.SearchInEditorFrame || iframeOnlyContainers[strings.TrimSpace(c.WithinContainerSelector)] {
		return CanvasDocument{FrameName: frameName}
	}

	return MainDocument{}
}
