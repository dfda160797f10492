package resolver

import (
	"context"
	"strconv"
	"strings"

	"tourguide/internal/dom"
	"tourguide/internal/entity"
	"tourguide/internal/locator"
	"tourguide/internal/session"

	"go.uber.org/zap"
)

const (
	blockAttr          = "data-block"
	blockTypeAttr      = "data-type"
	selectedBlockClass = ".is-selected"
)

// scope carries the per-call lookups shared by matching, narrowing and scoring.
type scope struct {
	ctx    context.Context
	r      *Resolver
	win    *dom.Window
	doc    *dom.Document
	sess   *session.Session
	logger *zap.Logger

	selectedLoaded bool
	selected       string
}

// canvasThenMain lists the canvas document (when loaded) followed by the main document.
func (s *scope) canvasThenMain() []*dom.Document {
	var docs []*dom.Document
	if s.win == nil {
		return docs
	}

	if canvas := s.win.Frame(s.r.tour.CanvasFrameName); canvas != nil {
		docs = append(docs, canvas)
	}

	if main := s.win.Main(); main != nil {
		docs = append(docs, main)
	}

	return docs
}

func (s *scope) blocks() []entity.Block {
	if s.r.blocks != nil {
		blocks, err := s.r.blocks.Blocks(s.ctx)
		if err == nil {
			return blocks
		}

		s.logger.Debug("Block list unavailable from store, reading DOM", zap.Error(err))
	}

	for _, doc := range s.canvasThenMain() {
		if blocks := domBlocks(doc); len(blocks) > 0 {
			return blocks
		}
	}

	return nil
}

// domBlocks returns the top-level block wrappers in document order.
func domBlocks(doc *dom.Document) []entity.Block {
	var out []entity.Block

	for _, el := range doc.QuerySelectorAll("[" + blockAttr + "]") {
		if parent := el.Parent(); parent != nil && parent.Closest("["+blockAttr+"]") != nil {
			continue
		}

		out = append(out, entity.Block{ClientID: el.GetAttribute(blockAttr), Name: el.GetAttribute(blockTypeAttr)})
	}

	return out
}

// editorSelection asks the store, then the DOM, for the selected block.
func (s *scope) editorSelection() string {
	if s.r.blocks != nil {
		id, err := s.r.blocks.SelectedBlockID(s.ctx)
		if err == nil && id != "" {
			return id
		}
	}

	for _, doc := range s.canvasThenMain() {
		if el := doc.QuerySelector(selectedBlockClass + "[" + blockAttr + "]"); el != nil {
			return el.GetAttribute(blockAttr)
		}
	}

	return ""
}

// selectedBlock is the editor selection, falling back to the session's last appeared block.
func (s *scope) selectedBlock() string {
	if !s.selectedLoaded {
		s.selectedLoaded = true

		s.selected = s.editorSelection()
		if s.selected == "" {
			s.selected = s.sess.LastAppearedBlock()
		}
	}

	return s.selected
}

// inSelectedBlock reports whether el lies inside the selected block. known is false when there is
// no selection or the selected block no longer exists, in which case nothing is excluded.
func (s *scope) inSelectedBlock(el *dom.Element) (inside, known bool) {
	id := s.selectedBlock()
	if id == "" {
		return false, false
	}

	sel := locator.AttrSelector(blockAttr, id)
	if el.Closest(sel) != nil {
		return true, true
	}

	for _, doc := range s.canvasThenMain() {
		if doc.QuerySelector(sel) != nil {
			return false, true
		}
	}

	return false, false
}

// blockWrappers maps a block client id to its wrapper, trying the canvas and then the main document.
func (s *scope) blockWrappers(clientID string) []*dom.Element {
	if clientID == "" {
		return nil
	}

	sel := locator.AttrSelector(blockAttr, clientID)
	for _, doc := range s.canvasThenMain() {
		if found := doc.QuerySelectorAll(sel); len(found) > 0 {
			return found
		}
	}

	return nil
}

// resolveBlockRef turns a symbolic wpBlock value into a client id. Indices are 0-based.
func (s *scope) resolveBlockRef(ref string) string {
	ref = strings.TrimSpace(ref)

	switch {
	case ref == "first":
		if blocks := s.blocks(); len(blocks) > 0 {
			return blocks[0].ClientID
		}
	case ref == "last":
		if blocks := s.blocks(); len(blocks) > 0 {
			return blocks[len(blocks)-1].ClientID
		}
	case ref == "selected":
		return s.editorSelection()
	case strings.HasPrefix(ref, "type:"):
		name, idx := splitIndex(strings.TrimPrefix(ref, "type:"))

		n := 0
		for _, b := range s.blocks() {
			if b.Name != name {
				continue
			}

			if n == idx {
				return b.ClientID
			}
			n++
		}
	case strings.HasPrefix(ref, "nth:"):
		idx, err := strconv.Atoi(strings.TrimPrefix(ref, "nth:"))
		if err != nil || idx < 0 {
			return ""
		}

		if blocks := s.blocks(); idx < len(blocks) {
			return blocks[idx].ClientID
		}
	case ref == "inserted" || strings.HasPrefix(ref, "inserted:"):
		marker := strings.TrimPrefix(strings.TrimPrefix(ref, "inserted"), ":")
		if id, ok := s.sess.InsertedBlock(marker); ok {
			return id
		}

		if marker == "" {
			return s.sess.LastAppearedBlock()
		}
	}

	return ""
}

// splitIndex splits "core/image:2" into ("core/image", 2). A missing or non-numeric suffix is index 0.
func splitIndex(s string) (string, int) {
	i := strings.LastIndex(s, ":")
	if i < 0 {
		return s, 0
	}

	idx, err := strconv.Atoi(s[i+1:])
	if err != nil || idx < 0 {
		return s, 0
	}

	return s[:i], idx
}
