package store

import (
	"context"
	"fmt"

	"tourguide/internal/entity"
	"tourguide/internal/ports"
)

const BlockEditorStore = "core/block-editor"

// BlockEditor reads the block list through the core/block-editor store selectors.
type BlockEditor struct {
	data ports.DataStore
}

func NewBlockEditor(data ports.DataStore) *BlockEditor {
	return &BlockEditor{data: data}
}

func (b *BlockEditor) Blocks(ctx context.Context) ([]entity.Block, error) {
	raw, err := b.data.Select(ctx, BlockEditorStore, "getBlocks", nil)
	if err != nil {
		return nil, err
	}

	list, ok := raw.([]any)
	if !ok {
		if raw == nil {
			return nil, nil
		}

		return nil, fmt.Errorf("getBlocks returned %T", raw)
	}

	blocks := make([]entity.Block, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}

		id, _ := m["clientId"].(string)
		name, _ := m["name"].(string)
		if id == "" {
			continue
		}

		blocks = append(blocks, entity.Block{ClientID: id, Name: name})
	}

	return blocks, nil
}

func (b *BlockEditor) SelectedBlockID(ctx context.Context) (string, error) {
	raw, err := b.data.Select(ctx, BlockEditorStore, "getSelectedBlockClientId", nil)
	if err != nil {
		return "", err
	}

	id, _ := raw.(string)

	return id, nil
}
