package documents

import (
	"context"
	"encoding/json"
	"fmt"
)

// Document is one stored record. Rev changes on every write and seeds the
// change event ID for that write.
type Document struct {
	Path string
	Rev  string
	Data map[string]any
}

// Store persists documents keyed by path.
//
// Create returns sentinel.ErrConflict when the path exists. Get, Replace and
// Delete return sentinel.ErrNotFound when it does not. Delete returns the
// removed document.
type Store interface {
	Get(ctx context.Context, path string) (Document, error)
	Create(ctx context.Context, doc Document) error
	Replace(ctx context.Context, doc Document) error
	Delete(ctx context.Context, path string) (Document, error)
}

// cloneData deep-copies through JSON so stored values never alias caller
// maps and numbers read back the same as from a JSON-backed store.
func cloneData(data map[string]any) (map[string]any, error) {
	if data == nil {
		return nil, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return out, nil
}
