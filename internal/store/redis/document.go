package redis

import (
	"context"
)

// DocumentSource reads a whole delimited document stored at a key.
type DocumentSource struct {
	store *Store
	key   string
}

// NewDocumentSource returns a source for key.
func NewDocumentSource(store *Store, key string) *DocumentSource {
	return &DocumentSource{store: store, key: key}
}

func (d *DocumentSource) Name() string { return "redis://" + d.key }

func (d *DocumentSource) Fetch(ctx context.Context) (string, error) {
	return d.store.Get(ctx, d.key)
}
