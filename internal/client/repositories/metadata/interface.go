// Package metadata stores small binary values by key in the local SQLite
// database. The credential store keeps its record here.
package metadata

import (
	"context"
)

// Repository is a key/value view over the metadata table. Get returns
// (nil, nil) for a missing key.
type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, keys ...string) error
	List(ctx context.Context) (map[string][]byte, error)
	Clear(ctx context.Context) error
}
