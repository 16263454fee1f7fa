// Package store provides durable blob storage for room snapshots. Each
// room persists exactly one blob under its id, overwritten on every
// mutation.
package store

import "context"

// Store is the get/put contract the document actor persists through.
// Get returns (nil, nil) when no snapshot exists for the room yet.
type Store interface {
	Get(ctx context.Context, room string) ([]byte, error)
	Put(ctx context.Context, room string, snapshot []byte) error
}
