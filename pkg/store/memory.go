package store

import (
	"context"
	"errors"
	"sync"
)

// ErrPutFailed is returned by a Memory store with FailPuts set.
var ErrPutFailed = errors.New("put failed")

// Memory is an in-process Store used in tests.
type Memory struct {
	mu       sync.Mutex
	blobs    map[string][]byte
	puts     int
	FailPuts bool
}

func NewMemory() *Memory {
	return &Memory{blobs: make(map[string][]byte)}
}

func (s *Memory) Get(_ context.Context, room string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	blob, ok := s.blobs[room]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(blob))
	copy(out, blob)
	return out, nil
}

func (s *Memory) Put(_ context.Context, room string, snapshot []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailPuts {
		return ErrPutFailed
	}
	s.puts++
	blob := make([]byte, len(snapshot))
	copy(blob, snapshot)
	s.blobs[room] = blob
	return nil
}

// Puts reports how many successful writes have happened.
func (s *Memory) Puts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.puts
}
