// Package io reads input documents from the local filesystem.
package io

import (
	"context"
	"os"
	"sync"

	"golang.org/x/sync/singleflight"
)

// FileSource loads files from disk. Reads are cached by path and concurrent
// reads of the same path share one syscall.
type FileSource struct {
	cache   map[string][]byte
	cacheMu sync.RWMutex
	group   singleflight.Group
}

func NewFileSource() *FileSource {
	return &FileSource{cache: make(map[string][]byte)}
}

func (s *FileSource) Fetch(ctx context.Context, path string) ([]byte, error) {
	s.cacheMu.RLock()
	if cached, ok := s.cache[path]; ok {
		s.cacheMu.RUnlock()
		return cached, nil
	}
	s.cacheMu.RUnlock()

	result, err, _ := s.group.Do(path, func() (any, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}

		s.cacheMu.Lock()
		s.cache[path] = data
		s.cacheMu.Unlock()
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}
