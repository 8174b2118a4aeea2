package blob

import (
	"bytes"
	"context"
	"io"
	"path"
	"sync"
)

// MemoryStore is an in-memory object store used in tests and the
// community tier.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]*memoryObject
}

type memoryObject struct {
	data []byte
	tags map[string]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects: make(map[string]*memoryObject),
	}
}

// Put stores an object with its tags.
func (s *MemoryStore) Put(ctx context.Context, key string, r io.Reader, tags map[string]string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	copied := make(map[string]string, len(tags))
	for k, v := range tags {
		copied[k] = v
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = &memoryObject{data: data, tags: copied}
	return nil
}

// Get returns the object's byte stream.
func (s *MemoryStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, ok := s.objects[key]
	if !ok {
		return nil, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

// Tags returns the object's tag set.
func (s *MemoryStore) Tags(ctx context.Context, key string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, ok := s.objects[key]
	if !ok {
		return nil, ErrNotFound
	}

	tags := make(map[string]string, len(obj.tags))
	for k, v := range obj.tags {
		tags[k] = v
	}
	return tags, nil
}

// Move relocates an object under the folder prefix, keeping its base name.
func (s *MemoryStore) Move(ctx context.Context, key string, folder string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	obj, ok := s.objects[key]
	if !ok {
		return "", ErrNotFound
	}

	newKey := folder + "/" + path.Base(key)
	s.objects[newKey] = obj
	delete(s.objects, key)
	return newKey, nil
}

// Keys returns all stored keys; test helper.
func (s *MemoryStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	return keys
}

// Close releases the store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects = make(map[string]*memoryObject)
	return nil
}
