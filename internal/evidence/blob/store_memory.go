package blob

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"evidenceledger/pkg/platform/sentinel"
)

const memoryScheme = "mem"

// InMemory keeps payloads in process.
type InMemory struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

func NewInMemory() *InMemory {
	return &InMemory{objects: make(map[string][]byte)}
}

func (s *InMemory) Put(_ context.Context, key, _ string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = append([]byte(nil), data...)
	return refFor(memoryScheme, "local", key), nil
}

func (s *InMemory) Get(_ context.Context, ref string) ([]byte, error) {
	key, ok := strings.CutPrefix(ref, memoryScheme+"://local/")
	if !ok {
		return nil, fmt.Errorf("blob ref %q: %w", ref, sentinel.ErrNotFound)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("blob ref %q: %w", ref, sentinel.ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}

// Corrupt overwrites a stored object in place. Tests use it to simulate
// tampering behind the ledger's back.
func (s *InMemory) Corrupt(ref string, data []byte) bool {
	key, ok := strings.CutPrefix(ref, memoryScheme+"://local/")
	if !ok {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.objects[key]; !exists {
		return false
	}
	s.objects[key] = append([]byte(nil), data...)
	return true
}
