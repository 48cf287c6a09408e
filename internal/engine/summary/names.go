package summary

import (
	"sync"

	"stubindex/internal/core/errors"
)

// MemoryNameTable is an in-process NameTable. Handles start at 1.
type MemoryNameTable struct {
	mu     sync.RWMutex
	byName map[string]uint32
	names  []string
}

func NewMemoryNameTable() *MemoryNameTable {
	return &MemoryNameTable{byName: make(map[string]uint32)}
}

func (m *MemoryNameTable) Intern(name string) (uint32, error) {
	m.mu.RLock()
	h, ok := m.byName[name]
	m.mu.RUnlock()
	if ok {
		return h, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.byName[name]; ok {
		return h, nil
	}
	m.names = append(m.names, name)
	h = uint32(len(m.names))
	m.byName[name] = h
	return h, nil
}

func (m *MemoryNameTable) Name(handle uint32) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if handle == NullHandle || int(handle) > len(m.names) {
		return "", errors.Newf(errors.CodeNotFound, "unknown name handle %d", handle)
	}
	return m.names[handle-1], nil
}

func (m *MemoryNameTable) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.names)
}
