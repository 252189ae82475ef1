package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

type memObject struct {
	data []byte
	mod  time.Time
}

// Memory keeps artifacts in process memory for tests and dry runs.
type Memory struct {
	mu   sync.RWMutex
	objs map[string]memObject
}

// NewMemory returns an empty in-memory archive store.
func NewMemory() *Memory {
	return &Memory{objs: make(map[string]memObject)}
}

// Driver reports the driver name.
func (m *Memory) Driver() string { return DriverMemory }

// Put stores the artifact, replacing any previous content under key.
func (m *Memory) Put(_ context.Context, key, _ string, r io.Reader) (Info, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return Info{}, fmt.Errorf("read archive %s: %w", key, err)
	}
	now := time.Now().UTC()

	m.mu.Lock()
	m.objs[key] = memObject{data: b, mod: now}
	m.mu.Unlock()

	return Info{Key: key, Size: int64(len(b)), LastModified: now}, nil
}

// Get returns a reader over a copy of the stored content.
func (m *Memory) Get(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.RLock()
	obj, ok := m.objs[key]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("archive %s not found", key)
	}
	return io.NopCloser(bytes.NewReader(append([]byte(nil), obj.data...))), nil
}

// List returns artifacts whose key starts with prefix, sorted by key.
func (m *Memory) List(_ context.Context, prefix string) ([]Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	infos := []Info{}
	for k, obj := range m.objs {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		infos = append(infos, Info{Key: k, Size: int64(len(obj.data)), LastModified: obj.mod})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}
