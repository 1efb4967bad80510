package storage

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore 进程内存储，本地开发与测试使用
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	// DeleteErr 非空时 Delete 返回该错误
	DeleteErr error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

func (m *MemoryStore) Upload(_ context.Context, bucket, path string, data []byte, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[bucket+"/"+path] = append([]byte(nil), data...)
	return nil
}

func (m *MemoryStore) PublicURL(bucket, path string) string {
	return fmt.Sprintf("memory://%s/%s", bucket, path)
}

func (m *MemoryStore) Delete(_ context.Context, bucket, path string) error {
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, bucket+"/"+path)
	return nil
}

func (m *MemoryStore) Has(bucket, path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[bucket+"/"+path]
	return ok
}
