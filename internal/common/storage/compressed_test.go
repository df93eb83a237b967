package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
)

type memoryStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (m *memoryStorage) PutObject(ctx context.Context, bucket, objectKey string, reader io.Reader, sizeBytes int64, contentType string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	if int64(len(data)) != sizeBytes {
		return fmt.Errorf("size mismatch: %d != %d", len(data), sizeBytes)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[bucket+"/"+objectKey] = data
	m.types[bucket+"/"+objectKey] = contentType
	return nil
}

func (m *memoryStorage) GetObject(ctx context.Context, bucket, objectKey string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[bucket+"/"+objectKey]
	if !ok {
		return nil, fmt.Errorf("object %s not found", objectKey)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memoryStorage) StatObject(ctx context.Context, bucket, objectKey string) (ObjectStat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[bucket+"/"+objectKey]
	if !ok {
		return ObjectStat{}, fmt.Errorf("object %s not found", objectKey)
	}
	return ObjectStat{SizeBytes: int64(len(data)), ContentType: m.types[bucket+"/"+objectKey]}, nil
}

func TestCompressedStorePutGet(t *testing.T) {
	backend := newMemoryStorage()
	store, err := NewCompressedStore(backend, "submissions")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	source := []byte(strings.Repeat("for i in range(10):\n    print(i)\n", 200))

	ctx := context.Background()
	if err := store.Put(ctx, "c1/s1.py.zst", source); err != nil {
		t.Fatalf("put: %v", err)
	}

	stat, err := backend.StatObject(ctx, "submissions", "c1/s1.py.zst")
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if stat.SizeBytes >= int64(len(source)) {
		t.Fatalf("expected compressed object smaller than %d, got %d", len(source), stat.SizeBytes)
	}
	if stat.ContentType != zstdContentType {
		t.Fatalf("expected content type %s, got %s", zstdContentType, stat.ContentType)
	}

	got, err := store.Get(ctx, "c1/s1.py.zst")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !bytes.Equal(got, source) {
		t.Fatalf("expected round-tripped source to match")
	}
}

func TestNewCompressedStoreRequiresBucket(t *testing.T) {
	t.Parallel()
	if _, err := NewCompressedStore(newMemoryStorage(), ""); err == nil {
		t.Fatalf("expected error for empty bucket")
	}
}
