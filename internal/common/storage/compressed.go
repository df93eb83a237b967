package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

const zstdContentType = "application/zstd"

// CompressedStore writes and reads zstd-compressed blobs in a single bucket.
type CompressedStore struct {
	storage ObjectStorage
	bucket  string
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewCompressedStore wraps storage for bucket.
func NewCompressedStore(storage ObjectStorage, bucket string) (*CompressedStore, error) {
	if storage == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder failed: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder failed: %w", err)
	}
	return &CompressedStore{storage: storage, bucket: bucket, encoder: enc, decoder: dec}, nil
}

// Put compresses data and uploads it under key.
func (s *CompressedStore) Put(ctx context.Context, key string, data []byte) error {
	compressed := s.encoder.EncodeAll(data, make([]byte, 0, len(data)/2+64))
	return s.storage.PutObject(ctx, s.bucket, key, bytes.NewReader(compressed), int64(len(compressed)), zstdContentType)
}

// Get downloads key and returns the decompressed bytes.
func (s *CompressedStore) Get(ctx context.Context, key string) ([]byte, error) {
	reader, err := s.storage.GetObject(ctx, s.bucket, key)
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	compressed, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read object %s failed: %w", key, err)
	}
	data, err := s.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress object %s failed: %w", key, err)
	}
	return data, nil
}
