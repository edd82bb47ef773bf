package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/mwantia/recordstore/data"
)

func (sa *S3Adapter) Save(ctx context.Context, collection, key string, record *data.Record) error {
	sa.mu.Lock()
	defer sa.mu.Unlock()

	envelope, err := json.Marshal(record)
	if err != nil {
		return err
	}

	_, err = sa.client.PutObject(ctx, sa.bucketName, buildKey(collection, key),
		bytes.NewReader(envelope), int64(len(envelope)), minio.PutObjectOptions{
			ContentType: "application/json",
		})

	return err
}

func (sa *S3Adapter) Load(ctx context.Context, collection, key string) (*data.Record, error) {
	sa.mu.RLock()
	defer sa.mu.RUnlock()

	object, err := sa.client.GetObject(ctx, sa.bucketName, buildKey(collection, key), minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer object.Close()

	envelope, err := io.ReadAll(object)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, data.ErrNotFound
		}
		return nil, err
	}

	record := new(data.Record)
	if err := json.Unmarshal(envelope, record); err != nil {
		return nil, data.ErrCorruptRecord
	}

	return record, nil
}

func (sa *S3Adapter) Delete(ctx context.Context, collection, key string) error {
	sa.mu.Lock()
	defer sa.mu.Unlock()

	err := sa.client.RemoveObject(ctx, sa.bucketName, buildKey(collection, key), minio.RemoveObjectOptions{})
	if err != nil && minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return nil
	}

	return err
}

func (sa *S3Adapter) Query(ctx context.Context, collection string) ([]*data.Record, error) {
	sa.mu.RLock()
	defer sa.mu.RUnlock()

	records := make([]*data.Record, 0)
	for info := range sa.client.ListObjects(ctx, sa.bucketName, minio.ListObjectsOptions{
		Prefix:    buildPrefix(collection),
		Recursive: true,
	}) {
		if info.Err != nil {
			return nil, info.Err
		}

		object, err := sa.client.GetObject(ctx, sa.bucketName, info.Key, minio.GetObjectOptions{})
		if err != nil {
			return nil, err
		}

		envelope, err := io.ReadAll(object)
		object.Close()
		if err != nil {
			return nil, err
		}

		record := new(data.Record)
		if err := json.Unmarshal(envelope, record); err != nil {
			// Skip corrupt objects instead of failing the whole listing.
			continue
		}
		records = append(records, record)
	}

	return records, nil
}

func (sa *S3Adapter) Keys(ctx context.Context, collection string) ([]string, error) {
	sa.mu.RLock()
	defer sa.mu.RUnlock()

	prefix := buildPrefix(collection)
	keys := make([]string, 0)
	for info := range sa.client.ListObjects(ctx, sa.bucketName, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if info.Err != nil {
			return nil, info.Err
		}
		keys = append(keys, strings.TrimPrefix(info.Key, prefix))
	}

	return keys, nil
}

func (sa *S3Adapter) Collections(ctx context.Context) ([]string, error) {
	sa.mu.RLock()
	defer sa.mu.RUnlock()

	// Non-recursive listing returns common prefixes, one per collection.
	collections := make([]string, 0)
	for info := range sa.client.ListObjects(ctx, sa.bucketName, minio.ListObjectsOptions{
		Recursive: false,
	}) {
		if info.Err != nil {
			return nil, info.Err
		}
		if strings.HasSuffix(info.Key, "/") {
			collections = append(collections, strings.TrimSuffix(info.Key, "/"))
		}
	}

	return collections, nil
}

func (sa *S3Adapter) Clear(ctx context.Context, collection string) error {
	sa.mu.Lock()
	defer sa.mu.Unlock()

	for info := range sa.client.ListObjects(ctx, sa.bucketName, minio.ListObjectsOptions{
		Prefix:    buildPrefix(collection),
		Recursive: true,
	}) {
		if info.Err != nil {
			return info.Err
		}

		if err := sa.client.RemoveObject(ctx, sa.bucketName, info.Key, minio.RemoveObjectOptions{}); err != nil {
			return err
		}
	}

	return nil
}
