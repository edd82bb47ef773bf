package s3

import (
	"context"
	"fmt"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/mwantia/recordstore/backend"
)

// S3Adapter is a remote object-storage tier. Each record envelope is one
// object under "<collection>/<key>". It has no practical value-size
// limit, which makes it the preferred target for oversized records the
// KV tiers reject.
type S3Adapter struct {
	mu sync.RWMutex

	client     *minio.Client
	bucketName string
}

// New creates an S3-backed remote adapter.
func New(endpoint, bucketName, accessKey, secretKey string, useSsl bool) (*S3Adapter, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSsl,
	})
	if err != nil {
		return nil, err
	}

	return &S3Adapter{
		client:     client,
		bucketName: bucketName,
	}, nil
}

// Name returns the identifier name defined for this adapter.
func (*S3Adapter) Name() string {
	return "s3"
}

// Priority orders the fallback chain.
func (*S3Adapter) Priority() int {
	return 30
}

// IsAvailable probes bucket reachability.
func (sa *S3Adapter) IsAvailable(ctx context.Context) bool {
	exists, err := sa.client.BucketExists(ctx, sa.bucketName)
	return err == nil && exists
}

// Open verifies the bucket exists.
func (sa *S3Adapter) Open(ctx context.Context) error {
	sa.mu.Lock()
	defer sa.mu.Unlock()

	exists, err := sa.client.BucketExists(ctx, sa.bucketName)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("bucket %q does not exist", sa.bucketName)
	}

	return nil
}

// Close is part of the lifecycle behaviour and gets called when closing this adapter.
func (sa *S3Adapter) Close(ctx context.Context) error {
	// Nothing to clean up - the client is stateless
	return nil
}

// Capabilities returns what this adapter supports.
func (*S3Adapter) Capabilities() *backend.Capabilities {
	return &backend.Capabilities{
		Query: true,
		Clear: true,
	}
}

// buildKey constructs the object key for a record.
func buildKey(collection, key string) string {
	return collection + "/" + key
}

// buildPrefix constructs the listing prefix for a collection.
// An empty collection addresses the whole bucket.
func buildPrefix(collection string) string {
	if collection == "" {
		return ""
	}
	return collection + "/"
}
