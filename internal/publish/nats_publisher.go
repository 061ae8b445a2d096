// Package publish persists final audio artifacts to a NATS JetStream object
// store and returns addressable locations for them.
package publish

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/book-expert/audiobook-service/internal/core"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// locationScheme prefixes returned artifact locations. The location is
// opaque to callers; a CDN-fronted deployment can return URLs instead.
const locationScheme = "nats-obj://"

// ErrForeignLocation marks an artifact location outside the given bucket.
var ErrForeignLocation = errors.New("location does not belong to bucket")

// ParseLocation extracts the object key from a location previously returned
// by Publish for the given bucket.
func ParseLocation(location, bucket string) (string, error) {
	prefix := locationScheme + bucket + "/"

	key, found := strings.CutPrefix(location, prefix)
	if !found || key == "" {
		return "", fmt.Errorf("%w '%s': %s", ErrForeignLocation, bucket, location)
	}

	return key, nil
}

// NATSPublisher implements core.Publisher on a JetStream object store bucket.
type NATSPublisher struct {
	bucket string
	store  nats.ObjectStore
}

// New creates and initializes a publisher for the given bucket, creating the
// bucket when it does not exist yet.
func New(jetstreamContext nats.JetStreamContext, bucketName string) (*NATSPublisher, error) {
	// Use a "create-first" approach.
	store, err := jetstreamContext.CreateObjectStore(&nats.ObjectStoreConfig{
		Bucket:      bucketName,
		Description: fmt.Sprintf("Published audiobook artifacts for the %s bucket.", bucketName),
		TTL:         0,
		MaxBytes:    0,
		Storage:     nats.FileStorage,
		Replicas:    1,
		Placement:   nil,
		Metadata:    nil,
		Compression: false,
	})

	// If the bucket already exists, bind to it.
	if err != nil {
		if errors.Is(err, jetstream.ErrBucketExists) {
			store, err = jetstreamContext.ObjectStore(bucketName)
			if err != nil {
				return nil, fmt.Errorf("failed to bind to existing object store bucket '%s': %w", bucketName, err)
			}
		} else {
			// For any other error, fail.
			return nil, fmt.Errorf("failed to create object store bucket '%s': %w", bucketName, err)
		}
	}

	return &NATSPublisher{bucket: bucketName, store: store}, nil
}

// Publish uploads the local file under the logical key and returns its
// durable location. Ownership of the artifact transfers to the store.
func (p *NATSPublisher) Publish(_ context.Context, localPath, key string) (string, error) {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return "", &core.PublishError{Key: key, Err: err}
	}

	_, err = p.store.Put(&nats.ObjectMeta{
		Name:        key,
		Description: "",
		Headers:     nil,
		Metadata:    nil,
		Opts:        nil,
	}, bytes.NewReader(data))
	if err != nil {
		return "", &core.PublishError{Key: key, Err: err}
	}

	return locationScheme + p.bucket + "/" + key, nil
}

// Fetch retrieves a published artifact by key. Used by the CLI client to
// download finished audiobooks.
func (p *NATSPublisher) Fetch(_ context.Context, key string) ([]byte, error) {
	obj, err := p.store.Get(key)
	if err != nil {
		return nil, fmt.Errorf("failed to get object '%s' from bucket '%s': %w", key, p.bucket, err)
	}

	data, readErr := io.ReadAll(obj)
	closeErr := obj.Close()

	if readErr != nil {
		return nil, fmt.Errorf("failed to read object '%s': %w", key, readErr)
	}

	if closeErr != nil {
		return data, fmt.Errorf("failed to close object '%s': %w", key, closeErr)
	}

	return data, nil
}
