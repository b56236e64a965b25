// Package urlcache keeps a TTL-bounded snapshot of presigned URL descriptors
// for every object key of an upload batch.
package urlcache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/s3pub/s3pub/internal/broker"
	"github.com/s3pub/s3pub/internal/logging"
	"github.com/s3pub/s3pub/internal/retry"
)

// Fetcher is the slice of the broker client the cache depends on.
type Fetcher interface {
	FetchRegular(ctx context.Context, objectKeys []string, digests map[string]string) ([]broker.PresignedURL, error)
	FetchMultipart(ctx context.Context, objectKey string, partDigests []string, uploadID string, ttl time.Duration) (*broker.PresignedURL, error)
}

// Cache serves presigned URLs for a fixed set of object keys. Reads are
// lock-free on the current snapshot; an expired snapshot is refreshed by
// exactly one caller while concurrent readers wait for the same result.
//
// Multipart descriptors are never cached: an uploadId is stateful, so every
// multipart request goes straight to the broker.
type Cache struct {
	fetcher    Fetcher
	objectKeys []string
	digests    map[string]string
	chunkSize  int
	ttl        time.Duration
	retrier    *retry.Retrier
	logger     *logging.Logger

	// onUploadID records broker-allocated multipart upload ids with the
	// coordinator's registry.
	onUploadID func(objectKey, uploadID string)

	mu        sync.RWMutex
	snapshot  map[string]broker.PresignedURL
	fetchedAt time.Time
	sf        singleflight.Group
}

// Options carries the cache tuning taken from configuration.
type Options struct {
	ChunkSize  int
	TTL        time.Duration
	Retrier    *retry.Retrier
	Logger     *logging.Logger
	OnUploadID func(objectKey, uploadID string)
}

// New creates a Cache over the batch's object keys. digests may be nil.
func New(fetcher Fetcher, objectKeys []string, digests map[string]string, opts Options) *Cache {
	if opts.ChunkSize < 1 {
		opts.ChunkSize = 1
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if opts.Retrier == nil {
		opts.Retrier = retry.New(1, 0, opts.Logger)
	}
	if opts.OnUploadID == nil {
		opts.OnUploadID = func(string, string) {}
	}
	return &Cache{
		fetcher:    fetcher,
		objectKeys: objectKeys,
		digests:    digests,
		chunkSize:  opts.ChunkSize,
		ttl:        opts.TTL,
		retrier:    opts.Retrier,
		logger:     opts.Logger,
		onUploadID: opts.OnUploadID,
	}
}

// RegularURL returns the presigned PUT URL for a regular (non-multipart)
// upload of the object key, refreshing the snapshot when it has expired.
func (c *Cache) RegularURL(ctx context.Context, objectKey string) (string, error) {
	snapshot, err := c.currentSnapshot(ctx)
	if err != nil {
		return "", err
	}

	desc, ok := snapshot[objectKey]
	if !ok {
		c.logger.Infof("Presigned url for object key '%s' wasn't found in cached response from server", objectKey)
		return "", &broker.ShapeError{Message: fmt.Sprintf("object key %s not found in cached response from server", objectKey)}
	}
	if desc.Multipart {
		return "", &broker.ShapeError{Message: fmt.Sprintf("object key %s returned as a multipart upload while a regular upload was expected", objectKey)}
	}
	if len(desc.Parts) != 1 {
		return "", &broker.ShapeError{Message: fmt.Sprintf("object key %s: expected exactly 1 presigned url, got %d", objectKey, len(desc.Parts))}
	}
	return desc.Parts[0].URL, nil
}

// MultipartURLs fetches a fresh multipart descriptor for the object key and
// registers the broker-allocated uploadId with the coordinator.
func (c *Cache) MultipartURLs(ctx context.Context, objectKey string, partDigests []string) (*broker.PresignedURL, error) {
	desc, err := retry.Value(ctx, c.retrier, "fetch multipart urls", func() (*broker.PresignedURL, error) {
		return c.fetcher.FetchMultipart(ctx, objectKey, partDigests, "", 0)
	})
	if err != nil {
		return nil, err
	}
	if !desc.Multipart || desc.UploadID == "" {
		return nil, &broker.ShapeError{Message: fmt.Sprintf("object key %s: broker returned a non-multipart descriptor for a multipart request", objectKey)}
	}
	c.onUploadID(desc.ObjectKey, desc.UploadID)
	return desc, nil
}

// currentSnapshot returns a snapshot younger than the TTL, refreshing it
// single-flight when needed. A failed refresh discards the old snapshot and
// surfaces the error to every waiter.
func (c *Cache) currentSnapshot(ctx context.Context) (map[string]broker.PresignedURL, error) {
	c.mu.RLock()
	if c.fresh() {
		snapshot := c.snapshot
		c.mu.RUnlock()
		return snapshot, nil
	}
	c.mu.RUnlock()

	v, err, _ := c.sf.Do("refresh", func() (interface{}, error) {
		// Re-check: a refresh that completed while this caller queued up
		// is good enough.
		c.mu.RLock()
		if c.fresh() {
			snapshot := c.snapshot
			c.mu.RUnlock()
			return snapshot, nil
		}
		c.mu.RUnlock()

		snapshot, err := c.fetchAll(ctx)

		c.mu.Lock()
		defer c.mu.Unlock()
		if err != nil {
			c.snapshot = nil
			return nil, err
		}
		c.snapshot = snapshot
		c.fetchedAt = time.Now()
		return snapshot, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(map[string]broker.PresignedURL), nil
}

func (c *Cache) fresh() bool {
	return c.snapshot != nil && time.Since(c.fetchedAt) < c.ttl
}

// fetchAll pulls presigned URLs for every object key of the batch, in chunks
// of at most chunkSize keys. A failed chunk fails the refresh as a whole.
func (c *Cache) fetchAll(ctx context.Context) (map[string]broker.PresignedURL, error) {
	c.logger.Debugf("Fetching presigned urls for %d object keys started", len(c.objectKeys))

	merged := make(map[string]broker.PresignedURL, len(c.objectKeys))
	for start := 0; start < len(c.objectKeys); start += c.chunkSize {
		end := start + c.chunkSize
		if end > len(c.objectKeys) {
			end = len(c.objectKeys)
		}
		chunk := c.objectKeys[start:end]

		urls, err := retry.Value(ctx, c.retrier, "fetch presigned urls", func() ([]broker.PresignedURL, error) {
			return c.fetcher.FetchRegular(ctx, chunk, c.digests)
		})
		if err != nil {
			c.logger.Infof("Fetching presigned urls failed: %v", err)
			return nil, err
		}
		for _, u := range urls {
			merged[u.ObjectKey] = u
		}
	}

	c.logger.Debugf("Fetching presigned urls for %d object keys finished", len(c.objectKeys))
	return merged, nil
}
