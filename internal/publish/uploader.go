// Package publish coordinates the upload of a batch of local files to S3
// through short-lived presigned URLs minted by an external URL broker.
package publish

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/s3pub/s3pub/internal/broker"
	"github.com/s3pub/s3pub/internal/config"
	"github.com/s3pub/s3pub/internal/digest"
	"github.com/s3pub/s3pub/internal/logging"
	"github.com/s3pub/s3pub/internal/progress"
	"github.com/s3pub/s3pub/internal/retry"
	"github.com/s3pub/s3pub/internal/s3http"
	"github.com/s3pub/s3pub/internal/split"
	"github.com/s3pub/s3pub/internal/urlcache"
)

// interrupterPollInterval bounds how stale an unnoticed interruption can get:
// a watcher goroutine polls the interrupter at this cadence and cancels the
// batch context when it fires.
const interrupterPollInterval = 100 * time.Millisecond

// finalizeTimeout bounds each complete/abort call to the broker. Finalization
// runs detached from the batch context so aborts still go out after an
// interruption.
const finalizeTimeout = 30 * time.Second

// BrokerClient is the slice of the broker the coordinator depends on: URL
// minting for the cache plus multipart finalization.
type BrokerClient interface {
	urlcache.Fetcher
	CompleteMultipart(ctx context.Context, objectKey, uploadID string, etags []string) error
	AbortMultipart(ctx context.Context, objectKey, uploadID string) error
}

// Uploader publishes batches of files. One Uploader serves one batch at a
// time; Publish may be called again after the previous batch finished.
type Uploader struct {
	cfg         *config.Config
	broker      BrokerClient
	s3          *s3http.Client
	listener    progress.Listener
	interrupter Interrupter
	logger      *logging.Logger

	// uploads maps objectKey to the broker-allocated multipart uploadId
	// until the upload is finalized.
	uploads sync.Map
}

// UploaderOptions carries the optional collaborators of an Uploader.
type UploaderOptions struct {
	Listener    progress.Listener
	Interrupter Interrupter
	Logger      *logging.Logger
}

// NewUploader creates the batch coordinator.
func NewUploader(cfg *config.Config, brokerClient BrokerClient, s3Client *s3http.Client, opts UploaderOptions) *Uploader {
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if opts.Listener == nil {
		opts.Listener = progress.NewLogListener(opts.Logger)
	}
	return &Uploader{
		cfg:         cfg,
		broker:      brokerClient,
		s3:          s3Client,
		listener:    opts.Listener,
		interrupter: opts.Interrupter,
		logger:      opts.Logger,
	}
}

// plannedUpload pairs a source file with its destination before workers start.
type plannedUpload struct {
	objectKey    string
	artifactPath string
	filePath     string
	fileSize     int64
	digest       string
	multipart    bool
}

// Publish uploads every file of the batch and returns one FileUploadInfo per
// published artifact. files maps a local file path to its logical artifact
// path; an empty or directory-like logical path takes the file's base name.
//
// A failed task does not cancel its siblings: every file gets its attempt and
// the first non-interrupted failure surfaces as *FileUploadFailedError once
// the batch has drained. Only an interruption (or the parent context) stops
// the remaining work; an interrupted batch returns an empty result list and
// no error.
func (u *Uploader) Publish(ctx context.Context, files map[string]string) ([]FileUploadInfo, error) {
	plan, err := u.plan(files)
	if err != nil {
		return nil, err
	}
	if len(plan) == 0 {
		return nil, nil
	}

	cache := u.newCache(plan)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stopWatcher := u.watchInterrupter(ctx, cancel)
	defer stopWatcher()

	results := make([]*FileUploadInfo, len(plan))
	taskErrs := make([]error, len(plan))
	var g errgroup.Group
	g.SetLimit(u.cfg.NThreads)
	for i, p := range plan {
		g.Go(func() error {
			info, err := u.runOne(ctx, p, cache)
			if err != nil {
				taskErrs[i] = err
				return nil
			}
			results[i] = info
			return nil
		})
	}
	g.Wait()

	u.abortLeftovers()

	var firstErr error
	interrupted := false
	for _, e := range taskErrs {
		if e == nil {
			continue
		}
		if IsInterrupted(e) {
			interrupted = true
			continue
		}
		if firstErr == nil {
			firstErr = e
		}
	}
	if interrupted {
		u.logger.Infof("Publishing interrupted")
		return []FileUploadInfo{}, nil
	}
	if firstErr != nil {
		return nil, u.wrapFailure(firstErr)
	}

	infos := make([]FileUploadInfo, 0, len(results))
	for _, info := range results {
		if info != nil {
			infos = append(infos, *info)
		}
	}
	return infos, nil
}

// plan normalizes logical paths, resolves object-key collisions last-write-wins,
// computes digests for the consistency check, and decides regular vs multipart
// per file. The returned slice is ordered by object key for deterministic
// broker batches.
func (u *Uploader) plan(files map[string]string) ([]plannedUpload, error) {
	byKey := make(map[string]plannedUpload, len(files))
	for filePath, logicalPath := range files {
		fi, err := os.Stat(filePath)
		if err != nil {
			return nil, &FileUploadFailedError{
				Message:     fmt.Sprintf("failed to upload artifact %s: %v", filePath, err),
				Recoverable: false,
				Cause:       err,
			}
		}

		artifactPath := NormalizeArtifactPath(logicalPath, filePath)
		objectKey := u.objectKey(artifactPath)
		if prev, ok := byKey[objectKey]; ok {
			u.logger.Warnf("Found clashing artifact path %s: %s overwrites %s", artifactPath, filePath, prev.filePath)
		}

		p := plannedUpload{
			objectKey:    objectKey,
			artifactPath: artifactPath,
			filePath:     filePath,
			fileSize:     fi.Size(),
			multipart:    u.useMultipart(fi.Size()),
		}
		if u.cfg.ConsistencyCheckEnabled && !p.multipart {
			d, err := digest.FileDigest(filePath)
			if err != nil {
				return nil, &FileUploadFailedError{
					Message:     fmt.Sprintf("failed to upload artifact %s: %v", filePath, err),
					Recoverable: false,
					Cause:       err,
				}
			}
			p.digest = d
		}
		byKey[objectKey] = p
	}

	plan := make([]plannedUpload, 0, len(byKey))
	for _, p := range byKey {
		plan = append(plan, p)
	}
	sort.Slice(plan, func(i, j int) bool { return plan[i].objectKey < plan[j].objectKey })
	return plan, nil
}

func (u *Uploader) objectKey(artifactPath string) string {
	if u.cfg.PathPrefix == "" {
		return artifactPath
	}
	prefix := u.cfg.PathPrefix
	for len(prefix) > 0 && prefix[len(prefix)-1] == '/' {
		prefix = prefix[:len(prefix)-1]
	}
	if prefix == "" {
		return artifactPath
	}
	return prefix + "/" + artifactPath
}

func (u *Uploader) useMultipart(fileSize int64) bool {
	return u.cfg.MultipartEnabled && fileSize >= u.cfg.MultipartThreshold
}

// newCache builds the presigned URL cache over the batch's regular-upload
// keys. Multipart keys are included so a mixed batch still prefetches in one
// round trip; their descriptors are simply never read from the snapshot.
func (u *Uploader) newCache(plan []plannedUpload) *urlcache.Cache {
	keys := make([]string, 0, len(plan))
	digests := make(map[string]string, len(plan))
	for _, p := range plan {
		if p.multipart {
			continue
		}
		keys = append(keys, p.objectKey)
		if p.digest != "" {
			digests[p.objectKey] = p.digest
		}
	}

	return urlcache.New(u.broker, keys, digests, urlcache.Options{
		ChunkSize: u.cfg.PresignedURLMaxChunkSize,
		TTL:       u.cfg.URLTTL,
		Retrier:   u.newRetrier(),
		Logger:    u.logger,
		OnUploadID: func(objectKey, uploadID string) {
			u.uploads.Store(objectKey, uploadID)
		},
	})
}

func (u *Uploader) newRetrier() *retry.Retrier {
	r := retry.New(u.cfg.MaxAttempts, u.cfg.RetryBaseDelay, u.logger)
	r.AbortOn = []error{broker.ErrClientShutdown}
	return r
}

// runOne uploads a single planned file and finalizes its multipart state.
func (u *Uploader) runOne(ctx context.Context, p plannedUpload, cache *urlcache.Cache) (*FileUploadInfo, error) {
	t := &task{
		artifactPath:     p.artifactPath,
		objectKey:        p.objectKey,
		filePath:         p.filePath,
		multipart:        p.multipart,
		checkConsistency: u.cfg.ConsistencyCheckEnabled,
		cache:            cache,
		s3:               u.s3,
		retrier:          u.newRetrier(),
		splitter:         split.NewSplitter(u.cfg.MinPartSize),
		listener:         u.listener,
		interrupter:      u.interrupter,
		logger:           u.logger,
	}

	info, runErr := t.Run(ctx)

	if p.multipart {
		if err := u.finalize(t, runErr == nil); err != nil {
			if runErr == nil {
				runErr = err
			}
		}
	}
	if runErr != nil {
		return nil, runErr
	}
	return info, nil
}

// finalize completes or aborts the multipart upload registered for the task's
// object key. It runs detached from the batch context so the broker learns
// the outcome even after an interruption. A failed finalization poisons the
// object on S3, so it is never retried away silently: completion failure is
// fatal for the artifact.
func (u *Uploader) finalize(t *task, successful bool) error {
	v, ok := u.uploads.LoadAndDelete(t.objectKey)
	if !ok {
		return nil
	}
	uploadID := v.(string)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(context.Background()), finalizeTimeout)
	defer cancel()

	var err error
	if successful {
		err = u.newRetrier().Do(ctx, "complete multipart upload "+t.Description(), func() error {
			return u.broker.CompleteMultipart(ctx, t.objectKey, uploadID, t.ETags())
		})
	} else {
		err = u.newRetrier().Do(ctx, "abort multipart upload "+t.Description(), func() error {
			return u.broker.AbortMultipart(ctx, t.objectKey, uploadID)
		})
	}
	if err != nil {
		u.logger.Warnf("Finalizing multipart upload %s failed: %v", t.Description(), err)
		return &FileUploadFailedError{
			Message:     fmt.Sprintf("failed to finalize multipart upload %s: %v", t.Description(), err),
			Recoverable: false,
			Cause:       err,
		}
	}
	return nil
}

// abortLeftovers aborts every multipart upload still registered after the
// pool drained. Entries survive here only when their task never reached its
// own finalization, which happens on interruption.
func (u *Uploader) abortLeftovers() {
	u.uploads.Range(func(key, value any) bool {
		objectKey := key.(string)
		uploadID := value.(string)
		u.uploads.Delete(key)

		ctx, cancel := context.WithTimeout(context.WithoutCancel(context.Background()), finalizeTimeout)
		defer cancel()
		if err := u.broker.AbortMultipart(ctx, objectKey, uploadID); err != nil {
			u.logger.Warnf("Aborting multipart upload %s for %s failed: %v", uploadID, objectKey, err)
		}
		return true
	})
}

// watchInterrupter cancels the batch context once the interrupter fires, so
// workers blocked inside HTTP calls or backoff sleeps wake up promptly.
func (u *Uploader) watchInterrupter(ctx context.Context, cancel context.CancelFunc) func() {
	if u.interrupter == nil {
		return func() {}
	}
	done := make(chan struct{})
	var once sync.Once
	go func() {
		ticker := time.NewTicker(interrupterPollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				if reason := u.interrupter(); reason != "" {
					u.logger.Infof("Interrupt requested: %s", reason)
					cancel()
					return
				}
			}
		}
	}()
	return func() { once.Do(func() { close(done) }) }
}

// wrapFailure turns the first worker error into the batch's terminal error.
func (u *Uploader) wrapFailure(err error) error {
	var failed *FileUploadFailedError
	if errors.As(err, &failed) {
		return failed
	}
	var rec interface{ Recoverable() bool }
	recoverable := errors.As(err, &rec) && rec.Recoverable()
	return uploadFailed("batch", recoverable, err)
}
