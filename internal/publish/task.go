package publish

import (
	"context"
	"fmt"
	"math"
	"os"
	"strings"
	"sync/atomic"

	"github.com/s3pub/s3pub/internal/broker"
	"github.com/s3pub/s3pub/internal/digest"
	"github.com/s3pub/s3pub/internal/logging"
	"github.com/s3pub/s3pub/internal/progress"
	"github.com/s3pub/s3pub/internal/retry"
	"github.com/s3pub/s3pub/internal/s3http"
	"github.com/s3pub/s3pub/internal/split"
	"github.com/s3pub/s3pub/internal/urlcache"
)

// task drives one file to a durable S3 object. It decides between the
// regular and multipart path, acquires URLs through the cache, streams bytes
// through the S3 client under the retrier, and keeps the ordered ETag list
// for multipart finalization.
type task struct {
	artifactPath string
	objectKey    string
	filePath     string
	multipart    bool

	checkConsistency bool
	cache            *urlcache.Cache
	s3               *s3http.Client
	retrier          *retry.Retrier
	splitter         *split.Splitter
	listener         progress.Listener
	interrupter      Interrupter
	logger           *logging.Logger

	fileSize       int64
	remainingBytes atomic.Int64
	etags          []string
}

// Description identifies the upload in logs and error messages.
func (t *task) Description() string {
	return "[" + t.filePath + " => " + t.objectKey + "]"
}

// FinishedPercent is derived from the remaining byte counter.
func (t *task) FinishedPercent() int {
	if t.fileSize == 0 {
		return 100
	}
	return 100 - int(math.Round(float64(t.remainingBytes.Load())*100/float64(t.fileSize)))
}

// ObjectKey returns the destination key.
func (t *task) ObjectKey() string {
	return t.objectKey
}

// IsMultipart reports whether the multipart path was chosen.
func (t *task) IsMultipart() bool {
	return t.multipart
}

// ETags returns the collected part ETags in ascending part-number order.
func (t *task) ETags() []string {
	return t.etags
}

// Run uploads the file and returns its FileUploadInfo.
func (t *task) Run(ctx context.Context) (*FileUploadInfo, error) {
	fi, err := os.Stat(t.filePath)
	if err != nil {
		return nil, err
	}
	t.fileSize = fi.Size()
	t.remainingBytes.Store(t.fileSize)

	if err := t.checkInterrupted(ctx); err != nil {
		return nil, err
	}
	t.listener.BeforeUploadStarted(t)

	var d string
	if t.multipart {
		d, err = t.multipartUpload(ctx)
	} else {
		d, err = t.regularUpload(ctx)
	}
	if err != nil {
		t.listener.OnFileUploadFailed(t, err)
		return nil, err
	}

	return &FileUploadInfo{
		ArtifactPath: t.artifactPath,
		AbsolutePath: t.filePath,
		Size:         t.fileSize,
		Digest:       d,
	}, nil
}

func (t *task) regularUpload(ctx context.Context) (string, error) {
	t.logger.Debugf("Uploading artifact %s using regular upload", t.artifactPath)

	url, err := t.cache.RegularURL(ctx, t.objectKey)
	if err != nil {
		return "", err
	}

	etag, err := retry.Value(ctx, t.retrier, "upload "+t.Description(), func() (string, error) {
		if err := t.checkInterrupted(ctx); err != nil {
			return "", err
		}
		return t.s3.PutObject(ctx, url, t.filePath)
	})
	if err != nil {
		return "", err
	}

	t.remainingBytes.Add(-t.fileSize)
	t.listener.OnFileUploadSuccess(t, stripQuery(url))
	return etag, nil
}

func (t *task) multipartUpload(ctx context.Context) (string, error) {
	t.logger.Debugf("Multipart upload %s started", t.Description())

	nParts := t.splitter.PartCount(t.fileSize)
	parts, err := t.splitter.Split(t.filePath, nParts, t.checkConsistency)
	if err != nil {
		return "", err
	}
	digests := make([]string, len(parts))
	for i, p := range parts {
		digests[i] = p.Digest
	}

	mp, err := t.cache.MultipartURLs(ctx, t.objectKey, digests)
	if err != nil {
		return "", err
	}
	if len(mp.Parts) != len(parts) {
		return "", &broker.ShapeError{
			Message: fmt.Sprintf("object key %s: requested %d part urls, got %d", t.objectKey, len(parts), len(mp.Parts)),
		}
	}

	t.etags = make([]string, len(parts))
	for _, partURL := range mp.Parts {
		if err := t.checkInterrupted(ctx); err != nil {
			t.listener.OnPartUploadFailed(t, partURL.Number, err)
			return "", err
		}
		t.listener.BeforePartUploadStarted(t, partURL.Number)

		idx := partURL.Number - 1
		if idx < 0 || idx >= len(parts) {
			return "", &broker.ShapeError{
				Message: fmt.Sprintf("object key %s: part number %d out of range", t.objectKey, partURL.Number),
			}
		}
		filePart := parts[idx]

		url := partURL.URL
		etag, err := retry.Value(ctx, t.retrier, fmt.Sprintf("upload part #%d of %s", partURL.Number, t.Description()), func() (string, error) {
			if err := t.checkInterrupted(ctx); err != nil {
				return "", err
			}
			return t.s3.PutPart(ctx, url, t.filePath, filePart.Offset, filePart.Length)
		})
		if err != nil {
			t.listener.OnPartUploadFailed(t, partURL.Number, err)
			return "", err
		}

		t.etags[idx] = etag
		t.remainingBytes.Add(-filePart.Length)
		t.listener.OnPartUploadSuccess(t, stripQuery(url))
	}

	t.listener.OnFileUploadSuccess(t, stripQuery(mp.Parts[0].URL))
	return digest.Multipart(t.etags)
}

// checkInterrupted is the task's cancellation point: a fired interrupter or a
// cancelled context ends the upload before the next request goes out.
func (t *task) checkInterrupted(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return &InterruptedError{Reason: err.Error()}
	}
	return t.interrupter.Check()
}

// stripQuery removes the query string so presigned credentials never reach logs.
func stripQuery(url string) string {
	if i := strings.IndexByte(url, '?'); i >= 0 {
		return url[:i]
	}
	return url
}
