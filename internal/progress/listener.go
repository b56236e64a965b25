// Package progress defines the observable events emitted while uploading.
package progress

import (
	"sync/atomic"

	"github.com/s3pub/s3pub/internal/constants"
	"github.com/s3pub/s3pub/internal/logging"
)

// Upload is the listener's view of one running file upload.
type Upload interface {
	// Description identifies the upload as "[absPath => objectKey]".
	Description() string

	// FinishedPercent is 100 - round(remainingBytes * 100 / totalBytes).
	FinishedPercent() int
}

// Listener observes the lifecycle of a single file upload. Implementations
// must be safe for concurrent use: one listener instance may serve every
// worker of a batch.
type Listener interface {
	BeforeUploadStarted(u Upload)
	BeforePartUploadStarted(u Upload, partNumber int)
	OnPartUploadSuccess(u Upload, uploadURL string)
	OnPartUploadFailed(u Upload, partNumber int, err error)
	OnFileUploadSuccess(u Upload, uploadURL string)
	OnFileUploadFailed(u Upload, err error)
}

// LogListener logs upload events. Detailed per-file and per-part debug lines
// share a batch-wide budget so huge batches do not flood the log; warnings
// are always emitted.
type LogListener struct {
	logger  *logging.Logger
	counter atomic.Int32
	max     int32
}

// NewLogListener creates a LogListener with the default verbosity budget.
func NewLogListener(logger *logging.Logger) *LogListener {
	if logger == nil {
		logger = logging.Nop()
	}
	return &LogListener{logger: logger, max: constants.VerboseUploadLogsMax}
}

func (l *LogListener) verbose() bool {
	return l.counter.Load() < l.max
}

func (l *LogListener) BeforeUploadStarted(u Upload) {
	if l.verbose() {
		l.logger.Debugf("Started uploading %s", u.Description())
	}
}

func (l *LogListener) BeforePartUploadStarted(u Upload, partNumber int) {
	if l.verbose() {
		l.logger.Debugf("Started uploading part #%d of %s", partNumber, u.Description())
	}
}

func (l *LogListener) OnPartUploadSuccess(u Upload, uploadURL string) {
	if l.verbose() {
		l.logger.Debugf("Artifact upload %s to %s at %d%%", u.Description(), uploadURL, u.FinishedPercent())
	}
}

func (l *LogListener) OnPartUploadFailed(u Upload, partNumber int, err error) {
	l.logger.Warnf("Upload chunk #%d of %s failed with error: %v", partNumber, u.Description(), err)
}

func (l *LogListener) OnFileUploadSuccess(u Upload, uploadURL string) {
	if l.counter.Add(1) < l.max {
		l.logger.Debugf("Artifact upload %s to %s is finished", u.Description(), uploadURL)
	}
}

func (l *LogListener) OnFileUploadFailed(u Upload, err error) {
	l.logger.Warnf("Upload %s failed with error: %v", u.Description(), err)
}

// Multi fans events out to several listeners in order.
type Multi []Listener

func (m Multi) BeforeUploadStarted(u Upload) {
	for _, l := range m {
		l.BeforeUploadStarted(u)
	}
}

func (m Multi) BeforePartUploadStarted(u Upload, partNumber int) {
	for _, l := range m {
		l.BeforePartUploadStarted(u, partNumber)
	}
}

func (m Multi) OnPartUploadSuccess(u Upload, uploadURL string) {
	for _, l := range m {
		l.OnPartUploadSuccess(u, uploadURL)
	}
}

func (m Multi) OnPartUploadFailed(u Upload, partNumber int, err error) {
	for _, l := range m {
		l.OnPartUploadFailed(u, partNumber, err)
	}
}

func (m Multi) OnFileUploadSuccess(u Upload, uploadURL string) {
	for _, l := range m {
		l.OnFileUploadSuccess(u, uploadURL)
	}
}

func (m Multi) OnFileUploadFailed(u Upload, err error) {
	for _, l := range m {
		l.OnFileUploadFailed(u, err)
	}
}
