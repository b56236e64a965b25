// Package constants defines application identity and tuning defaults.
package constants

import "time"

// Application identity
const (
	// AppName - binary and user agent product name
	AppName = "s3pub"

	// Version - release version, overridden at build time via -ldflags
	Version = "1.2.0"
)

// Storage thresholds
const (
	// MinPartSize - AWS S3 minimum multipart part size (5 MB, except last part)
	MinPartSize = 5 * 1024 * 1024

	// MaxPartCount - AWS S3 maximum number of parts per multipart upload
	MaxPartCount = 10000

	// DefaultMultipartThreshold - files at or above this size use multipart upload (16 MB)
	DefaultMultipartThreshold = 16 * 1024 * 1024
)

// Retry configuration
const (
	// DefaultMaxAttempts - total attempts (first try included) for retriable operations
	DefaultMaxAttempts = 5

	// DefaultRetryBaseDelay - base delay for exponential backoff
	DefaultRetryBaseDelay = 500 * time.Millisecond
)

// Broker defaults
const (
	// DefaultURLChunkSize - maximum object keys per presigned URL batch request
	DefaultURLChunkSize = 100

	// DefaultURLTTL - lifetime of a cached presigned URL snapshot
	DefaultURLTTL = 60 * time.Second

	// ArtifactKeysHeader - request header carrying object keys for broker-side logging
	ArtifactKeysHeader = "X-S3-Artifact-Keys"

	// ArtifactKeysHeaderMax - at most this many ArtifactKeysHeader values per request
	ArtifactKeysHeaderMax = 10

	// CorrelationIDHeader - request header tying all broker calls of one batch together
	CorrelationIDHeader = "X-Correlation-Id"

	// NodeIDCookie - server node affinity cookie set by the broker behind a proxy
	NodeIDCookie = "node-id"
)

// Worker pool
const (
	// DefaultThreads - default upload worker count
	DefaultThreads = 4

	// VerboseUploadLogsMax - per-file debug logging is suppressed past this many files
	VerboseUploadLogsMax = 10
)

// HTTP client timeouts
const (
	// DefaultConnectionTimeout - timeout for establishing a connection
	DefaultConnectionTimeout = 30 * time.Second

	// HTTPIdleConnTimeout - how long to keep idle connections open
	HTTPIdleConnTimeout = 90 * time.Second

	// HTTPTLSHandshakeTimeout - timeout for TLS handshake
	HTTPTLSHandshakeTimeout = 30 * time.Second

	// HTTPExpectContinueTimeout - timeout for 100-continue response
	HTTPExpectContinueTimeout = 1 * time.Second
)

// UserAgent returns the stable User-Agent value sent on every outgoing request.
func UserAgent() string {
	return AppName + "/" + Version
}
