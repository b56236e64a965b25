// Package config provides configuration management for the publisher.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/ini.v1"

	"github.com/s3pub/s3pub/internal/constants"
)

// Config holds every recognized publisher option.
//
// Config file location:
//   - Windows: %USERPROFILE%\.config\s3pub\config
//   - Unix: ~/.config/s3pub/config
//
// INI format:
//
//	[broker]
//	url = https://build.example.com/plugins/s3/urls
//	token = <access-token>
//
//	[upload]
//	path_prefix = build-42/
//	threads = 4
//	multipart_enabled = true
//	multipart_threshold_bytes = 16777216
//	min_part_size_bytes = 5242880
//	consistency_check = true
//
//	[retry]
//	max_attempts = 5
//	base_delay_ms = 500
//
//	[urls]
//	max_chunk_size = 100
//	ttl_seconds = 60
//	connection_timeout_ms = 30000
type Config struct {
	// Broker connection settings
	BrokerURL string `ini:"url"`
	Token     string `ini:"token"`

	// PathPrefix is prepended to every logical artifact path to form the object key.
	PathPrefix string `ini:"path_prefix"`

	// NThreads is the upload worker pool size.
	NThreads int `ini:"threads"`

	// MultipartEnabled gates multipart uploads entirely.
	MultipartEnabled bool `ini:"multipart_enabled"`

	// MultipartThreshold is the file size at or above which multipart upload is used.
	// Floor: MinPartSize.
	MultipartThreshold int64 `ini:"multipart_threshold_bytes"`

	// MinPartSize is the multipart part size. Floor: 5 MB (S3 limit).
	MinPartSize int64 `ini:"min_part_size_bytes"`

	// ConsistencyCheckEnabled compares the locally computed digest against the
	// ETag returned by S3 after every PUT.
	ConsistencyCheckEnabled bool `ini:"consistency_check"`

	// MaxAttempts is the total retry budget (first attempt included).
	MaxAttempts int `ini:"max_attempts"`

	// RetryBaseDelay is the base delay for exponential backoff.
	RetryBaseDelay time.Duration `ini:"-"`

	// PresignedURLMaxChunkSize caps object keys per broker batch request.
	PresignedURLMaxChunkSize int `ini:"max_chunk_size"`

	// URLTTL bounds the age of the cached presigned URL snapshot.
	URLTTL time.Duration `ini:"-"`

	// ConnectionTimeout is the per-connection dial timeout.
	ConnectionTimeout time.Duration `ini:"-"`
}

// Default returns a Config with every option at its documented default.
func Default() *Config {
	return &Config{
		NThreads:                 constants.DefaultThreads,
		MultipartEnabled:         true,
		MultipartThreshold:       constants.DefaultMultipartThreshold,
		MinPartSize:              constants.MinPartSize,
		ConsistencyCheckEnabled:  true,
		MaxAttempts:              constants.DefaultMaxAttempts,
		RetryBaseDelay:           constants.DefaultRetryBaseDelay,
		PresignedURLMaxChunkSize: constants.DefaultURLChunkSize,
		URLTTL:                   constants.DefaultURLTTL,
		ConnectionTimeout:        constants.DefaultConnectionTimeout,
	}
}

// DefaultPath returns the platform config file location.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", constants.AppName, "config"), nil
}

// Load reads the INI file at path on top of the defaults.
// A missing file is not an error; defaults are returned.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return nil, err
		}
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}

	f, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := f.Section("broker").MapTo(cfg); err != nil {
		return nil, fmt.Errorf("invalid [broker] section: %w", err)
	}
	if err := f.Section("upload").MapTo(cfg); err != nil {
		return nil, fmt.Errorf("invalid [upload] section: %w", err)
	}
	if err := f.Section("retry").MapTo(cfg); err != nil {
		return nil, fmt.Errorf("invalid [retry] section: %w", err)
	}
	if err := f.Section("urls").MapTo(cfg); err != nil {
		return nil, fmt.Errorf("invalid [urls] section: %w", err)
	}

	if ms := f.Section("retry").Key("base_delay_ms").MustInt64(0); ms > 0 {
		cfg.RetryBaseDelay = time.Duration(ms) * time.Millisecond
	}
	if s := f.Section("urls").Key("ttl_seconds").MustInt64(0); s > 0 {
		cfg.URLTTL = time.Duration(s) * time.Second
	}
	if ms := f.Section("urls").Key("connection_timeout_ms").MustInt64(0); ms > 0 {
		cfg.ConnectionTimeout = time.Duration(ms) * time.Millisecond
	}

	return cfg, nil
}

// Validate enforces required options and documented floors.
func (c *Config) Validate() error {
	if c.BrokerURL == "" {
		return errors.New("broker url is required")
	}
	if c.NThreads < 1 {
		c.NThreads = 1
	}
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 1
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = constants.DefaultRetryBaseDelay
	}
	if c.PresignedURLMaxChunkSize < 1 {
		c.PresignedURLMaxChunkSize = constants.DefaultURLChunkSize
	}
	if c.MinPartSize < constants.MinPartSize {
		c.MinPartSize = constants.MinPartSize
	}
	if c.MultipartThreshold < c.MinPartSize {
		c.MultipartThreshold = c.MinPartSize
	}
	if c.URLTTL <= 0 {
		c.URLTTL = constants.DefaultURLTTL
	}
	if c.ConnectionTimeout <= 0 {
		c.ConnectionTimeout = constants.DefaultConnectionTimeout
	}
	return nil
}
