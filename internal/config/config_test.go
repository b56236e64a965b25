package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/s3pub/s3pub/internal/constants"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

// TestLoadMissingFileReturnsDefaults verifies a missing config file is not an
// error.
func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := Default()
	if cfg.NThreads != want.NThreads || cfg.MaxAttempts != want.MaxAttempts {
		t.Errorf("Load() = %+v, want defaults %+v", cfg, want)
	}
}

// TestLoadParsesSections verifies every section maps onto the struct,
// including the duration keys.
func TestLoadParsesSections(t *testing.T) {
	path := writeConfig(t, `
[broker]
url = https://build.example.com/plugins/s3/urls
token = secret

[upload]
path_prefix = build-42/
threads = 8
multipart_enabled = false
multipart_threshold_bytes = 33554432
min_part_size_bytes = 8388608
consistency_check = false

[retry]
max_attempts = 7
base_delay_ms = 250

[urls]
max_chunk_size = 50
ttl_seconds = 120
connection_timeout_ms = 5000
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.BrokerURL != "https://build.example.com/plugins/s3/urls" {
		t.Errorf("BrokerURL = %q", cfg.BrokerURL)
	}
	if cfg.Token != "secret" {
		t.Errorf("Token = %q", cfg.Token)
	}
	if cfg.PathPrefix != "build-42/" {
		t.Errorf("PathPrefix = %q", cfg.PathPrefix)
	}
	if cfg.NThreads != 8 {
		t.Errorf("NThreads = %d, want 8", cfg.NThreads)
	}
	if cfg.MultipartEnabled {
		t.Error("MultipartEnabled = true, want false")
	}
	if cfg.MultipartThreshold != 33554432 {
		t.Errorf("MultipartThreshold = %d", cfg.MultipartThreshold)
	}
	if cfg.MinPartSize != 8388608 {
		t.Errorf("MinPartSize = %d", cfg.MinPartSize)
	}
	if cfg.ConsistencyCheckEnabled {
		t.Error("ConsistencyCheckEnabled = true, want false")
	}
	if cfg.MaxAttempts != 7 {
		t.Errorf("MaxAttempts = %d, want 7", cfg.MaxAttempts)
	}
	if cfg.RetryBaseDelay != 250*time.Millisecond {
		t.Errorf("RetryBaseDelay = %v, want 250ms", cfg.RetryBaseDelay)
	}
	if cfg.PresignedURLMaxChunkSize != 50 {
		t.Errorf("PresignedURLMaxChunkSize = %d, want 50", cfg.PresignedURLMaxChunkSize)
	}
	if cfg.URLTTL != 2*time.Minute {
		t.Errorf("URLTTL = %v, want 2m", cfg.URLTTL)
	}
	if cfg.ConnectionTimeout != 5*time.Second {
		t.Errorf("ConnectionTimeout = %v, want 5s", cfg.ConnectionTimeout)
	}
}

// TestValidateRequiresBrokerURL verifies the one mandatory option.
func TestValidateRequiresBrokerURL(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() without broker url should fail")
	}

	cfg.BrokerURL = "https://broker.example.com"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

// TestValidateEnforcesFloors verifies out-of-range values are clamped to the
// documented minimums.
func TestValidateEnforcesFloors(t *testing.T) {
	cfg := &Config{
		BrokerURL:          "https://broker.example.com",
		NThreads:           0,
		MaxAttempts:        0,
		MinPartSize:        1024,
		MultipartThreshold: 1,
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	if cfg.NThreads != 1 {
		t.Errorf("NThreads = %d, want 1", cfg.NThreads)
	}
	if cfg.MaxAttempts != 1 {
		t.Errorf("MaxAttempts = %d, want 1", cfg.MaxAttempts)
	}
	if cfg.MinPartSize != constants.MinPartSize {
		t.Errorf("MinPartSize = %d, want S3 floor %d", cfg.MinPartSize, constants.MinPartSize)
	}
	if cfg.MultipartThreshold != cfg.MinPartSize {
		t.Errorf("MultipartThreshold = %d, want floor %d", cfg.MultipartThreshold, cfg.MinPartSize)
	}
	if cfg.URLTTL != constants.DefaultURLTTL {
		t.Errorf("URLTTL = %v, want default %v", cfg.URLTTL, constants.DefaultURLTTL)
	}
}

// TestLoadRejectsMalformedFile verifies a broken INI file surfaces an error.
func TestLoadRejectsMalformedFile(t *testing.T) {
	path := writeConfig(t, "[broker\nurl =")
	if _, err := Load(path); err == nil {
		t.Error("Load() with malformed INI should fail")
	}
}
