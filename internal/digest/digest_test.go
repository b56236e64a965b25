package digest

import (
	"io"
	"os"
	"path/filepath"
	"testing"
)

func writeTempFile(t *testing.T, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

// TestFileDigest verifies the whole-file MD5 against a known value.
func TestFileDigest(t *testing.T) {
	path := writeTempFile(t, []byte("hello world\n"))

	got, err := FileDigest(path)
	if err != nil {
		t.Fatalf("FileDigest() error = %v", err)
	}
	want := "6f5902ac237024bdd0c176cb93063dc4"
	if got != want {
		t.Errorf("FileDigest() = %q, want %q", got, want)
	}
}

// TestSliceDigest verifies a ranged digest matches the digest of the
// equivalent standalone file.
func TestSliceDigest(t *testing.T) {
	path := writeTempFile(t, []byte("aaaabbbbcccc"))
	slicePath := writeTempFile(t, []byte("bbbb"))

	got, err := SliceDigest(path, 4, 4)
	if err != nil {
		t.Fatalf("SliceDigest() error = %v", err)
	}
	want, err := FileDigest(slicePath)
	if err != nil {
		t.Fatalf("FileDigest() error = %v", err)
	}
	if got != want {
		t.Errorf("SliceDigest(4, 4) = %q, want %q", got, want)
	}
}

// TestSliceDigestShortRead verifies a range extending past the end of the
// file fails instead of silently digesting fewer bytes.
func TestSliceDigestShortRead(t *testing.T) {
	path := writeTempFile(t, []byte("short"))

	if _, err := SliceDigest(path, 0, 100); err == nil {
		t.Error("SliceDigest() with out-of-range length should fail")
	}
}

// TestReaderDigestsWhileStreaming verifies the Reader produces the same
// digest as the offline computation and tracks completeness.
func TestReaderDigestsWhileStreaming(t *testing.T) {
	content := []byte("streaming digest test payload")
	path := writeTempFile(t, content)

	r, err := OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile() error = %v", err)
	}
	defer r.Close()

	if r.Len() != int64(len(content)) {
		t.Errorf("Len() = %d, want %d", r.Len(), len(content))
	}
	if r.Complete() {
		t.Error("Complete() = true before any read")
	}

	if _, err := io.Copy(io.Discard, r); err != nil {
		t.Fatalf("Copy() error = %v", err)
	}
	if !r.Complete() {
		t.Error("Complete() = false after full read")
	}

	want, err := FileDigest(path)
	if err != nil {
		t.Fatalf("FileDigest() error = %v", err)
	}
	if got := r.HexDigest(); got != want {
		t.Errorf("HexDigest() = %q, want %q", got, want)
	}
}

// TestOpenSliceLimitsRange verifies the slice Reader stops at the declared
// length even though the underlying file continues.
func TestOpenSliceLimitsRange(t *testing.T) {
	path := writeTempFile(t, []byte("0123456789"))

	r, err := OpenSlice(path, 2, 5)
	if err != nil {
		t.Fatalf("OpenSlice() error = %v", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if string(data) != "23456" {
		t.Errorf("ReadAll() = %q, want %q", data, "23456")
	}
	if !r.Complete() {
		t.Error("Complete() = false after reading the whole slice")
	}
}

// TestMultipart verifies the multipart ETag formula: MD5 over the
// concatenated raw part digests with a part-count suffix.
func TestMultipart(t *testing.T) {
	// md5("a") and md5("b")
	etags := []string{
		"0cc175b9c0f1b6a831c399e269772661",
		`"92eb5ffee6ae2fec3ad71c777531578f"`,
	}

	got, err := Multipart(etags)
	if err != nil {
		t.Fatalf("Multipart() error = %v", err)
	}
	// md5 of the 32 raw bytes of the two digests above.
	want := "96e024ba2074fe77e8e965ba43a704be-2"
	if got != want {
		t.Errorf("Multipart() = %q, want %q", got, want)
	}
}

// TestMultipartRejectsNonHexETag verifies malformed ETags surface an error.
func TestMultipartRejectsNonHexETag(t *testing.T) {
	if _, err := Multipart([]string{"not-hex"}); err == nil {
		t.Error("Multipart() with non-hex etag should fail")
	}
}
