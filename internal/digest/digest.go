// Package digest streams file bytes while computing the MD5 content digest
// that S3 uses for ETag comparison on non-multipart and per-part uploads.
package digest

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strconv"
	"strings"
)

// Reader streams a file, or a byte slice of it, updating an MD5 digest as it
// goes. A Reader is single-use: retries must open a fresh Reader so the file
// position and digest both restart from scratch.
type Reader struct {
	file   *os.File
	src    io.Reader
	hash   hash.Hash
	read   int64
	length int64
}

// OpenFile opens a Reader over the whole file.
func OpenFile(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &Reader{
		file:   f,
		src:    f,
		hash:   md5.New(),
		length: info.Size(),
	}, nil
}

// OpenSlice opens a Reader over [offset, offset+length) of the file.
func OpenSlice(path string, offset, length int64) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		f.Close()
		return nil, err
	}
	return &Reader{
		file:   f,
		src:    io.LimitReader(f, length),
		hash:   md5.New(),
		length: length,
	}, nil
}

// Read implements io.Reader, feeding every byte through the digest.
func (r *Reader) Read(p []byte) (int, error) {
	n, err := r.src.Read(p)
	if n > 0 {
		r.hash.Write(p[:n])
		r.read += int64(n)
	}
	return n, err
}

// Len returns the total byte count the Reader will produce.
func (r *Reader) Len() int64 {
	return r.length
}

// HexDigest returns the lowercase hex MD5 of the bytes read so far.
// The value is only meaningful after the full stream was consumed.
func (r *Reader) HexDigest() string {
	return hex.EncodeToString(r.hash.Sum(nil))
}

// Complete reports whether the whole declared range was read.
func (r *Reader) Complete() bool {
	return r.read == r.length
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}

// FileDigest computes the lowercase hex MD5 of an entire file.
func FileDigest(path string) (string, error) {
	return SliceDigest(path, 0, -1)
}

// SliceDigest computes the lowercase hex MD5 of [offset, offset+length) of the
// file. A negative length means "to the end of the file".
func SliceDigest(path string, offset, length int64) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return "", err
	}
	var src io.Reader = f
	if length >= 0 {
		src = io.LimitReader(f, length)
	}

	h := md5.New()
	n, err := io.Copy(h, src)
	if err != nil {
		return "", err
	}
	if length >= 0 && n != length {
		return "", fmt.Errorf("short read computing digest: read %d of %d bytes", n, length)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Multipart computes the S3 multipart ETag for the given ordered part ETags:
// MD5 over the concatenated raw part digests, suffixed with "-<partCount>".
func Multipart(etags []string) (string, error) {
	h := md5.New()
	for _, etag := range etags {
		raw, err := hex.DecodeString(strings.Trim(etag, `"`))
		if err != nil {
			return "", fmt.Errorf("etag %q is not a hex digest: %w", etag, err)
		}
		h.Write(raw)
	}
	return hex.EncodeToString(h.Sum(nil)) + "-" + strconv.Itoa(len(etags)), nil
}
