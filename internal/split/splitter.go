// Package split slices files into ordered multipart upload parts.
package split

import (
	"fmt"
	"os"

	"github.com/s3pub/s3pub/internal/constants"
	"github.com/s3pub/s3pub/internal/digest"
)

// Part describes one slice of a file.
type Part struct {
	// Index is 0-based; the S3 part number is Index+1.
	Index  int
	Offset int64
	Length int64
	// Digest is the lowercase hex MD5 of the slice, empty unless requested.
	Digest string
}

// Splitter slices files at a fixed chunk stride. Every part except the last
// has exactly ChunkSize bytes; the last carries the remainder.
type Splitter struct {
	ChunkSize int64
}

// NewSplitter creates a Splitter with the given chunk stride.
func NewSplitter(chunkSize int64) *Splitter {
	return &Splitter{ChunkSize: chunkSize}
}

// PartCount returns how many parts a file of the given size splits into.
func (s *Splitter) PartCount(fileSize int64) int {
	if fileSize <= 0 {
		return 1
	}
	return int((fileSize + s.ChunkSize - 1) / s.ChunkSize)
}

// Split produces the ordered part list for the file. When wantDigests is set,
// each part's digest is computed in a single streamed pass over its range.
func (s *Splitter) Split(path string, partCount int, wantDigests bool) ([]Part, error) {
	if partCount < 1 {
		return nil, fmt.Errorf("invalid part count %d: must be at least 1", partCount)
	}
	if partCount > constants.MaxPartCount {
		return nil, fmt.Errorf("invalid part count %d: S3 allows at most %d parts", partCount, constants.MaxPartCount)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	size := info.Size()

	parts := make([]Part, 0, partCount)
	for i := 0; i < partCount; i++ {
		offset := int64(i) * s.ChunkSize
		length := s.ChunkSize
		if i == partCount-1 {
			length = size - offset
		}
		if length < 0 {
			return nil, fmt.Errorf("part count %d does not fit file of %d bytes with chunk size %d", partCount, size, s.ChunkSize)
		}

		part := Part{Index: i, Offset: offset, Length: length}
		if wantDigests {
			d, err := digest.SliceDigest(path, offset, length)
			if err != nil {
				return nil, fmt.Errorf("failed to digest part %d: %w", i+1, err)
			}
			part.Digest = d
		}
		parts = append(parts, part)
	}
	return parts, nil
}
