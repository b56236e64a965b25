package publish

// FileUploadInfo describes one successfully published artifact.
type FileUploadInfo struct {
	// ArtifactPath is the normalized logical path under the prefix.
	ArtifactPath string

	// AbsolutePath is the local source file.
	AbsolutePath string

	// Size is the file size in bytes.
	Size int64

	// Digest identifies the stored bytes: the S3 ETag for regular uploads,
	// the multipart ETag (md5-of-part-md5s with a "-N" suffix) otherwise.
	Digest string
}
