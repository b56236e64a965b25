package publish

import (
	"path"
	"path/filepath"
	"strings"
)

// NormalizeArtifactPath turns a logical artifact path into its canonical
// slash-separated form. A path that denotes a directory (empty or ending in
// a slash) gets the source file's name appended.
func NormalizeArtifactPath(logicalPath, filePath string) string {
	p := strings.ReplaceAll(logicalPath, "\\", "/")
	isDir := p == "" || strings.HasSuffix(p, "/")

	p = path.Clean(p)
	p = strings.Trim(p, "/")
	if p == "." || p == ".." {
		p = ""
		isDir = true
	}

	if isDir {
		name := filepath.Base(filePath)
		if p == "" {
			return name
		}
		return p + "/" + name
	}
	return p
}
