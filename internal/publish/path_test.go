package publish

import "testing"

// TestNormalizeArtifactPath covers the logical path rules: slash conversion,
// cleaning, directory targets, and degenerate inputs.
func TestNormalizeArtifactPath(t *testing.T) {
	tests := []struct {
		name        string
		logicalPath string
		filePath    string
		want        string
	}{
		{"empty uses base name", "", "/tmp/build/app.log", "app.log"},
		{"directory target appends base name", "logs/", "/tmp/app.log", "logs/app.log"},
		{"nested directory target", "a/b/", "/tmp/x.bin", "a/b/x.bin"},
		{"explicit file path kept", "reports/final.html", "/tmp/report.html", "reports/final.html"},
		{"backslashes converted", `win\style\file.txt`, "/tmp/f", "win/style/file.txt"},
		{"leading slash trimmed", "/abs/path.txt", "/tmp/f", "abs/path.txt"},
		{"trailing slash after clean", "dir//", "/tmp/f.txt", "dir/f.txt"},
		{"dot collapses to base name", ".", "/tmp/f.txt", "f.txt"},
		{"parent traversal collapses to base name", "..", "/tmp/f.txt", "f.txt"},
		{"inner traversal cleaned", "a/../b/file.txt", "/tmp/f", "b/file.txt"},
		{"root slash only", "/", "/tmp/f.txt", "f.txt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeArtifactPath(tt.logicalPath, tt.filePath)
			if got != tt.want {
				t.Errorf("NormalizeArtifactPath(%q, %q) = %q, want %q", tt.logicalPath, tt.filePath, got, tt.want)
			}
		})
	}
}

// TestInterrupterCheck verifies the reason-to-error conversion.
func TestInterrupterCheck(t *testing.T) {
	var i Interrupter
	if err := i.Check(); err != nil {
		t.Errorf("nil Interrupter Check() = %v, want nil", err)
	}

	i = func() string { return "" }
	if err := i.Check(); err != nil {
		t.Errorf("idle Interrupter Check() = %v, want nil", err)
	}

	i = func() string { return "shutdown requested" }
	err := i.Check()
	if err == nil {
		t.Fatal("fired Interrupter Check() = nil, want error")
	}
	if !IsInterrupted(err) {
		t.Errorf("IsInterrupted(%v) = false, want true", err)
	}
}
