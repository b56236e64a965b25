package progress

import (
	"io"
	"os"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

// BarListener renders a batch-level progress bar, counting finished files.
// Failed files advance the bar too so it always reaches its total.
type BarListener struct {
	bar *progressbar.ProgressBar
}

// NewBarListener creates a bar over totalFiles writing to w.
func NewBarListener(totalFiles int, w io.Writer) *BarListener {
	bar := progressbar.NewOptions(totalFiles,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("publishing"),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetRenderBlankState(true),
	)
	return &BarListener{bar: bar}
}

// IsTerminal reports whether f is attached to a terminal. The bar is only
// worth rendering interactively; in CI the log listener carries the signal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

func (b *BarListener) BeforeUploadStarted(Upload)            {}
func (b *BarListener) BeforePartUploadStarted(Upload, int)   {}
func (b *BarListener) OnPartUploadSuccess(Upload, string)    {}
func (b *BarListener) OnPartUploadFailed(Upload, int, error) {}

func (b *BarListener) OnFileUploadSuccess(Upload, string) {
	b.bar.Add(1)
}

func (b *BarListener) OnFileUploadFailed(Upload, error) {
	b.bar.Add(1)
}

// Finish clears the bar once the batch is done.
func (b *BarListener) Finish() {
	b.bar.Finish()
}
