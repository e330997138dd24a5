package pipeline

import (
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

// newProgressBar mirrors the teacher's video.go setupProgressBar: an
// indeterminate bar (unknown length, fps shown as "its/s") for a live
// device/stream, or a determinate one with ETA when MaxFrames bounds
// the run — e.g. replaying an archived frame sequence. It degrades to
// a discarded bar if stdout isn't a terminal, matching the teacher's
// term.GetSize-gated width detection in spirit: no point animating a
// bar into a log file.
func newProgressBar(description string, maxFrames int) *progressbar.ProgressBar {
	if _, _, err := term.GetSize(int(os.Stdout.Fd())); err != nil {
		return progressbar.DefaultSilent(-1)
	}

	total := -1
	opts := []progressbar.Option{
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("fps"),
		progressbar.OptionThrottle(100 * time.Millisecond),
		progressbar.OptionClearOnFinish(),
	}
	if maxFrames > 0 {
		total = maxFrames
		opts = append(opts, progressbar.OptionSetPredictTime(true))
	}
	return progressbar.NewOptions(total, opts...)
}
