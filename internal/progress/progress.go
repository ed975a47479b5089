// Package progress renders the single-line status display shown while a run is
// in progress.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
)

const updateInterval = 50 * time.Millisecond

// Bar wraps progressbar with enabled/disabled handling.
// All methods are no-ops when disabled, except that Interrupt still runs its
// function. Methods are safe for concurrent use.
type Bar struct {
	mu  sync.Mutex
	bar *progressbar.ProgressBar
	w   io.Writer
}

// New creates a spinner writing to w (os.Stderr when nil).
// If enabled=false, returns a Bar where all methods are no-ops.
func New(enabled bool, w io.Writer) *Bar {
	if !enabled {
		return &Bar{}
	}
	if w == nil {
		w = os.Stderr
	}

	return &Bar{
		w: w,
		bar: progressbar.NewOptions(-1,
			progressbar.OptionSetWriter(w),
			progressbar.OptionThrottle(updateInterval),
			progressbar.OptionClearOnFinish(),
			progressbar.OptionSpinnerType(14),
			// Redraw only from Describe, never from the library's own ticker,
			// so that Interrupt can hold the line.
			progressbar.OptionSetSpinnerChangeInterval(0),
			progressbar.OptionSetElapsedTime(false),
		),
	}
}

// Describe updates the progress bar description.
func (b *Bar) Describe(s fmt.Stringer) {
	if b.bar == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bar.Describe(s.String())
}

// Interrupt erases the current line and runs fn while no redraw can happen,
// so that fn may write to the terminal. The next Describe redraws the line.
func (b *Bar) Interrupt(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.bar != nil {
		_ = b.bar.Clear()
	}
	fn()
}

// Finish completes the progress bar and prints a final message.
func (b *Bar) Finish(s fmt.Stringer) {
	if b.bar == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	_ = b.bar.Finish()
	_, _ = fmt.Fprintln(b.w, "✔ "+s.String())
}
