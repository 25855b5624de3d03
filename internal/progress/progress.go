package progress

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Bar renders hashing progress on a single terminal line. A nil *Bar is
// valid and does nothing.
type Bar struct {
	total       int64
	current     int64
	width       int
	writer      io.Writer
	mu          sync.Mutex
	currentDirs map[string]bool
	enabled     bool
	lastUpdate  time.Time
}

// New returns a bar writing to w. Rendering is disabled when w is an
// *os.File that is not a terminal.
func New(total int64, w io.Writer) *Bar {
	enabled := true
	if f, ok := w.(*os.File); ok {
		enabled = isTerminal(f)
	}
	return &Bar{
		total:       total,
		width:       50,
		writer:      w,
		currentDirs: make(map[string]bool),
		enabled:     enabled,
	}
}

func isTerminal(f *os.File) bool {
	fileInfo, err := f.Stat()
	if err != nil {
		return false
	}
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}

// SetTotal resets the expected number of steps.
func (b *Bar) SetTotal(total int64) {
	if b == nil {
		return
	}
	b.mu.Lock()
	b.total = total
	b.mu.Unlock()
}

// Step records one finished file in dir.
func (b *Bar) Step(dir string) {
	if b == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.current++
	b.currentDirs[dir] = true

	// Update at most every 100ms to reduce flickering
	now := time.Now()
	if now.Sub(b.lastUpdate) > 100*time.Millisecond || b.current == b.total {
		b.lastUpdate = now
		b.render()
	}
}

// Current returns the number of completed steps.
func (b *Bar) Current() int64 {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// render must be called with mu already locked
func (b *Bar) render() {
	if !b.enabled || b.total == 0 {
		return
	}

	percent := float64(b.current) / float64(b.total) * 100
	filledWidth := int(float64(b.width) * float64(b.current) / float64(b.total))
	if filledWidth > b.width {
		filledWidth = b.width
	}

	bar := strings.Repeat("█", filledWidth) + strings.Repeat("░", b.width-filledWidth)

	dirs := make([]string, 0, len(b.currentDirs))
	for dir := range b.currentDirs {
		dirs = append(dirs, filepath.Base(dir))
	}
	sort.Strings(dirs)

	var dirDisplay string
	if len(dirs) > 3 {
		dirDisplay = fmt.Sprintf(" | %s, %s, %s +%d more", dirs[0], dirs[1], dirs[2], len(dirs)-3)
	} else if len(dirs) > 0 {
		dirDisplay = " | " + strings.Join(dirs, ", ")
	}

	// Clear the line and write progress
	fmt.Fprintf(b.writer, "\r\033[K[%s] %3d%% (%d/%d)%s",
		bar, int(percent), b.current, b.total, dirDisplay)
}

// Finish draws the final state and ends the line.
func (b *Bar) Finish() {
	if b == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.current = b.total
	if b.enabled {
		b.render()
		fmt.Fprintf(b.writer, "\n")
	}
}
