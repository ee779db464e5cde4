// Package feedback carries the status line, toasts, busy flag and progress
// indicator that every converter reports through.
package feedback

import (
	"fmt"
	"io"
	"sync"
	"time"
)

type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

type Reporter interface {
	Status(level Level, text string)
	Toast(level Level, text string)
	// Busy marks the submit control disabled while true.
	Busy(busy bool)
	Progress(visible bool, done, total int)
}

type Message struct {
	Level Level     `json:"level"`
	Text  string    `json:"text"`
	At    time.Time `json:"at"`
}

type ProgressState struct {
	Visible bool `json:"visible"`
	Done    int  `json:"done"`
	Total   int  `json:"total"`
}

type Snapshot struct {
	Status   Message       `json:"status"`
	Toasts   []Message     `json:"toasts"`
	Busy     bool          `json:"busy"`
	Progress ProgressState `json:"progress"`
}

const DefaultToastHistory = 20

// Recorder keeps the latest feedback for one session so it can be polled.
type Recorder struct {
	mu       sync.Mutex
	status   Message
	toasts   []Message
	busy     bool
	progress ProgressState
	limit    int
	now      func() time.Time
}

func NewRecorder(limit int) *Recorder {
	if limit <= 0 {
		limit = DefaultToastHistory
	}
	return &Recorder{limit: limit, now: time.Now}
}

func (r *Recorder) Status(level Level, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = Message{Level: level, Text: text, At: r.now()}
}

func (r *Recorder) Toast(level Level, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.toasts = append(r.toasts, Message{Level: level, Text: text, At: r.now()})
	if over := len(r.toasts) - r.limit; over > 0 {
		r.toasts = append(r.toasts[:0:0], r.toasts[over:]...)
	}
}

func (r *Recorder) Busy(busy bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.busy = busy
}

func (r *Recorder) Progress(visible bool, done, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = ProgressState{Visible: visible, Done: done, Total: total}
}

func (r *Recorder) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Snapshot{
		Status:   r.status,
		Toasts:   append([]Message(nil), r.toasts...),
		Busy:     r.busy,
		Progress: r.progress,
	}
}

// Console writes feedback as plain lines, for the command line.
type Console struct {
	mu        sync.Mutex
	w         io.Writer
	lastShown int
}

func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

func (c *Console) Status(level Level, text string) {
	if text == "" {
		return
	}
	c.printf("[%s] %s\n", level, text)
}

func (c *Console) Toast(level Level, text string) {
	c.printf("[%s] %s\n", level, text)
}

func (c *Console) Busy(bool) {}

func (c *Console) Progress(visible bool, done, total int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !visible {
		c.lastShown = 0
		return
	}
	if total == 0 || done == c.lastShown {
		return
	}
	c.lastShown = done
	fmt.Fprintf(c.w, "  %d/%d\n", done, total)
}

func (c *Console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, format, args...)
}

// Discard drops everything.
type Discard struct{}

func (Discard) Status(Level, string)    {}
func (Discard) Toast(Level, string)     {}
func (Discard) Busy(bool)               {}
func (Discard) Progress(bool, int, int) {}

// HumanSize formats a byte count with binary units.
func HumanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
