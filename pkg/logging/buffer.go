package logging

import (
	"strings"
	"sync"
)

// captureSize is how many recent lines Capture keeps.
const captureSize = 64

// Capture keeps the most recent log lines in a ring. It is an io.Writer for
// a slog handler, which writes one record per call.
type Capture struct {
	mu    sync.Mutex
	lines [captureSize]string
	next  int
	count int
}

// GlobalLogCapture receives the server log at INFO and above.
var GlobalLogCapture = &Capture{}

func (c *Capture) Write(p []byte) (int, error) {
	line := strings.TrimSpace(string(p))
	if line == "" {
		return len(p), nil
	}
	c.mu.Lock()
	c.lines[c.next] = line
	c.next = (c.next + 1) % captureSize
	if c.count < captureSize {
		c.count++
	}
	c.mu.Unlock()
	return len(p), nil
}

// LastLine returns the newest line, or "" before anything was logged.
func (c *Capture) LastLine() string {
	if l := c.Lines(1); len(l) == 1 {
		return l[0]
	}
	return ""
}

// Lines returns up to n recent lines, oldest first.
func (c *Capture) Lines(n int) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n > c.count {
		n = c.count
	}
	out := make([]string, n)
	start := c.next - n
	for i := range out {
		out[i] = c.lines[(start+i+captureSize)%captureSize]
	}
	return out
}
