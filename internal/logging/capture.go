package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"
)

// Capture is a concurrency-safe in-memory sink for inspecting log output.
type Capture struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

// NewCaptureLogger returns a Logger writing to a fresh Capture.
func NewCaptureLogger(level string) (*Logger, *Capture) {
	c := &Capture{}
	return NewWriterLogger(c, level), c
}

// Write implements io.Writer.
func (c *Capture) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Write(p)
}

// Entries decodes every captured JSON record.
func (c *Capture) Entries() []map[string]any {
	c.mu.Lock()
	raw := c.buf.String()
	c.mu.Unlock()

	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(raw), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries
}

// Messages returns the msg field of every captured record at level, or of
// every record when level is empty.
func (c *Capture) Messages(level string) []string {
	var msgs []string
	for _, e := range c.Entries() {
		if level != "" && e["level"] != level {
			continue
		}
		if msg, ok := e["msg"].(string); ok {
			msgs = append(msgs, msg)
		}
	}
	return msgs
}

// Contains reports whether any record at level has msg containing substr.
func (c *Capture) Contains(level, substr string) bool {
	for _, msg := range c.Messages(level) {
		if strings.Contains(msg, substr) {
			return true
		}
	}
	return false
}
