package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Outcomes recorded for a command.
const (
	OutcomeSuccess  = "SUCCESS"
	OutcomeRejected = "REJECTED"
	OutcomeError    = "ERROR"
)

// Entry represents a single audit log entry.
type Entry struct {
	Timestamp time.Time              `json:"ts"`
	Subject   string                 `json:"subject"`
	BindingID string                 `json:"bindingId"`
	Action    string                 `json:"action"`
	Params    map[string]interface{} `json:"params"`
	Outcome   string                 `json:"outcome"`
	Code      string                 `json:"code"`
	LatencyMs float64                `json:"latencyMs"`
}

// Options configures a file-backed Logger.
type Options struct {
	File       string
	MaxSizeMB  int
	MaxBackups int
}

// Logger writes audit entries as JSON lines. It is safe for concurrent use.
type Logger struct {
	mu       sync.Mutex
	filePath string
	w        io.Writer
	closer   io.Closer
	now      func() time.Time
}

type ctxKey int

const (
	subjectKey ctxKey = iota
	paramsKey
)

// WithSubject returns a context carrying the subject recorded by LogAction.
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectKey, subject)
}

// WithParams returns a context carrying parameters recorded by LogAction.
func WithParams(ctx context.Context, params map[string]interface{}) context.Context {
	return context.WithValue(ctx, paramsKey, params)
}

// NewLogger creates an audit logger writing to a size-rotated file.
func NewLogger(opts Options) (*Logger, error) {
	if opts.File == "" {
		return nil, fmt.Errorf("audit file path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}

	rotating := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
	}
	return &Logger{
		filePath: opts.File,
		w:        rotating,
		closer:   rotating,
		now:      time.Now,
	}, nil
}

// NewWriterLogger creates an audit logger writing to w.
func NewWriterLogger(w io.Writer) *Logger {
	return &Logger{w: w, now: time.Now}
}

// LogAction records one command outcome. result is OutcomeSuccess,
// OutcomeRejected, or a normalized error code.
func (l *Logger) LogAction(ctx context.Context, action, bindingID, result string, latency time.Duration) {
	outcome := result
	if result != OutcomeSuccess && result != OutcomeRejected {
		outcome = OutcomeError
	}

	entry := Entry{
		Timestamp: l.now().UTC(),
		Subject:   subjectFromContext(ctx),
		BindingID: bindingID,
		Action:    action,
		Params:    paramsFromContext(ctx),
		Outcome:   outcome,
		Code:      result,
		LatencyMs: float64(latency.Microseconds()) / 1000,
	}

	l.writeEntry(entry)
}

// writeEntry writes an audit entry as one JSON line.
func (l *Logger) writeEntry(entry Entry) {
	jsonData, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to marshal audit entry: %v\n", err)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.w == nil {
		return
	}
	if _, err := l.w.Write(append(jsonData, '\n')); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write audit entry: %v\n", err)
	}
}

func subjectFromContext(ctx context.Context) string {
	if subject, ok := ctx.Value(subjectKey).(string); ok && subject != "" {
		return subject
	}
	return "unknown"
}

func paramsFromContext(ctx context.Context) map[string]interface{} {
	if params, ok := ctx.Value(paramsKey).(map[string]interface{}); ok {
		return params
	}
	return make(map[string]interface{})
}

// GetFilePath returns the path of the audit file, or "" for writer loggers.
func (l *Logger) GetFilePath() string {
	return l.filePath
}

// Rotate starts a new audit file, keeping the previous one as a backup.
func (l *Logger) Rotate() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rotating, ok := l.closer.(*lumberjack.Logger)
	if !ok {
		return nil
	}
	if err := rotating.Rotate(); err != nil {
		return fmt.Errorf("failed to rotate audit log: %w", err)
	}
	return nil
}

// Close closes the audit file. Later entries are discarded.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.w = nil
	if l.closer == nil {
		return nil
	}
	err := l.closer.Close()
	l.closer = nil
	return err
}
