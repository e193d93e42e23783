package core

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// Logger interface - minimal logging interface
type Logger interface {
	Info(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Debug(msg string, fields map[string]interface{})
}

// NoOpLogger provides a no-op logger implementation
type NoOpLogger struct{}

func (n *NoOpLogger) Info(msg string, fields map[string]interface{})  {}
func (n *NoOpLogger) Error(msg string, fields map[string]interface{}) {}
func (n *NoOpLogger) Warn(msg string, fields map[string]interface{})  {}
func (n *NoOpLogger) Debug(msg string, fields map[string]interface{}) {}

// JSONLogger writes structured log lines to stdout, one JSON object per line.
// Safe for concurrent use.
type JSONLogger struct {
	mu        sync.Mutex
	component string
	debug     bool
}

// NewJSONLogger creates a JSONLogger tagged with a component name.
func NewJSONLogger(component string) *JSONLogger {
	return &JSONLogger{
		component: component,
		debug:     os.Getenv("CERINA_DEBUG") != "",
	}
}

func (l *JSONLogger) Info(msg string, fields map[string]interface{})  { l.write("info", msg, fields) }
func (l *JSONLogger) Error(msg string, fields map[string]interface{}) { l.write("error", msg, fields) }
func (l *JSONLogger) Warn(msg string, fields map[string]interface{})  { l.write("warn", msg, fields) }

func (l *JSONLogger) Debug(msg string, fields map[string]interface{}) {
	if l.debug {
		l.write("debug", msg, fields)
	}
}

func (l *JSONLogger) write(level, msg string, fields map[string]interface{}) {
	entry := make(map[string]interface{}, len(fields)+4)
	for k, v := range fields {
		entry[k] = v
	}
	entry["level"] = level
	entry["msg"] = msg
	entry["component"] = l.component
	entry["ts"] = time.Now().UTC().Format(time.RFC3339Nano)

	data, err := json.Marshal(entry)
	if err != nil {
		// Fields with unmarshalable values still deserve a log line
		data = []byte(fmt.Sprintf(`{"level":%q,"msg":%q,"component":%q}`, level, msg, l.component))
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(os.Stdout, string(data))
}
