// logging.go: pluggable logging interface shared by the patcher and the runtime
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modloader

import (
	"strings"
	"sync"
)

// Logger is the logging interface used across the mod loader.
//
// Arguments after the message are key-value pairs. The patcher wires a
// ZapLogger writing to the console and a rotating file; the in-game runtime
// wires one writing to ModLoader/MLLoutput.log. Tests use TestLogger.
type Logger interface {
	// Debug logs a debug message with optional key-value pairs
	Debug(msg string, args ...any)

	// Info logs an info message with optional key-value pairs
	Info(msg string, args ...any)

	// Warn logs a warning message with optional key-value pairs
	Warn(msg string, args ...any)

	// Error logs an error message with optional key-value pairs
	Error(msg string, args ...any)

	// With returns a logger that adds the given key-value pairs to every entry
	With(args ...any) Logger
}

// NewLogger creates a Logger from supported logger types.
//
// Supported types:
//   - Logger interface: used directly
//   - nil: returns NoOpLogger
//   - anything else panics
func NewLogger(logger any) Logger {
	switch l := logger.(type) {
	case Logger:
		return l
	case nil:
		return NewNoOpLogger()
	default:
		panic("unsupported logger type: expected Logger interface or nil")
	}
}

// NoOpLogger discards every message.
type NoOpLogger struct{}

// NewNoOpLogger creates a new no-operation logger.
func NewNoOpLogger() *NoOpLogger {
	return &NoOpLogger{}
}

// Debug implements Logger interface (no-op)
func (n *NoOpLogger) Debug(msg string, args ...any) {}

// Info implements Logger interface (no-op)
func (n *NoOpLogger) Info(msg string, args ...any) {}

// Warn implements Logger interface (no-op)
func (n *NoOpLogger) Warn(msg string, args ...any) {}

// Error implements Logger interface (no-op)
func (n *NoOpLogger) Error(msg string, args ...any) {}

// With implements Logger interface (no-op)
func (n *NoOpLogger) With(args ...any) Logger {
	return n
}

// TestLogger captures log messages in memory.
//
// Loggers derived through With share the parent's message buffer, so a
// component handed a scoped logger is still observable from the test.
type TestLogger struct {
	mu       *sync.RWMutex
	buf      *[]TestLogMessage
	fields   []any
	Messages []TestLogMessage `json:"messages"`
}

// TestLogMessage represents a captured log message for testing.
type TestLogMessage struct {
	Level   string
	Message string
	Args    []any
}

// NewTestLogger creates a new test logger.
func NewTestLogger() *TestLogger {
	t := &TestLogger{
		mu:       &sync.RWMutex{},
		Messages: make([]TestLogMessage, 0),
	}
	t.buf = &t.Messages
	return t
}

func (t *TestLogger) record(level, msg string, args []any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	all := make([]any, 0, len(t.fields)+len(args))
	all = append(all, t.fields...)
	all = append(all, args...)
	*t.buf = append(*t.buf, TestLogMessage{
		Level:   level,
		Message: msg,
		Args:    all,
	})
}

// Debug implements Logger interface (captures message)
func (t *TestLogger) Debug(msg string, args ...any) { t.record("DEBUG", msg, args) }

// Info implements Logger interface (captures message)
func (t *TestLogger) Info(msg string, args ...any) { t.record("INFO", msg, args) }

// Warn implements Logger interface (captures message)
func (t *TestLogger) Warn(msg string, args ...any) { t.record("WARN", msg, args) }

// Error implements Logger interface (captures message)
func (t *TestLogger) Error(msg string, args ...any) { t.record("ERROR", msg, args) }

// With implements Logger interface. The child writes into the same buffer.
func (t *TestLogger) With(args ...any) Logger {
	fields := make([]any, 0, len(t.fields)+len(args))
	fields = append(fields, t.fields...)
	fields = append(fields, args...)
	return &TestLogger{mu: t.mu, buf: t.buf, fields: fields}
}

// Snapshot returns a copy of the captured messages.
func (t *TestLogger) Snapshot() []TestLogMessage {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]TestLogMessage, len(*t.buf))
	copy(out, *t.buf)
	return out
}

// HasMessage checks if the logger captured a message with the exact text.
func (t *TestLogger) HasMessage(level, message string) bool {
	for _, msg := range t.Snapshot() {
		if msg.Level == level && msg.Message == message {
			return true
		}
	}
	return false
}

// HasMessageContaining checks for a message at level containing fragment.
func (t *TestLogger) HasMessageContaining(level, fragment string) bool {
	for _, msg := range t.Snapshot() {
		if msg.Level == level && strings.Contains(msg.Message, fragment) {
			return true
		}
	}
	return false
}

// Count returns how many messages were captured at level.
func (t *TestLogger) Count(level string) int {
	n := 0
	for _, msg := range t.Snapshot() {
		if msg.Level == level {
			n++
		}
	}
	return n
}

// Clear removes all captured messages.
func (t *TestLogger) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	*t.buf = (*t.buf)[:0]
}

// DefaultLogger returns the logger used when a component is given nil.
func DefaultLogger() Logger {
	return NewNoOpLogger()
}
