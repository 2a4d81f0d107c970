// Package logging provides LogMonitor, a ring-buffered io.Writer that doubles
// as a structured logger and a broadcaster for raw log lines. The process
// manager attaches one LogMonitor to every spawned backend's Stdout/Stderr
// (alongside its log file) and records its own launch lines in it; the
// coordinator logs through logrus instead, and nothing in this module
// subscribes to it or forwards it over SSE.
package logging

import (
	"bytes"
	"fmt"
	"sync"
	"time"
)

// historyCap bounds how much raw output GetHistory replays to a new
// subscriber; it is independent of the coordinator's own log-tail caps
// (3000/1000/500 chars) defined in the launch package.
const historyCap = 1 << 16 // 64KiB

// Level is a coarse severity for structured log lines.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Entry is one structured log line recorded by a LogMonitor.
type Entry struct {
	Time    time.Time `json:"time"`
	Level   Level     `json:"level"`
	Message string    `json:"message"`
}

// LogMonitor is an io.Writer that accumulates a bounded history of raw bytes
// and fans out every write to subscribers, while also exposing leveled
// Infof/Warnf/Errorf helpers that render into the same stream.
type LogMonitor struct {
	name string

	mu      sync.Mutex
	history *bytes.Buffer

	subMu sync.Mutex
	subs  map[int]func([]byte)
	nextI int

	debug bool
}

// New creates a named LogMonitor. When debug is false, Debugf is a no-op.
func New(name string, debug bool) *LogMonitor {
	return &LogMonitor{
		name:    name,
		history: bytes.NewBuffer(nil),
		subs:    make(map[int]func([]byte)),
		debug:   debug,
	}
}

// Write implements io.Writer, letting a LogMonitor be used directly as a
// spawned process's Stdout/Stderr.
func (m *LogMonitor) Write(p []byte) (int, error) {
	m.append(p)
	return len(p), nil
}

func (m *LogMonitor) append(p []byte) {
	m.mu.Lock()
	m.history.Write(p)
	if m.history.Len() > historyCap {
		trimmed := m.history.Bytes()[m.history.Len()-historyCap:]
		m.history = bytes.NewBuffer(append([]byte(nil), trimmed...))
	}
	m.mu.Unlock()

	m.subMu.Lock()
	subs := make([]func([]byte), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.subMu.Unlock()
	for _, fn := range subs {
		fn(p)
	}
}

// GetHistory returns a copy of the accumulated raw output.
func (m *LogMonitor) GetHistory() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]byte, m.history.Len())
	copy(out, m.history.Bytes())
	return out
}

// Tail returns at most n trailing bytes of history.
func (m *LogMonitor) Tail(n int) []byte {
	h := m.GetHistory()
	if n <= 0 || len(h) <= n {
		return h
	}
	return h[len(h)-n:]
}

// OnLogData registers a subscriber for every raw Write; it returns an
// unsubscribe function, mirroring the teacher's defer-unsubscribe idiom
// (`defer pm.proxyLogger.OnLogData(func(data []byte) {...})()`).
func (m *LogMonitor) OnLogData(fn func(data []byte)) func() {
	m.subMu.Lock()
	id := m.nextI
	m.nextI++
	m.subs[id] = fn
	m.subMu.Unlock()

	return func() {
		m.subMu.Lock()
		delete(m.subs, id)
		m.subMu.Unlock()
	}
}

func (m *LogMonitor) line(level Level, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	ts := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	m.append([]byte(fmt.Sprintf("[%s] [%s] [%s] %s\n", ts, m.name, level, msg)))
}

func (m *LogMonitor) Debugf(format string, args ...any) {
	if !m.debug {
		return
	}
	m.line(LevelDebug, format, args...)
}

func (m *LogMonitor) Infof(format string, args ...any)  { m.line(LevelInfo, format, args...) }
func (m *LogMonitor) Warnf(format string, args ...any)  { m.line(LevelWarn, format, args...) }
func (m *LogMonitor) Errorf(format string, args ...any) { m.line(LevelError, format, args...) }
