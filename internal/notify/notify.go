// Package notify carries user-visible messages from the pipeline to whatever UI is attached.
package notify

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/mimic-ai/interview/internal/apperr"
)

// Level is the severity of a message.
type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// Message is one notification.
type Message struct {
	Level Level       `json:"level"`
	Kind  apperr.Kind `json:"kind,omitempty"`
	Text  string      `json:"text"`
	At    time.Time   `json:"at"`
}

// Notifier shows and clears messages.
type Notifier interface {
	Notify(Message)
	Clear()
}

// Info builds an informational message.
func Info(text string) Message {
	return Message{Level: LevelInfo, Text: text, At: time.Now()}
}

// FromError builds an error message with the user-facing text of err.
func FromError(err error) Message {
	msg := Message{Level: LevelError, Text: err.Error(), At: time.Now()}
	var e *apperr.Error
	if errors.As(err, &e) {
		msg.Kind = e.Kind
		msg.Text = e.UserMessage()
	}
	return msg
}

// Writer prints messages as lines.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriter returns a notifier writing to w.
func NewWriter(w io.Writer) *Writer { return &Writer{w: w} }

func (t *Writer) Notify(m Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if m.Level == LevelError {
		_, _ = fmt.Fprintf(t.w, "エラー: %s\n", m.Text)
		return
	}
	_, _ = fmt.Fprintln(t.w, m.Text)
}

func (t *Writer) Clear() {}

// Multi fans messages out to several notifiers.
type Multi []Notifier

func (m Multi) Notify(msg Message) {
	for _, n := range m {
		n.Notify(msg)
	}
}

func (m Multi) Clear() {
	for _, n := range m {
		n.Clear()
	}
}

// Memory keeps the latest messages. The zero value is ready to use.
type Memory struct {
	mu       sync.Mutex
	messages []Message
}

func (m *Memory) Notify(msg Message) {
	m.mu.Lock()
	m.messages = append(m.messages, msg)
	m.mu.Unlock()
}

func (m *Memory) Clear() {
	m.mu.Lock()
	m.messages = nil
	m.mu.Unlock()
}

// Messages returns a copy of the retained messages.
func (m *Memory) Messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.messages...)
}

// Nop discards everything.
type Nop struct{}

func (Nop) Notify(Message) {}
func (Nop) Clear()         {}
