// Package view is the projection layer. Panels hand it rendered text; it
// never feeds anything back into the dashboard's logic.
package view

import (
	"sync"
	"time"
)

type PanelID string

const (
	PanelSession       PanelID = "session"
	PanelQueue         PanelID = "queue"
	PanelStats         PanelID = "stats"
	PanelRecent        PanelID = "recent"
	PanelPatient       PanelID = "patient"
	PanelVitals        PanelID = "vitals"
	PanelHistory       PanelID = "history"
	PanelConsultation  PanelID = "consultation"
	PanelPrescription  PanelID = "prescription"
	PanelLabTest       PanelID = "labtest"
	PanelMessages      PanelID = "messages"
	PanelNotifications PanelID = "notifications"
)

// Order is the top-to-bottom layout of the dashboard.
var Order = []PanelID{
	PanelSession,
	PanelStats,
	PanelQueue,
	PanelRecent,
	PanelNotifications,
	PanelPatient,
	PanelVitals,
	PanelHistory,
	PanelConsultation,
	PanelPrescription,
	PanelLabTest,
	PanelMessages,
}

// ParsePanelID reports whether s names a known panel.
func ParsePanelID(s string) (PanelID, bool) {
	for _, id := range Order {
		if string(id) == s {
			return id, true
		}
	}
	return "", false
}

type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelInfo    Level = "info"
)

// Notice is a transient message for the user.
type Notice struct {
	Level Level
	Text  string
	At    time.Time
}

func Success(text string) Notice { return Notice{Level: LevelSuccess, Text: text, At: time.Now()} }
func Error(text string) Notice { return Notice{Level: LevelError, Text: text, At: time.Now()} }
func Info(text string) Notice { return Notice{Level: LevelInfo, Text: text, At: time.Now()} }

// Display receives rendered panels and notices. Implementations must be
// safe for concurrent use.
type Display interface {
	Render(id PanelID, content string)
	Notify(n Notice)
}

// Remover is implemented by displays that can drop panels, so a hidden
// section leaves no stale frame behind.
type Remover interface {
	Remove(ids ...PanelID)
}

// Frame is the latest content of one panel.
type Frame struct {
	Content   string
	Version   uint64
	UpdatedAt time.Time
}

const maxNotices = 50

// Buffer keeps the latest frame per panel and a bounded notice history.
type Buffer struct {
	mu      sync.RWMutex
	frames  map[PanelID]Frame
	notices []Notice
	version uint64
}

func NewBuffer() *Buffer {
	return &Buffer{frames: map[PanelID]Frame{}}
}

func (b *Buffer) Render(id PanelID, content string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.version++
	b.frames[id] = Frame{Content: content, Version: b.version, UpdatedAt: time.Now()}
}

func (b *Buffer) Notify(n Notice) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.notices = append(b.notices, n)
	if len(b.notices) > maxNotices {
		b.notices = b.notices[len(b.notices)-maxNotices:]
	}
}

// Remove drops the frames of ids.
func (b *Buffer) Remove(ids ...PanelID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, id := range ids {
		delete(b.frames, id)
	}
}

// Panel returns the latest frame of id.
func (b *Buffer) Panel(id PanelID) (Frame, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	f, ok := b.frames[id]
	return f, ok
}

// Panels returns a copy of every rendered frame.
func (b *Buffer) Panels() map[PanelID]Frame {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[PanelID]Frame, len(b.frames))
	for k, v := range b.frames {
		out[k] = v
	}
	return out
}

// Notices returns the retained notices, oldest first.
func (b *Buffer) Notices() []Notice {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]Notice(nil), b.notices...)
}

// LastNotice returns the most recent notice.
func (b *Buffer) LastNotice() (Notice, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.notices) == 0 {
		return Notice{}, false
	}
	return b.notices[len(b.notices)-1], true
}

// Tee fans every call out to several displays.
type Tee []Display

func (t Tee) Render(id PanelID, content string) {
	for _, d := range t {
		d.Render(id, content)
	}
}

func (t Tee) Notify(n Notice) {
	for _, d := range t {
		d.Notify(n)
	}
}

// Remove forwards to every display that supports it.
func (t Tee) Remove(ids ...PanelID) {
	for _, d := range t {
		if r, ok := d.(Remover); ok {
			r.Remove(ids...)
		}
	}
}
