package server

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/h1v3-io/chatwidget/internal/widget"
)

// WidgetInfo describes a live widget instance for API responses.
type WidgetInfo struct {
	ID          string       `json:"id"`
	State       widget.State `json:"state"`
	Messages    int          `json:"messages"`
	RemoteAddr  string       `json:"remote_addr,omitempty"`
	ConnectedAt time.Time    `json:"connected_at"`
}

// WidgetDetail is a widget instance plus its full snapshot.
type WidgetDetail struct {
	WidgetInfo
	Snapshot widget.Snapshot `json:"snapshot"`
}

type instance struct {
	ctl         *widget.Controller
	remoteAddr  string
	connectedAt time.Time
}

// Sessions tracks the widget instances of connected clients, keyed by
// conversation id.
type Sessions struct {
	mu sync.RWMutex
	m  map[string]*instance
}

// NewSessions creates an empty registry.
func NewSessions() *Sessions {
	return &Sessions{m: make(map[string]*instance)}
}

// Add registers a controller under id, replacing any previous entry.
func (s *Sessions) Add(id string, ctl *widget.Controller, remoteAddr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[id] = &instance{ctl: ctl, remoteAddr: remoteAddr, connectedAt: time.Now()}
}

// Remove drops id from the registry.
func (s *Sessions) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, id)
}

// Len returns the number of live instances.
func (s *Sessions) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}

// Controller returns the controller registered under id.
func (s *Sessions) Controller(id string) (*widget.Controller, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inst, ok := s.m[id]
	if !ok {
		return nil, false
	}
	return inst.ctl, true
}

// List returns every live instance, oldest connection first.
func (s *Sessions) List() []WidgetInfo {
	s.mu.RLock()
	out := make([]WidgetInfo, 0, len(s.m))
	for id, inst := range s.m {
		out = append(out, inst.info(id, inst.ctl.Snapshot()))
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b WidgetInfo) int {
		if c := a.ConnectedAt.Compare(b.ConnectedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// Get returns the detail of one instance.
func (s *Sessions) Get(id string) (*WidgetDetail, bool) {
	s.mu.RLock()
	inst, ok := s.m[id]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	snap := inst.ctl.Snapshot()
	return &WidgetDetail{WidgetInfo: inst.info(id, snap), Snapshot: snap}, true
}

func (inst *instance) info(id string, snap widget.Snapshot) WidgetInfo {
	return WidgetInfo{
		ID:          id,
		State:       snap.State,
		Messages:    len(snap.Transcript),
		RemoteAddr:  inst.remoteAddr,
		ConnectedAt: inst.connectedAt,
	}
}
