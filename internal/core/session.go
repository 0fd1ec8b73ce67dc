package core

import (
	"fmt"
	"sync"
	"time"
)

// SessionState is where a session is in its lifecycle.
//
//	Empty -> Loaded -> Reconciling (each save loops here)
//	Exporting is entered for the duration of one export and then left for
//	whichever state preceded it.
type SessionState int

const (
	StateEmpty SessionState = iota
	StateLoaded
	StateReconciling
	StateExporting
)

func (s SessionState) String() string {
	switch s {
	case StateLoaded:
		return "loaded"
	case StateReconciling:
		return "reconciling"
	case StateExporting:
		return "exporting"
	default:
		return "empty"
	}
}

func (s SessionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *SessionState) UnmarshalText(text []byte) error {
	switch string(text) {
	case "empty":
		*s = StateEmpty
	case "loaded":
		*s = StateLoaded
	case "reconciling":
		*s = StateReconciling
	case "exporting":
		*s = StateExporting
	default:
		return fmt.Errorf("unknown session state %q", text)
	}
	return nil
}

// Session owns one loaded dataset. Operations on a session run one at a
// time under mu; the core functions themselves take no locks.
type Session struct {
	ID        string
	FileName  string
	CreatedAt time.Time

	mu       sync.Mutex
	state    SessionState
	dataset  *Dataset
	lastUsed time.Time
}

func newSession(id, fileName string, ds *Dataset, now time.Time) *Session {
	return &Session{
		ID:        id,
		FileName:  fileName,
		CreatedAt: now,
		state:     StateLoaded,
		dataset:   ds,
		lastUsed:  now,
	}
}

// SessionInfo is a point-in-time view of a session.
type SessionInfo struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	FileName  string       `json:"fileName"`
	State     SessionState `json:"state"`
	Columns   []string     `json:"columns"`
	Records   int          `json:"records"`
	Stats     Stats        `json:"stats"`
	CreatedAt time.Time    `json:"createdAt"`
	LastUsed  time.Time    `json:"lastUsed"`
}

// info must be called with mu held.
func (s *Session) info() SessionInfo {
	info := SessionInfo{
		ID:        s.ID,
		FileName:  s.FileName,
		State:     s.state,
		CreatedAt: s.CreatedAt,
		LastUsed:  s.lastUsed,
	}
	if s.dataset != nil {
		info.Name = s.dataset.Name
		info.Columns = s.dataset.Header.Names()
		info.Records = len(s.dataset.Records)
		info.Stats = ComputeStats(s.dataset)
	}
	return info
}

// idleSince reports when the session was last used.
func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

// close drops the dataset. Further operations see an empty session.
func (s *Session) close() {
	s.mu.Lock()
	s.dataset = nil
	s.state = StateEmpty
	s.mu.Unlock()
}
