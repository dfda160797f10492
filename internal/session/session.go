// Package session holds the hints shared between resolution and completion watching during one
// playback: the block that most recently appeared and the blocks registered by insertion flows.
// Every hint is best-effort; readers must tolerate absence and staleness.
package session

import (
	"sync"

	"github.com/google/uuid"
)

type Session struct {
	id uuid.UUID

	mu           sync.RWMutex
	lastAppeared string
	inserted     map[string]string
	lastInserted string
}

func New() *Session {
	return &Session{
		id:       uuid.New(),
		inserted: make(map[string]string),
	}
}

func (s *Session) ID() uuid.UUID {
	if s == nil {
		return uuid.Nil
	}

	return s.id
}

// LastAppearedBlock returns the client id recorded by the latest elementAppear completion.
func (s *Session) LastAppearedBlock() string {
	if s == nil {
		return ""
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.lastAppeared
}

func (s *Session) SetLastAppearedBlock(clientID string) {
	if s == nil {
		return
	}

	s.mu.Lock()
	s.lastAppeared = clientID
	s.mu.Unlock()
}

// RegisterInsertedBlock records the block an insertion flow created under marker.
func (s *Session) RegisterInsertedBlock(marker, clientID string) {
	if s == nil || clientID == "" {
		return
	}

	s.mu.Lock()
	if marker != "" {
		s.inserted[marker] = clientID
	}
	s.lastInserted = clientID
	s.mu.Unlock()
}

// InsertedBlock looks up a marker. An empty marker returns the most recent insertion.
func (s *Session) InsertedBlock(marker string) (string, bool) {
	if s == nil {
		return "", false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if marker == "" {
		return s.lastInserted, s.lastInserted != ""
	}

	id, ok := s.inserted[marker]

	return id, ok
}

// Reset forgets every hint, keeping the session id.
func (s *Session) Reset() {
	if s == nil {
		return
	}

	s.mu.Lock()
	s.lastAppeared = ""
	s.lastInserted = ""
	s.inserted = make(map[string]string)
	s.mu.Unlock()
}
