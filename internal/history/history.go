package history

import (
    "context"
    "sync"
    "time"

    "carevoice/agent/internal/dialogue"
)

// Record is one persisted conversation.
type Record struct {
    SessionID string             `json:"session_id"`
    DeviceID  string             `json:"device_id"`
    UserID    string             `json:"user_id,omitempty"`
    Language  string             `json:"language,omitempty"`
    Messages  []dialogue.Message `json:"messages"`
    SavedAt   time.Time          `json:"saved_at"`
}

// Store persists dialogue history. Save is called on a fire-and-forget path
// during teardown and must never block connection close.
type Store interface {
    Save(ctx context.Context, rec Record) error
    Load(ctx context.Context, sessionID string) (*Record, error)
    Close() error
}

// MemoryStore keeps records in process; the default when no redis address is
// configured, and the driver tests run against.
type MemoryStore struct {
    mu   sync.RWMutex
    recs map[string]Record
}

func NewMemoryStore() *MemoryStore {
    return &MemoryStore{recs: make(map[string]Record)}
}

func (s *MemoryStore) Save(_ context.Context, rec Record) error {
    rec.SavedAt = time.Now().UTC()
    s.mu.Lock()
    s.recs[rec.SessionID] = rec
    s.mu.Unlock()
    return nil
}

// Load returns nil when the session has no saved history (not an error).
func (s *MemoryStore) Load(_ context.Context, sessionID string) (*Record, error) {
    s.mu.RLock()
    defer s.mu.RUnlock()
    rec, ok := s.recs[sessionID]
    if !ok {
        return nil, nil
    }
    return &rec, nil
}

func (s *MemoryStore) Close() error { return nil }
