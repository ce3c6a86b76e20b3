// internal/session/store.go
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/user/tgsearch/internal/types"
)

// Session is one named connection context.
type Session struct {
	ID        string         `json:"id"`
	Connected bool           `json:"connected"`
	Me        *types.User    `json:"me,omitempty"`
	Extra     map[string]any `json:"extra,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Patch is a partial session update. Nil fields keep the stored value.
type Patch struct {
	Connected *bool
	Me        *types.User
	Extra     map[string]any
}

type index struct {
	ActiveID string     `json:"active_session_id"`
	Sessions []*Session `json:"sessions"`
}

// Store is a JSON-file-backed session store kept at sessions/sessions.json
// under the data directory. Exactly one session id is active at a time.
type Store struct {
	root string
	mu   sync.Mutex
}

func NewStore(root string) *Store {
	return &Store{root: root}
}

func (s *Store) indexPath() string {
	return filepath.Join(s.root, "sessions", "sessions.json")
}

func (s *Store) load() (*index, error) {
	data, err := os.ReadFile(s.indexPath())
	if err != nil {
		if os.IsNotExist(err) {
			return &index{}, nil
		}
		return nil, fmt.Errorf("read session index: %w", err)
	}
	var idx index
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("unmarshal session index: %w", err)
	}
	return &idx, nil
}

func (s *Store) save(idx *index) error {
	sort.Slice(idx.Sessions, func(i, j int) bool {
		return idx.Sessions[i].CreatedAt.Before(idx.Sessions[j].CreatedAt)
	})
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session index: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.indexPath()), 0o755); err != nil {
		return fmt.Errorf("create sessions dir: %w", err)
	}

	tmp := s.indexPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write temp index: %w", err)
	}
	if err := os.Rename(tmp, s.indexPath()); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temp index: %w", err)
	}
	return nil
}

func (idx *index) find(id string) *Session {
	for _, sess := range idx.Sessions {
		if sess.ID == id {
			return sess
		}
	}
	return nil
}

// ActiveID returns the active session id, assigning and persisting a fresh
// one when none is stored yet.
func (s *Store) ActiveID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.load()
	if err != nil {
		return "", err
	}
	if idx.ActiveID != "" {
		return idx.ActiveID, nil
	}
	idx.ActiveID = string(types.NewSessionID())
	if err := s.save(idx); err != nil {
		return "", err
	}
	return idx.ActiveID, nil
}

// Active returns the active session, or nil when it has no stored context yet.
func (s *Store) Active() (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.load()
	if err != nil {
		return nil, err
	}
	return idx.find(idx.ActiveID), nil
}

// Get returns the session with the given id.
func (s *Store) Get(id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.load()
	if err != nil {
		return nil, err
	}
	sess := idx.find(id)
	if sess == nil {
		return nil, fmt.Errorf("session not found: %s", id)
	}
	return sess, nil
}

// List returns all sessions, oldest first.
func (s *Store) List() ([]*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.load()
	if err != nil {
		return nil, err
	}
	return idx.Sessions, nil
}

// UpdateActive merges patch into session id (creating it if needed) and
// makes it the active session.
func (s *Store) UpdateActive(id string, patch Patch) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.load()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	sess := idx.find(id)
	if sess == nil {
		sess = &Session{ID: id, CreatedAt: now}
		idx.Sessions = append(idx.Sessions, sess)
	}
	sess.apply(patch)
	sess.UpdatedAt = now
	idx.ActiveID = id

	if err := s.save(idx); err != nil {
		return nil, err
	}
	return sess, nil
}

// Cleanup drops every session and switches to a new random active id.
func (s *Store) Cleanup() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := &index{ActiveID: string(types.NewSessionID())}
	if err := s.save(idx); err != nil {
		return "", err
	}
	return idx.ActiveID, nil
}

func (sess *Session) apply(p Patch) {
	if p.Connected != nil {
		sess.Connected = *p.Connected
	}
	if p.Me != nil {
		sess.Me = mergeUser(sess.Me, p.Me)
	}
	if len(p.Extra) > 0 {
		sess.Extra = mergeMaps(sess.Extra, p.Extra)
	}
}

func mergeUser(old, next *types.User) *types.User {
	if old == nil {
		u := *next
		return &u
	}
	u := *old
	if next.ID != "" {
		u.ID = next.ID
	}
	if next.Username != "" {
		u.Username = next.Username
	}
	if next.FirstName != "" {
		u.FirstName = next.FirstName
	}
	if next.LastName != "" {
		u.LastName = next.LastName
	}
	if next.IsBot {
		u.IsBot = true
	}
	return &u
}

// mergeMaps returns dst with src laid over it; nested maps merge key by key
// and nil values in src are ignored.
func mergeMaps(dst, src map[string]any) map[string]any {
	out := make(map[string]any, len(dst)+len(src))
	for k, v := range dst {
		out[k] = v
	}
	for k, v := range src {
		if v == nil {
			continue
		}
		if sm, ok := v.(map[string]any); ok {
			if dm, ok := out[k].(map[string]any); ok {
				out[k] = mergeMaps(dm, sm)
				continue
			}
		}
		out[k] = v
	}
	return out
}
