// Package team implements the Team data model and its JSON-file
// persistence, per spec.md §3/§4.10 (supplement).
package team

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var (
	ErrNotFound = errors.New("team: not found")
	ErrExists   = errors.New("team: already exists")
	ErrNotOwner = errors.New("team: actor is not the owner")
)

// Team is the persisted membership record, per spec.md §3: only the
// owner may delete the team; Join does not check who adds a member.
// Membership is symmetric and binary (a member either is or isn't in
// the set).
type Team struct {
	Name      string          `json:"name"`
	OwnerID   string          `json:"owner_id"`
	Members   map[string]bool `json:"members"`
	CreatedAt time.Time       `json:"created_at"`
}

// Store persists one JSON file per team under <root>/teams/<name>.json.
// Guarded by a single mutex; team mutations are infrequent and always
// happen under the dispatcher's engine lock anyway, but the mutex keeps
// Store safe to use standalone (e.g. from tests or doctor tooling).
type Store struct {
	root string
	mu   sync.Mutex
}

func NewStore(root string) *Store {
	return &Store{root: root}
}

func (s *Store) dir() string {
	return filepath.Join(s.root, "teams")
}

func (s *Store) pathFor(name string) string {
	return filepath.Join(s.dir(), name+".json")
}

func (s *Store) load(name string) (*Team, error) {
	data, err := os.ReadFile(s.pathFor(name))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var t Team
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("team: decode %s: %w", name, err)
	}
	return &t, nil
}

func (s *Store) save(t *Team) error {
	if err := os.MkdirAll(s.dir(), 0o755); err != nil {
		return fmt.Errorf("team: create dir: %w", err)
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(t); err != nil {
		return fmt.Errorf("team: marshal: %w", err)
	}
	tmp := s.pathFor(t.Name) + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.pathFor(t.Name))
}

// Create mints a new team owned by ownerID. Returns ErrExists if a team
// with this name already exists.
func (s *Store) Create(name, ownerID string, now time.Time) (*Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.load(name); err == nil {
		return nil, ErrExists
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	t := &Team{
		Name:      name,
		OwnerID:   ownerID,
		Members:   map[string]bool{ownerID: true},
		CreatedAt: now,
	}
	if err := s.save(t); err != nil {
		return nil, err
	}
	return t, nil
}

// Get returns the team by name.
func (s *Store) Get(name string) (*Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(name)
}

// Join adds memberID to the team. Idempotent: joining twice is a no-op,
// not an error.
func (s *Store) Join(name, memberID string) (*Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.load(name)
	if err != nil {
		return nil, err
	}
	if t.Members[memberID] {
		return t, nil
	}
	t.Members[memberID] = true
	if err := s.save(t); err != nil {
		return nil, err
	}
	return t, nil
}

// Leave removes memberID from the team. Idempotent: leaving when not a
// member is a no-op, not an error. The owner may leave; it does not
// transfer or remove ownership.
func (s *Store) Leave(name, memberID string) (*Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.load(name)
	if err != nil {
		return nil, err
	}
	if !t.Members[memberID] {
		return t, nil
	}
	delete(t.Members, memberID)
	if err := s.save(t); err != nil {
		return nil, err
	}
	return t, nil
}

// Delete removes the team outright. Only ownerID may delete it.
func (s *Store) Delete(name, actorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.load(name)
	if err != nil {
		return err
	}
	if t.OwnerID != actorID {
		return ErrNotOwner
	}
	path := s.pathFor(name)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Count returns the total number of teams on disk, regardless of
// membership — for operator tooling (doctor/stats), not the wire
// team_list method, which is scoped to the caller's own teams.
func (s *Store) Count() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir())
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".json" {
			n++
		}
	}
	return n, nil
}

// IsMember reports whether memberID belongs to the named team. A
// missing team is treated as no members (not an error) since this is
// consulted on the read path where a dangling team_name must deny
// rather than fail the whole request.
func (s *Store) IsMember(name, memberID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.load(name)
	if err != nil {
		return false
	}
	return t.Members[memberID]
}

// List returns the names of every team ownerID belongs to (as owner or
// member). Scoped per-caller so one tenant cannot enumerate every team
// ever created by unrelated tenants.
func (s *Store) List(ownerID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if filepath.Ext(name) != ".json" {
			continue
		}
		name = name[:len(name)-len(".json")]
		t, err := s.load(name)
		if err != nil {
			continue
		}
		if t.Members[ownerID] {
			names = append(names, name)
		}
	}
	return names, nil
}
