// Package session implements the per-connection Session State and the
// name → owner_id registry, per spec.md §3/§4.6.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// defaultName is the name assigned to a connection before register() is
// called, per spec.md §4.6.
const defaultName = "Katra"

// Session is the transient, per-client state spec.md §3 names. It is
// owned by the transport connection and referenced — never mutated
// outside the owning handler goroutine — via a thread-local pointer.
type Session struct {
	mu sync.Mutex

	ChosenName   string    `json:"chosen_name"`
	Role         string    `json:"role,omitempty"`
	Registered   bool      `json:"registered"`
	FirstCall    bool      `json:"first_call"`
	ConnectedAt  time.Time `json:"connected_at"`
	MemoriesAdded int      `json:"memories_added"`
	QueriesProcessed int   `json:"queries_processed"`
	LastActivity time.Time `json:"last_activity"`

	OwnerID string `json:"owner_id,omitempty"`

	PerTurnIDs    []string `json:"per_turn_ids"`
	PerSessionIDs []string `json:"per_session_ids"`

	// DefaultIsolation/DefaultTeamName hold the isolation set_isolation
	// applied for this connection; subsequent remember/learn/decide calls
	// that omit an explicit isolation fall back to these, per spec.md
	// §4.9's set_isolation example.
	DefaultIsolation string `json:"default_isolation,omitempty"`
	DefaultTeamName  string `json:"default_team_name,omitempty"`

	// shareWith holds the recipient list set by a share_with call,
	// consumed by the next say (spec.md §4.9).
	shareWith []string
}

// New allocates a fresh Session for a just-accepted connection, per
// spec.md §4.6: default name "Katra", first_call=true, registered=false.
func New(now time.Time) *Session {
	return &Session{
		ChosenName:  defaultName,
		FirstCall:   true,
		ConnectedAt: now,
		LastActivity: now,
	}
}

// ConsumeFirstCall reports whether this is the connection's first call
// and flips first_call to false, per spec.md §4.6.
func (s *Session) ConsumeFirstCall() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	was := s.FirstCall
	s.FirstCall = false
	return was
}

// RecordStore appends recordID to both the per-turn and per-session
// lists, called whenever the owner stores a new record during a turn.
func (s *Session) RecordStore(recordID string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PerTurnIDs = append(s.PerTurnIDs, recordID)
	s.PerSessionIDs = append(s.PerSessionIDs, recordID)
	s.MemoriesAdded++
	s.LastActivity = now
}

// RecordQuery increments the query counter and touches last_activity.
func (s *Session) RecordQuery(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.QueriesProcessed++
	s.LastActivity = now
}

// ReviewTurn returns and clears the per-turn id list, per spec.md §4.6.
func (s *Session) ReviewTurn() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.PerTurnIDs
	s.PerTurnIDs = nil
	return ids
}

// SetIsolation records this connection's default isolation for future
// remember/learn/decide calls that omit an explicit one.
func (s *Session) SetIsolation(isolation, teamName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.DefaultIsolation = isolation
	s.DefaultTeamName = teamName
}

// ApplyRegistration mutates the session in place to reflect a completed
// register(name, role) call, per spec.md §4.6 steps (b)-(c): the
// connection keeps its Session pointer, but everything about its prior
// identity is replaced. Returns the per-session record ids accumulated
// under the prior identity (if any), so the caller can best-effort
// digest them before they are discarded.
func (s *Session) ApplyRegistration(ownerID, name, role string, now time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	priorSession := s.PerSessionIDs
	wasRegistered := s.Registered

	s.ChosenName = name
	s.Role = role
	s.OwnerID = ownerID
	s.Registered = true
	s.FirstCall = s.FirstCall && !wasRegistered
	s.ConnectedAt = now
	s.LastActivity = now
	s.MemoriesAdded = 0
	s.QueriesProcessed = 0
	s.PerTurnIDs = nil
	s.PerSessionIDs = nil
	s.DefaultIsolation = ""
	s.DefaultTeamName = ""
	s.shareWith = nil

	return priorSession
}

// SetShareWith records the recipient list for the next say call.
func (s *Session) SetShareWith(ciIDs []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shareWith = append([]string(nil), ciIDs...)
}

// ConsumeShareWith returns and clears the pending recipient list set
// by share_with, if any, per spec.md §4.9.
func (s *Session) ConsumeShareWith() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.shareWith
	s.shareWith = nil
	return ids
}

// PerSession returns a copy of the accumulated per-session id list.
func (s *Session) PerSession() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.PerSessionIDs))
	copy(out, s.PerSessionIDs)
	return out
}

// Snapshot returns a value copy safe to serialize or log, without the
// embedded mutex.
func (s *Session) Snapshot() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *s
	cp.mu = sync.Mutex{}
	return cp
}

// Registry mints and persists stable owner_ids for registered names,
// the mapping a connection's register(name, role) call resolves
// against. Persisted as JSON under <root>/session/owners.json, guarded
// by a single mutex the way the teacher's session Manager guards its
// cache — session mutation volume is low enough not to warrant
// per-name locking.
type Registry struct {
	path string
	mu   sync.Mutex
	byName map[string]string // name -> owner_id
}

// NewRegistry opens (creating if absent) the owner_id registry rooted
// at <root>/session.
func NewRegistry(root string) (*Registry, error) {
	dir := filepath.Join(root, "session")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("session: create dir: %w", err)
	}
	r := &Registry{path: filepath.Join(dir, "owners.json"), byName: map[string]string{}}
	if err := r.load(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) load() error {
	data, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, &r.byName)
}

func (r *Registry) save() error {
	data, err := json.MarshalIndent(r.byName, "", "  ")
	if err != nil {
		return err
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, r.path)
}

// OwnerIDs returns every owner_id ever minted, for scheduled jobs (such
// as consolidation) that must sweep every known owner.
func (r *Registry) OwnerIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.byName))
	for _, id := range r.byName {
		out = append(out, id)
	}
	return out
}

// ResolveOwnerID looks up or mints a stable owner_id for name, per
// spec.md §4.6's register() step (a). Names are case-sensitive.
func (r *Registry) ResolveOwnerID(name string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.byName[name]; ok {
		return id, nil
	}
	id := uuid.NewString()
	r.byName[name] = id
	if err := r.save(); err != nil {
		return "", fmt.Errorf("session: persist owner_id: %w", err)
	}
	return id, nil
}

