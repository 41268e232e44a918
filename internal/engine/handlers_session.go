package engine

import (
	"context"
	"encoding/json"
	"time"

	"github.com/katra-project/katra/internal/digest"
	"github.com/katra-project/katra/internal/dispatcher"
	"github.com/katra-project/katra/internal/session"
)

type registerParams struct {
	Name string `json:"name"`
	Role string `json:"role"`
}

// handleRegister implements spec.md §4.6's register(name, role):
// resolve a stable owner_id, best-effort digest the prior identity's
// per-session records before discarding them, replace the connection's identity in
// place, record a welcome memory, and join the mailbox roster.
func (e *Engine) handleRegister(ctx context.Context, sess *session.Session, params json.RawMessage, opts dispatcher.Options) (any, error) {
	var p registerParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Name == "" {
		return nil, errMissingField("name")
	}

	ownerID, err := e.Sessions.ResolveOwnerID(p.Name)
	if err != nil {
		return nil, errIO(err)
	}

	now := time.Now().UTC()
	priorOwnerID := sess.Snapshot().OwnerID
	priorIDs := sess.ApplyRegistration(ownerID, p.Name, p.Role, now)
	if len(priorIDs) > 0 && priorOwnerID != "" {
		e.bestEffortSessionDigest(priorOwnerID, priorIDs, now)
	}

	e.Mailbox.RegisterOwner(ownerID)

	welcome, err := e.store(ctx, sess, rememberParams{
		Content: "registered as " + p.Name,
	})
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"owner_id":         ownerID,
		"chosen_name":      p.Name,
		"role":             p.Role,
		"welcome_record_id": welcome.RecordID,
	}, nil
}

// bestEffortSessionDigest writes a single warm-tier digest summarizing
// a just-ended session's turn before its identity is discarded. Errors
// are swallowed: register() must never fail because the prior
// session's digest couldn't be written, per spec.md §4.6.
func (e *Engine) bestEffortSessionDigest(ownerID string, recordIDs []string, now time.Time) {
	d := &digest.Digest{
		DigestID:          "session-" + recordIDs[0],
		PeriodID:          digest.WeeklyPeriodID(now),
		PeriodType:        digest.PeriodWeekly,
		DigestType:        "session_close",
		Timestamp:         now,
		OwnerID:           ownerID,
		SourceRecordCount: len(recordIDs),
		SourceTier:        "tier1",
		Summary:           "previous session ended with unreviewed records",
	}
	_ = e.Digests.Append(d)
}

func (e *Engine) handleWhoami(ctx context.Context, sess *session.Session, params json.RawMessage, opts dispatcher.Options) (any, error) {
	snap := sess.Snapshot()
	return map[string]any{
		"chosen_name": snap.ChosenName,
		"role":        snap.Role,
		"owner_id":    snap.OwnerID,
		"registered":  snap.Registered,
	}, nil
}

func (e *Engine) handleStatus(ctx context.Context, sess *session.Session, params json.RawMessage, opts dispatcher.Options) (any, error) {
	snap := sess.Snapshot()
	return map[string]any{
		"chosen_name":       snap.ChosenName,
		"registered":        snap.Registered,
		"connected_at":      snap.ConnectedAt,
		"last_activity":     snap.LastActivity,
		"memories_added":    snap.MemoriesAdded,
		"queries_processed": snap.QueriesProcessed,
		"per_session_count": len(snap.PerSessionIDs),
	}, nil
}

type setIsolationParams struct {
	Isolation string `json:"isolation"`
	TeamName  string `json:"team_name"`
}

func (e *Engine) handleSetIsolation(ctx context.Context, sess *session.Session, params json.RawMessage, opts dispatcher.Options) (any, error) {
	if err := requireRegistered(sess); err != nil {
		return nil, err
	}
	var p setIsolationParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Isolation == "" {
		return nil, errMissingField("isolation")
	}
	sess.SetIsolation(p.Isolation, p.TeamName)
	return map[string]any{"isolation": p.Isolation, "team_name": p.TeamName}, nil
}

type shareWithParams struct {
	CIIDs []string `json:"ci_ids"`
}

func (e *Engine) handleShareWith(ctx context.Context, sess *session.Session, params json.RawMessage, opts dispatcher.Options) (any, error) {
	if err := requireRegistered(sess); err != nil {
		return nil, err
	}
	var p shareWithParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	sess.SetShareWith(p.CIIDs)
	return map[string]any{"ci_ids": p.CIIDs}, nil
}
