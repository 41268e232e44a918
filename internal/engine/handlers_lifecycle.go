package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/katra-project/katra/internal/audit"
	"github.com/katra-project/katra/internal/consolidation"
	"github.com/katra-project/katra/internal/dispatcher"
	"github.com/katra-project/katra/internal/session"
)

type archiveParams struct {
	RecordID string `json:"record_id"`
	Reason   string `json:"reason"`
}

func (e *Engine) handleArchive(ctx context.Context, sess *session.Session, params json.RawMessage, opts dispatcher.Options) (any, error) {
	if err := requireRegistered(sess); err != nil {
		return nil, err
	}
	var p archiveParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.RecordID == "" {
		return nil, errMissingField("record_id")
	}
	ownerID := sess.Snapshot().OwnerID
	now := time.Now().UTC()

	r, err := e.Records.ByID(ownerID, p.RecordID)
	if err != nil {
		return nil, errInternal(err)
	}
	if r == nil {
		return nil, errNotFound("record not found")
	}
	if err := e.Consolidation.Archive(ctx, ownerID, p.RecordID, p.Reason, now); err != nil {
		return nil, errInternal(err)
	}
	r.Archived = true
	r.ArchivedAt = &now
	r.ArchiveReason = p.Reason
	if err := e.Records.Update(r); err != nil {
		return nil, errIO(err)
	}
	return map[string]any{"record_id": p.RecordID, "archived": true}, nil
}

type fadeParams struct {
	RecordID         string  `json:"record_id"`
	TargetImportance float64 `json:"target_importance"`
}

func (e *Engine) handleFade(ctx context.Context, sess *session.Session, params json.RawMessage, opts dispatcher.Options) (any, error) {
	if err := requireRegistered(sess); err != nil {
		return nil, err
	}
	var p fadeParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.RecordID == "" {
		return nil, errMissingField("record_id")
	}
	ownerID := sess.Snapshot().OwnerID

	r, err := e.Records.ByID(ownerID, p.RecordID)
	if err != nil {
		return nil, errInternal(err)
	}
	if r == nil {
		return nil, errNotFound("record not found")
	}
	if err := e.Consolidation.Fade(ctx, p.RecordID, p.TargetImportance); err != nil {
		return nil, errInternal(err)
	}
	r.Importance = p.TargetImportance
	r.MarkedForgettable = true
	if err := e.Records.Update(r); err != nil {
		return nil, errIO(err)
	}
	return map[string]any{"record_id": p.RecordID, "importance": p.TargetImportance}, nil
}

type forgetParams struct {
	RecordID  string `json:"record_id"`
	Reason    string `json:"reason"`
	CIConsent bool   `json:"ci_consent"`
}

func (e *Engine) handleForget(ctx context.Context, sess *session.Session, params json.RawMessage, opts dispatcher.Options) (any, error) {
	if err := requireRegistered(sess); err != nil {
		return nil, err
	}
	var p forgetParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.RecordID == "" {
		return nil, errMissingField("record_id")
	}
	ownerID := sess.Snapshot().OwnerID
	now := time.Now().UTC()

	err := e.Consolidation.Forget(ctx, ownerID, p.RecordID, p.Reason, p.CIConsent, now)
	if errors.Is(err, consolidation.ErrConsentRequired) {
		return nil, &dispatcher.Error{Code: dispatcher.CodeParams, Message: "ci_consent must be true"}
	}
	if err != nil {
		return nil, errInternal(err)
	}
	return map[string]any{"record_id": p.RecordID, "forgotten": true}, nil
}

type forgetByPatternParams struct {
	Pattern string `json:"pattern"`
	DryRun  bool   `json:"dry_run"`
}

func (e *Engine) handleForgetByPattern(ctx context.Context, sess *session.Session, params json.RawMessage, opts dispatcher.Options) (any, error) {
	if err := requireRegistered(sess); err != nil {
		return nil, err
	}
	var p forgetByPatternParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Pattern == "" {
		return nil, errMissingField("pattern")
	}
	ownerID := sess.Snapshot().OwnerID
	now := time.Now().UTC()

	candidates, err := e.Index.ForgetByPattern(ctx, ownerID, p.Pattern, p.DryRun, now)
	if err != nil {
		return nil, errInternal(err)
	}

	ids := make([]string, 0, len(candidates))
	deleted := 0
	for _, c := range candidates {
		ids = append(ids, c.RecordID)
		if p.DryRun {
			continue
		}
		if _, err := e.Records.Delete(ownerID, c.RecordID, c.Timestamp); err != nil {
			continue
		}
		deleted++
	}
	if !p.DryRun {
		_ = e.Audit.Append(audit.Record{
			EventType: audit.EventMemoryForget,
			Timestamp: now,
			ActorID:   ownerID,
			Details:   fmt.Sprintf("forget_by_pattern %q matched %d record(s)", p.Pattern, deleted),
			Success:   true,
		})
	}
	return map[string]any{"record_ids": ids, "dry_run": p.DryRun}, nil
}
