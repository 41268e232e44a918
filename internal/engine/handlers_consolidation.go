package engine

import (
	"context"
	"encoding/json"
	"time"

	"github.com/katra-project/katra/internal/digest"
	"github.com/katra-project/katra/internal/dispatcher"
	"github.com/katra-project/katra/internal/session"
)

type consolidationRunParams struct {
	DryRun bool `json:"dry_run"`
}

func (e *Engine) handleConsolidationRun(ctx context.Context, sess *session.Session, params json.RawMessage, opts dispatcher.Options) (any, error) {
	if err := requireRegistered(sess); err != nil {
		return nil, err
	}
	var p consolidationRunParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	ownerID := sess.Snapshot().OwnerID
	res, err := e.Consolidation.Run(ctx, ownerID, time.Now().UTC(), p.DryRun)
	if err != nil {
		return nil, errInternal(err)
	}
	return map[string]any{
		"candidates_found":  res.CandidatesFound,
		"digests_written":   res.DigestsWritten,
		"records_archived":  res.RecordsArchived,
		"records_compacted": res.RecordsCompacted,
		"dry_run":           p.DryRun,
	}, nil
}

type consolidationInsightsParams struct {
	Limit int `json:"limit"`
}

func (e *Engine) handleConsolidationInsights(ctx context.Context, sess *session.Session, params json.RawMessage, opts dispatcher.Options) (any, error) {
	if err := requireRegistered(sess); err != nil {
		return nil, err
	}
	var p consolidationInsightsParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}
	digests, err := e.Digests.Query(digest.Filter{
		OwnerID: sess.Snapshot().OwnerID,
		Limit:   limit,
	})
	if err != nil {
		return nil, errInternal(err)
	}
	return map[string]any{"digests": digests}, nil
}

type consolidationAcknowledgeParams struct {
	DigestID string `json:"digest_id"`
}

func (e *Engine) handleConsolidationAcknowledge(ctx context.Context, sess *session.Session, params json.RawMessage, opts dispatcher.Options) (any, error) {
	if err := requireRegistered(sess); err != nil {
		return nil, err
	}
	var p consolidationAcknowledgeParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.DigestID == "" {
		return nil, errMissingField("digest_id")
	}
	found, err := e.Digests.Acknowledge(p.DigestID)
	if err != nil {
		return nil, errIO(err)
	}
	if !found {
		return nil, errNotFound("digest not found")
	}
	return map[string]any{"digest_id": p.DigestID, "acknowledged": true}, nil
}
