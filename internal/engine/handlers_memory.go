package engine

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/katra-project/katra/internal/digest"
	"github.com/katra-project/katra/internal/dispatcher"
	"github.com/katra-project/katra/internal/record"
	"github.com/katra-project/katra/internal/session"
)

type rememberParams struct {
	Content            string   `json:"content"`
	Type               string   `json:"type"`
	Importance         *float64 `json:"importance"`
	Response           string   `json:"response"`
	Context            string   `json:"context"`
	Component          string   `json:"component"`
	Tags               []string `json:"tags"`
	Isolation          string   `json:"isolation"`
	TeamName           string   `json:"team_name"`
	EmotionIntensity   float64  `json:"emotion_intensity"`
	EmotionType        string   `json:"emotion_type"`
	GraphCentrality    float64  `json:"graph_centrality"`
	ConnectedRecordIDs []string `json:"connected_record_ids"`
	MarkedImportant    bool     `json:"marked_important"`
	MarkedForgettable  bool     `json:"marked_forgettable"`
	ArchivalNotAllowed bool     `json:"archival_not_allowed"`
	ContextQuestion    string   `json:"context_question"`
	ContextResolution  string   `json:"context_resolution"`
	ContextUncertainty string   `json:"context_uncertainty"`
	RelatedTo          []string `json:"related_to"`
}

// store builds and persists one record on behalf of sess's owner,
// shared by remember/learn/decide.
func (e *Engine) store(ctx context.Context, sess *session.Session, p rememberParams) (*record.Record, error) {
	if p.Content == "" {
		return nil, errMissingField("content")
	}
	importance := 0.5
	if p.Importance != nil {
		importance = *p.Importance
	}
	snap := sess.Snapshot()
	isolation := record.IsolationPrivate
	teamName := p.TeamName
	if p.Isolation != "" {
		isolation = record.Isolation(p.Isolation)
	} else if snap.DefaultIsolation != "" {
		isolation = record.Isolation(snap.DefaultIsolation)
		if teamName == "" {
			teamName = snap.DefaultTeamName
		}
	}
	now := time.Now().UTC()
	r := &record.Record{
		RecordID:           uuid.NewString(),
		OwnerID:            snap.OwnerID,
		Timestamp:          now,
		Type:               record.Type(p.Type),
		Importance:         importance,
		Content:            p.Content,
		Response:           p.Response,
		Context:            p.Context,
		Component:          p.Component,
		Tags:               p.Tags,
		Isolation:          isolation,
		TeamName:           teamName,
		MarkedImportant:    p.MarkedImportant,
		MarkedForgettable:  p.MarkedForgettable,
		EmotionIntensity:   p.EmotionIntensity,
		EmotionType:        p.EmotionType,
		GraphCentrality:    p.GraphCentrality,
		ConnectionCount:    len(p.ConnectedRecordIDs),
		ConnectedRecordIDs: p.ConnectedRecordIDs,
		ContextQuestion:    p.ContextQuestion,
		ContextResolution:  p.ContextResolution,
		ContextUncertainty: p.ContextUncertainty,
		RelatedTo:          p.RelatedTo,
		ArchivalNotAllowed: p.ArchivalNotAllowed,
	}
	if r.Type == "" {
		r.Type = record.TypeInteraction
	}
	if err := e.Records.Store(r); err != nil {
		if err == record.ErrTierFull {
			return nil, &dispatcher.Error{Code: dispatcher.CodeTierFull, Message: "hot tier is full"}
		}
		return nil, errIO(err)
	}
	if err := e.Index.Upsert(ctx, r); err != nil {
		return nil, errInternal(err)
	}
	sess.RecordStore(r.RecordID, now)
	return r, nil
}

func (e *Engine) handleRemember(ctx context.Context, sess *session.Session, params json.RawMessage, opts dispatcher.Options) (any, error) {
	if err := requireRegistered(sess); err != nil {
		return nil, err
	}
	var p rememberParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	r, err := e.store(ctx, sess, p)
	if err != nil {
		return nil, err
	}
	return map[string]any{"record_id": r.RecordID, "timestamp": r.Timestamp}, nil
}

func (e *Engine) handleLearn(ctx context.Context, sess *session.Session, params json.RawMessage, opts dispatcher.Options) (any, error) {
	if err := requireRegistered(sess); err != nil {
		return nil, err
	}
	var p rememberParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	p.Type = string(record.TypeKnowledge)
	r, err := e.store(ctx, sess, p)
	if err != nil {
		return nil, err
	}
	return map[string]any{"record_id": r.RecordID, "timestamp": r.Timestamp}, nil
}

type decideParams struct {
	rememberParams
	Decision string `json:"decision"`
}

func (e *Engine) handleDecide(ctx context.Context, sess *session.Session, params json.RawMessage, opts dispatcher.Options) (any, error) {
	if err := requireRegistered(sess); err != nil {
		return nil, err
	}
	var p decideParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	p.rememberParams.Type = string(record.TypeDecision)
	if p.Decision != "" {
		p.rememberParams.Response = p.Decision
	}
	r, err := e.store(ctx, sess, p.rememberParams)
	if err != nil {
		return nil, err
	}
	return map[string]any{"record_id": r.RecordID, "timestamp": r.Timestamp}, nil
}

type recallParams struct {
	Topic string `json:"topic"`
	Limit int    `json:"limit"`
}

func (e *Engine) handleRecall(ctx context.Context, sess *session.Session, params json.RawMessage, opts dispatcher.Options) (any, error) {
	if err := requireRegistered(sess); err != nil {
		return nil, err
	}
	var p recallParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Topic == "" {
		return nil, errMissingField("topic")
	}
	ownerID := sess.Snapshot().OwnerID
	limit := p.Limit

	rows, err := e.Index.RecallAbout(ctx, ownerID, p.Topic, limit)
	if err != nil {
		return nil, errInternal(err)
	}

	now := time.Now().UTC()
	seen := make(map[string]bool, len(rows))
	out := make([]*record.Record, 0, len(rows))
	for _, row := range rows {
		r, err := e.Records.ByID(ownerID, row.RecordID)
		if err != nil || r == nil {
			continue
		}
		seen[r.RecordID] = true
		r.Touch(now)
		_ = e.Records.Update(r)
		_ = e.Index.TouchAccess(ctx, r.RecordID, now)
		out = append(out, r)
	}

	// recall_about also surfaces other owners' TEAM/PUBLIC records the
	// requester is allowed to see, per spec.md §4.5's team-visibility
	// scenario — recall is not confined to the requester's own owner_id.
	if limit <= 0 || len(out) < limit {
		crossLimit := limit
		if crossLimit > 0 {
			crossLimit -= len(out)
		}
		crossRows, err := e.Index.RecallAny(ctx, p.Topic, maxRecallLimit(crossLimit))
		if err == nil {
			for _, row := range crossRows {
				if row.OwnerID == ownerID || seen[row.RecordID] {
					continue
				}
				r, err := e.Records.ByIDAny(row.RecordID)
				if err != nil || r == nil {
					continue
				}
				if !e.Access.Filter(ownerID, r) {
					continue
				}
				seen[r.RecordID] = true
				r.Touch(now)
				_ = e.Records.Update(r)
				_ = e.Index.TouchAccess(ctx, r.RecordID, now)
				out = append(out, r)
				if limit > 0 && len(out) >= limit {
					break
				}
			}
		}
	}

	sess.RecordQuery(now)
	return map[string]any{"records": out}, nil
}

func maxRecallLimit(n int) int {
	if n <= 0 {
		return 100
	}
	return n
}

type recentParams struct {
	Limit            int    `json:"limit"`
	SinceRFC3339     string `json:"since"`
	Type             string `json:"type"`
	IncludeArchived  bool   `json:"include_archived"`
}

func (e *Engine) handleRecent(ctx context.Context, sess *session.Session, params json.RawMessage, opts dispatcher.Options) (any, error) {
	if err := requireRegistered(sess); err != nil {
		return nil, err
	}
	var p recentParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	f := record.Filter{OwnerID: sess.Snapshot().OwnerID, Limit: p.Limit, IncludeArchived: p.IncludeArchived}
	if p.SinceRFC3339 != "" {
		if t, err := time.Parse(time.RFC3339, p.SinceRFC3339); err == nil {
			f.Since = t
		}
	}
	if p.Type != "" {
		f.Types = []record.Type{record.Type(p.Type)}
	}
	recs, err := e.Records.Query(f)
	if err != nil {
		return nil, errInternal(err)
	}
	sess.RecordQuery(time.Now().UTC())
	return map[string]any{"records": recs}, nil
}

type updateMetadataParams struct {
	RecordID           string   `json:"record_id"`
	MarkedImportant    *bool    `json:"marked_important"`
	MarkedForgettable  *bool    `json:"marked_forgettable"`
	ArchivalNotAllowed *bool    `json:"archival_not_allowed"`
	Importance         *float64 `json:"importance"`
	Tags               []string `json:"tags"`
}

func (e *Engine) handleUpdateMetadata(ctx context.Context, sess *session.Session, params json.RawMessage, opts dispatcher.Options) (any, error) {
	if err := requireRegistered(sess); err != nil {
		return nil, err
	}
	var p updateMetadataParams
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
	if p.MarkedImportant != nil {
		r.MarkedImportant = *p.MarkedImportant
	}
	if p.MarkedForgettable != nil {
		r.MarkedForgettable = *p.MarkedForgettable
	}
	if p.ArchivalNotAllowed != nil {
		r.ArchivalNotAllowed = *p.ArchivalNotAllowed
	}
	if p.Importance != nil {
		r.Importance = *p.Importance
	}
	if p.Tags != nil {
		r.Tags = p.Tags
	}
	if err := e.Records.Update(r); err != nil {
		return nil, errIO(err)
	}
	if err := e.Index.Upsert(ctx, r); err != nil {
		return nil, errInternal(err)
	}
	return map[string]any{"record_id": r.RecordID}, nil
}

func (e *Engine) handleReviewTurn(ctx context.Context, sess *session.Session, params json.RawMessage, opts dispatcher.Options) (any, error) {
	ids := sess.ReviewTurn()
	return map[string]any{"record_ids": ids}, nil
}

type memoryDigestParams struct {
	PeriodType      string `json:"period_type"`
	SinceRFC3339    string `json:"since"`
	ThemeContains   string `json:"theme_contains"`
	KeywordContains string `json:"keyword_contains"`
	IncludeArchived bool   `json:"include_archived"`
	Limit           int    `json:"limit"`
}

func (e *Engine) handleMemoryDigest(ctx context.Context, sess *session.Session, params json.RawMessage, opts dispatcher.Options) (any, error) {
	if err := requireRegistered(sess); err != nil {
		return nil, err
	}
	var p memoryDigestParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	f := digest.Filter{
		OwnerID:         sess.Snapshot().OwnerID,
		ThemeContains:   p.ThemeContains,
		KeywordContains: p.KeywordContains,
		IncludeArchived: p.IncludeArchived,
		Limit:           p.Limit,
	}
	if p.PeriodType != "" {
		f.PeriodType = digest.PeriodType(p.PeriodType)
	}
	if p.SinceRFC3339 != "" {
		if t, err := time.Parse(time.RFC3339, p.SinceRFC3339); err == nil {
			f.Since = t
		}
	}
	digests, err := e.Digests.Query(f)
	if err != nil {
		return nil, errInternal(err)
	}
	return map[string]any{"digests": digests}, nil
}

