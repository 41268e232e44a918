package engine

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/katra-project/katra/internal/audit"
	"github.com/katra-project/katra/internal/dispatcher"
	"github.com/katra-project/katra/internal/session"
	"github.com/katra-project/katra/internal/team"
)

type teamNameParams struct {
	TeamName  string `json:"team_name"`
	InvitedBy string `json:"invited_by"`
}

func (e *Engine) handleTeamCreate(ctx context.Context, sess *session.Session, params json.RawMessage, opts dispatcher.Options) (any, error) {
	if err := requireRegistered(sess); err != nil {
		return nil, err
	}
	var p teamNameParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.TeamName == "" {
		return nil, errMissingField("team_name")
	}
	ownerID := sess.Snapshot().OwnerID
	now := time.Now().UTC()

	t, err := e.Teams.Create(p.TeamName, ownerID, now)
	if errors.Is(err, team.ErrExists) {
		return nil, &dispatcher.Error{Code: dispatcher.CodeParams, Message: "team already exists"}
	}
	if err != nil {
		return nil, errIO(err)
	}
	_ = e.Audit.Append(audit.Record{
		EventType: audit.EventTeamCreate,
		Timestamp: now,
		ActorID:   ownerID,
		Team:      p.TeamName,
		Success:   true,
	})
	return map[string]any{"team_name": t.Name, "owner_id": t.OwnerID}, nil
}

func (e *Engine) handleTeamJoin(ctx context.Context, sess *session.Session, params json.RawMessage, opts dispatcher.Options) (any, error) {
	if err := requireRegistered(sess); err != nil {
		return nil, err
	}
	var p teamNameParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.TeamName == "" {
		return nil, errMissingField("team_name")
	}
	ownerID := sess.Snapshot().OwnerID
	now := time.Now().UTC()

	t, err := e.Teams.Join(p.TeamName, ownerID)
	if errors.Is(err, team.ErrNotFound) {
		return nil, errNotFound("team not found")
	}
	if err != nil {
		return nil, errIO(err)
	}
	_ = e.Audit.Append(audit.Record{
		EventType: audit.EventTeamJoin,
		Timestamp: now,
		ActorID:   ownerID,
		Team:      p.TeamName,
		Details:   p.InvitedBy,
		Success:   true,
	})
	members := make([]string, 0, len(t.Members))
	for m := range t.Members {
		members = append(members, m)
	}
	return map[string]any{"team_name": t.Name, "members": members}, nil
}

func (e *Engine) handleTeamLeave(ctx context.Context, sess *session.Session, params json.RawMessage, opts dispatcher.Options) (any, error) {
	if err := requireRegistered(sess); err != nil {
		return nil, err
	}
	var p teamNameParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.TeamName == "" {
		return nil, errMissingField("team_name")
	}
	ownerID := sess.Snapshot().OwnerID
	now := time.Now().UTC()

	t, err := e.Teams.Leave(p.TeamName, ownerID)
	if errors.Is(err, team.ErrNotFound) {
		return nil, errNotFound("team not found")
	}
	if err != nil {
		return nil, errIO(err)
	}
	_ = e.Audit.Append(audit.Record{
		EventType: audit.EventTeamLeave,
		Timestamp: now,
		ActorID:   ownerID,
		Team:      p.TeamName,
		Success:   true,
	})
	return map[string]any{"team_name": t.Name}, nil
}

func (e *Engine) handleTeamList(ctx context.Context, sess *session.Session, params json.RawMessage, opts dispatcher.Options) (any, error) {
	if err := requireRegistered(sess); err != nil {
		return nil, err
	}
	names, err := e.Teams.List(sess.Snapshot().OwnerID)
	if err != nil {
		return nil, errIO(err)
	}
	return map[string]any{"teams": names}, nil
}
