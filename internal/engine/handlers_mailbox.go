package engine

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/katra-project/katra/internal/dispatcher"
	"github.com/katra-project/katra/internal/mailbox"
	"github.com/katra-project/katra/internal/session"
)

type sayParams struct {
	Message string `json:"message"`
}

func (e *Engine) handleSay(ctx context.Context, sess *session.Session, params json.RawMessage, opts dispatcher.Options) (any, error) {
	if err := requireRegistered(sess); err != nil {
		return nil, err
	}
	var p sayParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Message == "" {
		return nil, errMissingField("message")
	}
	ownerID := sess.Snapshot().OwnerID
	recipients := sess.ConsumeShareWith()
	e.Mailbox.Say(ownerID, p.Message, recipients, time.Now().UTC())
	return map[string]any{"delivered_to": recipients}, nil
}

type hearParams struct {
	LastSeenSeq uint64 `json:"last_seen_seq"`
}

func (e *Engine) handleHear(ctx context.Context, sess *session.Session, params json.RawMessage, opts dispatcher.Options) (any, error) {
	if err := requireRegistered(sess); err != nil {
		return nil, err
	}
	var p hearParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	ownerID := sess.Snapshot().OwnerID
	msg, err := e.Mailbox.Hear(ownerID, p.LastSeenSeq)
	if errors.Is(err, mailbox.ErrNoNewMessages) {
		return map[string]any{"message": nil, "no_new_messages": true}, nil
	}
	if err != nil {
		return nil, errInternal(err)
	}
	return map[string]any{"message": msg, "no_new_messages": false}, nil
}

type hearAllParams struct {
	MaxCount int `json:"max_count"`
}

func (e *Engine) handleHearAll(ctx context.Context, sess *session.Session, params json.RawMessage, opts dispatcher.Options) (any, error) {
	if err := requireRegistered(sess); err != nil {
		return nil, err
	}
	var p hearAllParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	ownerID := sess.Snapshot().OwnerID
	res := e.Mailbox.HearAll(ownerID, p.MaxCount)
	return map[string]any{
		"messages":    res.Messages,
		"more_remain": res.MoreRemain,
		"lost":        res.Lost,
	}, nil
}

func (e *Engine) handleWhoIsHere(ctx context.Context, sess *session.Session, params json.RawMessage, opts dispatcher.Options) (any, error) {
	if err := requireRegistered(sess); err != nil {
		return nil, err
	}
	return map[string]any{"owners": e.Mailbox.Owners()}, nil
}
