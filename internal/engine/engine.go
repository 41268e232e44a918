// Package engine wires the record/index/digest/consolidation/access/
// team/session/mailbox stores together and registers the dispatcher
// method set of spec.md §6 against them.
package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/katra-project/katra/internal/access"
	"github.com/katra-project/katra/internal/audit"
	"github.com/katra-project/katra/internal/config"
	"github.com/katra-project/katra/internal/consolidation"
	"github.com/katra-project/katra/internal/digest"
	"github.com/katra-project/katra/internal/dispatcher"
	"github.com/katra-project/katra/internal/index"
	"github.com/katra-project/katra/internal/mailbox"
	"github.com/katra-project/katra/internal/record"
	"github.com/katra-project/katra/internal/session"
	"github.com/katra-project/katra/internal/similarity"
	"github.com/katra-project/katra/internal/team"
)

// Engine holds every store the dispatcher's handlers close over. One
// Engine is built per process and is never mutated after New returns;
// concurrent handler bodies are already serialized by the dispatcher's
// engine lock, so nothing here needs its own top-level lock.
type Engine struct {
	Config *config.Config

	Records       *record.Store
	Index         *index.Index
	Digests       *digest.Store
	Audit         *audit.Log
	Teams         *team.Store
	Access        *access.Checker
	Sessions      *session.Registry
	Mailbox       *mailbox.Mailbox
	Consolidation *consolidation.Engine
}

// New opens every store rooted at cfg.Root and wires the access
// checker and consolidation engine over them.
func New(ctx context.Context, cfg *config.Config) (*Engine, error) {
	records := record.NewStore(cfg.Root, cfg.Tiers.Tier1MaxFileMB)
	idx, err := index.Open(ctx, cfg.Root, records)
	if err != nil {
		return nil, fmt.Errorf("engine: open index: %w", err)
	}
	digests := digest.NewStore(cfg.Root, cfg.Tiers.Tier2MaxFileMB)
	auditLog := audit.Open(cfg.Root)
	teams := team.NewStore(cfg.Root)
	sessions, err := session.NewRegistry(cfg.Root)
	if err != nil {
		idx.Close()
		return nil, fmt.Errorf("engine: open session registry: %w", err)
	}

	e := &Engine{
		Config:        cfg,
		Records:       records,
		Index:         idx,
		Digests:       digests,
		Audit:         auditLog,
		Teams:         teams,
		Access:        access.NewChecker(teams, auditLog),
		Sessions:      sessions,
		Mailbox:       mailbox.New(0),
		Consolidation: consolidation.NewEngine(records, idx, digests, auditLog, similarity.NoopGrouper{}),
	}
	e.Consolidation.MaxAgeDays = cfg.Consolidation.MaxAgeDays
	return e, nil
}

// Close releases resources that need explicit cleanup (currently only
// the index's sqlite connection).
func (e *Engine) Close() error {
	return e.Index.Close()
}

// RegisterAll binds every wire method of spec.md §6 to its handler,
// each wrapped so a connection's first dispatched call — whichever
// method it happens to be — carries the onboarding preamble spec.md
// §4.6 requires.
func (e *Engine) RegisterAll(d *dispatcher.Dispatcher) {
	d.Register("remember", withOnboarding(e.handleRemember))
	d.Register("recall", withOnboarding(e.handleRecall))
	d.Register("recent", withOnboarding(e.handleRecent))
	d.Register("memory_digest", withOnboarding(e.handleMemoryDigest))
	d.Register("learn", withOnboarding(e.handleLearn))
	d.Register("decide", withOnboarding(e.handleDecide))
	d.Register("register", withOnboarding(e.handleRegister))
	d.Register("whoami", withOnboarding(e.handleWhoami))
	d.Register("status", withOnboarding(e.handleStatus))
	d.Register("update_metadata", withOnboarding(e.handleUpdateMetadata))
	d.Register("team_create", withOnboarding(e.handleTeamCreate))
	d.Register("team_join", withOnboarding(e.handleTeamJoin))
	d.Register("team_leave", withOnboarding(e.handleTeamLeave))
	d.Register("team_list", withOnboarding(e.handleTeamList))
	d.Register("set_isolation", withOnboarding(e.handleSetIsolation))
	d.Register("share_with", withOnboarding(e.handleShareWith))
	d.Register("say", withOnboarding(e.handleSay))
	d.Register("hear", withOnboarding(e.handleHear))
	d.Register("hear_all", withOnboarding(e.handleHearAll))
	d.Register("who_is_here", withOnboarding(e.handleWhoIsHere))
	d.Register("archive", withOnboarding(e.handleArchive))
	d.Register("fade", withOnboarding(e.handleFade))
	d.Register("forget", withOnboarding(e.handleForget))
	d.Register("forget_by_pattern", withOnboarding(e.handleForgetByPattern))
	d.Register("review_turn", withOnboarding(e.handleReviewTurn))
	d.Register("consolidation_run", withOnboarding(e.handleConsolidationRun))
	d.Register("consolidation_insights", withOnboarding(e.handleConsolidationInsights))
	d.Register("consolidation_acknowledge", withOnboarding(e.handleConsolidationAcknowledge))
}

// onboardingPreamble is merged into the result of a connection's first
// dispatched call, per spec.md §4.6: "The first call on a connection
// sets first_call=false after returning an onboarding preamble
// alongside the normal result."
const onboardingPreamble = "Welcome to Katra. You're connected as the default " +
	`"Katra" identity — call register(name, role) to claim a stable owner_id ` +
	"before storing anything you want to keep across connections."

// withOnboarding wraps h so that sess.ConsumeFirstCall reporting true
// after a successful call merges onboarding_preamble into the result.
// Errors leave first_call consumed but return no preamble, since the
// error envelope carries no result field to merge it into.
func withOnboarding(h dispatcher.Handler) dispatcher.Handler {
	return func(ctx context.Context, sess *session.Session, params json.RawMessage, opts dispatcher.Options) (any, error) {
		result, err := h(ctx, sess, params, opts)
		first := sess.ConsumeFirstCall()
		if err != nil || !first {
			return result, err
		}
		out, ok := result.(map[string]any)
		if !ok {
			return result, err
		}
		out["onboarding_preamble"] = onboardingPreamble
		return out, err
	}
}
