// Package consolidation implements the archival/digest pipeline of
// spec.md §4.4: selection, grouping, digest write, hot-tier
// disposition, and audit.
package consolidation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/katra-project/katra/internal/audit"
	"github.com/katra-project/katra/internal/digest"
	"github.com/katra-project/katra/internal/index"
	"github.com/katra-project/katra/internal/record"
	"github.com/katra-project/katra/internal/similarity"
)

// ErrConsentRequired matches forget()'s ci_consent=true requirement.
var ErrConsentRequired = errors.New("consolidation: ERR_CONSENT_DENIED")

// Engine runs the consolidation pipeline for one owner at a time. It is
// re-entrant per owner but callers must serialize concurrent runs
// themselves (the dispatcher's engine lock does this in production).
type Engine struct {
	Records *record.Store
	Index   *index.Index
	Digests *digest.Store
	Audit   *audit.Log
	Grouper similarity.Grouper

	MaxAgeDays        int
	CompactThreshold  float64 // fraction of archived rows that triggers compaction, default 0.25
	PreservationWindow time.Duration // last_accessed-within window, default 7 days
}

// NewEngine builds an Engine with spec.md §4.4's defaults filled in for
// any zero-valued tunable.
func NewEngine(records *record.Store, idx *index.Index, digests *digest.Store, auditLog *audit.Log, grouper similarity.Grouper) *Engine {
	if grouper == nil {
		grouper = similarity.NoopGrouper{}
	}
	return &Engine{
		Records:            records,
		Index:              idx,
		Digests:            digests,
		Audit:              auditLog,
		Grouper:            grouper,
		MaxAgeDays:         90,
		CompactThreshold:   0.25,
		PreservationWindow: 7 * 24 * time.Hour,
	}
}

// Result summarizes one Run.
type Result struct {
	CandidatesFound  int
	DigestsWritten   int
	RecordsArchived  int
	RecordsCompacted int
}

// Run executes one consolidation pass for ownerID, as of now. DryRun
// evaluates candidate selection only: it returns before grouping and
// writes no digests, archives nothing, and compacts nothing — matching
// the dispatcher's dry_run option.
func (e *Engine) Run(ctx context.Context, ownerID string, now time.Time, dryRun bool) (Result, error) {
	var res Result

	recs, err := e.Records.Query(record.Filter{OwnerID: ownerID})
	if err != nil {
		return res, fmt.Errorf("consolidation: query hot tier: %w", err)
	}

	candidates := e.selectCandidates(recs, now)
	res.CandidatesFound = len(candidates)
	if len(candidates) == 0 || dryRun {
		return res, nil
	}

	groups := e.Grouper.Group(candidates)
	periodID := digest.WeeklyPeriodID(now)

	for _, g := range groups {
		patternID := g.PatternID
		if patternID == "" && len(g.Members) > 1 {
			patternID = periodID + "-" + g.Members[0].RecordID
		}

		d := &digest.Digest{
			DigestID:          periodID + "-" + g.Members[0].RecordID,
			PeriodID:          periodID,
			PeriodType:        digest.PeriodWeekly,
			DigestType:        "consolidation",
			Timestamp:         now.UTC(),
			OwnerID:           ownerID,
			SourceRecordCount: len(g.Members),
			SourceTier:        "tier1",
			Summary:           summarize(g.Members),
		}
		if err := e.Digests.Append(d); err != nil {
			return res, fmt.Errorf("consolidation: write digest: %w", err)
		}
		_ = e.Audit.Append(audit.Record{
			EventType: audit.EventDigestEmit,
			Timestamp: now.UTC(),
			ActorID:   ownerID,
			Details:   d.DigestID,
			Success:   true,
		})
		res.DigestsWritten++

		for _, member := range g.Members {
			if _, err := e.Index.Archive(ctx, member.RecordID, "consolidation", now); err != nil {
				return res, fmt.Errorf("consolidation: archive %s: %w", member.RecordID, err)
			}
			archivedAt := now.UTC()
			member.Archived = true
			member.ArchivedAt = &archivedAt
			member.ArchiveReason = "consolidation"
			if patternID != "" {
				member.PatternID = patternID
			}
			if err := e.Records.Update(member); err != nil {
				return res, fmt.Errorf("consolidation: mark archived %s: %w", member.RecordID, err)
			}
			_ = e.Audit.Append(audit.Record{
				EventType: audit.EventMemoryArchive,
				Timestamp: now.UTC(),
				ActorID:   ownerID,
				RecordID:  member.RecordID,
				Details:   "consolidation archival",
				Success:   true,
			})
			res.RecordsArchived++
		}
	}

	compacted, err := e.compactAll(ownerID, now)
	if err != nil {
		return res, err
	}
	res.RecordsCompacted = compacted
	return res, nil
}

// selectCandidates implements spec.md §4.4 step 1's selection rule.
func (e *Engine) selectCandidates(recs []*record.Record, now time.Time) []*record.Record {
	cutoff := now.Add(-time.Duration(e.MaxAgeDays) * 24 * time.Hour)
	var out []*record.Record
	for _, r := range recs {
		if r.Archived {
			continue
		}
		if r.MarkedForgettable {
			out = append(out, r)
			continue
		}
		if r.MarkedImportant {
			continue
		}
		if !r.Timestamp.Before(cutoff) {
			continue
		}
		if e.preserved(r, now) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func (e *Engine) preserved(r *record.Record, now time.Time) bool {
	if r.ArchivalNotAllowed {
		return true
	}
	if r.LastAccessed != nil && now.Sub(*r.LastAccessed) < e.PreservationWindow {
		return true
	}
	if r.EmotionIntensity >= 0.7 {
		return true
	}
	if r.GraphCentrality >= 0.5 {
		return true
	}
	return false
}

// compactAll rewrites every hot-tier day file holding any of ownerID's
// records (archived or not), dropping archived rows once a file crosses
// the threshold,
// per spec.md §4.4 step 4.
func (e *Engine) compactAll(ownerID string, now time.Time) (int, error) {
	recs, err := e.Records.Query(record.Filter{OwnerID: ownerID, IncludeArchived: true})
	if err != nil {
		return 0, err
	}
	seenDays := map[string]time.Time{}
	for _, r := range recs {
		day := r.Timestamp.UTC().Truncate(24 * time.Hour)
		seenDays[day.Format("2006-01-02")] = day
	}
	total := 0
	for _, day := range seenDays {
		n, err := e.Records.Compact(day, e.CompactThreshold)
		if err != nil {
			return total, fmt.Errorf("consolidation: compact %s: %w", day.Format("2006-01-02"), err)
		}
		total += n
	}
	return total, nil
}

func summarize(members []*record.Record) string {
	if len(members) == 1 {
		return members[0].Content
	}
	return fmt.Sprintf("%d related memories consolidated", len(members))
}

// Archive implements the standalone archive() lifecycle verb.
func (e *Engine) Archive(ctx context.Context, ownerID, recordID, reason string, now time.Time) error {
	if _, err := e.Index.Archive(ctx, recordID, reason, now); err != nil {
		return err
	}
	_ = e.Audit.Append(audit.Record{
		EventType: audit.EventMemoryArchive,
		Timestamp: now.UTC(),
		ActorID:   ownerID,
		RecordID:  recordID,
		Details:   reason,
		Success:   true,
	})
	return nil
}

// Fade implements the standalone fade() lifecycle verb: lowers
// importance and marks the record forgettable so the next
// consolidation cycle picks it up.
func (e *Engine) Fade(ctx context.Context, recordID string, targetImportance float64) error {
	_, err := e.Index.Fade(ctx, recordID, targetImportance)
	return err
}

// Forget implements the standalone forget() lifecycle verb. Only
// proceeds when ciConsent is explicitly true, per spec.md §4.4.
func (e *Engine) Forget(ctx context.Context, ownerID, recordID, reason string, ciConsent bool, now time.Time) error {
	if !ciConsent {
		return ErrConsentRequired
	}
	r, err := e.Records.ByID(ownerID, recordID)
	if err != nil {
		return err
	}
	var content string
	if r != nil {
		content = r.Content
	}
	if err := e.Index.Forget(ctx, ownerID, recordID, content, reason, now); err != nil {
		return err
	}
	if r != nil {
		if _, err := e.Records.Delete(ownerID, recordID, r.Timestamp); err != nil {
			return err
		}
	}
	_ = e.Audit.Append(audit.Record{
		EventType: audit.EventMemoryForget,
		Timestamp: now.UTC(),
		ActorID:   ownerID,
		RecordID:  recordID,
		Details:   reason,
		Success:   true,
	})
	return nil
}
