// Package digest implements the warm tier: periodic weekly/monthly
// summaries produced by consolidation, per spec.md §4.3.
package digest

import (
	"fmt"
	"time"
)

// PeriodType distinguishes weekly vs monthly digests.
type PeriodType string

const (
	PeriodWeekly  PeriodType = "WEEKLY"
	PeriodMonthly PeriodType = "MONTHLY"
)

// Entities groups the named-entity extraction fields of a digest.
type Entities struct {
	Files    []string `json:"files,omitempty"`
	Concepts []string `json:"concepts,omitempty"`
	People   []string `json:"people,omitempty"`
}

// Digest is produced by consolidation over a period, per spec.md §3.
type Digest struct {
	DigestID         string     `json:"digest_id"`
	PeriodID         string     `json:"period_id"` // e.g. "2025-W01" or "2025-01"
	PeriodType       PeriodType `json:"period_type"`
	DigestType       string     `json:"digest_type"`
	Timestamp        time.Time  `json:"timestamp"`
	OwnerID          string     `json:"owner_id"`
	SourceRecordCount int       `json:"source_record_count"`
	SourceTier       string     `json:"source_tier"`
	Summary          string     `json:"summary"`
	Themes           []string   `json:"themes,omitempty"`
	Keywords         []string   `json:"keywords,omitempty"`
	KeyInsights      []string   `json:"key_insights,omitempty"`
	DecisionsMade    []string   `json:"decisions_made,omitempty"`
	Entities         Entities   `json:"entities"`
	Archived         bool       `json:"archived"`
}

// WeeklyPeriodID returns the ISO-week period id ("2025-W01") for t.
// Lexically sortable, per spec.md §3's digest invariant.
func WeeklyPeriodID(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%04d-W%02d", year, week)
}

// MonthlyPeriodID returns the monthly period id ("2025-01") for t.
func MonthlyPeriodID(t time.Time) string {
	return fmt.Sprintf("%04d-%02d", t.Year(), int(t.Month()))
}
