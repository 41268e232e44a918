// Package access implements the access-control decision table of
// spec.md §4.5: who may read whose records, and the audit trail that
// follows every decision.
package access

import (
	"fmt"

	"github.com/katra-project/katra/internal/audit"
	"github.com/katra-project/katra/internal/record"
	"github.com/katra-project/katra/internal/team"
)

// Checker evaluates read access and writes the corresponding audit row.
type Checker struct {
	teams *team.Store
	audit *audit.Log
}

func NewChecker(teams *team.Store, log *audit.Log) *Checker {
	return &Checker{teams: teams, audit: log}
}

func (c *Checker) allowTeam(requesterID string, r *record.Record) bool {
	if requesterID == r.OwnerID {
		return true
	}
	if r.Isolation != record.IsolationTeam {
		return false
	}
	return c.teams.IsMember(r.TeamName, requesterID)
}

// Filter applies the full table — including team membership — to one
// record, auditing the decision.
func (c *Checker) Filter(requesterID string, r *record.Record) bool {
	if requesterID == r.OwnerID {
		return true
	}
	switch r.Isolation {
	case record.IsolationPublic:
		_ = c.audit.Allowed(requesterID, r.OwnerID, r.RecordID)
		return true
	case record.IsolationTeam:
		if c.allowTeam(requesterID, r) {
			_ = c.audit.Allowed(requesterID, r.OwnerID, r.RecordID)
			return true
		}
		_ = c.audit.Denied(requesterID, r.OwnerID, r.RecordID, fmt.Sprintf("requester not in team %q", r.TeamName))
		return false
	case record.IsolationPrivate:
		_ = c.audit.Denied(requesterID, r.OwnerID, r.RecordID, "record is PRIVATE")
		return false
	default:
		_ = c.audit.Denied(requesterID, r.OwnerID, r.RecordID, fmt.Sprintf("unknown isolation %q", r.Isolation))
		return false
	}
}

// FilterAll applies Filter to every record, keeping the allowed subset.
func (c *Checker) FilterAll(requesterID string, recs []*record.Record) []*record.Record {
	out := make([]*record.Record, 0, len(recs))
	for _, r := range recs {
		if c.Filter(requesterID, r) {
			out = append(out, r)
		}
	}
	return out
}
