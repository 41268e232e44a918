// Package similarity supplies the pluggable grouping function
// consolidation uses to cluster candidate records into a pattern,
// per spec.md §4.4. No implementation here makes a network or model
// call — LLM invocation is out of scope for this system.
package similarity

import (
	"strings"

	"github.com/katra-project/katra/internal/record"
)

// Group is one cluster of candidate records destined for a single
// digest; PatternID is propagated back to surviving members.
type Group struct {
	PatternID string
	Members   []*record.Record
}

// Grouper clusters archival candidates into groups. The default
// (NoopGrouper) places each candidate in its own singleton group,
// matching spec.md §4.4's "default: none, each record stands alone."
type Grouper interface {
	Group(candidates []*record.Record) []Group
}

// NoopGrouper never merges candidates.
type NoopGrouper struct{}

func (NoopGrouper) Group(candidates []*record.Record) []Group {
	groups := make([]Group, 0, len(candidates))
	for _, c := range candidates {
		groups = append(groups, Group{Members: []*record.Record{c}})
	}
	return groups
}

// KeywordGrouper clusters candidates that share at least MinShared
// case-folded whitespace-delimited content words, as a concrete,
// non-network worked example of the Grouper extension point. It is
// deliberately simple: no stemming, no embeddings, no external calls.
type KeywordGrouper struct {
	MinShared int
}

func (g KeywordGrouper) Group(candidates []*record.Record) []Group {
	if g.MinShared <= 0 {
		g.MinShared = 2
	}
	wordSets := make([]map[string]bool, len(candidates))
	for i, c := range candidates {
		wordSets[i] = wordSet(c.Content)
	}

	assigned := make([]bool, len(candidates))
	var groups []Group
	for i := range candidates {
		if assigned[i] {
			continue
		}
		members := []*record.Record{candidates[i]}
		assigned[i] = true
		for j := i + 1; j < len(candidates); j++ {
			if assigned[j] {
				continue
			}
			if sharedWords(wordSets[i], wordSets[j]) >= g.MinShared {
				members = append(members, candidates[j])
				assigned[j] = true
			}
		}
		groups = append(groups, Group{Members: members})
	}
	return groups
}

func wordSet(content string) map[string]bool {
	words := strings.Fields(strings.ToLower(content))
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}

func sharedWords(a, b map[string]bool) int {
	n := 0
	for w := range a {
		if b[w] {
			n++
		}
	}
	return n
}
