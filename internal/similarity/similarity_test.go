package similarity

import (
	"testing"

	"github.com/katra-project/katra/internal/record"
)

func TestNoopGrouperSingletons(t *testing.T) {
	candidates := []*record.Record{
		{RecordID: "r1", Content: "alpha"},
		{RecordID: "r2", Content: "beta"},
	}
	groups := NoopGrouper{}.Group(candidates)
	if len(groups) != 2 {
		t.Fatalf("expected 2 singleton groups, got %d", len(groups))
	}
	for _, g := range groups {
		if len(g.Members) != 1 {
			t.Fatalf("expected singleton group, got %+v", g)
		}
	}
}

func TestKeywordGrouperMergesSharedWords(t *testing.T) {
	candidates := []*record.Record{
		{RecordID: "r1", Content: "refactor the index module today"},
		{RecordID: "r2", Content: "refactor the index module tomorrow"},
		{RecordID: "r3", Content: "completely unrelated topic"},
	}
	groups := KeywordGrouper{MinShared: 3}.Group(candidates)
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d: %+v", len(groups), groups)
	}
	var merged Group
	for _, g := range groups {
		if len(g.Members) == 2 {
			merged = g
		}
	}
	if len(merged.Members) != 2 {
		t.Fatalf("expected r1/r2 to merge, got %+v", groups)
	}
}
