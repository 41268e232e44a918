package record

import "testing"

func TestValidateRejectsEmptyContent(t *testing.T) {
	r := &Record{Content: "", Importance: 0.5}
	if err := r.Validate(); err == nil {
		t.Fatal("expected error for empty content")
	}
}

func TestValidateImportanceBoundaries(t *testing.T) {
	for _, tc := range []struct {
		importance float64
		wantErr    bool
	}{
		{0, false},
		{1, false},
		{-0.001, true},
		{1.001, true},
	} {
		r := &Record{Content: "x", Importance: tc.importance}
		err := r.Validate()
		if tc.wantErr && err == nil {
			t.Fatalf("importance %v: expected error", tc.importance)
		}
		if !tc.wantErr && err != nil {
			t.Fatalf("importance %v: unexpected error %v", tc.importance, err)
		}
	}
}

func TestValidateTeamRequiresTeamName(t *testing.T) {
	r := &Record{Content: "x", Isolation: IsolationTeam}
	if err := r.Validate(); err == nil {
		t.Fatal("expected error for TEAM isolation without team_name")
	}
	r.TeamName = "arch"
	if err := r.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRejectsTooManyTags(t *testing.T) {
	tags := make([]string, maxTags+1)
	for i := range tags {
		tags[i] = "t"
	}
	r := &Record{Content: "x", Tags: tags}
	if err := r.Validate(); err == nil {
		t.Fatal("expected error for too many tags")
	}
}
