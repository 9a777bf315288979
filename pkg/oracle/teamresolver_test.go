package oracle

import (
	"context"
	"testing"
)

type fakeTeamStore struct {
	teams []Team
}

func (f *fakeTeamStore) FindTeamsByCanonicalName(_ context.Context, canonical string, leagueID *string) ([]Team, error) {
	var out []Team
	for _, t := range f.teams {
		if leagueID != nil && t.LeagueID != *leagueID {
			continue
		}
		if canonical == "" || t.CanonicalName == canonical {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeTeamStore) InsertTeam(_ context.Context, t *Team) error {
	f.teams = append(f.teams, *t)
	return nil
}

func (f *fakeTeamStore) GetLeagueByCode(_ context.Context, code string) (*League, error) {
	return NewLeague(code, code, "", 1), nil
}

func TestNormalizeStripsSuffixesAndPunctuation(t *testing.T) {
	cases := map[string]string{
		"Manchester United":      "manchester",
		"Manchester United FC":   "manchester",
		"AFC Bournemouth":        "afc bournemouth",
		"  Leeds   United  ":     "leeds",
		"Atlético Madrid":        "atltico madrid",
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestResolveExactMatch(t *testing.T) {
	store := &fakeTeamStore{teams: []Team{
		{ID: "t1", LeagueID: "EPL", CanonicalName: "manchester", Name: "Manchester United"},
	}}
	resolver := NewTeamResolver(store)
	team, err := resolver.Resolve(context.Background(), "Manchester United", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if team == nil || team.ID != "t1" {
		t.Fatalf("expected exact match on team t1, got %+v", team)
	}
}

func TestResolveFuzzyFallback(t *testing.T) {
	store := &fakeTeamStore{teams: []Team{
		{ID: "t1", LeagueID: "EPL", CanonicalName: "manchester untied"},
	}}
	resolver := NewTeamResolver(store)
	team, err := resolver.Resolve(context.Background(), "Manchester United", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if team == nil {
		t.Fatalf("expected fuzzy match to find a team despite the transposed typo")
	}
}

func TestResolveNoMatchReturnsNil(t *testing.T) {
	store := &fakeTeamStore{}
	resolver := NewTeamResolver(store)
	team, err := resolver.Resolve(context.Background(), "Nonexistent FC", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if team != nil {
		t.Errorf("expected nil for no match, got %+v", team)
	}
}

func TestCreateIfNotExistsIsIdempotent(t *testing.T) {
	store := &fakeTeamStore{}
	resolver := NewTeamResolver(store)

	first, err := resolver.CreateIfNotExists(context.Background(), "Leeds United", "EPL")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := resolver.CreateIfNotExists(context.Background(), "Leeds United", "EPL")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("expected repeated CreateIfNotExists to return the same team, got %s and %s", first.ID, second.ID)
	}
	if len(store.teams) != 1 {
		t.Errorf("expected exactly one stored team after two identical creates, got %d", len(store.teams))
	}
}

func TestJaroWinklerIdenticalStringsScoreOne(t *testing.T) {
	if got := jaroWinkler("arsenal", "arsenal"); got != 1 {
		t.Errorf("jaroWinkler identical = %f, want 1", got)
	}
}

func TestJaroWinklerDissimilarStringsScoreLow(t *testing.T) {
	if got := jaroWinkler("arsenal", "zzzzzzz"); got > 0.3 {
		t.Errorf("jaroWinkler(%q,%q) = %f, expected a low score for completely dissimilar strings", "arsenal", "zzzzzzz", got)
	}
}
