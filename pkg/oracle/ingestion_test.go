package oracle

import (
	"context"
	"testing"
)

type fakeMatchStore struct {
	byKey map[string]*Match
}

func newFakeMatchStore() *fakeMatchStore {
	return &fakeMatchStore{byKey: make(map[string]*Match)}
}

func (f *fakeMatchStore) UpsertMatch(_ context.Context, m *Match) (bool, error) {
	key := m.HomeTeamID + "|" + m.AwayTeamID + "|" + m.MatchDate.Format("2006-01-02")
	_, existed := f.byKey[key]
	f.byKey[key] = m
	return !existed, nil
}

func ingestionFixtures() (*Ingestor, *fakeMatchStore) {
	teamStore := &fakeTeamStore{teams: []Team{
		{ID: "h1", LeagueID: "EPL", CanonicalName: "arsenal"},
		{ID: "a1", LeagueID: "EPL", CanonicalName: "chelsea"},
	}}
	leagues := &fakeLeagueReader{leagues: map[string]*League{"EPL": {ID: "EPL", Code: "EPL"}}}
	matches := newFakeMatchStore()
	resolver := NewTeamResolver(teamStore)
	return NewIngestor(resolver, matches, leagues), matches
}

const sampleCSV = "date,home_team,away_team,home_goals,away_goals,odds_home,odds_draw,odds_away\n" +
	"15/08/2025,Arsenal,Chelsea,2,1,1.8,3.5,4.2\n"

func TestIngestInsertsNewMatch(t *testing.T) {
	ig, matches := ingestionFixtures()
	result, err := ig.Ingest(context.Background(), "EPL", []byte(sampleCSV), IngestOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Inserted != 1 || result.Updated != 0 || result.Skipped != 0 {
		t.Errorf("expected exactly one insert, got %+v", result)
	}
	if len(matches.byKey) != 1 {
		t.Errorf("expected one stored match, got %d", len(matches.byKey))
	}
}

func TestIngestReingestionUpdatesNotDuplicates(t *testing.T) {
	ig, matches := ingestionFixtures()
	if _, err := ig.Ingest(context.Background(), "EPL", []byte(sampleCSV), IngestOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	result, err := ig.Ingest(context.Background(), "EPL", []byte(sampleCSV), IngestOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Updated != 1 || result.Inserted != 0 {
		t.Errorf("expected re-ingesting the same row to update, not insert, got %+v", result)
	}
	if len(matches.byKey) != 1 {
		t.Errorf("expected re-ingestion to not duplicate storage, got %d rows", len(matches.byKey))
	}
}

func TestIngestUnknownLeagueErrors(t *testing.T) {
	ig, _ := ingestionFixtures()
	_, err := ig.Ingest(context.Background(), "NOPE", []byte(sampleCSV), IngestOptions{})
	if err == nil {
		t.Fatal("expected an error for an unregistered league code")
	}
	oe, ok := AsOracleError(err)
	if !ok || oe.Code != CodeLeagueRequired {
		t.Errorf("expected CodeLeagueRequired, got %v", err)
	}
}

func TestIngestMissingRequiredColumnsErrors(t *testing.T) {
	ig, _ := ingestionFixtures()
	badCSV := "date,home_team,away_team\n15/08/2025,Arsenal,Chelsea\n"
	_, err := ig.Ingest(context.Background(), "EPL", []byte(badCSV), IngestOptions{})
	if err == nil {
		t.Fatal("expected schema mismatch for missing goals columns")
	}
	oe, ok := AsOracleError(err)
	if !ok || oe.Code != CodeSchemaMismatch {
		t.Errorf("expected CodeSchemaMismatch, got %v", err)
	}
}

func TestIngestUnresolvedTeamSkipsWithoutAllowCreation(t *testing.T) {
	ig, matches := ingestionFixtures()
	csv := "date,home_team,away_team,home_goals,away_goals\n15/08/2025,Unknown FC,Chelsea,1,0\n"
	result, err := ig.Ingest(context.Background(), "EPL", []byte(csv), IngestOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Skipped != 1 || result.Inserted != 0 {
		t.Errorf("expected the unresolved team row to be skipped, got %+v", result)
	}
	if len(matches.byKey) != 0 {
		t.Errorf("expected no rows stored for a skipped match")
	}
}

func TestIngestAllowsTeamCreationWhenOptedIn(t *testing.T) {
	ig, _ := ingestionFixtures()
	csv := "date,home_team,away_team,home_goals,away_goals\n15/08/2025,Brand New FC,Chelsea,1,0\n"
	result, err := ig.Ingest(context.Background(), "EPL", []byte(csv), IngestOptions{AllowTeamCreation: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Inserted != 1 {
		t.Errorf("expected the new team to be created and the row inserted, got %+v", result)
	}
}

func TestResolveColumnsAcceptsAliases(t *testing.T) {
	header := []string{"Date", "HomeTeam", "AwayTeam", "FTHG", "FTAG", "B365H", "B365D", "B365A"}
	idx, missing := resolveColumns(header)
	if len(missing) != 0 {
		t.Errorf("expected every required column to resolve via alias, missing=%v", missing)
	}
	if idx["home_goals"] != 3 || idx["away_goals"] != 4 {
		t.Errorf("expected FTHG/FTAG to resolve to indices 3/4, got %v", idx)
	}
}

func TestResolveColumnsReportsMissing(t *testing.T) {
	header := []string{"date", "home_team", "away_team"}
	_, missing := resolveColumns(header)
	if len(missing) != 2 {
		t.Errorf("expected home_goals and away_goals to be reported missing, got %v", missing)
	}
}

func TestParseTolerantDateTriesMultipleLayouts(t *testing.T) {
	cases := []string{"15/08/2025", "2025-08-15", "15-08-2025", "15.08.2025"}
	for _, raw := range cases {
		if _, err := parseTolerantDate(raw, 2026); err != nil {
			t.Errorf("parseTolerantDate(%q) unexpected error: %v", raw, err)
		}
	}
}

func TestParseTolerantDateRejectsImplausibleYear(t *testing.T) {
	if _, err := parseTolerantDate("15/08/1850", 2026); err == nil {
		t.Error("expected a year before 1900 to be rejected")
	}
	if _, err := parseTolerantDate("15/08/2099", 2026); err == nil {
		t.Error("expected a year far beyond currentYear+1 to be rejected")
	}
}

func TestDecodeTolerantNeverErrors(t *testing.T) {
	raw := []byte{0xff, 0xfe, 0x00, 0x41}
	decoded, err := decodeTolerant(raw, nil)
	if err != nil {
		t.Errorf("decodeTolerant must never return an error, got %v", err)
	}
	if decoded == "" {
		t.Errorf("expected a non-empty decoded fallback string")
	}
}
