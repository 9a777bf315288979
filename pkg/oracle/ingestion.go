package oracle

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// columnAliases is the fixed, case-insensitive alias map IA resolves
// headers against (§4.4 step 2). Only the five logical columns are
// required; everything else is best-effort.
var columnAliases = map[string][]string{
	"date":       {"date", "match_date", "matchdate", "kickoff"},
	"home_team":  {"home_team", "hometeam", "home", "team_home"},
	"away_team":  {"away_team", "awayteam", "away", "team_away"},
	"home_goals": {"home_goals", "fthg", "hg", "home_score"},
	"away_goals": {"away_goals", "ftag", "ag", "away_score"},
	"odds_home":  {"odds_home", "b365h", "psh", "avgh"},
	"odds_draw":  {"odds_draw", "b365d", "psd", "avgd"},
	"odds_away":  {"odds_away", "b365a", "psa", "avga"},
}

var requiredColumns = []string{"date", "home_team", "away_team", "home_goals", "away_goals"}

var dateLayouts = []string{
	"02/01/2006",
	"02/01/06",
	"2006-01-02",
	"02-01-2006",
	"02.01.2006",
	"01/02/2006",
	"2006/01/02",
}

// encodingFallbackChain is tried in order after the declared encoding
// fails, per §4.4 step 1.
var encodingFallbackChain = []encoding.Encoding{
	charmap.ISO8859_1,
	charmap.Windows1252,
}

// IngestResult is IA's contract return shape (§4.4).
type IngestResult struct {
	Processed int
	Inserted  int
	Updated   int
	Skipped   int
	Errors    []string
}

// IngestOptions gates whether unresolved team names may be created
// on the fly; only the automated pipeline (AP) may set this (§4.4 step 5).
type IngestOptions struct {
	AllowTeamCreation bool
	SourceFile        string
	BatchID           string
	DeclaredEncoding  encoding.Encoding // nil if unknown
}

// MatchStore is the persistence contract IA upserts against.
type MatchStore interface {
	UpsertMatch(ctx context.Context, m *Match) (inserted bool, err error)
}

// Ingestor wires IA's decode/parse/resolve/upsert chain.
type Ingestor struct {
	resolver *TeamResolver
	matches  MatchStore
	leagues  LeagueReader
}

// LeagueReader is the narrow league-lookup contract IA needs to resolve
// a league_code to an ID before delegating to TR.
type LeagueReader interface {
	GetLeagueByCode(ctx context.Context, code string) (*League, error)
}

func NewIngestor(resolver *TeamResolver, matches MatchStore, leagues LeagueReader) *Ingestor {
	return &Ingestor{resolver: resolver, matches: matches, leagues: leagues}
}

// Ingest implements the §4.4 contract over a single CSV file's raw bytes.
func (ig *Ingestor) Ingest(ctx context.Context, leagueCode string, raw []byte, opts IngestOptions) (*IngestResult, error) {
	league, err := ig.leagues.GetLeagueByCode(ctx, leagueCode)
	if err != nil {
		return nil, err
	}
	if league == nil {
		return nil, NewError(CodeLeagueRequired, "no league registered for code %q", leagueCode)
	}

	decoded, err := decodeTolerant(raw, opts.DeclaredEncoding)
	if err != nil {
		return nil, NewError(CodeUpstreamUnavailable, "unable to decode file under any known encoding: %v", err)
	}

	reader := csv.NewReader(strings.NewReader(decoded))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, NewError(CodeSchemaMismatch, "empty or unreadable CSV file: %v", err)
	}
	colIdx, missing := resolveColumns(header)
	if len(missing) > 0 {
		return nil, NewError(CodeSchemaMismatch, "missing required columns %v; available headers: %v", missing, header)
	}

	result := &IngestResult{}
	nowYear := time.Now().Year()

	for {
		row, readErr := reader.Read()
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			result.Skipped++
			ig.logSkip(result, fmt.Sprintf("malformed row: %v", readErr))
			continue
		}
		result.Processed++

		m, parseErr := ig.parseRow(ctx, row, colIdx, league, opts, nowYear)
		if parseErr != nil {
			result.Skipped++
			ig.logSkip(result, parseErr.Error())
			continue
		}

		inserted, upsertErr := ig.matches.UpsertMatch(ctx, m)
		if upsertErr != nil {
			result.Skipped++
			ig.logSkip(result, fmt.Sprintf("upsert failed for %s vs %s on %s: %v", m.HomeTeamID, m.AwayTeamID, m.MatchDate, upsertErr))
			continue
		}
		if inserted {
			result.Inserted++
		} else {
			result.Updated++
		}
	}

	log.Info().
		Str("league", leagueCode).
		Int("processed", result.Processed).
		Int("inserted", result.Inserted).
		Int("updated", result.Updated).
		Int("skipped", result.Skipped).
		Msg("ingestion batch complete")
	return result, nil
}

func (ig *Ingestor) logSkip(result *IngestResult, detail string) {
	if len(result.Errors) < 5 {
		result.Errors = append(result.Errors, detail)
		log.Warn().Str("detail", detail).Msg("ingestion row skipped")
	}
}

func (ig *Ingestor) parseRow(ctx context.Context, row []string, colIdx map[string]int, league *League, opts IngestOptions, nowYear int) (*Match, error) {
	get := func(key string) string {
		idx, ok := colIdx[key]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	matchDate, err := parseTolerantDate(get("date"), nowYear)
	if err != nil {
		return nil, fmt.Errorf("date parse: %w", err)
	}

	homeGoals, err := strconv.Atoi(get("home_goals"))
	if err != nil {
		return nil, fmt.Errorf("home_goals parse: %w", err)
	}
	awayGoals, err := strconv.Atoi(get("away_goals"))
	if err != nil {
		return nil, fmt.Errorf("away_goals parse: %w", err)
	}

	homeName, awayName := get("home_team"), get("away_team")
	if homeName == "" || awayName == "" {
		return nil, fmt.Errorf("missing team name")
	}

	var homeTeam, awayTeam *Team
	if opts.AllowTeamCreation {
		homeTeam, err = ig.resolver.CreateIfNotExists(ctx, homeName, league.ID)
	} else {
		homeTeam, err = ig.resolver.Resolve(ctx, homeName, &league.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("resolving home team %q: %w", homeName, err)
	}
	if homeTeam == nil {
		return nil, NewError(CodeResolutionMissing, "no team match for %q", homeName)
	}
	if opts.AllowTeamCreation {
		awayTeam, err = ig.resolver.CreateIfNotExists(ctx, awayName, league.ID)
	} else {
		awayTeam, err = ig.resolver.Resolve(ctx, awayName, &league.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("resolving away team %q: %w", awayName, err)
	}
	if awayTeam == nil {
		return nil, NewError(CodeResolutionMissing, "no team match for %q", awayName)
	}

	m := &Match{
		ID:               NewID(),
		LeagueID:         league.ID,
		HomeTeamID:       homeTeam.ID,
		AwayTeamID:       awayTeam.ID,
		MatchDate:        matchDate,
		HomeGoals:        homeGoals,
		AwayGoals:        awayGoals,
		IngestionBatchID: opts.BatchID,
	}
	if opts.SourceFile != "" {
		m.SourceFile = &opts.SourceFile
	}
	if v, err := strconv.ParseFloat(get("odds_home"), 64); err == nil {
		m.OddsHome = &v
	}
	if v, err := strconv.ParseFloat(get("odds_draw"), 64); err == nil {
		m.OddsDraw = &v
	}
	if v, err := strconv.ParseFloat(get("odds_away"), 64); err == nil {
		m.OddsAway = &v
	}
	return m, nil
}

// resolveColumns matches the CSV header against columnAliases
// case-insensitively, returning the logical-name -> physical-index map
// and any required logical columns not found.
func resolveColumns(header []string) (map[string]int, []string) {
	normalized := make([]string, len(header))
	for i, h := range header {
		normalized[i] = strings.ToLower(strings.TrimSpace(h))
	}

	idx := make(map[string]int)
	for logical, aliases := range columnAliases {
		for i, h := range normalized {
			for _, alias := range aliases {
				if h == alias {
					idx[logical] = i
				}
			}
		}
	}

	var missing []string
	for _, req := range requiredColumns {
		if _, ok := idx[req]; !ok {
			missing = append(missing, req)
		}
	}
	return idx, missing
}

// decodeTolerant implements the §4.4 step 1 fallback chain. With no
// declared encoding, input that is already valid utf-8 is returned as
// is (a latin-1/windows-1252 reinterpretation of real utf-8 bytes always
// "succeeds" since every byte maps to some rune). Otherwise the declared
// encoding is tried first, then latin-1/windows-1252, and the final
// fallback is utf-8 with replacement characters (never an error).
func decodeTolerant(raw []byte, declared encoding.Encoding) (string, error) {
	if declared == nil && utf8.Valid(raw) {
		return string(raw), nil
	}

	candidates := []encoding.Encoding{}
	if declared != nil {
		candidates = append(candidates, declared)
	}
	candidates = append(candidates, encodingFallbackChain...)

	for _, enc := range candidates {
		decoded, err := enc.NewDecoder().Bytes(raw)
		if err == nil && utf8Valid(decoded) {
			return string(decoded), nil
		}
	}
	return string(bytes.ToValidUTF8(raw, []byte("�"))), nil
}

func utf8Valid(b []byte) bool {
	return !bytes.ContainsRune(b, '�')
}

// parseTolerantDate tries each of dateLayouts in order, accepting only
// years within [1900, currentYear+1] (§4.4 step 3).
func parseTolerantDate(raw string, currentYear int) (time.Time, error) {
	if raw == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, raw)
		if err != nil {
			continue
		}
		if t.Year() < 1900 || t.Year() > currentYear+1 {
			continue
		}
		return t, nil
	}
	return time.Time{}, fmt.Errorf("no layout matched %q", raw)
}
