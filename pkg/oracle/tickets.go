package oracle

import (
	"math"
	"sort"
	"strconv"
)

// Pick is a 1X2 selection, the TG output alphabet (§4.3).
type Pick string

const (
	PickHome Pick = "1"
	PickDraw Pick = "X"
	PickAway Pick = "2"
)

func outcomeToPick(o Outcome) Pick {
	switch o {
	case OutcomeHome:
		return PickHome
	case OutcomeDraw:
		return PickDraw
	default:
		return PickAway
	}
}

// favoriteThreshold and underdogThreshold are the §4.3 fixed cutoffs,
// always read off set A regardless of which role's set is being ticketed.
const (
	favoriteThreshold = 0.65
	underdogThreshold = 0.25
)

// RoleConfig is a role's behavioral constraint set, expressed as
// fractions of the jackpot's fixture count so the same config applies
// to jackpots of any size (§8 S5 is reproduced when min_draws=5/13,
// max_draws=8/13 round back to 5 and 8 on a 13-fixture jackpot).
type RoleConfig struct {
	MinDrawFrac     float64
	MaxDrawFrac     float64
	MaxFavoriteFrac float64
	MinUnderdogFrac float64
	EntropyRange    [2]float64
}

var roleConfigs = map[SetKey]RoleConfig{
	SetA: {MinDrawFrac: 0.15, MaxDrawFrac: 0.45, MaxFavoriteFrac: 0.85, MinUnderdogFrac: 0.0, EntropyRange: [2]float64{0.40, 0.95}},
	SetB: {MinDrawFrac: 5.0 / 13, MaxDrawFrac: 8.0 / 13, MaxFavoriteFrac: 0.85, MinUnderdogFrac: 0.0, EntropyRange: [2]float64{0.45, 0.95}},
	SetC: {MinDrawFrac: 0.20, MaxDrawFrac: 0.50, MaxFavoriteFrac: 0.70, MinUnderdogFrac: 0.10, EntropyRange: [2]float64{0.45, 0.95}},
	SetD: {MinDrawFrac: 0.20, MaxDrawFrac: 0.55, MaxFavoriteFrac: 0.70, MinUnderdogFrac: 0.10, EntropyRange: [2]float64{0.60, 1.0}},
	SetE: {MinDrawFrac: 0.15, MaxDrawFrac: 0.45, MaxFavoriteFrac: 0.60, MinUnderdogFrac: 0.25, EntropyRange: [2]float64{0.45, 0.95}},
	SetF: {MinDrawFrac: 0.20, MaxDrawFrac: 0.50, MaxFavoriteFrac: 0.50, MinUnderdogFrac: 0.30, EntropyRange: [2]float64{0.50, 1.0}},
	SetG: {MinDrawFrac: 0.20, MaxDrawFrac: 0.50, MaxFavoriteFrac: 0.50, MinUnderdogFrac: 0.30, EntropyRange: [2]float64{0.50, 1.0}},
}

// TicketFixtureInput bundles what TG needs for one fixture across all
// requested roles: every set's triple, plus the precomputed late-shock
// result for sets F/G's hedge rule.
type TicketFixtureInput struct {
	MatchOrder int
	Sets       map[SetKey]Triple
	LateShock  LateShockResult
}

// Ticket is one role's bundle of picks plus its own diagnostics.
type Ticket struct {
	Role                SetKey
	Picks               []Pick
	DrawCount           int
	Entropy             float64
	RelaxedConstraints  []string
}

// TicketBundle is TG's full response (§4.3, §6 POST /tickets/generate).
type TicketBundle struct {
	Tickets                []Ticket
	AgreementMatrix        [][]int
	FavoriteHedgeSatisfied bool
	CorrelationBreaks      []string
}

// GenerateTickets builds one ticket per requested role and assembles the
// portfolio-level diagnostics (§4.3).
func GenerateTickets(fixtures []TicketFixtureInput, correlation [][]float64, roles []SetKey) TicketBundle {
	tickets := make([]Ticket, 0, len(roles))
	var allBreaks []string

	for _, role := range roles {
		cfg, ok := roleConfigs[role]
		if !ok {
			continue
		}
		ticket := buildTicket(fixtures, role, cfg)
		breaks := applyCorrelationBreaker(&ticket, fixtures, correlation)
		allBreaks = append(allBreaks, breaks...)
		tickets = append(tickets, ticket)
	}

	satisfied := enforceFavoriteHedge(fixtures, tickets)

	return TicketBundle{
		Tickets:                tickets,
		AgreementMatrix:        buildAgreementMatrix(tickets),
		FavoriteHedgeSatisfied: satisfied,
		CorrelationBreaks:      allBreaks,
	}
}

func buildTicket(fixtures []TicketFixtureInput, role SetKey, cfg RoleConfig) Ticket {
	n := len(fixtures)
	picks := make([]Pick, n)
	for i, f := range fixtures {
		picks[i] = outcomeToPick(argmaxOutcome(f.Sets[role]))
	}

	ticket := Ticket{Role: role, Picks: picks}

	minDraws := roundFrac(cfg.MinDrawFrac, n)
	maxDraws := roundFrac(cfg.MaxDrawFrac, n)
	maxFavorites := roundFrac(cfg.MaxFavoriteFrac, n)
	minUnderdogs := roundFrac(cfg.MinUnderdogFrac, n)

	if !enforceMinDraws(picks, fixtures, minDraws) {
		ticket.RelaxedConstraints = append(ticket.RelaxedConstraints, "draw_min")
	}
	if !enforceMaxDraws(picks, fixtures, role, maxDraws) {
		ticket.RelaxedConstraints = append(ticket.RelaxedConstraints, "draw_max")
	}
	if !enforceMaxFavorites(picks, fixtures, role, maxFavorites) {
		ticket.RelaxedConstraints = append(ticket.RelaxedConstraints, "favorite_max")
	}
	if !enforceMinUnderdogs(picks, fixtures, minUnderdogs) {
		ticket.RelaxedConstraints = append(ticket.RelaxedConstraints, "underdog_min")
	}

	if role == SetF || role == SetG {
		applyLateShockHedge(picks, fixtures)
	}

	if !adjustEntropy(picks, fixtures, role, cfg.EntropyRange, minDraws, maxDraws) {
		ticket.RelaxedConstraints = append(ticket.RelaxedConstraints, "entropy_range")
	}

	ticket.Picks = picks
	ticket.DrawCount = countDraws(picks)
	ticket.Entropy = ticketEntropy(picks, fixtures, role)
	return ticket
}

func roundFrac(frac float64, n int) int {
	v := int(math.Round(frac * float64(n)))
	if v < 0 {
		return 0
	}
	if v > n {
		return n
	}
	return v
}

// enforceMinDraws converts the non-X fixtures with the highest set-A
// draw probability to "X" until the floor is met (§4.3 step 2).
func enforceMinDraws(picks []Pick, fixtures []TicketFixtureInput, minDraws int) bool {
	if countDraws(picks) >= minDraws {
		return true
	}
	candidates := nonDrawIndicesSortedByDrawProbDesc(picks, fixtures)
	for _, i := range candidates {
		if countDraws(picks) >= minDraws {
			break
		}
		picks[i] = PickDraw
	}
	return countDraws(picks) >= minDraws
}

// enforceMaxDraws converts the lowest-draw-probability X picks back to
// their role-set argmax non-draw choice (§4.3 step 2).
func enforceMaxDraws(picks []Pick, fixtures []TicketFixtureInput, role SetKey, maxDraws int) bool {
	if countDraws(picks) <= maxDraws {
		return true
	}
	candidates := drawIndicesSortedByDrawProbAsc(picks, fixtures)
	for _, i := range candidates {
		if countDraws(picks) <= maxDraws {
			break
		}
		picks[i] = bestNonDrawPick(fixtures[i].Sets[role])
	}
	return countDraws(picks) <= maxDraws
}

// enforceMaxFavorites flips the weakest-confidence favorite picks to the
// role set's second-best outcome until the cap is met (§4.3 step 3).
func enforceMaxFavorites(picks []Pick, fixtures []TicketFixtureInput, role SetKey, maxFavorites int) bool {
	type favHit struct {
		idx  int
		prob float64
	}
	var hits []favHit
	for i, f := range fixtures {
		fav, favProb, isFav := favoriteOf(f.Sets[SetA])
		if isFav && picks[i] == outcomeToPick(fav) {
			hits = append(hits, favHit{idx: i, prob: favProb})
		}
	}
	if len(hits) <= maxFavorites {
		return true
	}
	sort.Slice(hits, func(a, b int) bool { return hits[a].prob < hits[b].prob })
	excess := len(hits) - maxFavorites
	for k := 0; k < excess; k++ {
		i := hits[k].idx
		picks[i] = secondBestPick(fixtures[i].Sets[role], picks[i])
	}
	return true
}

// enforceMinUnderdogs converts picks on fixtures that have a qualifying
// underdog side toward that side until the floor is met (§4.3 step 3).
func enforceMinUnderdogs(picks []Pick, fixtures []TicketFixtureInput, minUnderdogs int) bool {
	countUnderdog := func() int {
		c := 0
		for i, f := range fixtures {
			if isUnderdogPick(picks[i], f.Sets[SetA]) {
				c++
			}
		}
		return c
	}
	if countUnderdog() >= minUnderdogs {
		return true
	}

	type candidate struct {
		idx  int
		side Outcome
		prob float64
	}
	var candidates []candidate
	for i, f := range fixtures {
		side, prob, ok := underdogSideOf(f.Sets[SetA])
		if ok && !isUnderdogPick(picks[i], f.Sets[SetA]) {
			candidates = append(candidates, candidate{idx: i, side: side, prob: prob})
		}
	}
	sort.Slice(candidates, func(a, b int) bool { return candidates[a].prob > candidates[b].prob })
	for _, c := range candidates {
		if countUnderdog() >= minUnderdogs {
			break
		}
		picks[c.idx] = outcomeToPick(c.side)
	}
	return countUnderdog() >= minUnderdogs
}

// applyLateShockHedge implements §4.3 step 4 for roles F and G.
func applyLateShockHedge(picks []Pick, fixtures []TicketFixtureInput) {
	for i, f := range fixtures {
		if !f.LateShock.Triggered {
			continue
		}
		setA := f.Sets[SetA]
		if setA.Draw > 0.25 {
			picks[i] = PickDraw
			continue
		}
		fav := argmaxOutcome(setA)
		if fav == OutcomeHome {
			picks[i] = PickAway
		} else {
			picks[i] = PickHome
		}
	}
}

// applyCorrelationBreaker implements the §4.3 correlation breaker,
// processing pairs in descending c_ij order, capped at N flips.
func applyCorrelationBreaker(ticket *Ticket, fixtures []TicketFixtureInput, correlation [][]float64) []string {
	n := len(ticket.Picks)
	if n == 0 || correlation == nil {
		return nil
	}

	type pair struct {
		i, j int
		c    float64
	}
	var pairs []pair
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if i < len(correlation) && j < len(correlation[i]) && correlation[i][j] > 0.7 {
				pairs = append(pairs, pair{i: i, j: j, c: correlation[i][j]})
			}
		}
	}
	sort.Slice(pairs, func(a, b int) bool { return pairs[a].c > pairs[b].c })

	var breaks []string
	flips := 0
	for _, p := range pairs {
		if flips >= n {
			break
		}
		if ticket.Picks[p.i] != ticket.Picks[p.j] {
			continue
		}
		if ticket.Picks[p.j] != PickDraw {
			ticket.Picks[p.j] = PickDraw
		} else {
			ticket.Picks[p.j] = oppositeOf(ticket.Picks[p.j], fixtures[p.j].Sets[ticket.Role])
		}
		breaks = append(breaks, "broke correlation between fixtures "+strconv.Itoa(p.i)+" and "+strconv.Itoa(p.j))
		flips++
	}
	return breaks
}

// oppositeOf resolves "the opposite side of its current pick" when the
// current pick is already X: fall back to the role set's argmax among
// the two non-draw sides.
func oppositeOf(current Pick, t Triple) Pick {
	if t.Home >= t.Away {
		return PickHome
	}
	return PickAway
}

// adjustEntropy implements §4.3 step 6, iterating at most len(fixtures)
// times. Entropy is the binary Shannon entropy of the mean
// selected-outcome probability across the ticket's fixtures. Draws are
// only added or removed within [minDraws, maxDraws]; when the range
// cannot be reached without crossing those bounds, the entropy range is
// the constraint reported as relaxed.
func adjustEntropy(picks []Pick, fixtures []TicketFixtureInput, role SetKey, entropyRange [2]float64, minDraws, maxDraws int) bool {
	n := len(fixtures)
	for step := 0; step < n; step++ {
		h := ticketEntropy(picks, fixtures, role)
		if h >= entropyRange[0] && h <= entropyRange[1] {
			return true
		}
		if h < entropyRange[0] {
			idx, ok := highestDrawProbNonDrawPick(picks, fixtures)
			if !ok || countDraws(picks) >= maxDraws {
				return false
			}
			picks[idx] = PickDraw
		} else {
			idx, ok := lowestConfidenceDrawPick(picks, fixtures, role)
			if !ok || countDraws(picks) <= minDraws {
				return false
			}
			picks[idx] = bestNonDrawPick(fixtures[idx].Sets[role])
		}
	}
	h := ticketEntropy(picks, fixtures, role)
	return h >= entropyRange[0] && h <= entropyRange[1]
}

func ticketEntropy(picks []Pick, fixtures []TicketFixtureInput, role SetKey) float64 {
	if len(picks) == 0 {
		return 0
	}
	sum := 0.0
	for i, f := range fixtures {
		sum += probabilityOfPick(picks[i], f.Sets[role])
	}
	p := sum / float64(len(picks))
	return binaryEntropy(p)
}

func binaryEntropy(p float64) float64 {
	p = clamp(p, 1e-9, 1-1e-9)
	return -p*math.Log2(p) - (1-p)*math.Log2(1-p)
}

func probabilityOfPick(pick Pick, t Triple) float64 {
	switch pick {
	case PickHome:
		return t.Home
	case PickDraw:
		return t.Draw
	default:
		return t.Away
	}
}

func favoriteOf(t Triple) (Outcome, float64, bool) {
	o := argmaxOutcome(t)
	p := probabilityOfPick(outcomeToPick(o), t)
	return o, p, p >= favoriteThreshold
}

func underdogSideOf(t Triple) (Outcome, float64, bool) {
	if t.Home <= underdogThreshold && t.Home <= t.Away {
		return OutcomeHome, t.Home, true
	}
	if t.Away <= underdogThreshold {
		return OutcomeAway, t.Away, true
	}
	return "", 0, false
}

func isUnderdogPick(pick Pick, t Triple) bool {
	if pick == PickDraw {
		return false
	}
	return probabilityOfPick(pick, t) <= underdogThreshold
}

func bestNonDrawPick(t Triple) Pick {
	if t.Home >= t.Away {
		return PickHome
	}
	return PickAway
}

func secondBestPick(t Triple, current Pick) Pick {
	candidates := []struct {
		pick Pick
		prob float64
	}{
		{PickHome, t.Home},
		{PickDraw, t.Draw},
		{PickAway, t.Away},
	}
	sort.Slice(candidates, func(a, b int) bool { return candidates[a].prob > candidates[b].prob })
	for _, c := range candidates {
		if c.pick != current {
			return c.pick
		}
	}
	return current
}

func countDraws(picks []Pick) int {
	n := 0
	for _, p := range picks {
		if p == PickDraw {
			n++
		}
	}
	return n
}

func nonDrawIndicesSortedByDrawProbDesc(picks []Pick, fixtures []TicketFixtureInput) []int {
	var idx []int
	for i, p := range picks {
		if p != PickDraw {
			idx = append(idx, i)
		}
	}
	sort.Slice(idx, func(a, b int) bool { return fixtures[idx[a]].Sets[SetA].Draw > fixtures[idx[b]].Sets[SetA].Draw })
	return idx
}

func drawIndicesSortedByDrawProbAsc(picks []Pick, fixtures []TicketFixtureInput) []int {
	var idx []int
	for i, p := range picks {
		if p == PickDraw {
			idx = append(idx, i)
		}
	}
	sort.Slice(idx, func(a, b int) bool { return fixtures[idx[a]].Sets[SetA].Draw < fixtures[idx[b]].Sets[SetA].Draw })
	return idx
}

func highestDrawProbNonDrawPick(picks []Pick, fixtures []TicketFixtureInput) (int, bool) {
	best, bestProb := -1, -1.0
	for i, p := range picks {
		if p == PickDraw {
			continue
		}
		if d := fixtures[i].Sets[SetA].Draw; d > bestProb {
			best, bestProb = i, d
		}
	}
	return best, best >= 0
}

func lowestConfidenceDrawPick(picks []Pick, fixtures []TicketFixtureInput, role SetKey) (int, bool) {
	best, bestProb := -1, math.Inf(1)
	for i, p := range picks {
		if p != PickDraw {
			continue
		}
		if d := fixtures[i].Sets[role].Draw; d < bestProb {
			best, bestProb = i, d
		}
	}
	return best, best >= 0
}

// enforceFavoriteHedge is the §4.3 portfolio invariant: for every
// fixture whose set-A favorite probability is >= 0.65, at least one
// ticket must deviate from it; violations are repaired by mutating
// role G's pick to the next-best outcome.
func enforceFavoriteHedge(fixtures []TicketFixtureInput, tickets []Ticket) bool {
	satisfied := true
	var gTicket *Ticket
	for i := range tickets {
		if tickets[i].Role == SetG {
			gTicket = &tickets[i]
		}
	}

	for i, f := range fixtures {
		fav, _, isFav := favoriteOf(f.Sets[SetA])
		if !isFav {
			continue
		}
		favPick := outcomeToPick(fav)
		hedged := false
		for _, t := range tickets {
			if t.Picks[i] != favPick {
				hedged = true
				break
			}
		}
		if !hedged {
			if gTicket == nil {
				satisfied = false
				continue
			}
			gTicket.Picks[i] = secondBestPick(f.Sets[SetG], favPick)
		}
	}
	return satisfied
}

func buildAgreementMatrix(tickets []Ticket) [][]int {
	n := len(tickets)
	matrix := make([][]int, n)
	for i := range matrix {
		matrix[i] = make([]int, n)
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			agree := 0
			for k := range tickets[i].Picks {
				if k < len(tickets[j].Picks) && tickets[i].Picks[k] == tickets[j].Picks[k] {
					agree++
				}
			}
			matrix[i][j] = agree
		}
	}
	return matrix
}
