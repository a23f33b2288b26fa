// Package botstrat is the rule-based decision engine behind bot seats.
// It is a pure function of the seat's snapshot, which lets the same code
// run inside the server as a fallback and inside detached workers.
package botstrat

import (
	"fmt"
	rand "math/rand/v2"
	"sync"

	"github.com/balootlabs/baloot/internal/baloot"
	"github.com/balootlabs/baloot/internal/game"
	"github.com/balootlabs/baloot/internal/randutil"
)

// Difficulty selects how much of the rule book the bot applies.
type Difficulty string

const (
	Easy   Difficulty = "easy"
	Medium Difficulty = "medium"
	Hard   Difficulty = "hard"
)

// Parse normalizes a difficulty string, defaulting to medium.
func Parse(s string) Difficulty {
	switch Difficulty(s) {
	case Easy, Medium, Hard:
		return Difficulty(s)
	default:
		return Medium
	}
}

// Strategy decides actions for one difficulty level. One Strategy may
// serve many tables at once; the mutex guards its rng.
type Strategy struct {
	diff Difficulty

	mu  sync.Mutex
	rng *rand.Rand
}

// New builds a strategy. The seed keeps simulated tables reproducible.
func New(diff Difficulty, seed int64) *Strategy {
	return &Strategy{diff: diff, rng: randutil.New(seed)}
}

// Decide picks one action for the seat in the snapshot. It consults the
// allowed kinds so it never proposes something the phase forbids.
func (s *Strategy) Decide(snap game.Snapshot, allowed []game.ActionKind) (game.Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.decide(snap, allowed)
}

func (s *Strategy) decide(snap game.Snapshot, allowed []game.ActionKind) (game.Action, error) {
	has := func(kind game.ActionKind) bool {
		for _, k := range allowed {
			if k == kind {
				return true
			}
		}
		return false
	}

	switch {
	case has(game.ActionSawaResponse):
		return s.respondSawa(snap), nil
	case has(game.ActionBid):
		return s.bid(snap), nil
	case has(game.ActionDouble):
		// Doubling is a bluffing surface; the rule book stays flat and
		// passes at every level.
		return game.Action{Kind: game.ActionDouble}, nil
	case has(game.ActionVariant):
		return game.Action{Kind: game.ActionVariant, Open: false}, nil
	case has(game.ActionPlay):
		if has(game.ActionDeclareProject) {
			if a, ok := s.declareProject(snap); ok {
				return a, nil
			}
		}
		if s.diff == Hard && has(game.ActionClaimSawa) && s.sawaWorthClaiming(snap) {
			return game.Action{Kind: game.ActionClaimSawa}, nil
		}
		return s.play(snap), nil
	default:
		return game.Action{}, fmt.Errorf("no playable action among %v", allowed)
	}
}

// Quip returns a short table line for the action, or "" for moves not
// worth talking about. Card plays stay silent; committing to a contract
// or a claim always gets a line.
func (s *Strategy) Quip(action game.Action) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	pick := func(lines ...string) string {
		return lines[s.rng.IntN(len(lines))]
	}

	switch action.Kind {
	case game.ActionBid:
		switch action.Bid {
		case game.BidSun:
			return pick("Sun. Count your aces.", "Going Sun.")
		case game.BidHokum:
			return pick("Hokum it is.", "Hokum. Trumps will talk.")
		case game.BidAshkal:
			return pick("Ashkal, partner. It's yours.")
		case game.BidKawesh:
			return pick("Kawesh. Deal again.")
		}
	case game.ActionDouble:
		switch action.Level {
		case baloot.DoubleTwo:
			return pick("Double.", "Doubled. Your move.")
		case baloot.DoubleThree:
			return pick("Three.")
		case baloot.DoubleFour:
			return pick("Four!")
		case baloot.Gahwa:
			return pick("Gahwa! Put the pot on.")
		}
	case game.ActionDeclareProject:
		switch action.Project {
		case baloot.Sira:
			return pick("Sira here.")
		case baloot.Fifty:
			return pick("Fifty on the table.")
		case baloot.Hundred:
			return pick("A hundred, write it down.")
		case baloot.FourHundred:
			return pick("Four hundred!")
		case baloot.BalootProject:
			return pick("Baloot. King and queen.")
		}
	case game.ActionDeclareAkka:
		return pick("Akka!")
	case game.ActionClaimSawa:
		return pick("Sawa. The rest are mine.", "Sawa, count them.")
	}
	return ""
}

func (s *Strategy) mode(snap game.Snapshot) (baloot.Mode, baloot.Suit) {
	if snap.Round == nil || snap.Round.Bid == nil {
		return baloot.Sun, baloot.Spades
	}
	return snap.Round.Bid.Mode, snap.Round.Bid.Trump
}

func played(snap game.Snapshot) []baloot.Card {
	var cards []baloot.Card
	for _, t := range snap.Round.Tricks {
		for _, p := range t.Plays {
			cards = append(cards, p.Card)
		}
	}
	for _, p := range snap.Round.Table {
		cards = append(cards, p.Card)
	}
	return cards
}

// --- bidding ---

// hokumScore weighs a suit as a trump candidate: length plus the big
// trump honors.
func hokumScore(hand []baloot.Card, suit baloot.Suit) int {
	score := 0
	for _, c := range hand {
		if c.Suit != suit {
			continue
		}
		score += 2
		switch c.Rank {
		case baloot.Jack:
			score += 3
		case baloot.Nine:
			score += 2
		case baloot.Ace:
			score++
		}
	}
	return score
}

func sunScore(hand []baloot.Card) int {
	score := 0
	for _, c := range hand {
		switch c.Rank {
		case baloot.Ace:
			score += 2
		case baloot.Ten:
			score++
		}
	}
	return score
}

func (s *Strategy) bid(snap game.Snapshot) game.Action {
	hand := snap.Round.Hand
	pass := game.Action{Kind: game.ActionBid, Bid: game.BidPass}

	// Easy bots mostly stay out of the auction.
	if s.diff == Easy && s.rng.IntN(4) != 0 {
		return pass
	}

	threshold := 8
	if s.diff == Hard {
		threshold = 7
	}

	if snap.Round.BidRound == 1 && snap.Round.FloorCard != nil {
		if hokumScore(hand, snap.Round.FloorCard.Suit) >= threshold {
			return game.Action{Kind: game.ActionBid, Bid: game.BidHokum}
		}
	}
	if snap.Round.BidRound == 2 {
		best, bestScore := baloot.Spades, 0
		for _, suit := range baloot.Suits {
			if snap.Round.FloorCard != nil && suit == snap.Round.FloorCard.Suit {
				continue
			}
			if sc := hokumScore(hand, suit); sc > bestScore {
				best, bestScore = suit, sc
			}
		}
		if bestScore >= threshold {
			return game.Action{Kind: game.ActionBid, Bid: game.BidHokum, Suit: best}
		}
	}
	if sunScore(hand) >= 5 {
		return game.Action{Kind: game.ActionBid, Bid: game.BidSun}
	}
	return pass
}

// --- projects ---

func (s *Strategy) declareProject(snap game.Snapshot) (game.Action, bool) {
	if s.diff == Easy {
		return game.Action{}, false
	}
	mode, trump := s.mode(snap)
	already := make(map[string]bool)
	for _, p := range snap.Round.Projects {
		if p.Seat == snap.Viewer {
			already[p.Type] = true
		}
	}
	for _, p := range baloot.DetectProjects(snap.Round.Hand, mode, trump) {
		if !already[p.Type.String()] {
			return game.Action{Kind: game.ActionDeclareProject, Project: p.Type, Cards: p.Cards}, true
		}
	}
	return game.Action{}, false
}

// --- sawa ---

func (s *Strategy) respondSawa(snap game.Snapshot) game.Action {
	// Disputing a claim costs the whole pool when the claim holds, and
	// the server adjudicates honestly, so the rule book always accepts.
	return game.Action{Kind: game.ActionSawaResponse, Answer: game.SawaAccept}
}

func (s *Strategy) sawaWorthClaiming(snap game.Snapshot) bool {
	if snap.Round.Sawa != nil || len(snap.Round.Table) != 0 {
		return false
	}
	mode, trump := s.mode(snap)
	return baloot.SawaProvable(snap.Round.Hand, played(snap), mode, trump)
}

// --- card play ---

func (s *Strategy) play(snap game.Snapshot) game.Action {
	mode, trump := s.mode(snap)
	hand := snap.Round.Hand
	table := snap.Round.Table
	legal := baloot.LegalMoves(snap.Viewer, hand, table, mode, trump, snap.Round.Doubling, baloot.EnforceStrict)
	if len(legal) == 0 {
		legal = hand
	}

	var card baloot.Card
	switch {
	case s.diff == Easy:
		card = legal[s.rng.IntN(len(legal))]
	case len(table) == 0:
		card = s.lead(snap, legal, mode, trump)
	default:
		card = s.follow(snap, legal, table, mode, trump)
	}
	return game.Action{Kind: game.ActionPlay, CardID: card.ID()}
}

// lead picks an opener: draw trumps from length, cash bosses, otherwise
// exit low.
func (s *Strategy) lead(snap game.Snapshot, legal []baloot.Card, mode baloot.Mode, trump baloot.Suit) baloot.Card {
	seen := played(snap)

	var trumps, off []baloot.Card
	for _, c := range legal {
		if mode == baloot.Hokum && c.Suit == trump {
			trumps = append(trumps, c)
		} else {
			off = append(off, c)
		}
	}

	if len(trumps) >= 2 {
		return highest(trumps, mode, trump)
	}
	for _, c := range off {
		if isBoss(c, seen, legal, mode, trump) {
			return c
		}
	}
	if len(off) > 0 {
		return lowest(off, mode, trump)
	}
	return lowest(trumps, mode, trump)
}

// follow beats the trick when it is cheap and ours to take, feeds points
// to a winning partner, and otherwise ducks.
func (s *Strategy) follow(snap game.Snapshot, legal []baloot.Card, table []baloot.Play, mode baloot.Mode, trump baloot.Suit) baloot.Card {
	winner := baloot.TrickWinner(table, mode, trump)
	winning, _ := baloot.WinningCard(table, mode, trump)
	partnerWinning := winner == snap.Viewer.Partner()

	if partnerWinning {
		if s.diff == Hard {
			// Smear: give the trick the fattest card that cannot steal it.
			if c, ok := fattestNonWinner(legal, winning, table[0].Card.Suit, mode, trump); ok {
				return c
			}
		}
		return baloot.LowestImpact(legal, mode, trump)
	}

	// Cheapest card that takes the trick, if any.
	var takers []baloot.Card
	for _, c := range legal {
		if beatsPlay(c, winning, table[0].Card.Suit, mode, trump) {
			takers = append(takers, c)
		}
	}
	if len(takers) > 0 {
		return lowest(takers, mode, trump)
	}
	return baloot.LowestImpact(legal, mode, trump)
}

func beatsPlay(c, winning baloot.Card, lead baloot.Suit, mode baloot.Mode, trump baloot.Suit) bool {
	if mode == baloot.Hokum {
		if c.Suit == trump && winning.Suit != trump {
			return true
		}
		if c.Suit == trump && winning.Suit == trump {
			return c.Order(mode, trump) > winning.Order(mode, trump)
		}
		if winning.Suit == trump {
			return false
		}
	}
	return c.Suit == winning.Suit && c.Order(mode, trump) > winning.Order(mode, trump)
}

// isBoss reports whether no unseen card of the suit outranks c.
func isBoss(c baloot.Card, seen, hand []baloot.Card, mode baloot.Mode, trump baloot.Suit) bool {
	for _, rank := range baloot.Ranks {
		other := baloot.NewCard(c.Suit, rank)
		if other.Order(mode, trump) <= c.Order(mode, trump) {
			continue
		}
		accounted := false
		for _, s := range seen {
			if s == other {
				accounted = true
			}
		}
		for _, h := range hand {
			if h == other {
				accounted = true
			}
		}
		if !accounted {
			return false
		}
	}
	return true
}

func fattestNonWinner(legal []baloot.Card, winning baloot.Card, lead baloot.Suit, mode baloot.Mode, trump baloot.Suit) (baloot.Card, bool) {
	var best baloot.Card
	found := false
	for _, c := range legal {
		if beatsPlay(c, winning, lead, mode, trump) {
			continue
		}
		if !found || c.Points(mode, trump) > best.Points(mode, trump) {
			best, found = c, true
		}
	}
	return best, found
}

func highest(cards []baloot.Card, mode baloot.Mode, trump baloot.Suit) baloot.Card {
	best := cards[0]
	for _, c := range cards[1:] {
		if c.Order(mode, trump) > best.Order(mode, trump) {
			best = c
		}
	}
	return best
}

func lowest(cards []baloot.Card, mode baloot.Mode, trump baloot.Suit) baloot.Card {
	best := cards[0]
	for _, c := range cards[1:] {
		if c.Order(mode, trump) < best.Order(mode, trump) {
			best = c
		}
	}
	return best
}
