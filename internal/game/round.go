package game

import (
	"github.com/balootlabs/baloot/internal/baloot"
	"github.com/balootlabs/baloot/internal/randutil"
)

// AkkaClaim is an in-play declaration that a card is the remaining boss of
// its suit. Validity is computed when the claim is made but only revealed
// if a WRONG_AKKA dispute is raised.
type AkkaClaim struct {
	Seat  baloot.Seat `json:"seat"`
	Card  baloot.Card `json:"card"`
	valid bool
}

// SawaState tracks a claim-the-rest while the defenders decide.
type SawaState struct {
	Claimant  baloot.Seat                       `json:"claimant"`
	Responses map[baloot.Seat]SawaAnswer        `json:"responses"`
	provable  bool
	hand      []baloot.Card
}

// Bid is the committed contract of a round.
type Bid struct {
	Mode   baloot.Mode `json:"type"`
	Trump  baloot.Suit `json:"trumpSuit"`
	Bidder baloot.Seat `json:"bidderSeat"`
}

// Round holds one deal: bidding state, the trick history, declarations and
// everything Qayd needs to re-litigate past plays. The seed fully
// determines the shuffle, so a round replays identically from its action
// stream.
type Round struct {
	Seed   int64       `json:"seed"`
	Dealer baloot.Seat `json:"dealerIndex"`

	Bid       *Bid                 `json:"bid"`
	Doubling  baloot.DoublingLevel `json:"doublingLevel"`
	Open      bool                 `json:"open"`
	FloorCard baloot.Card          `json:"floorCard"`

	Hands [4][]baloot.Card `json:"-"`
	dealt [4][]baloot.Card

	Table  []baloot.Play  `json:"tableCards"`
	Tricks []baloot.Trick `json:"currentRoundTricks"`

	Turn baloot.Seat `json:"currentTurnIndex"`

	Declarations []baloot.Project `json:"-"`
	AkkaClaims   []AkkaClaim      `json:"akkaClaims"`
	Sawa         *SawaState       `json:"sawaState"`
	Qayd         *QaydState       `json:"qaydState"`

	// bidding
	BidRound int `json:"bidRound"`
	passes   int

	// doubling
	doubleTurn    baloot.Seat
	doublePasses  int
	lastRaiseTeam baloot.Team

	// rest keeps the undealt remainder between the opening deal and the
	// bid commit. Reconstructable from the seed, never serialized.
	rest *baloot.Deck
}

// newRound shuffles from the seed and deals the opening five cards plus
// the floor card. The rest of the deck is dealt when a bid commits.
func newRound(dealer baloot.Seat, seed int64) *Round {
	r := &Round{
		Seed:     seed,
		Dealer:   dealer,
		Doubling: baloot.DoubleNone,
		Turn:     dealer.Next(),
		BidRound: 1,
	}
	deck := baloot.NewDeck(randutil.New(seed))
	deck.Shuffle()

	// 3 then 2 to each seat, starting left of the dealer.
	for _, n := range []int{3, 2} {
		seat := dealer.Next()
		for j := 0; j < 4; j++ {
			r.Hands[seat] = append(r.Hands[seat], deck.DealN(n)...)
			seat = seat.Next()
		}
	}
	floor, _ := deck.Deal()
	r.FloorCard = floor
	r.rest = deck
	return r
}

// completeDeal gives the floor card plus two to the receiving seat and
// three to everyone else, bringing all hands to eight.
func (r *Round) completeDeal(receiver baloot.Seat) {
	r.Hands[receiver] = append(r.Hands[receiver], r.FloorCard)
	r.Hands[receiver] = append(r.Hands[receiver], r.rest.DealN(2)...)
	seat := receiver.Next()
	for i := 0; i < 3; i++ {
		r.Hands[seat] = append(r.Hands[seat], r.rest.DealN(3)...)
		seat = seat.Next()
	}
	for i := range r.dealt {
		r.dealt[i] = append([]baloot.Card(nil), r.Hands[i]...)
	}
}

// Played returns every card already laid down this round, table included.
func (r *Round) Played() []baloot.Card {
	var cards []baloot.Card
	for _, t := range r.Tricks {
		for _, p := range t.Plays {
			cards = append(cards, p.Card)
		}
	}
	for _, p := range r.Table {
		cards = append(cards, p.Card)
	}
	return cards
}

// Mode returns the committed contract mode; only meaningful once Bid is set.
func (r *Round) Mode() baloot.Mode {
	if r.Bid == nil {
		return baloot.Sun
	}
	return r.Bid.Mode
}

// Trump returns the trump suit for HOKUM rounds.
func (r *Round) Trump() baloot.Suit {
	if r.Bid == nil {
		return baloot.Spades
	}
	return r.Bid.Trump
}

// removeFromHand takes the card out of the seat's hand.
func (r *Round) removeFromHand(seat baloot.Seat, card baloot.Card) bool {
	hand := r.Hands[seat]
	for i, c := range hand {
		if c == card {
			r.Hands[seat] = append(hand[:i:i], hand[i+1:]...)
			return true
		}
	}
	return false
}

// tricksWon counts closed tricks per team.
func (r *Round) tricksWon() [2]int {
	var won [2]int
	for _, t := range r.Tricks {
		won[t.Winner.Team()]++
	}
	return won
}

// abnat totals the collected trick points per team, including the
// last-trick bonus once eight tricks are closed.
func (r *Round) abnat() [2]int {
	var abnat [2]int
	for i, t := range r.Tricks {
		pts := t.Points
		if i == len(r.Tricks)-1 && len(r.Tricks) == 8 {
			pts += 10
		}
		abnat[t.Winner.Team()] += pts
	}
	return abnat
}

// holdingsAt reconstructs the cards a seat held at the moment a past trick
// was played: its current hand plus everything it played from that trick
// onward. This is the evidence base for Qayd.
func (r *Round) holdingsAt(trickIdx int, seat baloot.Seat) []baloot.Card {
	held := append([]baloot.Card(nil), r.Hands[seat]...)
	for i := trickIdx; i < len(r.Tricks); i++ {
		for _, p := range r.Tricks[i].Plays {
			if p.Seat == seat {
				held = append(held, p.Card)
			}
		}
	}
	for _, p := range r.Table {
		if p.Seat == seat {
			held = append(held, p.Card)
		}
	}
	return held
}
