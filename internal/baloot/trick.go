package baloot

// Play is a single card laid on the table by a seat.
type Play struct {
	Seat Seat `json:"playedBy"`
	Card Card `json:"card"`
}

// Trick is an ordered list of up to four plays. The first play fixes the
// lead suit.
type Trick struct {
	Plays  []Play `json:"cards"`
	Winner Seat   `json:"winner"`
	Points int    `json:"points"`
}

// LeadSuit returns the suit of the first card played, or false if the
// trick is empty.
func LeadSuit(plays []Play) (Suit, bool) {
	if len(plays) == 0 {
		return 0, false
	}
	return plays[0].Card.Suit, true
}

// TrickWinner returns the seat currently winning the given plays.
// In SUN the highest card of the lead suit wins; in HOKUM any trump beats
// any non-trump, and within trump the HOKUM order applies. Ties are
// impossible because all cards are unique.
func TrickWinner(plays []Play, mode Mode, trump Suit) Seat {
	if len(plays) == 0 {
		return -1
	}
	best := 0
	for i := 1; i < len(plays); i++ {
		if beats(plays[i].Card, plays[best].Card, plays[0].Card.Suit, mode, trump) {
			best = i
		}
	}
	return plays[best].Seat
}

// WinningCard returns the card currently winning the plays.
func WinningCard(plays []Play, mode Mode, trump Suit) (Card, bool) {
	if len(plays) == 0 {
		return Card{}, false
	}
	winner := TrickWinner(plays, mode, trump)
	for _, p := range plays {
		if p.Seat == winner {
			return p.Card, true
		}
	}
	return Card{}, false
}

// beats reports whether challenger beats incumbent given the lead suit.
func beats(challenger, incumbent Card, lead Suit, mode Mode, trump Suit) bool {
	if mode == Hokum {
		ct, it := challenger.Suit == trump, incumbent.Suit == trump
		switch {
		case ct && !it:
			return true
		case !ct && it:
			return false
		case ct && it:
			return trumpOrder(challenger.Rank) > trumpOrder(incumbent.Rank)
		}
	}
	// Off-suit (or SUN): only cards of the incumbent's effective suit compete.
	if challenger.Suit != incumbent.Suit {
		return false
	}
	return sunOrder(challenger.Rank) > sunOrder(incumbent.Rank)
}

// TrickPoints returns the abnat collected in a trick. The +10 bonus for the
// last trick of the round is applied by the caller.
func TrickPoints(plays []Play, mode Mode, trump Suit) int {
	total := 0
	for _, p := range plays {
		total += p.Card.Points(mode, trump)
	}
	return total
}
