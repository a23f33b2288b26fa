package baloot

// outstanding returns the cards that are neither played nor in the hand:
// the cards the other three seats still hold.
func outstanding(played, hand []Card) []Card {
	seen := make(map[Card]bool, len(played)+len(hand))
	for _, c := range played {
		seen[c] = true
	}
	for _, c := range hand {
		seen[c] = true
	}
	var out []Card
	for _, suit := range Suits {
		for _, rank := range Ranks {
			c := NewCard(suit, rank)
			if !seen[c] {
				out = append(out, c)
			}
		}
	}
	return out
}

// AkkaEligible reports whether the card can honestly be declared Akka:
// every higher card of its suit has either been played this round or sits
// in the declarer's own hand.
func AkkaEligible(card Card, played, hand []Card) bool {
	for _, c := range outstanding(played, hand) {
		if c.Suit == card.Suit && sunOrder(c.Rank) > sunOrder(card.Rank) {
			return false
		}
	}
	return true
}

// SawaProvable reports whether the hand is provably unbeatable for all
// remaining tricks, against worst-case distribution of the outstanding
// cards. In HOKUM the claimant must be able to strip every outstanding
// trump (one per trick against a hoarding defender) with trumps that beat
// them all; every off-suit card must be the boss of its suit. In SUN every
// card must be the boss of its suit.
func SawaProvable(hand, played []Card, mode Mode, trump Suit) bool {
	if len(hand) == 0 {
		return false
	}
	out := outstanding(played, hand)

	bossOfSuit := func(c Card) bool {
		for _, o := range out {
			if o.Suit == c.Suit && sunOrder(o.Rank) > sunOrder(c.Rank) {
				return false
			}
		}
		return true
	}

	if mode != Hokum {
		for _, c := range hand {
			if !bossOfSuit(c) {
				return false
			}
		}
		return true
	}

	var handTrumps, outTrumps []Card
	for _, c := range hand {
		if c.Suit == trump {
			handTrumps = append(handTrumps, c)
		}
	}
	for _, c := range out {
		if c.Suit == trump {
			outTrumps = append(outTrumps, c)
		}
	}

	if len(outTrumps) > 0 {
		if len(handTrumps) < len(outTrumps) {
			return false
		}
		for _, h := range handTrumps {
			for _, o := range outTrumps {
				if trumpOrder(o.Rank) > trumpOrder(h.Rank) {
					return false
				}
			}
		}
	}

	for _, c := range hand {
		if c.Suit == trump {
			continue
		}
		if !bossOfSuit(c) {
			return false
		}
	}
	return true
}
