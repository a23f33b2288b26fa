package baloot

// MoveViolation classifies why a card may not be played. The zero value
// means the move is legal.
type MoveViolation int

const (
	ViolationNone MoveViolation = iota
	// ViolationNotInHand is returned when the card is not held.
	ViolationNotInHand
	// ViolationRevoke is a failure to follow the lead suit while holding it.
	ViolationRevoke
	// ViolationNoTrump is a failure to trump in HOKUM while void of the lead.
	ViolationNoTrump
	// ViolationNoOvertrump is a failure to beat the winning trump while able.
	ViolationNoOvertrump
	// ViolationTrumpInDouble is leading trump at doubling level 2+ while
	// holding a non-trump card.
	ViolationTrumpInDouble
)

func (v MoveViolation) String() string {
	switch v {
	case ViolationNone:
		return "NONE"
	case ViolationNotInHand:
		return "NOT_IN_HAND"
	case ViolationRevoke:
		return "REVOKE"
	case ViolationNoTrump:
		return "NO_TRUMP"
	case ViolationNoOvertrump:
		return "NO_OVERTRUMP"
	case ViolationTrumpInDouble:
		return "TRUMP_IN_DOUBLE"
	default:
		return "?"
	}
}

// Enforcement selects how much of the rule set blocks a card at play
// time. EnforceStrict rejects every violation. EnforceBasic rejects only
// cards not actually held: the suit and trump obligations stay playable
// and are settled after the fact through Qayd, the way tables without
// strict rules run.
type Enforcement int

const (
	EnforceStrict Enforcement = iota
	EnforceBasic
)

// CheckMove returns the violation committed by seat playing card given the
// hand and the table so far. ViolationNone means the move is fully legal.
func CheckMove(seat Seat, card Card, hand []Card, table []Play, mode Mode, trump Suit, doubling DoublingLevel) MoveViolation {
	if !contains(hand, card) {
		return ViolationNotInHand
	}

	// Leading.
	if len(table) == 0 {
		if mode == Hokum && doubling >= DoubleTwo && card.Suit == trump && hasNonSuit(hand, trump) {
			return ViolationTrumpInDouble
		}
		return ViolationNone
	}

	lead := table[0].Card.Suit
	partnerWinning := TrickWinner(table, mode, trump) == seat.Partner()

	if hasSuit(hand, lead) {
		if card.Suit != lead {
			return ViolationRevoke
		}
		// Trump led in HOKUM: must raise over the winning trump when able,
		// unless partner holds the trick.
		if mode == Hokum && lead == trump && !partnerWinning {
			winning, _ := WinningCard(table, mode, trump)
			if trumpOrder(card.Rank) < trumpOrder(winning.Rank) && hasHigherTrump(hand, winning, trump) {
				return ViolationNoOvertrump
			}
		}
		return ViolationNone
	}

	// Void of the lead suit.
	if mode != Hokum || partnerWinning {
		return ViolationNone
	}
	if !hasSuit(hand, trump) {
		return ViolationNone
	}

	winning, _ := WinningCard(table, mode, trump)
	if winning.Suit == trump {
		// The trick is already cut. Overtrump if possible; holding only
		// lower trumps does not force an undertrump.
		if hasHigherTrump(hand, winning, trump) {
			if card.Suit != trump || trumpOrder(card.Rank) < trumpOrder(winning.Rank) {
				return ViolationNoOvertrump
			}
		}
		return ViolationNone
	}

	// Opponent winning without trump: must cut.
	if card.Suit != trump {
		return ViolationNoTrump
	}
	return ViolationNone
}

// IsLegalMove reports whether the move passes the enforcement level.
// The violation is returned either way so callers can surface the reason.
func IsLegalMove(seat Seat, card Card, hand []Card, table []Play, mode Mode, trump Suit, doubling DoublingLevel, enforce Enforcement) (bool, MoveViolation) {
	v := CheckMove(seat, card, hand, table, mode, trump, doubling)
	if v == ViolationNone {
		return true, v
	}
	if enforce == EnforceBasic && v != ViolationNotInHand {
		// Playable, but convictable through Qayd.
		return true, v
	}
	return false, v
}

// LegalMoves returns the cards in hand that pass the enforcement level.
func LegalMoves(seat Seat, hand []Card, table []Play, mode Mode, trump Suit, doubling DoublingLevel, enforce Enforcement) []Card {
	var legal []Card
	for _, c := range hand {
		if ok, _ := IsLegalMove(seat, c, hand, table, mode, trump, doubling, enforce); ok {
			legal = append(legal, c)
		}
	}
	return legal
}

// LowestImpact picks the auto-play card used on turn timeouts: the legal
// card with the lowest point value, ties broken by lowest rank order.
func LowestImpact(legal []Card, mode Mode, trump Suit) Card {
	best := legal[0]
	for _, c := range legal[1:] {
		cp, bp := c.Points(mode, trump), best.Points(mode, trump)
		if cp < bp || (cp == bp && c.Order(mode, trump) < best.Order(mode, trump)) {
			best = c
		}
	}
	return best
}

func contains(hand []Card, card Card) bool {
	for _, c := range hand {
		if c == card {
			return true
		}
	}
	return false
}

func hasSuit(hand []Card, suit Suit) bool {
	for _, c := range hand {
		if c.Suit == suit {
			return true
		}
	}
	return false
}

func hasNonSuit(hand []Card, suit Suit) bool {
	for _, c := range hand {
		if c.Suit != suit {
			return true
		}
	}
	return false
}

func hasHigherTrump(hand []Card, winning Card, trump Suit) bool {
	for _, c := range hand {
		if c.Suit == trump && trumpOrder(c.Rank) > trumpOrder(winning.Rank) {
			return true
		}
	}
	return false
}

// HoldsHigherOfSuit reports whether the hand holds a card of the given
// suit that outranks reference under SUN ordering. Used by Qayd to settle
// NO_HIGHER_CARD accusations.
func HoldsHigherOfSuit(hand []Card, reference Card) bool {
	for _, c := range hand {
		if c.Suit == reference.Suit && sunOrder(c.Rank) > sunOrder(reference.Rank) {
			return true
		}
	}
	return false
}
