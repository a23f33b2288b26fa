package baloot

import "fmt"

// Suit represents a card suit
type Suit int

const (
	Spades Suit = iota
	Hearts
	Diamonds
	Clubs
)

// String returns the string representation of a suit
func (s Suit) String() string {
	switch s {
	case Spades:
		return "♠"
	case Hearts:
		return "♥"
	case Diamonds:
		return "♦"
	case Clubs:
		return "♣"
	default:
		return "?"
	}
}

// ParseSuit converts a suit symbol back to a Suit.
func ParseSuit(s string) (Suit, error) {
	switch s {
	case "♠", "S":
		return Spades, nil
	case "♥", "H":
		return Hearts, nil
	case "♦", "D":
		return Diamonds, nil
	case "♣", "C":
		return Clubs, nil
	default:
		return 0, fmt.Errorf("unknown suit %q", s)
	}
}

// Suits lists all four suits in canonical order.
var Suits = []Suit{Spades, Hearts, Diamonds, Clubs}

// Rank represents a card rank. Baloot uses the 32-card piquet deck: 7 through Ace.
type Rank int

const (
	Seven Rank = iota + 7
	Eight
	Nine
	Ten
	Jack
	Queen
	King
	Ace
)

// String returns the string representation of a rank
func (r Rank) String() string {
	switch r {
	case Seven:
		return "7"
	case Eight:
		return "8"
	case Nine:
		return "9"
	case Ten:
		return "10"
	case Jack:
		return "J"
	case Queen:
		return "Q"
	case King:
		return "K"
	case Ace:
		return "A"
	default:
		return "?"
	}
}

// Ranks lists the eight ranks in natural (run) order.
var Ranks = []Rank{Seven, Eight, Nine, Ten, Jack, Queen, King, Ace}

// Card represents a playing card
type Card struct {
	Suit Suit `json:"suit"`
	Rank Rank `json:"rank"`
}

// NewCard creates a new card
func NewCard(suit Suit, rank Rank) Card {
	return Card{Suit: suit, Rank: rank}
}

// ID returns the stable identifier for a card, used in client echoes.
// IDs are dense in [0,32).
func (c Card) ID() int {
	return int(c.Suit)*8 + int(c.Rank-Seven)
}

// CardByID returns the card with the given stable id.
func CardByID(id int) (Card, error) {
	if id < 0 || id >= 32 {
		return Card{}, fmt.Errorf("card id out of range: %d", id)
	}
	return Card{Suit: Suit(id / 8), Rank: Rank(id%8) + Seven}, nil
}

// String returns the string representation of a card (e.g., "A♠")
func (c Card) String() string {
	return fmt.Sprintf("%s%s", c.Rank, c.Suit)
}

// sunOrder ranks cards for trick comparison in SUN and for non-trump
// suits in HOKUM: 7 < 8 < 9 < J < Q < K < 10 < A.
func sunOrder(r Rank) int {
	switch r {
	case Seven:
		return 0
	case Eight:
		return 1
	case Nine:
		return 2
	case Jack:
		return 3
	case Queen:
		return 4
	case King:
		return 5
	case Ten:
		return 6
	case Ace:
		return 7
	default:
		return -1
	}
}

// trumpOrder ranks cards of the trump suit in HOKUM:
// 7 < 8 < Q < K < 10 < A < 9 < J.
func trumpOrder(r Rank) int {
	switch r {
	case Seven:
		return 0
	case Eight:
		return 1
	case Queen:
		return 2
	case King:
		return 3
	case Ten:
		return 4
	case Ace:
		return 5
	case Nine:
		return 6
	case Jack:
		return 7
	default:
		return -1
	}
}

// Order returns the trick-comparison strength of the card under the
// given mode and trump suit. Higher beats lower within the same suit.
func (c Card) Order(mode Mode, trump Suit) int {
	if mode == Hokum && c.Suit == trump {
		return trumpOrder(c.Rank)
	}
	return sunOrder(c.Rank)
}

// sunPoints is the abnat value of a card in SUN and in HOKUM off-suits.
func sunPoints(r Rank) int {
	switch r {
	case Ace:
		return 11
	case Ten:
		return 10
	case King:
		return 4
	case Queen:
		return 3
	case Jack:
		return 2
	default:
		return 0
	}
}

// trumpPoints is the abnat value of a trump-suit card in HOKUM.
func trumpPoints(r Rank) int {
	switch r {
	case Jack:
		return 20
	case Nine:
		return 14
	case Ace:
		return 11
	case Ten:
		return 10
	case King:
		return 4
	case Queen:
		return 3
	default:
		return 0
	}
}

// Points returns the abnat value of the card under the given mode and trump.
func (c Card) Points(mode Mode, trump Suit) int {
	if mode == Hokum && c.Suit == trump {
		return trumpPoints(c.Rank)
	}
	return sunPoints(c.Rank)
}

// IsCourt reports whether the card is an A, K, Q, J or 10. A hand with no
// court cards entitles its holder to a Kawesh redeal.
func (c Card) IsCourt() bool {
	switch c.Rank {
	case Ace, King, Queen, Jack, Ten:
		return true
	default:
		return false
	}
}
