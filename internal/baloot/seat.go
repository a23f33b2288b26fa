package baloot

import "fmt"

// Seat identifies one of the four positions at the table. Seats 0 and 2
// form team Us, seats 1 and 3 form team Them. The server stores canonical
// seats; rotation to the local viewport is a client concern.
type Seat int

// NumSeats is the number of players in a Baloot game.
const NumSeats = 4

// Valid reports whether the seat is in 0..3.
func (s Seat) Valid() bool {
	return s >= 0 && s < NumSeats
}

// Next returns the seat to the left (clockwise play order).
func (s Seat) Next() Seat {
	return (s + 1) % NumSeats
}

// Partner returns the seat across the table.
func (s Seat) Partner() Seat {
	return (s + 2) % NumSeats
}

// Team returns the team the seat belongs to.
func (s Seat) Team() Team {
	if s%2 == 0 {
		return TeamUs
	}
	return TeamThem
}

func (s Seat) String() string {
	return fmt.Sprintf("seat%d", int(s))
}

// Team identifies one of the two partnerships.
type Team int

const (
	TeamUs Team = iota
	TeamThem
)

// Other returns the opposing team.
func (t Team) Other() Team {
	return 1 - t
}

func (t Team) String() string {
	if t == TeamUs {
		return "us"
	}
	return "them"
}

// Mode is the contract mode of a round.
type Mode int

const (
	// Sun is the no-trump mode.
	Sun Mode = iota
	// Hokum is the trump mode.
	Hokum
	// Ashkal plays like Sun but the bidder's partner picks up the floor card.
	Ashkal
)

func (m Mode) String() string {
	switch m {
	case Sun:
		return "SUN"
	case Hokum:
		return "HOKUM"
	case Ashkal:
		return "ASHKAL"
	default:
		return "?"
	}
}

// PlaysLikeSun reports whether trick resolution uses SUN rules.
// Ashkal is a SUN contract with a different deal.
func (m Mode) PlaysLikeSun() bool {
	return m == Sun || m == Ashkal
}

// Pool returns the total game points at stake for card play in the mode.
func (m Mode) Pool() int {
	if m == Hokum {
		return 16
	}
	return 26
}

// KabootValue returns the game points awarded for a sweep.
func (m Mode) KabootValue() int {
	if m == Hokum {
		return 25
	}
	return 44
}

// DoublingLevel is the escalation state of a round. Levels 1 through 4
// multiply the winning team's game points; Gahwa ends the match outright.
type DoublingLevel int

const (
	DoubleNone  DoublingLevel = 1
	DoubleTwo   DoublingLevel = 2
	DoubleThree DoublingLevel = 3
	DoubleFour  DoublingLevel = 4
	Gahwa       DoublingLevel = 100
)

// Multiplier returns the game-point multiplier for the level.
func (d DoublingLevel) Multiplier() int {
	if d == Gahwa {
		return 1
	}
	return int(d)
}

func (d DoublingLevel) String() string {
	if d == Gahwa {
		return "GAHWA"
	}
	return fmt.Sprintf("%d", int(d))
}
