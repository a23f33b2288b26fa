package game

import "github.com/balootlabs/baloot/internal/baloot"

// EventKind names an outbound notification produced by Apply. State
// itself travels as versioned snapshots; events carry the moments worth
// announcing on top of the diff.
type EventKind string

const (
	EventStateChanged EventKind = "state_changed"
	EventTrickWon     EventKind = "trick_won"
	EventRoundScored  EventKind = "round_scored"
	EventGameOver     EventKind = "game_over"
	EventQaydVerdict  EventKind = "qayd_verdict"
	EventToast        EventKind = "toast"
	EventAutoPlayed   EventKind = "auto_played"
	EventRedeal       EventKind = "redeal"
)

// Event is one notification emitted alongside a state transition.
type Event struct {
	Kind EventKind `json:"kind"`

	Seat    baloot.Seat  `json:"seat,omitempty"`
	Card    *baloot.Card `json:"card,omitempty"`
	Text    string       `json:"text,omitempty"`
	Winner  baloot.Seat  `json:"winner,omitempty"`
	Points  int          `json:"points,omitempty"`
	Guilty  bool         `json:"guilty,omitempty"`
	Reason  string       `json:"reason,omitempty"`
	UsGP    int          `json:"usGP,omitempty"`
	ThemGP  int          `json:"themGP,omitempty"`
	Kaboot  bool         `json:"kaboot,omitempty"`
	Khasara bool         `json:"khasara,omitempty"`
}

func stateChanged() []Event {
	return []Event{{Kind: EventStateChanged}}
}
