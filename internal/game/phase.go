package game

import (
	"encoding/json"
	"fmt"
)

// Phase is the top-level state of the game machine. Transitions are made
// exclusively by Game.Apply, so every phase change is a function of the
// action stream and the per-round seed.
type Phase int

const (
	PhaseWaiting Phase = iota
	PhaseBidding
	PhaseDoubling
	PhaseVariantSelection
	PhasePlaying
	PhaseQayd
	PhaseScoring
	PhaseGameOver
)

func (p Phase) String() string {
	switch p {
	case PhaseWaiting:
		return "WAITING"
	case PhaseBidding:
		return "BIDDING"
	case PhaseDoubling:
		return "DOUBLING"
	case PhaseVariantSelection:
		return "VARIANT_SELECTION"
	case PhasePlaying:
		return "PLAYING"
	case PhaseQayd:
		return "QAYD"
	case PhaseScoring:
		return "SCORING"
	case PhaseGameOver:
		return "GAME_OVER"
	default:
		return "?"
	}
}

// QaydStep is the position inside the dispute sub-machine.
type QaydStep int

const (
	QaydIdle QaydStep = iota
	QaydMenu
	QaydViolationPick
	QaydCrimePick
	QaydProofPick
	QaydVerdict
)

func (s QaydStep) String() string {
	switch s {
	case QaydIdle:
		return "IDLE"
	case QaydMenu:
		return "MENU"
	case QaydViolationPick:
		return "VIOLATION_PICK"
	case QaydCrimePick:
		return "CRIME_PICK"
	case QaydProofPick:
		return "PROOF_PICK"
	case QaydVerdict:
		return "VERDICT"
	default:
		return "?"
	}
}

// MarshalJSON writes the symbolic step name; clients switch on it the
// same way they switch on the phase.
func (s QaydStep) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON accepts the symbolic name. Bot workers round-trip
// snapshots through JSON, so both directions matter.
func (s *QaydStep) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	switch name {
	case "IDLE":
		*s = QaydIdle
	case "MENU":
		*s = QaydMenu
	case "VIOLATION_PICK":
		*s = QaydViolationPick
	case "CRIME_PICK":
		*s = QaydCrimePick
	case "PROOF_PICK":
		*s = QaydProofPick
	case "VERDICT":
		*s = QaydVerdict
	default:
		return fmt.Errorf("unknown qayd step %q", name)
	}
	return nil
}
