package game

import (
	"fmt"

	"github.com/balootlabs/baloot/internal/baloot"
)

// Verdict is the deterministic outcome of a confirmed dispute.
type Verdict struct {
	Guilty    bool          `json:"guilty"`
	Accused   baloot.Seat   `json:"accused"`
	Violation ViolationType `json:"violation,omitempty"`
	Reason    string        `json:"reason"`
}

// QaydState is the open dispute. While it exists the trick clock is
// paused and only the reporter acts.
type QaydState struct {
	Step     QaydStep    `json:"step"`
	Reporter baloot.Seat `json:"reporter"`

	Option    QaydOption    `json:"option,omitempty"`
	Violation ViolationType `json:"violation,omitempty"`

	// Crime and proof are picks into the trick history. A proof trick of
	// -1 means the proof card is still in the accused's hand, addressed
	// by card ID instead of play index.
	CrimeTrick int `json:"crimeTrick"`
	CrimeCard  int `json:"crimeCard"`
	ProofTrick int `json:"proofTrick"`
	ProofCard  int `json:"proofCard"`
}

func (g *Game) applyQayd(a Action) ([]Event, error) {
	if a.Kind == ActionQaydTrigger {
		return g.triggerQayd(a.Seat)
	}

	if g.Phase != PhaseQayd || g.Round.Qayd == nil {
		return nil, NewError(ErrQaydOutOfStep, "no dispute open")
	}
	q := g.Round.Qayd
	if a.Seat != q.Reporter {
		return nil, NewError(ErrOutOfTurn, "only the reporter drives a dispute")
	}

	switch a.Kind {
	case ActionQaydMenu:
		return g.qaydMenu(a)
	case ActionQaydViolation:
		return g.qaydViolation(a)
	case ActionQaydCrime:
		return g.qaydCrime(a)
	case ActionQaydProof:
		return g.qaydProof(a)
	case ActionQaydConfirm:
		return g.qaydConfirm()
	default:
		return nil, NewError(ErrInvalidPayload, "unknown qayd action %q", a.Kind)
	}
}

// triggerQayd opens a dispute. Disputes can only be raised while tricks
// are in play; once the round is scored the evidence is gone.
func (g *Game) triggerQayd(seat baloot.Seat) ([]Event, error) {
	if g.Phase == PhaseQayd {
		return nil, NewError(ErrQaydOutOfStep, "a dispute is already open")
	}
	if g.Phase != PhasePlaying {
		return nil, NewError(ErrOutOfTurn, "disputes are raised during play")
	}
	g.Phase = PhaseQayd
	g.Round.Qayd = &QaydState{Step: QaydMenu, Reporter: seat}
	return []Event{
		{Kind: EventToast, Seat: seat, Text: "QAYD"},
		{Kind: EventStateChanged},
	}, nil
}

func (g *Game) qaydMenu(a Action) ([]Event, error) {
	q := g.Round.Qayd
	if q.Step != QaydMenu {
		return nil, NewError(ErrQaydOutOfStep, "dispute is at %s", q.Step)
	}
	q.Option = a.Option

	switch a.Option {
	case QaydRevealCards:
		q.Step = QaydViolationPick
		return stateChanged(), nil

	case QaydWrongSawa:
		// Adjudicated on the spot against the claim on record.
		s := g.Round.Sawa
		if s == nil {
			return nil, NewError(ErrQaydOutOfStep, "no sawa claim on record")
		}
		if s.provable {
			// The claim holds; the dispute backfires and the claim stands.
			verdict := Verdict{Accused: s.Claimant, Reason: "claim is provable"}
			g.Phase = PhasePlaying
			g.Round.Qayd = nil
			events := []Event{verdictEvent(verdict)}
			accepted, err := g.acceptSawa()
			if err != nil {
				return nil, err
			}
			return append(events, accepted...), nil
		}
		verdict := Verdict{Guilty: true, Accused: s.Claimant, Reason: "claim is not provable"}
		return g.closeWithVerdict(verdict, q.Reporter.Team()), nil

	case QaydWrongAkka:
		if len(g.Round.AkkaClaims) == 0 {
			return nil, NewError(ErrQaydOutOfStep, "no akka claim on record")
		}
		claim := g.Round.AkkaClaims[len(g.Round.AkkaClaims)-1]
		if claim.valid {
			verdict := Verdict{Accused: claim.Seat, Reason: "akka was truthful"}
			return g.closeWithVerdict(verdict, claim.Seat.Team()), nil
		}
		verdict := Verdict{Guilty: true, Accused: claim.Seat, Reason: "akka was false"}
		return g.closeWithVerdict(verdict, q.Reporter.Team()), nil

	default:
		return nil, NewError(ErrInvalidPayload, "unknown qayd option %q", a.Option)
	}
}

func (g *Game) qaydViolation(a Action) ([]Event, error) {
	q := g.Round.Qayd
	if q.Step != QaydViolationPick {
		return nil, NewError(ErrQaydOutOfStep, "dispute is at %s", q.Step)
	}
	switch a.Violation {
	case ViolationRevoke, ViolationTrumpInDouble, ViolationNoOvertrump,
		ViolationNoTrump, ViolationNoHigherCard:
	default:
		return nil, NewError(ErrInvalidPayload, "unknown violation %q", a.Violation)
	}
	q.Violation = a.Violation
	q.Step = QaydCrimePick
	return stateChanged(), nil
}

func (g *Game) qaydCrime(a Action) ([]Event, error) {
	q := g.Round.Qayd
	if q.Step != QaydCrimePick {
		return nil, NewError(ErrQaydOutOfStep, "dispute is at %s", q.Step)
	}
	play, err := g.playAt(a.TrickIdx, a.TrickCard)
	if err != nil {
		return nil, err
	}
	key := jeopardyKey{round: g.roundIndex, cardID: play.Card.ID()}
	if g.jeopardy[key] {
		return nil, NewError(ErrDoubleJeopardy, "%s was already disputed this round", play.Card)
	}
	g.jeopardy[key] = true
	q.CrimeTrick = a.TrickIdx
	q.CrimeCard = a.TrickCard
	q.Step = QaydProofPick
	return stateChanged(), nil
}

func (g *Game) qaydProof(a Action) ([]Event, error) {
	q := g.Round.Qayd
	if q.Step != QaydProofPick {
		return nil, NewError(ErrQaydOutOfStep, "dispute is at %s", q.Step)
	}
	if a.TrickIdx >= 0 {
		if _, err := g.playAt(a.TrickIdx, a.TrickCard); err != nil {
			return nil, err
		}
	} else {
		if _, err := baloot.CardByID(a.TrickCard); err != nil {
			return nil, NewError(ErrInvalidPayload, "%v", err)
		}
	}
	q.ProofTrick = a.TrickIdx
	q.ProofCard = a.TrickCard
	q.Step = QaydVerdict
	return stateChanged(), nil
}

func (g *Game) qaydConfirm() ([]Event, error) {
	q := g.Round.Qayd
	if q.Step != QaydVerdict {
		return nil, NewError(ErrQaydOutOfStep, "dispute is at %s", q.Step)
	}
	verdict := g.evaluateDispute()
	winner := verdict.Accused.Team().Other()
	if !verdict.Guilty {
		winner = q.Reporter.Team().Other()
	}
	return g.closeWithVerdict(verdict, winner), nil
}

// playAt resolves a (trick, play) pick. The index just past the closed
// tricks addresses the live table.
func (g *Game) playAt(trickIdx, cardIdx int) (baloot.Play, error) {
	r := g.Round
	var plays []baloot.Play
	switch {
	case trickIdx >= 0 && trickIdx < len(r.Tricks):
		plays = r.Tricks[trickIdx].Plays
	case trickIdx == len(r.Tricks):
		plays = r.Table
	default:
		return baloot.Play{}, NewError(ErrInvalidPayload, "trick %d does not exist", trickIdx)
	}
	if cardIdx < 0 || cardIdx >= len(plays) {
		return baloot.Play{}, NewError(ErrInvalidPayload, "trick %d has no play %d", trickIdx, cardIdx)
	}
	return plays[cardIdx], nil
}

// evaluateDispute replays the accused move against the reconstructed
// holdings. The verdict is a pure function of the round history.
func (g *Game) evaluateDispute() Verdict {
	r := g.Round
	q := r.Qayd
	crime, _ := g.playAt(q.CrimeTrick, q.CrimeCard)
	accused := crime.Seat
	held := r.holdingsAt(q.CrimeTrick, accused)

	if !g.proofHeld(held, crime) {
		return Verdict{Accused: accused, Violation: q.Violation, Reason: "proof card was not held at the time"}
	}

	var table []baloot.Play
	if q.CrimeTrick < len(r.Tricks) {
		table = r.Tricks[q.CrimeTrick].Plays[:q.CrimeCard]
	} else {
		table = r.Table[:q.CrimeCard]
	}

	if q.Violation == ViolationNoHigherCard {
		if baloot.HoldsHigherOfSuit(held, crime.Card) {
			return Verdict{Guilty: true, Accused: accused, Violation: q.Violation,
				Reason: fmt.Sprintf("%s held a higher %s", accused, crime.Card.Suit)}
		}
		return Verdict{Accused: accused, Violation: q.Violation, Reason: "no higher card was held"}
	}

	actual := baloot.CheckMove(accused, crime.Card, held, table, r.Mode(), r.Trump(), r.Doubling)
	if actual == accusedViolation(q.Violation) && actual != baloot.ViolationNone {
		return Verdict{Guilty: true, Accused: accused, Violation: q.Violation,
			Reason: fmt.Sprintf("playing %s was a %s", crime.Card, q.Violation)}
	}
	return Verdict{Accused: accused, Violation: q.Violation,
		Reason: fmt.Sprintf("playing %s was not a %s", crime.Card, q.Violation)}
}

// proofHeld checks the reporter's exhibit against the reconstruction.
func (g *Game) proofHeld(held []baloot.Card, crime baloot.Play) bool {
	q := g.Round.Qayd
	var proof baloot.Card
	if q.ProofTrick >= 0 {
		play, err := g.playAt(q.ProofTrick, q.ProofCard)
		if err != nil || play.Seat != crime.Seat {
			return false
		}
		proof = play.Card
	} else {
		c, err := baloot.CardByID(q.ProofCard)
		if err != nil {
			return false
		}
		proof = c
	}
	if proof == crime.Card {
		return false
	}
	for _, c := range held {
		if c == proof {
			return true
		}
	}
	return false
}

func accusedViolation(v ViolationType) baloot.MoveViolation {
	switch v {
	case ViolationRevoke:
		return baloot.ViolationRevoke
	case ViolationTrumpInDouble:
		return baloot.ViolationTrumpInDouble
	case ViolationNoOvertrump:
		return baloot.ViolationNoOvertrump
	case ViolationNoTrump:
		return baloot.ViolationNoTrump
	default:
		return baloot.ViolationNone
	}
}

// closeWithVerdict ends the round by forfeit: the winning team collects
// the full pool plus every declared project, the round tears down and
// the next one is dealt.
func (g *Game) closeWithVerdict(verdict Verdict, winner baloot.Team) []Event {
	r := g.Round
	total := r.Mode().Pool() * r.Doubling.Multiplier()
	for _, p := range r.Declarations {
		total += p.Value(r.Mode())
	}

	result := RoundResult{Mode: r.Mode(), ByQayd: true}
	if r.Bid != nil {
		result.Bidder = r.Bid.Bidder
	}
	if winner == baloot.TeamUs {
		result.UsGP = total
	} else {
		result.ThemGP = total
	}

	events := []Event{verdictEvent(verdict)}
	return append(events, g.commitRound(result)...)
}

func verdictEvent(v Verdict) Event {
	return Event{
		Kind:   EventQaydVerdict,
		Seat:   v.Accused,
		Guilty: v.Guilty,
		Reason: v.Reason,
	}
}

// abortQayd drops a dispute whose reporter ran out the clock. Play
// resumes exactly where it paused.
func (g *Game) abortQayd() ([]Event, error) {
	if g.Phase != PhaseQayd {
		return nil, NewError(ErrQaydOutOfStep, "no dispute open")
	}
	g.Phase = PhasePlaying
	g.Round.Qayd = nil
	return []Event{
		{Kind: EventToast, Seat: g.Round.Turn, Text: "QAYD_DROPPED"},
		{Kind: EventStateChanged},
	}, nil
}
