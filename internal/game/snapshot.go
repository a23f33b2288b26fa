package game

import "github.com/balootlabs/baloot/internal/baloot"

// PlayerView is the public slice of a seat occupant. Difficulty is set
// for bot seats so clients can badge them.
type PlayerView struct {
	Name         string `json:"name"`
	IsBot        bool   `json:"isBot"`
	Difficulty   string `json:"difficulty,omitempty"`
	Disconnected bool   `json:"disconnected,omitempty"`
	CardCount    int    `json:"cardCount"`
}

// SettingsView echoes the table knobs in every snapshot so clients can
// render turn timers and toggles without a separate settings exchange.
type SettingsView struct {
	TurnMs        int64  `json:"turnDuration"`
	StrictMode    bool   `json:"strictMode"`
	SoundEnabled  bool   `json:"soundEnabled"`
	BotDifficulty string `json:"botDifficulty"`
}

// ProjectView announces a declaration without exposing its cards. The
// cards travel only to the declaring seat until trick two completes,
// then everyone sees them.
type ProjectView struct {
	Type  string        `json:"type"`
	Seat  baloot.Seat   `json:"seat"`
	Cards []baloot.Card `json:"cards,omitempty"`
}

// SawaView is the public state of a pending claim-the-rest.
type SawaView struct {
	Claimant  baloot.Seat                `json:"claimant"`
	Responses map[baloot.Seat]SawaAnswer `json:"responses"`
}

// RoundView is the redacted round state inside a snapshot.
type RoundView struct {
	Dealer   baloot.Seat `json:"dealerIndex"`
	Turn     baloot.Seat `json:"currentTurnIndex"`
	BidRound int         `json:"bidRound"`

	Bid      *Bid                 `json:"bid,omitempty"`
	Doubling baloot.DoublingLevel `json:"doublingLevel"`
	Open     bool                 `json:"open,omitempty"`

	FloorCard *baloot.Card `json:"floorCard,omitempty"`
	TrumpSuit *baloot.Suit `json:"trumpSuit,omitempty"`

	Hand       []baloot.Card `json:"hand,omitempty"`
	BidderHand []baloot.Card `json:"bidderHand,omitempty"`

	Table     []baloot.Play  `json:"tableCards"`
	Tricks    []baloot.Trick `json:"currentRoundTricks,omitempty"`
	TricksWon [2]int         `json:"tricksWon"`
	Abnat     [2]int         `json:"teamScores"`

	Projects []ProjectView `json:"declarations,omitempty"`
	Akka     []AkkaClaim   `json:"akkaClaims,omitempty"`
	Sawa     *SawaView     `json:"sawaState,omitempty"`
	Qayd     *QaydState    `json:"qaydState,omitempty"`

	// BalootMarker tells the viewer, during bidding only, that their hand
	// holds K+Q of the floor card's suit.
	BalootMarker bool `json:"balootMarker,omitempty"`
}

// Snapshot is one seat's complete view of the game. The room stamps the
// version and room metadata before broadcast.
type Snapshot struct {
	Phase    string        `json:"phase"`
	Viewer   baloot.Seat   `json:"yourSeat"`
	Players  [4]PlayerView `json:"players"`
	Scores   [2]int        `json:"matchScores"`
	Target   int           `json:"targetScore"`
	Settings SettingsView  `json:"settings"`
	Round    *RoundView    `json:"round,omitempty"`
	History  []RoundResult `json:"roundHistory,omitempty"`
	Galoss   bool          `json:"galoss,omitempty"`
}

// SnapshotFor builds the state visible to one seat. A negative viewer
// produces the spectator view with every hand hidden.
func (g *Game) SnapshotFor(viewer baloot.Seat) Snapshot {
	snap := Snapshot{
		Phase:  g.Phase.String(),
		Viewer: viewer,
		Scores: g.Scores,
		Target: g.Settings.TargetScore,
		Settings: SettingsView{
			TurnMs:        g.Settings.TurnDuration.Milliseconds(),
			StrictMode:    g.Settings.StrictMode,
			SoundEnabled:  g.Settings.SoundEnabled,
			BotDifficulty: g.Settings.BotDifficulty,
		},
		History: g.RoundHistory,
		Galoss:  g.Galoss,
	}
	for i, p := range g.Players {
		snap.Players[i] = PlayerView{
			Name:         p.Name,
			IsBot:        p.IsBot,
			Difficulty:   p.Difficulty,
			Disconnected: p.Disconnected,
		}
		if g.Round != nil {
			snap.Players[i].CardCount = len(g.Round.Hands[i])
		}
	}
	if g.Round == nil || g.Phase == PhaseWaiting || g.Phase == PhaseGameOver {
		return snap
	}

	r := g.Round
	rv := &RoundView{
		Dealer:    r.Dealer,
		Turn:      r.Turn,
		BidRound:  r.BidRound,
		Bid:       r.Bid,
		Doubling:  r.Doubling,
		Open:      r.Open,
		Table:     r.Table,
		Tricks:    r.Tricks,
		TricksWon: r.tricksWon(),
		Abnat:     r.abnat(),
		Akka:      r.AkkaClaims,
	}
	if r.Qayd != nil {
		// Copied: frames are marshaled outside the loop while the dispute
		// keeps moving.
		q := *r.Qayd
		rv.Qayd = &q
	}
	if g.Phase == PhaseBidding {
		floor := r.FloorCard
		rv.FloorCard = &floor
		if viewer.Valid() {
			rv.BalootMarker = baloot.HasBalootMarriage(r.Hands[viewer], floor.Suit)
		}
	}
	if r.Bid != nil && r.Bid.Mode == baloot.Hokum {
		trump := r.Bid.Trump
		rv.TrumpSuit = &trump
	}
	if viewer.Valid() {
		rv.Hand = r.Hands[viewer]
	}
	if r.Open && r.Bid != nil {
		rv.BidderHand = r.Hands[r.Bid.Bidder]
	}
	for _, p := range r.Declarations {
		pv := ProjectView{Type: p.Type.String(), Seat: p.Seat}
		if p.Seat == viewer || len(r.Tricks) >= 2 {
			pv.Cards = p.Cards
		}
		rv.Projects = append(rv.Projects, pv)
	}
	if r.Sawa != nil {
		responses := make(map[baloot.Seat]SawaAnswer, len(r.Sawa.Responses))
		for seat, answer := range r.Sawa.Responses {
			responses[seat] = answer
		}
		rv.Sawa = &SawaView{Claimant: r.Sawa.Claimant, Responses: responses}
	}
	snap.Round = rv
	return snap
}

// AllowedActions lists the action kinds a seat may take right now. Bot
// drivers use it to pick a move without re-deriving the phase rules.
func (g *Game) AllowedActions(seat baloot.Seat) []ActionKind {
	var kinds []ActionKind
	switch g.Phase {
	case PhaseBidding:
		if g.Round.Turn == seat {
			kinds = append(kinds, ActionBid)
		}
	case PhaseDoubling:
		if g.Round.doubleTurn == seat {
			kinds = append(kinds, ActionDouble)
		}
	case PhaseVariantSelection:
		if g.Round.Bid.Bidder == seat {
			kinds = append(kinds, ActionVariant)
		}
	case PhasePlaying:
		r := g.Round
		if r.Sawa != nil {
			if seat.Team() != r.Sawa.Claimant.Team() {
				if _, done := r.Sawa.Responses[seat]; !done {
					kinds = append(kinds, ActionSawaResponse)
				}
			}
			return kinds
		}
		if r.Turn == seat {
			kinds = append(kinds, ActionPlay)
			if r.Mode() == baloot.Hokum && len(r.Table) == 0 {
				kinds = append(kinds, ActionDeclareAkka)
			}
			if len(r.Table) == 0 {
				kinds = append(kinds, ActionClaimSawa)
			}
		}
		if len(r.Tricks) < 2 {
			kinds = append(kinds, ActionDeclareProject)
		}
		kinds = append(kinds, ActionQaydTrigger)
	case PhaseQayd:
		q := g.Round.Qayd
		if q.Reporter != seat {
			break
		}
		switch q.Step {
		case QaydMenu:
			kinds = append(kinds, ActionQaydMenu)
		case QaydViolationPick:
			kinds = append(kinds, ActionQaydViolation)
		case QaydCrimePick:
			kinds = append(kinds, ActionQaydCrime)
		case QaydProofPick:
			kinds = append(kinds, ActionQaydProof)
		case QaydVerdict:
			kinds = append(kinds, ActionQaydConfirm)
		}
	}
	return kinds
}
