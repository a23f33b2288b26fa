package game

import (
	rand "math/rand/v2"
	"time"

	"github.com/balootlabs/baloot/internal/baloot"
	"github.com/balootlabs/baloot/internal/randutil"
)

// Settings are the per-room knobs a game runs under.
type Settings struct {
	TurnDuration  time.Duration `json:"turnDuration"`
	QaydHuman     time.Duration `json:"qaydHuman"`
	QaydBot       time.Duration `json:"qaydBot"`
	SawaWindow    time.Duration `json:"sawaWindow"`
	TargetScore   int           `json:"targetScore"`
	StrictMode    bool          `json:"strictMode"`
	SoundEnabled  bool          `json:"soundEnabled"`
	BotDifficulty string        `json:"botDifficulty"`
}

// DefaultSettings mirrors the documented defaults.
func DefaultSettings() Settings {
	return Settings{
		TurnDuration:  30 * time.Second,
		QaydHuman:     60 * time.Second,
		QaydBot:       2 * time.Second,
		SawaWindow:    60 * time.Second,
		TargetScore:   152,
		StrictMode:    true,
		SoundEnabled:  true,
		BotDifficulty: "medium",
	}
}

// enforcement maps the room's strict-mode setting onto the rules library.
func (s Settings) enforcement() baloot.Enforcement {
	if s.StrictMode {
		return baloot.EnforceStrict
	}
	return baloot.EnforceBasic
}

// PlayerInfo is the per-seat occupant metadata the machine needs. Seat
// assignment itself lives in the room. Difficulty is set for bot seats
// only and steers which strategy answers for them.
type PlayerInfo struct {
	Name         string `json:"name"`
	IsBot        bool   `json:"isBot"`
	SessionID    string `json:"-"`
	Disconnected bool   `json:"disconnected"`
	Difficulty   string `json:"difficulty,omitempty"`
}

// RoundResult is the scored outcome appended to the match history.
type RoundResult struct {
	Mode    baloot.Mode `json:"mode"`
	Bidder  baloot.Seat `json:"bidder"`
	UsGP    int         `json:"us"`
	ThemGP  int         `json:"them"`
	Kaboot  bool        `json:"kaboot"`
	Khasara bool        `json:"khasara"`
	ByQayd  bool        `json:"byQayd,omitempty"`
}

type jeopardyKey struct {
	round  int
	cardID int
}

// Game is the authoritative state machine for one match. It is not safe
// for concurrent use: the owning room serializes every Apply call.
type Game struct {
	Settings Settings
	Players  [4]PlayerInfo

	Phase  Phase
	Round  *Round
	Scores [2]int

	RoundHistory []RoundResult
	GahwaWinner  *baloot.Team
	Galoss       bool

	roundIndex int
	seeds      *rand.Rand
	jeopardy   map[jeopardyKey]bool
}

// New creates a game in the WAITING phase. The seed drives every shuffle
// and dealer pick, which makes whole matches replayable.
func New(settings Settings, seed int64) *Game {
	return &Game{
		Settings: settings,
		Phase:    PhaseWaiting,
		seeds:    randutil.New(seed),
		jeopardy: make(map[jeopardyKey]bool),
	}
}

// Start deals the first round. The room calls it once all four seats are
// occupied.
func (g *Game) Start() []Event {
	dealer := baloot.Seat(g.seeds.IntN(baloot.NumSeats))
	g.beginRound(dealer)
	return stateChanged()
}

func (g *Game) beginRound(dealer baloot.Seat) {
	g.roundIndex++
	g.Round = newRound(dealer, int64(g.seeds.Uint64()))
	g.Phase = PhaseBidding
}

// ActiveSeat returns the seat the machine is waiting on, or -1 when no
// single seat holds the turn (e.g. a sawa window).
func (g *Game) ActiveSeat() baloot.Seat {
	switch g.Phase {
	case PhaseBidding, PhaseDoubling, PhasePlaying:
		if g.Round != nil && g.Round.Sawa != nil {
			return g.sawaWaiter()
		}
		if g.Round != nil {
			return g.Round.Turn
		}
	case PhaseVariantSelection:
		return g.Round.Bid.Bidder
	case PhaseQayd:
		return g.Round.Qayd.Reporter
	}
	return -1
}

func (g *Game) sawaWaiter() baloot.Seat {
	s := g.Round.Sawa
	for seat := baloot.Seat(0); seat < baloot.NumSeats; seat++ {
		if seat.Team() == s.Claimant.Team() {
			continue
		}
		if _, ok := s.Responses[seat]; !ok {
			return seat
		}
	}
	return -1
}

// TimerKind tells the room which fallback to arm for the current state.
type TimerKind int

const (
	TimerNone TimerKind = iota
	TimerTurn
	TimerQayd
	TimerSawa
)

// PendingTimer reports the deadline the room should schedule next. The
// machine never keeps wall-clock state itself: the room injects the
// corresponding *Timeout action when the timer fires.
func (g *Game) PendingTimer() (TimerKind, time.Duration) {
	switch g.Phase {
	case PhaseQayd:
		d := g.Settings.QaydHuman
		if g.Players[g.Round.Qayd.Reporter].IsBot {
			d = g.Settings.QaydBot
		}
		return TimerQayd, d
	case PhaseBidding, PhaseDoubling, PhaseVariantSelection:
		return TimerTurn, g.Settings.TurnDuration
	case PhasePlaying:
		if g.Round.Sawa != nil {
			return TimerSawa, g.Settings.SawaWindow
		}
		return TimerTurn, g.Settings.TurnDuration
	default:
		return TimerNone, 0
	}
}

// ConvertToBot replaces a seat occupant with a bot after the disconnect
// grace expires. The bot plays at the room's configured difficulty.
func (g *Game) ConvertToBot(seat baloot.Seat) {
	g.Players[seat].IsBot = true
	g.Players[seat].Disconnected = false
	g.Players[seat].SessionID = ""
	g.Players[seat].Difficulty = g.Settings.BotDifficulty
}

// Apply executes one action against the machine. On error nothing is
// mutated; on success the returned events describe what to announce.
func (g *Game) Apply(a Action) ([]Event, error) {
	switch a.Kind {
	case ActionBid:
		return g.applyBid(a)
	case ActionDouble:
		return g.applyDouble(a)
	case ActionVariant:
		return g.applyVariant(a)
	case ActionPlay:
		return g.applyPlay(a)
	case ActionDeclareProject:
		return g.applyProject(a)
	case ActionDeclareAkka:
		return g.applyAkka(a)
	case ActionClaimSawa:
		return g.applySawa(a)
	case ActionSawaResponse:
		return g.applySawaResponse(a)
	case ActionQaydTrigger, ActionQaydMenu, ActionQaydViolation,
		ActionQaydCrime, ActionQaydProof, ActionQaydConfirm:
		return g.applyQayd(a)
	case ActionTurnTimeout:
		return g.applyTurnTimeout(a)
	case ActionQaydTimeout:
		return g.abortQayd()
	case ActionSawaTimeout:
		return g.acceptSawa()
	default:
		return nil, NewError(ErrInvalidPayload, "unknown action %q", a.Kind)
	}
}

func (g *Game) requireTurn(phase Phase, seat baloot.Seat) error {
	if g.Phase != phase {
		return NewError(ErrOutOfTurn, "phase is %s", g.Phase)
	}
	if g.Round.Turn != seat {
		return NewError(ErrOutOfTurn, "turn is %s", g.Round.Turn)
	}
	return nil
}

// --- bidding ---

func (g *Game) applyBid(a Action) ([]Event, error) {
	if err := g.requireTurn(PhaseBidding, a.Seat); err != nil {
		return nil, err
	}
	r := g.Round

	switch a.Bid {
	case BidKawesh:
		for _, c := range r.Hands[a.Seat] {
			if c.IsCourt() {
				return nil, NewError(ErrIllegalMove, "kawesh requires a hand without court cards")
			}
		}
		g.beginRound(r.Dealer)
		return []Event{{Kind: EventRedeal, Seat: a.Seat, Text: "KAWESH"}, {Kind: EventStateChanged}}, nil

	case BidPass:
		r.passes++
		r.Turn = r.Turn.Next()
		if r.passes == baloot.NumSeats {
			if r.BidRound == 1 {
				r.BidRound = 2
				r.passes = 0
				r.Turn = r.Dealer.Next()
				return stateChanged(), nil
			}
			g.beginRound(r.Dealer.Next())
			return []Event{{Kind: EventRedeal}, {Kind: EventStateChanged}}, nil
		}
		return stateChanged(), nil

	case BidSun, BidAshkal:
		mode := baloot.Sun
		receiver := a.Seat
		if a.Bid == BidAshkal {
			mode = baloot.Ashkal
			receiver = a.Seat.Partner()
		}
		r.Bid = &Bid{Mode: mode, Bidder: a.Seat}
		r.completeDeal(receiver)
		g.enterDoubling()
		return stateChanged(), nil

	case BidHokum:
		trump := r.FloorCard.Suit
		if r.BidRound == 2 {
			if a.Suit == r.FloorCard.Suit {
				return nil, NewError(ErrIllegalMove, "second-round hokum must pick a suit other than the floor card's")
			}
			trump = a.Suit
		}
		r.Bid = &Bid{Mode: baloot.Hokum, Trump: trump, Bidder: a.Seat}
		r.completeDeal(a.Seat)
		g.enterDoubling()
		return stateChanged(), nil

	default:
		return nil, NewError(ErrInvalidPayload, "unknown bid %q", a.Bid)
	}
}

func (g *Game) enterDoubling() {
	r := g.Round
	g.Phase = PhaseDoubling
	r.lastRaiseTeam = r.Bid.Bidder.Team()
	r.doubleTurn = r.Bid.Bidder.Next()
	r.doublePasses = 0
}

// --- doubling ---

func (g *Game) applyDouble(a Action) ([]Event, error) {
	if g.Phase != PhaseDoubling {
		return nil, NewError(ErrOutOfTurn, "phase is %s", g.Phase)
	}
	r := g.Round
	if a.Seat != r.doubleTurn {
		return nil, NewError(ErrOutOfTurn, "doubling turn is %s", r.doubleTurn)
	}

	switch {
	case a.Level == baloot.Gahwa:
		// Coffee: the match ends on the spot for the challenger's team.
		r.Doubling = baloot.Gahwa
		team := a.Seat.Team()
		g.GahwaWinner = &team
		g.Phase = PhaseGameOver
		return []Event{
			{Kind: EventToast, Seat: a.Seat, Text: "GAHWA"},
			{Kind: EventGameOver, UsGP: g.Scores[baloot.TeamUs], ThemGP: g.Scores[baloot.TeamThem]},
			{Kind: EventStateChanged},
		}, nil

	case a.Level == 0:
		// Pass.
		r.doublePasses++
		if r.doublePasses >= 2 {
			g.startPlaying()
			return stateChanged(), nil
		}
		r.doubleTurn = r.doubleTurn.Partner()
		return stateChanged(), nil

	case a.Level == r.Doubling+1 && a.Level <= baloot.DoubleFour:
		if a.Seat.Team() == r.lastRaiseTeam {
			return nil, NewError(ErrOutOfTurn, "your team holds the current level")
		}
		r.Doubling = a.Level
		r.lastRaiseTeam = a.Seat.Team()
		r.doublePasses = 0
		r.doubleTurn = a.Seat.Next()
		return stateChanged(), nil

	default:
		return nil, NewError(ErrIllegalMove, "cannot raise to %s from %s", a.Level, r.Doubling)
	}
}

func (g *Game) startPlaying() {
	r := g.Round
	if r.Mode() == baloot.Hokum {
		g.Phase = PhaseVariantSelection
		return
	}
	g.beginTricks()
}

func (g *Game) beginTricks() {
	g.Phase = PhasePlaying
	g.Round.Turn = g.Round.Dealer.Next()
}

// --- variant selection ---

func (g *Game) applyVariant(a Action) ([]Event, error) {
	if g.Phase != PhaseVariantSelection {
		return nil, NewError(ErrOutOfTurn, "phase is %s", g.Phase)
	}
	if a.Seat != g.Round.Bid.Bidder {
		return nil, NewError(ErrOutOfTurn, "only the bidder picks the variant")
	}
	g.Round.Open = a.Open
	g.beginTricks()
	return stateChanged(), nil
}

// --- playing ---

func (g *Game) applyPlay(a Action) ([]Event, error) {
	if err := g.requireTurn(PhasePlaying, a.Seat); err != nil {
		return nil, err
	}
	r := g.Round
	if r.Sawa != nil {
		return nil, NewError(ErrOutOfTurn, "sawa claim pending")
	}

	card, err := baloot.CardByID(a.CardID)
	if err != nil {
		return nil, NewError(ErrInvalidPayload, "%v", err)
	}
	ok, violation := baloot.IsLegalMove(
		a.Seat, card, r.Hands[a.Seat], r.Table,
		r.Mode(), r.Trump(), r.Doubling, g.Settings.enforcement(),
	)
	if !ok {
		return nil, NewError(ErrIllegalMove, "%s", violation)
	}

	r.removeFromHand(a.Seat, card)
	r.Table = append(r.Table, baloot.Play{Seat: a.Seat, Card: card})

	if len(r.Table) < baloot.NumSeats {
		r.Turn = r.Turn.Next()
		return stateChanged(), nil
	}

	// Trick complete.
	winner := baloot.TrickWinner(r.Table, r.Mode(), r.Trump())
	points := baloot.TrickPoints(r.Table, r.Mode(), r.Trump())
	r.Tricks = append(r.Tricks, baloot.Trick{Plays: r.Table, Winner: winner, Points: points})
	r.Table = nil
	r.Turn = winner

	events := []Event{{Kind: EventTrickWon, Winner: winner, Points: points}, {Kind: EventStateChanged}}
	if len(r.Tricks) == 8 {
		events = append(events, g.scoreRound(nil)...)
	}
	return events, nil
}

func (g *Game) applyProject(a Action) ([]Event, error) {
	if g.Phase != PhasePlaying {
		return nil, NewError(ErrOutOfTurn, "phase is %s", g.Phase)
	}
	r := g.Round
	if len(r.Tricks) >= 2 {
		return nil, NewError(ErrIllegalMove, "projects must be declared in the first two tricks")
	}
	for _, p := range r.Declarations {
		if p.Seat == a.Seat && p.Type == a.Project {
			return nil, NewError(ErrIllegalMove, "already declared %s", a.Project)
		}
	}
	for _, p := range baloot.DetectProjects(r.dealt[a.Seat], r.Mode(), r.Trump()) {
		if p.Type == a.Project {
			p.Seat = a.Seat
			r.Declarations = append(r.Declarations, p)
			return []Event{
				{Kind: EventToast, Seat: a.Seat, Text: a.Project.String()},
				{Kind: EventStateChanged},
			}, nil
		}
	}
	return nil, NewError(ErrIllegalMove, "hand does not hold a %s", a.Project)
}

func (g *Game) applyAkka(a Action) ([]Event, error) {
	if err := g.requireTurn(PhasePlaying, a.Seat); err != nil {
		return nil, err
	}
	r := g.Round
	if r.Mode() != baloot.Hokum {
		return nil, NewError(ErrIllegalMove, "akka exists only in hokum")
	}
	if len(r.Table) != 0 {
		return nil, NewError(ErrIllegalMove, "akka is declared only when leading")
	}
	card, err := baloot.CardByID(a.CardID)
	if err != nil {
		return nil, NewError(ErrInvalidPayload, "%v", err)
	}
	if card.Suit == r.Trump() {
		return nil, NewError(ErrIllegalMove, "akka is declared on non-trump cards")
	}
	hand := r.Hands[a.Seat]
	found := false
	for _, c := range hand {
		if c == card {
			found = true
		}
	}
	if !found {
		return nil, NewError(ErrIllegalMove, "card not in hand")
	}
	r.AkkaClaims = append(r.AkkaClaims, AkkaClaim{
		Seat:  a.Seat,
		Card:  card,
		valid: baloot.AkkaEligible(card, r.Played(), hand),
	})
	return []Event{
		{Kind: EventToast, Seat: a.Seat, Text: "AKKA", Card: &card},
		{Kind: EventStateChanged},
	}, nil
}

// --- sawa ---

func (g *Game) applySawa(a Action) ([]Event, error) {
	if err := g.requireTurn(PhasePlaying, a.Seat); err != nil {
		return nil, err
	}
	r := g.Round
	if r.Sawa != nil {
		return nil, NewError(ErrIllegalMove, "sawa already claimed")
	}
	if len(r.Table) != 0 {
		return nil, NewError(ErrIllegalMove, "sawa is claimed when leading")
	}
	r.Sawa = &SawaState{
		Claimant:  a.Seat,
		Responses: make(map[baloot.Seat]SawaAnswer),
		provable:  baloot.SawaProvable(r.Hands[a.Seat], r.Played(), r.Mode(), r.Trump()),
		hand:      append([]baloot.Card(nil), r.Hands[a.Seat]...),
	}
	return []Event{
		{Kind: EventToast, Seat: a.Seat, Text: "SAWA"},
		{Kind: EventStateChanged},
	}, nil
}

func (g *Game) applySawaResponse(a Action) ([]Event, error) {
	if g.Phase != PhasePlaying || g.Round.Sawa == nil {
		return nil, NewError(ErrOutOfTurn, "no sawa pending")
	}
	s := g.Round.Sawa
	if a.Seat.Team() == s.Claimant.Team() {
		return nil, NewError(ErrOutOfTurn, "only defenders respond to sawa")
	}
	if _, done := s.Responses[a.Seat]; done {
		return nil, NewError(ErrOutOfTurn, "already responded")
	}

	if a.Answer == SawaRefuse {
		// A refusal is a dispute: it opens Qayd for the refuser, who is
		// expected to press WRONG_SAWA.
		return g.applyQayd(Action{Kind: ActionQaydTrigger, Seat: a.Seat})
	}

	s.Responses[a.Seat] = SawaAccept
	if len(s.Responses) == 2 {
		return g.acceptSawa()
	}
	return stateChanged(), nil
}

// acceptSawa hands every remaining trick to the claimant's team and
// scores the round.
func (g *Game) acceptSawa() ([]Event, error) {
	if g.Round == nil || g.Round.Sawa == nil {
		return nil, NewError(ErrOutOfTurn, "no sawa pending")
	}
	claimTeam := g.Round.Sawa.Claimant.Team()
	events := g.scoreRound(&sawaAward{team: claimTeam})
	return events, nil
}

// sawaAward folds an accepted claim-the-rest into the round tally.
type sawaAward struct {
	team baloot.Team
}

// --- scoring & round/match transitions ---

func (g *Game) scoreRound(sawa *sawaAward) []Event {
	r := g.Round
	tally := baloot.RoundTally{
		Mode:       r.Mode(),
		Trump:      r.Trump(),
		Doubling:   r.Doubling,
		BidderTeam: r.Bid.Bidder.Team(),
		Abnat:      r.abnat(),
		TricksWon:  r.tricksWon(),
		Projects:   baloot.ResolveDeclarations(r.Declarations, r.Mode()),
	}

	if sawa != nil {
		// Unplayed cards and any table cards fall to the claimant's team,
		// along with the last-trick bonus and the remaining trick count.
		rest := 0
		for _, hand := range r.Hands {
			for _, c := range hand {
				rest += c.Points(r.Mode(), r.Trump())
			}
		}
		for _, p := range r.Table {
			rest += p.Card.Points(r.Mode(), r.Trump())
		}
		tally.Abnat[sawa.team] += rest + 10
		tally.TricksWon[sawa.team] += 8 - len(r.Tricks)
	}

	score := baloot.ScoreRound(tally)
	return g.commitRound(RoundResult{
		Mode:    r.Mode(),
		Bidder:  r.Bid.Bidder,
		UsGP:    score.GP[baloot.TeamUs],
		ThemGP:  score.GP[baloot.TeamThem],
		Kaboot:  score.Kaboot,
		Khasara: score.Khasara,
	})
}

// commitRound applies a round result to the match and either deals the
// next round or ends the game.
func (g *Game) commitRound(result RoundResult) []Event {
	g.Scores[baloot.TeamUs] += result.UsGP
	g.Scores[baloot.TeamThem] += result.ThemGP
	g.RoundHistory = append(g.RoundHistory, result)

	events := []Event{{
		Kind:    EventRoundScored,
		UsGP:    result.UsGP,
		ThemGP:  result.ThemGP,
		Kaboot:  result.Kaboot,
		Khasara: result.Khasara,
	}}

	us, them := g.Scores[baloot.TeamUs], g.Scores[baloot.TeamThem]
	target := g.Settings.TargetScore
	if (us >= target || them >= target) && us != them {
		g.Phase = PhaseGameOver
		if us == 0 || them == 0 {
			g.Galoss = true
		}
		events = append(events, Event{Kind: EventGameOver, UsGP: us, ThemGP: them})
		events = append(events, Event{Kind: EventStateChanged})
		return events
	}

	g.beginRound(g.Round.Dealer.Next())
	events = append(events, Event{Kind: EventStateChanged})
	return events
}

// --- timeouts ---

func (g *Game) applyTurnTimeout(a Action) ([]Event, error) {
	switch g.Phase {
	case PhaseBidding:
		return g.applyBid(Action{Kind: ActionBid, Seat: g.Round.Turn, Bid: BidPass, Synthetic: true})
	case PhaseDoubling:
		return g.applyDouble(Action{Kind: ActionDouble, Seat: g.Round.doubleTurn, Synthetic: true})
	case PhaseVariantSelection:
		g.Round.Open = false
		g.beginTricks()
		return stateChanged(), nil
	case PhasePlaying:
		if g.Round.Sawa != nil {
			return g.acceptSawa()
		}
		return g.autoPlay()
	default:
		return nil, NewError(ErrOutOfTurn, "no turn to time out in %s", g.Phase)
	}
}

// autoPlay plays the lowest-impact legal card for the seat on turn.
// Timeouts are never fatal. The pick is always strictly legal, whatever
// the table's enforcement: a timeout must not commit a card the player
// could be convicted for.
func (g *Game) autoPlay() ([]Event, error) {
	r := g.Round
	seat := r.Turn
	legal := baloot.LegalMoves(seat, r.Hands[seat], r.Table, r.Mode(), r.Trump(), r.Doubling, baloot.EnforceStrict)
	if len(legal) == 0 {
		// Strict enforcement always leaves at least one card; guard anyway.
		legal = r.Hands[seat]
	}
	card := baloot.LowestImpact(legal, r.Mode(), r.Trump())
	events, err := g.applyPlay(Action{Kind: ActionPlay, Seat: seat, CardID: card.ID(), Synthetic: true})
	if err != nil {
		return nil, err
	}
	return append([]Event{{Kind: EventAutoPlayed, Seat: seat, Card: &card}}, events...), nil
}

// CardConservation verifies the 32-card invariant for the current round:
// hands + table + closed tricks always cover the deck exactly.
func (g *Game) CardConservation() bool {
	if g.Round == nil || g.Round.Bid == nil {
		return true
	}
	n := len(g.Round.Table) + 4*len(g.Round.Tricks)
	for _, h := range g.Round.Hands {
		n += len(h)
	}
	return n == 32
}
