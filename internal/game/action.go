package game

import "github.com/balootlabs/baloot/internal/baloot"

// ActionKind names an action the state machine understands. The wire
// event names map onto these one-to-one; the *Timeout kinds are synthetic
// actions injected by the room's timers.
type ActionKind string

const (
	ActionBid            ActionKind = "bid"
	ActionPlay           ActionKind = "play"
	ActionDouble         ActionKind = "double"
	ActionVariant        ActionKind = "variant"
	ActionDeclareProject ActionKind = "declare_project"
	ActionDeclareAkka    ActionKind = "declare_akka"
	ActionClaimSawa      ActionKind = "claim_sawa"
	ActionSawaResponse   ActionKind = "sawa_response"
	ActionQaydTrigger    ActionKind = "qayd_trigger"
	ActionQaydMenu       ActionKind = "qayd_menu"
	ActionQaydViolation  ActionKind = "qayd_violation"
	ActionQaydCrime      ActionKind = "qayd_crime"
	ActionQaydProof      ActionKind = "qayd_proof"
	ActionQaydConfirm    ActionKind = "qayd_confirm"

	ActionTurnTimeout ActionKind = "turn_timeout"
	ActionQaydTimeout ActionKind = "qayd_timeout"
	ActionSawaTimeout ActionKind = "sawa_timeout"
)

// BidCall is the verb of a bid action.
type BidCall string

const (
	BidPass   BidCall = "PASS"
	BidSun    BidCall = "SUN"
	BidHokum  BidCall = "HOKUM"
	BidAshkal BidCall = "ASHKAL"
	BidKawesh BidCall = "KAWESH"
)

// SawaAnswer is a defender's response to a claim-the-rest.
type SawaAnswer string

const (
	SawaAccept SawaAnswer = "ACCEPT"
	SawaRefuse SawaAnswer = "REFUSE"
)

// QaydOption is the reporter's menu pick.
type QaydOption string

const (
	QaydRevealCards QaydOption = "REVEAL_CARDS"
	QaydWrongSawa   QaydOption = "WRONG_SAWA"
	QaydWrongAkka   QaydOption = "WRONG_AKKA"
)

// ViolationType is the accusation category in a REVEAL_CARDS dispute.
type ViolationType string

const (
	ViolationRevoke        ViolationType = "REVOKE"
	ViolationTrumpInDouble ViolationType = "TRUMP_IN_DOUBLE"
	ViolationNoOvertrump   ViolationType = "NO_OVERTRUMP"
	ViolationNoTrump       ViolationType = "NO_TRUMP"
	ViolationNoHigherCard  ViolationType = "NO_HIGHER_CARD"
)

// Action is one mutation request submitted to a game. Exactly the fields
// relevant to Kind are set; the rest stay zero.
type Action struct {
	Kind ActionKind
	Seat baloot.Seat

	// bid
	Bid  BidCall
	Suit baloot.Suit

	// play / declare_akka
	CardIndex int
	CardID    int

	// double
	Level baloot.DoublingLevel

	// variant
	Open bool

	// declare_project
	Project baloot.ProjectType
	Cards   []baloot.Card

	// sawa_response
	Answer SawaAnswer

	// qayd
	Option    QaydOption
	Violation ViolationType
	TrickIdx  int
	TrickCard int

	// Synthetic marks actions injected by the server itself (timeouts and
	// bot decisions); they bypass session checks but not rule checks.
	Synthetic bool
}
