package baloot

import "sort"

// ProjectType classifies a meld declaration.
type ProjectType int

const (
	Sira ProjectType = iota
	Fifty
	Hundred
	FourHundred
	BalootProject
)

func (p ProjectType) String() string {
	switch p {
	case Sira:
		return "SIRA"
	case Fifty:
		return "FIFTY"
	case Hundred:
		return "HUNDRED"
	case FourHundred:
		return "FOUR_HUNDRED"
	case BalootProject:
		return "BALOOT"
	default:
		return "?"
	}
}

// ParseProjectType converts a wire name to a ProjectType.
func ParseProjectType(s string) (ProjectType, bool) {
	switch s {
	case "SIRA":
		return Sira, true
	case "FIFTY":
		return Fifty, true
	case "HUNDRED":
		return Hundred, true
	case "FOUR_HUNDRED":
		return FourHundred, true
	case "BALOOT":
		return BalootProject, true
	default:
		return 0, false
	}
}

// Project is a declared meld held by one seat.
type Project struct {
	Type  ProjectType `json:"type"`
	Cards []Card      `json:"cards"`
	Seat  Seat        `json:"seat"`
}

// Value returns the game-point worth of the project in the given mode.
// The Baloot bonus is flat and never multiplied.
func (p Project) Value(mode Mode) int {
	if mode == Hokum {
		switch p.Type {
		case Sira:
			return 2
		case Fifty:
			return 5
		case Hundred:
			return 10
		case BalootProject:
			return 2
		}
		return 0
	}
	switch p.Type {
	case Sira:
		return 4
	case Fifty:
		return 10
	case Hundred:
		return 20
	case FourHundred:
		return 40
	}
	return 0
}

// DetectProjects finds every declarable project in the hand. Runs use the
// natural order 7,8,9,10,J,Q,K,A and only maximal runs are reported; runs
// of five or more count as HUNDRED. Four-of-a-kind of 10/J/Q/K counts as
// HUNDRED, four aces as FOUR_HUNDRED (SUN only), and K+Q of trump as
// BALOOT (HOKUM only).
func DetectProjects(hand []Card, mode Mode, trump Suit) []Project {
	var projects []Project

	// Maximal consecutive runs per suit.
	for _, suit := range Suits {
		var ranks []int
		for _, c := range hand {
			if c.Suit == suit {
				ranks = append(ranks, int(c.Rank-Seven))
			}
		}
		sort.Ints(ranks)
		for i := 0; i < len(ranks); {
			j := i
			for j+1 < len(ranks) && ranks[j+1] == ranks[j]+1 {
				j++
			}
			length := j - i + 1
			if length >= 3 {
				cards := make([]Card, 0, length)
				for k := i; k <= j; k++ {
					cards = append(cards, NewCard(suit, Rank(ranks[k])+Seven))
				}
				projects = append(projects, Project{Type: runType(length), Cards: cards})
			}
			i = j + 1
		}
	}

	// Four-of-a-kind.
	byRank := make(map[Rank][]Card)
	for _, c := range hand {
		byRank[c.Rank] = append(byRank[c.Rank], c)
	}
	for rank, cards := range byRank {
		if len(cards) != 4 {
			continue
		}
		switch rank {
		case Ace:
			if mode.PlaysLikeSun() {
				projects = append(projects, Project{Type: FourHundred, Cards: cards})
			}
		case Ten, Jack, Queen, King:
			projects = append(projects, Project{Type: Hundred, Cards: cards})
		}
	}

	// K+Q of trump.
	if mode == Hokum {
		var kq []Card
		for _, c := range hand {
			if c.Suit == trump && (c.Rank == King || c.Rank == Queen) {
				kq = append(kq, c)
			}
		}
		if len(kq) == 2 {
			projects = append(projects, Project{Type: BalootProject, Cards: kq})
		}
	}

	return projects
}

// HasBalootMarriage reports whether the hand holds both the king and the
// queen of the given suit. During bidding the suit is provisional (the
// floor card's), so this only signals that a BALOOT declaration would be
// available under a matching HOKUM contract.
func HasBalootMarriage(hand []Card, trump Suit) bool {
	var king, queen bool
	for _, c := range hand {
		if c.Suit != trump {
			continue
		}
		switch c.Rank {
		case King:
			king = true
		case Queen:
			queen = true
		}
	}
	return king && queen
}

func runType(length int) ProjectType {
	switch {
	case length >= 5:
		return Hundred
	case length == 4:
		return Fifty
	default:
		return Sira
	}
}

// ResolveDeclarations applies the team-conflict rule: the team holding the
// single most valuable project scores all of its projects and zeroes the
// other team's; equal best values cancel both sides. Baloot declarations
// always survive.
func ResolveDeclarations(decls []Project, mode Mode) []Project {
	bestFor := func(team Team) int {
		best := 0
		for _, p := range decls {
			if p.Type == BalootProject || p.Seat.Team() != team {
				continue
			}
			if v := p.Value(mode); v > best {
				best = v
			}
		}
		return best
	}

	usBest, themBest := bestFor(TeamUs), bestFor(TeamThem)
	var surviving []Project
	for _, p := range decls {
		if p.Type == BalootProject {
			surviving = append(surviving, p)
			continue
		}
		team := p.Seat.Team()
		switch {
		case usBest == themBest && usBest > 0:
			// Cancelled on both sides.
		case team == TeamUs && usBest > themBest,
			team == TeamThem && themBest > usBest:
			surviving = append(surviving, p)
		case usBest == 0 && themBest == 0:
			surviving = append(surviving, p)
		}
	}
	return surviving
}
