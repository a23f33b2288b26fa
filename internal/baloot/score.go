package baloot

// RoundTally is the raw material of round scoring: abnat collected by each
// team (last-trick bonus included), tricks won, and the surviving project
// declarations after conflict resolution.
type RoundTally struct {
	Mode       Mode
	Trump      Suit
	Doubling   DoublingLevel
	BidderTeam Team
	Abnat      [2]int
	TricksWon  [2]int
	Projects   []Project
}

// RoundScore is the per-team game-point outcome of one round.
type RoundScore struct {
	GP      [2]int
	Kaboot  bool
	Khasara bool
	Winner  Team
}

// ScoreRound converts a round tally into game points, honoring the kaboot
// sweep values, the bidder-team khasara rule, doubling multipliers and the
// flat Baloot bonus.
func ScoreRound(t RoundTally) RoundScore {
	mode := t.Mode
	projGP, balootGP := projectTotals(t.Projects, mode)

	var score RoundScore

	switch {
	case t.TricksWon[TeamUs] == 8:
		score = sweep(TeamUs, mode, projGP)
	case t.TricksWon[TeamThem] == 8:
		score = sweep(TeamThem, mode, projGP)
	default:
		var us, them int
		if mode == Hokum {
			us, them = hokumGP(t.Abnat[TeamUs], t.Abnat[TeamThem], t.BidderTeam)
		} else {
			us, them = sunGP(t.Abnat[TeamUs], t.Abnat[TeamThem], t.BidderTeam)
		}
		gp := [2]int{us + projGP[TeamUs], them + projGP[TeamThem]}

		bidder, defender := t.BidderTeam, t.BidderTeam.Other()
		if gp[bidder] <= gp[defender] {
			// Khasara: defenders collect the pool and every project.
			gp[defender] = mode.Pool() + projGP[TeamUs] + projGP[TeamThem]
			gp[bidder] = 0
			score.Khasara = true
		} else if t.Doubling >= DoubleTwo {
			// Doubled rounds are winner-take-all.
			gp[bidder] = mode.Pool() + projGP[TeamUs] + projGP[TeamThem]
			gp[defender] = 0
		}
		score.GP = gp
		if gp[TeamUs] >= gp[TeamThem] {
			score.Winner = TeamUs
		} else {
			score.Winner = TeamThem
		}
		if score.Khasara {
			score.Winner = defender
		}
	}

	// Doubling multiplies the winner's game points.
	if m := t.Doubling.Multiplier(); m > 1 {
		score.GP[score.Winner] *= m
	}

	// Baloot is flat, never multiplied, and survives khasara.
	score.GP[TeamUs] += balootGP[TeamUs]
	score.GP[TeamThem] += balootGP[TeamThem]

	return score
}

func sweep(winner Team, mode Mode, projGP [2]int) RoundScore {
	var score RoundScore
	score.Kaboot = true
	score.Winner = winner
	score.GP[winner] = mode.KabootValue() + projGP[TeamUs] + projGP[TeamThem]
	return score
}

func projectTotals(projects []Project, mode Mode) (projGP, balootGP [2]int) {
	for _, p := range projects {
		if p.Type == BalootProject {
			balootGP[p.Seat.Team()] += p.Value(mode)
		} else {
			projGP[p.Seat.Team()] += p.Value(mode)
		}
	}
	return projGP, balootGP
}

// sunGP converts SUN abnat to game points. Each team's quotient abnat/5 is
// rounded to the nearest even integer, which is pair-symmetric: for a full
// round (130 abnat) the two results always sum to 26. The exact-midpoint
// tie goes against the bidder.
func sunGP(us, them int, bidder Team) (int, int) {
	gp := func(abnat int) (int, bool) {
		k, r := abnat/10, abnat%10
		switch {
		case r < 5:
			return 2 * k, false
		case r > 5:
			return 2*k + 2, false
		default:
			return 2 * k, true // midpoint, resolved by caller
		}
	}
	ug, utie := gp(us)
	tg, ttie := gp(them)
	if utie && ttie {
		if bidder == TeamUs {
			tg += 2
		} else {
			ug += 2
		}
	} else if utie {
		ug += 1 // partial round in tests; keep halves fair
	} else if ttie {
		tg += 1
	}
	return ug, tg
}

// hokumGP converts HOKUM abnat to game points: abnat/10 with remainders
// above 5 rounding up, then a pair correction so a full round (162 abnat)
// always sums to 16. When both remainders round up, the bidder gives back
// the extra point.
func hokumGP(us, them int, bidder Team) (int, int) {
	gp := func(abnat int) (int, int) {
		k, r := abnat/10, abnat%10
		if r > 5 {
			return k + 1, r
		}
		return k, r
	}
	ug, ur := gp(us)
	tg, tr := gp(them)
	if us+them == 162 && ug+tg != 16 {
		switch {
		case ug+tg == 17 && ur < tr:
			ug--
		case ug+tg == 17 && tr < ur:
			tg--
		case ug+tg == 17:
			if bidder == TeamUs {
				ug--
			} else {
				tg--
			}
		case ug+tg == 15 && ur > tr:
			ug++
		case ug+tg == 15:
			tg++
		}
	}
	return ug, tg
}
