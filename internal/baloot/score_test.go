package baloot

import "testing"

func TestScoreRoundSunSplit(t *testing.T) {
	// 67/63 abnat split: nearest-even rounding gives 14/12, summing to 26.
	score := ScoreRound(RoundTally{
		Mode:       Sun,
		Doubling:   DoubleNone,
		BidderTeam: TeamUs,
		Abnat:      [2]int{67, 63},
		TricksWon:  [2]int{4, 4},
	})
	if score.GP[TeamUs] != 14 || score.GP[TeamThem] != 12 {
		t.Errorf("GP = %v, want [14 12]", score.GP)
	}
	if score.Khasara || score.Kaboot {
		t.Errorf("unexpected flags: %+v", score)
	}
}

func TestScoreRoundSunSumLaw(t *testing.T) {
	// For every split of the 130 SUN abnat, the two teams' GP sum to 26.
	for us := 0; us <= 130; us++ {
		them := 130 - us
		ug, tg := sunGP(us, them, TeamUs)
		if ug+tg != 26 {
			t.Fatalf("sunGP(%d,%d) = %d+%d, want sum 26", us, them, ug, tg)
		}
	}
}

func TestScoreRoundHokumSumLaw(t *testing.T) {
	for us := 0; us <= 162; us++ {
		them := 162 - us
		ug, tg := hokumGP(us, them, TeamThem)
		if ug+tg != 16 {
			t.Fatalf("hokumGP(%d,%d) = %d+%d, want sum 16", us, them, ug, tg)
		}
	}
}

func TestScoreRoundHokumKaboot(t *testing.T) {
	// Them sweeps all 8 tricks as bidder: 25 GP, us zero.
	score := ScoreRound(RoundTally{
		Mode:       Hokum,
		Doubling:   DoubleNone,
		BidderTeam: TeamThem,
		Abnat:      [2]int{0, 162},
		TricksWon:  [2]int{0, 8},
	})
	if !score.Kaboot {
		t.Error("expected kaboot")
	}
	if score.GP[TeamThem] != 25 || score.GP[TeamUs] != 0 {
		t.Errorf("GP = %v, want [0 25]", score.GP)
	}
	if score.Winner != TeamThem {
		t.Errorf("winner = %v, want them", score.Winner)
	}
}

func TestScoreRoundKhasara(t *testing.T) {
	// SUN, bidder us, defenders out-collect: defenders take the whole pool.
	score := ScoreRound(RoundTally{
		Mode:       Sun,
		Doubling:   DoubleNone,
		BidderTeam: TeamUs,
		Abnat:      [2]int{40, 90},
		TricksWon:  [2]int{3, 5},
	})
	if !score.Khasara {
		t.Error("expected khasara")
	}
	if score.GP[TeamUs] != 0 || score.GP[TeamThem] != 26 {
		t.Errorf("GP = %v, want [0 26]", score.GP)
	}
}

func TestScoreRoundKhasaraKeepsBaloot(t *testing.T) {
	// The Baloot bonus stays with its owner even when that team loses by
	// khasara, and is never multiplied.
	score := ScoreRound(RoundTally{
		Mode:       Hokum,
		Trump:      Spades,
		Doubling:   DoubleTwo,
		BidderTeam: TeamUs,
		Abnat:      [2]int{60, 102},
		TricksWon:  [2]int{3, 5},
		Projects: []Project{
			{Type: BalootProject, Seat: 0, Cards: []Card{NewCard(Spades, King), NewCard(Spades, Queen)}},
		},
	})
	if !score.Khasara {
		t.Error("expected khasara")
	}
	if score.GP[TeamUs] != 2 {
		t.Errorf("us GP = %d, want the flat baloot 2", score.GP[TeamUs])
	}
	if score.GP[TeamThem] != 32 {
		t.Errorf("them GP = %d, want doubled pool 32", score.GP[TeamThem])
	}
}

func TestScoreRoundDoublingWinnerTakesAll(t *testing.T) {
	score := ScoreRound(RoundTally{
		Mode:       Hokum,
		Doubling:   DoubleThree,
		BidderTeam: TeamUs,
		Abnat:      [2]int{100, 62},
		TricksWon:  [2]int{5, 3},
	})
	if score.GP[TeamUs] != 48 {
		t.Errorf("us GP = %d, want 16*3", score.GP[TeamUs])
	}
	if score.GP[TeamThem] != 0 {
		t.Errorf("them GP = %d, want 0", score.GP[TeamThem])
	}
}

func TestScoreRoundProjectsJoinThePool(t *testing.T) {
	score := ScoreRound(RoundTally{
		Mode:       Sun,
		Doubling:   DoubleNone,
		BidderTeam: TeamUs,
		Abnat:      [2]int{90, 40},
		TricksWon:  [2]int{6, 2},
		Projects: []Project{
			{Type: Sira, Seat: 0},
			{Type: Fifty, Seat: 2},
		},
	})
	// 90/40 -> 18/8, plus sira 4 and fifty 10 for us.
	if score.GP[TeamUs] != 32 || score.GP[TeamThem] != 8 {
		t.Errorf("GP = %v, want [32 8]", score.GP)
	}
}
