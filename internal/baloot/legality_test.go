package baloot

import "testing"

func TestCheckMove(t *testing.T) {
	trump := Spades
	tests := []struct {
		name     string
		seat     Seat
		card     Card
		hand     []Card
		table    []Play
		mode     Mode
		doubling DoublingLevel
		want     MoveViolation
	}{
		{
			name:     "leading any card is fine",
			seat:     0,
			card:     NewCard(Hearts, Seven),
			hand:     []Card{NewCard(Hearts, Seven), NewCard(Spades, Ace)},
			mode:     Hokum,
			doubling: DoubleNone,
			want:     ViolationNone,
		},
		{
			name:     "card not held",
			seat:     0,
			card:     NewCard(Hearts, Ace),
			hand:     []Card{NewCard(Hearts, Seven)},
			mode:     Sun,
			doubling: DoubleNone,
			want:     ViolationNotInHand,
		},
		{
			name:     "trump lead forbidden at double two while holding off suit",
			seat:     0,
			card:     NewCard(Spades, Ace),
			hand:     []Card{NewCard(Spades, Ace), NewCard(Hearts, Seven)},
			mode:     Hokum,
			doubling: DoubleTwo,
			want:     ViolationTrumpInDouble,
		},
		{
			name:     "trump lead allowed at double two with all trump hand",
			seat:     0,
			card:     NewCard(Spades, Ace),
			hand:     []Card{NewCard(Spades, Ace), NewCard(Spades, Seven)},
			mode:     Hokum,
			doubling: DoubleTwo,
			want:     ViolationNone,
		},
		{
			name: "must follow lead suit",
			seat: 2,
			card: NewCard(Diamonds, Queen),
			hand: []Card{NewCard(Hearts, Eight), NewCard(Diamonds, Queen)},
			table: []Play{
				{Seat: 1, Card: NewCard(Hearts, Ten)},
			},
			mode:     Sun,
			doubling: DoubleNone,
			want:     ViolationRevoke,
		},
		{
			name: "void of lead must cut in hokum",
			seat: 3,
			card: NewCard(Diamonds, Queen),
			hand: []Card{NewCard(Spades, Eight), NewCard(Diamonds, Queen)},
			table: []Play{
				{Seat: 1, Card: NewCard(Hearts, Ten)},
			},
			mode:     Hokum,
			doubling: DoubleNone,
			want:     ViolationNoTrump,
		},
		{
			name: "void of lead may discard when partner winning",
			seat: 3,
			card: NewCard(Diamonds, Queen),
			hand: []Card{NewCard(Spades, Eight), NewCard(Diamonds, Queen)},
			table: []Play{
				{Seat: 0, Card: NewCard(Hearts, Ten)},
				{Seat: 1, Card: NewCard(Hearts, Ace)},
			},
			mode:     Hokum,
			doubling: DoubleNone,
			want:     ViolationNone,
		},
		{
			name: "void of lead no obligation in sun",
			seat: 3,
			card: NewCard(Diamonds, Queen),
			hand: []Card{NewCard(Spades, Eight), NewCard(Diamonds, Queen)},
			table: []Play{
				{Seat: 1, Card: NewCard(Hearts, Ten)},
			},
			mode:     Sun,
			doubling: DoubleNone,
			want:     ViolationNone,
		},
		{
			name: "must overtrump a cut trick when able",
			seat: 0,
			card: NewCard(Diamonds, Eight),
			hand: []Card{NewCard(Spades, Jack), NewCard(Diamonds, Eight)},
			table: []Play{
				{Seat: 2, Card: NewCard(Hearts, Ten)},
				{Seat: 3, Card: NewCard(Spades, Nine)},
			},
			mode:     Hokum,
			doubling: DoubleNone,
			want:     ViolationNoOvertrump,
		},
		{
			name: "undertrump never forced",
			seat: 0,
			card: NewCard(Diamonds, Eight),
			hand: []Card{NewCard(Spades, Seven), NewCard(Diamonds, Eight)},
			table: []Play{
				{Seat: 2, Card: NewCard(Hearts, Ten)},
				{Seat: 3, Card: NewCard(Spades, Nine)},
			},
			mode:     Hokum,
			doubling: DoubleNone,
			want:     ViolationNone,
		},
		{
			name: "trump led must be raised when able",
			seat: 2,
			card: NewCard(Spades, Seven),
			hand: []Card{NewCard(Spades, Seven), NewCard(Spades, Jack)},
			table: []Play{
				{Seat: 1, Card: NewCard(Spades, Ace)},
			},
			mode:     Hokum,
			doubling: DoubleNone,
			want:     ViolationNoOvertrump,
		},
		{
			name: "trump led no raise needed when partner winning",
			seat: 3,
			card: NewCard(Spades, Seven),
			hand: []Card{NewCard(Spades, Seven), NewCard(Spades, Jack)},
			table: []Play{
				{Seat: 1, Card: NewCard(Spades, Ace)},
				{Seat: 2, Card: NewCard(Spades, Eight)},
			},
			mode:     Hokum,
			doubling: DoubleNone,
			want:     ViolationNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CheckMove(tt.seat, tt.card, tt.hand, tt.table, tt.mode, trump, tt.doubling)
			if got != tt.want {
				t.Errorf("CheckMove = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEnforcementLevels(t *testing.T) {
	trump := Spades
	hand := []Card{NewCard(Spades, Ace), NewCard(Hearts, Seven)}

	// Leading trump at double two: blocked under strict, playable under
	// basic (and left for Qayd).
	ok, v := IsLegalMove(0, NewCard(Spades, Ace), hand, nil, Hokum, trump, DoubleTwo, EnforceStrict)
	if ok || v != ViolationTrumpInDouble {
		t.Errorf("strict: ok=%v v=%v", ok, v)
	}
	ok, v = IsLegalMove(0, NewCard(Spades, Ace), hand, nil, Hokum, trump, DoubleTwo, EnforceBasic)
	if !ok || v != ViolationTrumpInDouble {
		t.Errorf("basic: ok=%v v=%v", ok, v)
	}

	// A revoke is blocked under strict and left to Qayd under basic.
	table := []Play{{Seat: 3, Card: NewCard(Hearts, Ten)}}
	ok, v = IsLegalMove(0, NewCard(Spades, Ace), hand, table, Sun, trump, DoubleNone, EnforceStrict)
	if ok || v != ViolationRevoke {
		t.Errorf("strict revoke: ok=%v v=%v", ok, v)
	}
	ok, v = IsLegalMove(0, NewCard(Spades, Ace), hand, table, Sun, trump, DoubleNone, EnforceBasic)
	if !ok || v != ViolationRevoke {
		t.Errorf("basic revoke: ok=%v v=%v", ok, v)
	}

	// A card not actually held is rejected at every level.
	ok, v = IsLegalMove(0, NewCard(Diamonds, Ace), hand, table, Sun, trump, DoubleNone, EnforceBasic)
	if ok || v != ViolationNotInHand {
		t.Errorf("not in hand: ok=%v v=%v", ok, v)
	}
}

func TestLowestImpact(t *testing.T) {
	legal := []Card{
		NewCard(Hearts, Ace),
		NewCard(Hearts, Nine),
		NewCard(Hearts, Eight),
	}
	if got := LowestImpact(legal, Sun, Spades); got != NewCard(Hearts, Eight) {
		t.Errorf("sun lowest = %s, want 8♥", got)
	}
	// In HOKUM trump, the nine is worth 14 so the eight stays cheapest.
	if got := LowestImpact(legal, Hokum, Hearts); got != NewCard(Hearts, Eight) {
		t.Errorf("hokum lowest = %s, want 8♥", got)
	}
}

func TestLegalMovesAlwaysNonEmptyForHeldCards(t *testing.T) {
	// Whatever the table state, a player holding cards always has at least
	// one legal move under strict enforcement.
	hand := []Card{NewCard(Spades, Seven), NewCard(Hearts, Eight), NewCard(Diamonds, Queen)}
	tables := [][]Play{
		nil,
		{{Seat: 1, Card: NewCard(Hearts, Ten)}},
		{{Seat: 1, Card: NewCard(Clubs, Ten)}, {Seat: 2, Card: NewCard(Spades, Nine)}},
	}
	for _, table := range tables {
		legal := LegalMoves(0, hand, table, Hokum, Spades, DoubleTwo, EnforceStrict)
		if len(legal) == 0 {
			t.Errorf("no legal moves for table %v", table)
		}
	}
}
