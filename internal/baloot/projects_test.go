package baloot

import "testing"

func hasProject(projects []Project, pt ProjectType) bool {
	for _, p := range projects {
		if p.Type == pt {
			return true
		}
	}
	return false
}

func TestDetectProjects(t *testing.T) {
	tests := []struct {
		name  string
		hand  []Card
		mode  Mode
		trump Suit
		want  []ProjectType
	}{
		{
			name: "three card run is sira",
			hand: []Card{
				NewCard(Hearts, Seven), NewCard(Hearts, Eight), NewCard(Hearts, Nine),
				NewCard(Spades, Ace), NewCard(Diamonds, King),
			},
			mode: Sun,
			want: []ProjectType{Sira},
		},
		{
			name: "four card run is fifty",
			hand: []Card{
				NewCard(Clubs, Ten), NewCard(Clubs, Jack), NewCard(Clubs, Queen), NewCard(Clubs, King),
			},
			mode: Sun,
			want: []ProjectType{Fifty},
		},
		{
			name: "five card run is hundred not fifty plus sira",
			hand: []Card{
				NewCard(Clubs, Nine), NewCard(Clubs, Ten), NewCard(Clubs, Jack),
				NewCard(Clubs, Queen), NewCard(Clubs, King),
			},
			mode: Sun,
			want: []ProjectType{Hundred},
		},
		{
			name: "four jacks are a hundred",
			hand: []Card{
				NewCard(Spades, Jack), NewCard(Hearts, Jack),
				NewCard(Diamonds, Jack), NewCard(Clubs, Jack),
			},
			mode: Hokum, trump: Spades,
			want: []ProjectType{Hundred},
		},
		{
			name: "four aces are four hundred in sun",
			hand: []Card{
				NewCard(Spades, Ace), NewCard(Hearts, Ace),
				NewCard(Diamonds, Ace), NewCard(Clubs, Ace),
			},
			mode: Sun,
			want: []ProjectType{FourHundred},
		},
		{
			name: "four aces are nothing in hokum",
			hand: []Card{
				NewCard(Spades, Ace), NewCard(Hearts, Ace),
				NewCard(Diamonds, Ace), NewCard(Clubs, Ace),
			},
			mode: Hokum, trump: Spades,
			want: nil,
		},
		{
			name: "king queen of trump is baloot",
			hand: []Card{
				NewCard(Spades, King), NewCard(Spades, Queen), NewCard(Hearts, Seven),
			},
			mode: Hokum, trump: Spades,
			want: []ProjectType{BalootProject},
		},
		{
			name: "king queen off trump is not baloot",
			hand: []Card{
				NewCard(Hearts, King), NewCard(Hearts, Queen),
			},
			mode: Hokum, trump: Spades,
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetectProjects(tt.hand, tt.mode, tt.trump)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d projects %v, want %d", len(got), got, len(tt.want))
			}
			for _, pt := range tt.want {
				if !hasProject(got, pt) {
					t.Errorf("missing project %v in %v", pt, got)
				}
			}
		})
	}
}

func TestHasBalootMarriage(t *testing.T) {
	tests := []struct {
		name  string
		hand  []Card
		trump Suit
		want  bool
	}{
		{
			name:  "king and queen of trump",
			hand:  []Card{NewCard(Spades, King), NewCard(Spades, Queen), NewCard(Hearts, Seven)},
			trump: Spades,
			want:  true,
		},
		{
			name:  "king only",
			hand:  []Card{NewCard(Spades, King), NewCard(Hearts, Queen)},
			trump: Spades,
			want:  false,
		},
		{
			name:  "pair in the wrong suit",
			hand:  []Card{NewCard(Hearts, King), NewCard(Hearts, Queen)},
			trump: Spades,
			want:  false,
		},
		{
			name:  "empty hand",
			trump: Spades,
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasBalootMarriage(tt.hand, tt.trump); got != tt.want {
				t.Errorf("HasBalootMarriage() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResolveDeclarations(t *testing.T) {
	t.Run("higher value wins and zeroes the other side", func(t *testing.T) {
		decls := []Project{
			{Type: Fifty, Seat: 0},
			{Type: Sira, Seat: 2},
			{Type: Sira, Seat: 1},
		}
		got := ResolveDeclarations(decls, Sun)
		if len(got) != 2 {
			t.Fatalf("surviving = %v, want the two us projects", got)
		}
		for _, p := range got {
			if p.Seat.Team() != TeamUs {
				t.Errorf("project %v should have been zeroed", p)
			}
		}
	})

	t.Run("equal best values cancel both", func(t *testing.T) {
		decls := []Project{
			{Type: Sira, Seat: 0},
			{Type: Sira, Seat: 3},
		}
		if got := ResolveDeclarations(decls, Sun); len(got) != 0 {
			t.Errorf("surviving = %v, want none", got)
		}
	})

	t.Run("baloot always survives", func(t *testing.T) {
		decls := []Project{
			{Type: BalootProject, Seat: 1},
			{Type: Sira, Seat: 1},
			{Type: Fifty, Seat: 0},
		}
		got := ResolveDeclarations(decls, Hokum)
		if !hasProject(got, BalootProject) {
			t.Error("baloot should survive conflict resolution")
		}
		if hasProject(got, Sira) {
			t.Error("losing team's sira should be zeroed")
		}
		if !hasProject(got, Fifty) {
			t.Error("winning team's fifty should survive")
		}
	})
}
