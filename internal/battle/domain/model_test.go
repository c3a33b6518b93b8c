package domain

import "testing"

func TestBattleOpponent(t *testing.T) {
	b := Battle{ID: "battle-1", Artist1ID: "1", Artist2ID: "2"}

	if got := b.Opponent("1"); got != "2" {
		t.Fatalf("expected 2, got %q", got)
	}
	if got := b.Opponent("2"); got != "1" {
		t.Fatalf("expected 1, got %q", got)
	}
	if got := b.Opponent("3"); got != "" {
		t.Fatalf("expected empty opponent, got %q", got)
	}
	if b.Includes("") {
		t.Fatalf("empty id must not be part of a battle")
	}
}
