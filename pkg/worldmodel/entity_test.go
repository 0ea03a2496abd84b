package worldmodel

import (
	"strings"
	"testing"

	"github.com/teslashibe/go-wayfinder/pkg/perception"
)

func TestIdentityOf(t *testing.T) {
	tracked := object("car", 10, intPtr(7))
	if got := IdentityOf(tracked); got != "object/7/car" {
		t.Errorf("tracked: got %q", got)
	}

	if got := IdentityOf(obstacle("car", intPtr(7))); got != "obstacle/7/car" {
		t.Errorf("tracked obstacle: got %q", got)
	}

	a := IdentityOf(text("STOP", 6.9))
	b := IdentityOf(text("  Stop\t", 6.9))
	if a != b {
		t.Errorf("normalized text should match: %q vs %q", a, b)
	}
	if !strings.HasPrefix(string(a), "text/") {
		t.Errorf("text identity prefix: %q", a)
	}
	if a == IdentityOf(text("EXIT", 6)) {
		t.Error("different text should differ")
	}
}

func TestIdentityOf_Untracked(t *testing.T) {
	base := object("dog", 2, nil)

	shifted := object("dog", 2, nil)
	shifted.Meta.BBox = perception.BBox{X1: 105, Y1: 98, X2: 203, Y2: 195}
	if IdentityOf(base) != IdentityOf(shifted) {
		t.Errorf("small shifts should snap to one identity: %q vs %q", IdentityOf(base), IdentityOf(shifted))
	}

	moved := object("dog", 2, nil)
	moved.Meta.BBox = perception.BBox{X1: 300, Y1: 100, X2: 400, Y2: 200}
	if IdentityOf(base) == IdentityOf(moved) {
		t.Error("distant boxes should differ")
	}

	supplied := object("dog", 2, nil)
	supplied.Meta.Identity = "dog-by-the-door"
	if got := IdentityOf(supplied); got != "object/dog-by-the-door" {
		t.Errorf("supplied identity: got %q", got)
	}

	// A track id wins over a supplied identity.
	both := object("dog", 2, intPtr(3))
	both.Meta.Identity = "ignored"
	if got := IdentityOf(both); got != "object/3/dog" {
		t.Errorf("track should win: got %q", got)
	}
}

func TestHeadingDelta(t *testing.T) {
	tests := []struct {
		name string
		a, b perception.Vector
		want float64
	}{
		{"same", perception.Vector{X: 1}, perception.Vector{X: 2}, 0},
		{"right angle", perception.Vector{X: 1}, perception.Vector{Y: 1}, 90},
		{"reverse", perception.Vector{X: 1}, perception.Vector{X: -1}, 180},
		{"wraps around", perception.Vector{X: 1, Y: -0.01}, perception.Vector{X: 1, Y: 0.01}, 1.1459},
		{"too slow", perception.Vector{X: 0.01}, perception.Vector{Y: 1}, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := headingDelta(tc.a, tc.b)
			if d := got - tc.want; d > 1e-3 || d < -1e-3 {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config: %v", err)
	}
	cfg := DefaultConfig()
	cfg.TrackTTL = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for zero track ttl")
	}
}
