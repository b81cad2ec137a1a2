package conflict

import (
	"context"
	"testing"
	"time"

	"github.com/aetherflow/collabedit/internal/transform"
)

func makeOp(id string, pos int, content, userID string, ts int64) transform.Operation {
	return transform.Operation{
		ID:        id,
		Type:      transform.TypeReplace,
		Position:  pos,
		Content:   content,
		UserID:    userID,
		Timestamp: time.UnixMilli(ts),
	}
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name string
		a, b transform.Operation
		want bool
	}{
		{
			"identical ranges",
			makeOp("op1", 5, "AB", "u1", 100),
			makeOp("op2", 5, "CD", "u2", 101),
			true,
		},
		{
			"partial overlap",
			makeOp("op1", 2, "ABC", "u1", 100),
			makeOp("op2", 4, "XY", "u2", 101),
			true,
		},
		{
			"contained range",
			makeOp("op1", 0, "ABCDEFGH", "u1", 100),
			makeOp("op2", 3, "X", "u2", 101),
			true,
		},
		{
			"adjacent ranges do not overlap",
			makeOp("op1", 0, "ABC", "u1", 100),
			makeOp("op2", 3, "XYZ", "u2", 101),
			false,
		},
		{
			"disjoint ranges",
			makeOp("op1", 0, "A", "u1", 100),
			makeOp("op2", 10, "B", "u2", 101),
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Detect(tt.a, tt.b); got != tt.want {
				t.Errorf("Detect = %v, want %v", got, tt.want)
			}
			// Detection is symmetric.
			if got := Detect(tt.b, tt.a); got != tt.want {
				t.Errorf("Detect (flipped) = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTimestampResolverLatestWins(t *testing.T) {
	resolver := NewTimestampResolver(nil)

	ops := []transform.Operation{
		makeOp("op1", 5, "AB", "u1", 100),
		makeOp("op2", 5, "CD", "u2", 300),
		makeOp("op3", 5, "EF", "u3", 200),
	}

	winner, err := resolver.Resolve(context.Background(), ops)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if winner.ID != "op2" {
		t.Errorf("expected op2 (latest timestamp) to win, got %s", winner.ID)
	}
}

func TestTimestampResolverTieBreak(t *testing.T) {
	resolver := NewTimestampResolver(nil)

	// Equal timestamps: the higher user id wins because the order is
	// latest-in-total-order.
	ops := []transform.Operation{
		makeOp("op1", 5, "AB", "u1", 100),
		makeOp("op2", 5, "CD", "u2", 100),
	}

	winner, err := resolver.Resolve(context.Background(), ops)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if winner.ID != "op2" {
		t.Errorf("expected op2 to win the tie, got %s", winner.ID)
	}
}

func TestResolveDeterministic(t *testing.T) {
	resolver := NewTimestampResolver(nil)

	ops := []transform.Operation{
		makeOp("op1", 5, "AB", "u1", 100),
		makeOp("op2", 5, "CD", "u2", 300),
		makeOp("op3", 5, "EF", "u3", 200),
	}
	reversed := []transform.Operation{ops[2], ops[1], ops[0]}

	for i := 0; i < 50; i++ {
		w1, err := resolver.Resolve(context.Background(), ops)
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		w2, err := resolver.Resolve(context.Background(), reversed)
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if w1.ID != w2.ID {
			t.Fatalf("iteration %d: winner depends on input order: %s vs %s", i, w1.ID, w2.ID)
		}
	}
}

func TestResolveEmptySet(t *testing.T) {
	resolver := NewTimestampResolver(nil)
	if _, err := resolver.Resolve(context.Background(), nil); err == nil {
		t.Error("expected error for empty conflict set")
	}
}

func TestUserPriorityResolver(t *testing.T) {
	resolver := NewUserPriorityResolver(map[string]int{
		"owner":  100,
		"editor": 10,
	}, nil)

	ops := []transform.Operation{
		makeOp("op1", 5, "AB", "editor", 300),
		makeOp("op2", 5, "CD", "owner", 100),
		makeOp("op3", 5, "EF", "viewer", 200),
	}

	winner, err := resolver.Resolve(context.Background(), ops)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if winner.UserID != "owner" {
		t.Errorf("expected owner to win despite older timestamp, got %s", winner.UserID)
	}
}

func TestUserPriorityFallsBackToTimestamp(t *testing.T) {
	// Unranked users all rank zero; the timestamp order decides.
	resolver := NewUserPriorityResolver(nil, nil)

	ops := []transform.Operation{
		makeOp("op1", 5, "AB", "u1", 100),
		makeOp("op2", 5, "CD", "u2", 300),
	}

	winner, err := resolver.Resolve(context.Background(), ops)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if winner.ID != "op2" {
		t.Errorf("expected latest timestamp among equal ranks, got %s", winner.ID)
	}
}

func TestUserPriorityCopiesRanks(t *testing.T) {
	ranks := map[string]int{"u1": 5}
	resolver := NewUserPriorityResolver(ranks, nil)

	// Mutating the caller's map must not change resolution.
	ranks["u2"] = 50

	ops := []transform.Operation{
		makeOp("op1", 5, "AB", "u1", 100),
		makeOp("op2", 5, "CD", "u2", 300),
	}

	winner, err := resolver.Resolve(context.Background(), ops)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if winner.UserID != "u1" {
		t.Errorf("expected u1 (ranked at construction), got %s", winner.UserID)
	}
}

func TestNewResolver(t *testing.T) {
	if r := NewResolver(StrategyTimestamp, nil, nil); r.Strategy() != StrategyTimestamp {
		t.Errorf("expected timestamp strategy, got %s", r.Strategy())
	}
	if r := NewResolver(StrategyUserPriority, map[string]int{"u1": 1}, nil); r.Strategy() != StrategyUserPriority {
		t.Errorf("expected user_priority strategy, got %s", r.Strategy())
	}
	// Unknown strategies fall back to timestamp.
	if r := NewResolver("unknown", nil, nil); r.Strategy() != StrategyTimestamp {
		t.Errorf("expected fallback to timestamp, got %s", r.Strategy())
	}
}
