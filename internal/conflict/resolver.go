package conflict

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/aetherflow/collabedit/internal/transform"
)

// Strategy identifies the conflict resolution policy for a document
// session. The strategy is fixed when the session is created and never
// mixed per call, so every participant reaches the same decision for
// the same conflict set.
type Strategy string

const (
	// StrategyTimestamp picks the operation with the latest authoring
	// timestamp; all other operations in the set are dropped.
	StrategyTimestamp Strategy = "timestamp"

	// StrategyUserPriority delegates to an externally supplied ranking
	// over user ids, e.g. document-owner edits always win.
	StrategyUserPriority Strategy = "user_priority"
)

// Detect reports whether two operations' affected ranges intersect:
// [a.Position, a.Position+len(a.Content)) ∩ [b.Position, b.Position+len(b.Content)) ≠ ∅.
// Overlapping pairs cannot be converged by positional shifting and go
// through a Resolver instead. Concurrent inserts at the same position
// are not routed here; the transform tie-break already orders them.
func Detect(a, b transform.Operation) bool {
	aStart, aEnd := a.Span()
	bStart, bEnd := b.Span()
	return aStart < bEnd && bStart < aEnd
}

// Resolver decides the single winning operation of a conflict set.
// Implementations must be deterministic: the same set and strategy
// yield the same winner across repeated calls and across processes.
type Resolver interface {
	// Resolve returns the winning operation. Every other operation in
	// the set is dropped and must never be applied.
	Resolve(ctx context.Context, ops []transform.Operation) (transform.Operation, error)

	// Strategy returns the policy this resolver implements.
	Strategy() Strategy
}

// TimestampResolver implements last-writer-wins over the authors'
// wall-clock timestamps, with ties broken by user id and then
// operation id. Client clocks are not monotonic across machines; this
// is a fallback for races during lock acquisition, not a merge.
type TimestampResolver struct {
	logger *zap.Logger
}

// NewTimestampResolver creates a last-writer-wins resolver.
func NewTimestampResolver(logger *zap.Logger) *TimestampResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TimestampResolver{logger: logger}
}

func (r *TimestampResolver) Resolve(ctx context.Context, ops []transform.Operation) (transform.Operation, error) {
	if len(ops) == 0 {
		return transform.Operation{}, fmt.Errorf("no operations to resolve")
	}

	winner := ops[0]
	for _, op := range ops[1:] {
		// Before() orders by (timestamp, user id, op id); the latest
		// in that order wins.
		if transform.Before(winner, op) {
			winner = op
		}
	}

	r.logger.Debug("conflict resolved by timestamp",
		zap.String("winning_op_id", winner.ID),
		zap.String("winning_user", winner.UserID),
		zap.Time("timestamp", winner.Timestamp),
		zap.Int("total_ops", len(ops)),
	)

	return winner, nil
}

func (r *TimestampResolver) Strategy() Strategy {
	return StrategyTimestamp
}

// UserPriorityResolver resolves conflicts by an externally supplied
// ranking over user ids. Higher rank wins; users absent from the table
// rank zero. Equal ranks fall back to the timestamp order so the
// outcome stays deterministic.
type UserPriorityResolver struct {
	ranks  map[string]int
	logger *zap.Logger
}

// NewUserPriorityResolver creates a resolver using the given user
// ranking. The map is copied; later mutation of the argument does not
// affect resolution.
func NewUserPriorityResolver(ranks map[string]int, logger *zap.Logger) *UserPriorityResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	copied := make(map[string]int, len(ranks))
	for user, rank := range ranks {
		copied[user] = rank
	}
	return &UserPriorityResolver{ranks: copied, logger: logger}
}

func (r *UserPriorityResolver) Resolve(ctx context.Context, ops []transform.Operation) (transform.Operation, error) {
	if len(ops) == 0 {
		return transform.Operation{}, fmt.Errorf("no operations to resolve")
	}

	winner := ops[0]
	for _, op := range ops[1:] {
		if r.beats(op, winner) {
			winner = op
		}
	}

	r.logger.Debug("conflict resolved by user priority",
		zap.String("winning_op_id", winner.ID),
		zap.String("winning_user", winner.UserID),
		zap.Int("rank", r.ranks[winner.UserID]),
		zap.Int("total_ops", len(ops)),
	)

	return winner, nil
}

func (r *UserPriorityResolver) Strategy() Strategy {
	return StrategyUserPriority
}

// beats reports whether candidate outranks current.
func (r *UserPriorityResolver) beats(candidate, current transform.Operation) bool {
	cr, wr := r.ranks[candidate.UserID], r.ranks[current.UserID]
	if cr != wr {
		return cr > wr
	}
	return transform.Before(current, candidate)
}

// NewResolver builds the resolver for a strategy name. Unknown
// strategies fall back to timestamp resolution.
func NewResolver(strategy Strategy, ranks map[string]int, logger *zap.Logger) Resolver {
	if strategy == StrategyUserPriority {
		return NewUserPriorityResolver(ranks, logger)
	}
	return NewTimestampResolver(logger)
}
