package transform

import "fmt"

// Apply applies a single operation to the document content and returns
// the resulting content. Operations whose range falls outside the
// current buffer are rejected with ErrOutOfBounds, never clamped: an
// out-of-range position means the author's view is stale and the
// client has to resync from the latest version.
func Apply(content string, op Operation) (string, error) {
	if err := op.Validate(); err != nil {
		return "", err
	}

	switch op.Type {
	case TypeInsert:
		if op.Position > len(content) {
			return "", fmt.Errorf("%w: insert at %d, buffer length %d", ErrOutOfBounds, op.Position, len(content))
		}
		return content[:op.Position] + op.Content + content[op.Position:], nil

	case TypeDelete:
		end := op.Position + len(op.Content)
		if end > len(content) {
			return "", fmt.Errorf("%w: delete [%d,%d), buffer length %d", ErrOutOfBounds, op.Position, end, len(content))
		}
		return content[:op.Position] + content[end:], nil

	case TypeReplace:
		end := op.Position + len(op.Content)
		if end > len(content) {
			return "", fmt.Errorf("%w: replace [%d,%d), buffer length %d", ErrOutOfBounds, op.Position, end, len(content))
		}
		return content[:op.Position] + op.Content + content[end:], nil
	}

	return "", fmt.Errorf("%w: unknown type %q", ErrInvalidOperation, op.Type)
}

// Transform adjusts two causally-concurrent operations so that applying
// them in either order converges to the same buffer:
//
//	Apply(Apply(content, a), b2) == Apply(Apply(content, b), a2)
//
// The returned pair keeps argument correspondence: a2 derives from a
// and b2 from b, whichever order the caller applies them in.
//
// Two concurrent inserts at the same position are ordered by the
// (timestamp, user id) total order, so every participant picks the same
// winner of the tie. Delete and replace ranges that overlap cannot be
// converged by positional shifting; those pairs return ErrOverlap and
// are handed to the conflict resolver instead.
func Transform(a, b Operation) (a2, b2 Operation, err error) {
	if err := a.Validate(); err != nil {
		return Operation{}, Operation{}, err
	}
	if err := b.Validate(); err != nil {
		return Operation{}, Operation{}, err
	}

	switch {
	case a.Type == TypeInsert && b.Type == TypeInsert:
		return transformInsertInsert(a, b)
	case a.Type == TypeInsert:
		a2, b2, err = transformInsertRange(a, b)
		return a2, b2, err
	case b.Type == TypeInsert:
		b2, a2, err = transformInsertRange(b, a)
		return a2, b2, err
	default:
		return transformRangeRange(a, b)
	}
}

// transformInsertInsert handles two concurrent inserts. The
// earlier-positioned insert is untouched and the later one is advanced
// by the earlier one's length; position ties fall back to the total
// order over (timestamp, user id).
func transformInsertInsert(a, b Operation) (Operation, Operation, error) {
	switch {
	case a.Position < b.Position:
		return a, b.withPosition(b.Position + len(a.Content)), nil
	case b.Position < a.Position:
		return a.withPosition(a.Position + len(b.Content)), b, nil
	case Before(a, b):
		return a, b.withPosition(b.Position + len(a.Content)), nil
	default:
		return a.withPosition(a.Position + len(b.Content)), b, nil
	}
}

// transformInsertRange handles an insert concurrent with a delete or
// replace. ins and rng keep their argument positions in the return.
func transformInsertRange(ins, rng Operation) (Operation, Operation, error) {
	start, end := rng.Span()
	switch {
	case ins.Position <= start:
		// Insert lands before the affected range: range shifts right.
		return ins, rng.withPosition(start + len(ins.Content)), nil
	case ins.Position >= end:
		// Insert lands after: only the insert shifts, by the range's
		// net length change.
		return ins.withPosition(ins.Position + rng.LengthDelta()), rng, nil
	default:
		// Insert falls strictly inside text the other operation is
		// removing. No positional adjustment yields a consistent
		// result; defer to the conflict resolver.
		return Operation{}, Operation{}, fmt.Errorf("%w: insert at %d inside [%d,%d)", ErrOverlap, ins.Position, start, end)
	}
}

// transformRangeRange handles two concurrent range operations
// (delete/replace in any combination).
func transformRangeRange(a, b Operation) (Operation, Operation, error) {
	aStart, aEnd := a.Span()
	bStart, bEnd := b.Span()

	switch {
	case aEnd <= bStart:
		return a, b.withPosition(bStart + a.LengthDelta()), nil
	case bEnd <= aStart:
		return a.withPosition(aStart + b.LengthDelta()), b, nil
	default:
		return Operation{}, Operation{}, fmt.Errorf("%w: [%d,%d) and [%d,%d)", ErrOverlap, aStart, aEnd, bStart, bEnd)
	}
}
