package transform

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func makeOp(id string, opType Type, pos int, content, userID string, ts int64) Operation {
	return Operation{
		ID:        id,
		Type:      opType,
		Position:  pos,
		Content:   content,
		UserID:    userID,
		Timestamp: time.UnixMilli(ts),
	}
}

// converge applies a-then-b' and b-then-a' and checks both orders
// produce the same buffer.
func converge(t *testing.T, content string, a, b Operation) string {
	t.Helper()

	a2, b2, err := Transform(a, b)
	if err != nil {
		t.Fatalf("Transform failed: %v", err)
	}

	afterA, err := Apply(content, a)
	if err != nil {
		t.Fatalf("Apply(a) failed: %v", err)
	}
	left, err := Apply(afterA, b2)
	if err != nil {
		t.Fatalf("Apply(b2) failed: %v", err)
	}

	afterB, err := Apply(content, b)
	if err != nil {
		t.Fatalf("Apply(b) failed: %v", err)
	}
	right, err := Apply(afterB, a2)
	if err != nil {
		t.Fatalf("Apply(a2) failed: %v", err)
	}

	if left != right {
		t.Fatalf("orders diverged: %q vs %q", left, right)
	}
	return left
}

func TestApplyInsert(t *testing.T) {
	op := makeOp("op1", TypeInsert, 5, "XY", "u1", 100)
	result, err := Apply("0123456789", op)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if result != "01234XY56789" {
		t.Errorf("expected 01234XY56789, got %q", result)
	}
}

func TestApplyDelete(t *testing.T) {
	op := makeOp("op1", TypeDelete, 2, "234", "u1", 100)
	result, err := Apply("0123456789", op)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if result != "0156789" {
		t.Errorf("expected 0156789, got %q", result)
	}
}

func TestApplyReplace(t *testing.T) {
	op := makeOp("op1", TypeReplace, 3, "XYZ", "u1", 100)
	result, err := Apply("0123456789", op)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if result != "012XYZ6789" {
		t.Errorf("expected 012XYZ6789, got %q", result)
	}
}

func TestApplyOutOfBoundsRejected(t *testing.T) {
	tests := []struct {
		name string
		op   Operation
	}{
		{"insert past end", makeOp("op1", TypeInsert, 11, "X", "u1", 100)},
		{"delete past end", makeOp("op2", TypeDelete, 8, "XYZ", "u1", 100)},
		{"replace past end", makeOp("op3", TypeReplace, 9, "AB", "u1", 100)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Apply("0123456789", tt.op)
			if !errors.Is(err, ErrOutOfBounds) {
				t.Errorf("expected ErrOutOfBounds, got %v", err)
			}
		})
	}
}

func TestApplyInvalidOperation(t *testing.T) {
	op := makeOp("", TypeInsert, 0, "x", "u1", 100)
	if _, err := Apply("abc", op); !errors.Is(err, ErrInvalidOperation) {
		t.Errorf("expected ErrInvalidOperation for missing id, got %v", err)
	}

	op = makeOp("op1", TypeInsert, -1, "x", "u1", 100)
	if _, err := Apply("abc", op); !errors.Is(err, ErrInvalidOperation) {
		t.Errorf("expected ErrInvalidOperation for negative position, got %v", err)
	}
}

func TestConcurrentInsertsSamePosition(t *testing.T) {
	// Two clients insert at position 5 of a 10-character buffer; the
	// earlier timestamp must end up first on both replicas.
	content := "0123456789"
	a := makeOp("op1", TypeInsert, 5, "A", "u1", 100)
	b := makeOp("op2", TypeInsert, 5, "B", "u2", 101)

	result := converge(t, content, a, b)
	if result != "01234AB56789" {
		t.Errorf("expected 01234AB56789, got %q", result)
	}

	// Argument order must not change the outcome.
	result = converge(t, content, b, a)
	if result != "01234AB56789" {
		t.Errorf("reversed arguments: expected 01234AB56789, got %q", result)
	}
}

func TestConcurrentInsertsSamePositionTimestampTie(t *testing.T) {
	// Identical timestamps fall back to the user id ordering.
	content := "0123456789"
	a := makeOp("op1", TypeInsert, 5, "A", "u1", 100)
	b := makeOp("op2", TypeInsert, 5, "B", "u2", 100)

	result := converge(t, content, a, b)
	if result != "01234AB56789" {
		t.Errorf("expected u1's insert first, got %q", result)
	}
}

func TestConcurrentInsertsDifferentPositions(t *testing.T) {
	content := "0123456789"
	a := makeOp("op1", TypeInsert, 2, "AA", "u1", 100)
	b := makeOp("op2", TypeInsert, 7, "B", "u2", 50)

	result := converge(t, content, a, b)
	if result != "01AA23456B789" {
		t.Errorf("expected 01AA23456B789, got %q", result)
	}
}

func TestInsertBeforeDelete(t *testing.T) {
	content := "0123456789"
	ins := makeOp("op1", TypeInsert, 1, "XY", "u1", 100)
	del := makeOp("op2", TypeDelete, 4, "456", "u2", 101)

	result := converge(t, content, ins, del)
	if result != "0XY123789" {
		t.Errorf("expected 0XY123789, got %q", result)
	}
}

func TestInsertAfterDelete(t *testing.T) {
	content := "0123456789"
	ins := makeOp("op1", TypeInsert, 8, "XY", "u1", 100)
	del := makeOp("op2", TypeDelete, 2, "23", "u2", 101)

	result := converge(t, content, ins, del)
	if result != "014567XY89" {
		t.Errorf("expected 014567XY89, got %q", result)
	}
}

func TestInsertInsideDeletedRangeOverlaps(t *testing.T) {
	ins := makeOp("op1", TypeInsert, 5, "X", "u1", 100)
	del := makeOp("op2", TypeDelete, 3, "34567", "u2", 101)

	_, _, err := Transform(ins, del)
	if !errors.Is(err, ErrOverlap) {
		t.Errorf("expected ErrOverlap, got %v", err)
	}

	// Same pair with the arguments flipped.
	_, _, err = Transform(del, ins)
	if !errors.Is(err, ErrOverlap) {
		t.Errorf("expected ErrOverlap (flipped), got %v", err)
	}
}

func TestInsertAtRangeBoundariesDoesNotOverlap(t *testing.T) {
	content := "0123456789"

	// Insert exactly at the start of the deleted range.
	ins := makeOp("op1", TypeInsert, 3, "X", "u1", 100)
	del := makeOp("op2", TypeDelete, 3, "345", "u2", 101)
	result := converge(t, content, ins, del)
	if result != "012X6789" {
		t.Errorf("insert at range start: expected 012X6789, got %q", result)
	}

	// Insert exactly at the end of the deleted range.
	ins = makeOp("op3", TypeInsert, 6, "X", "u1", 100)
	result = converge(t, content, ins, del)
	if result != "012X6789" {
		t.Errorf("insert at range end: expected 012X6789, got %q", result)
	}
}

func TestDisjointDeletes(t *testing.T) {
	content := "0123456789"
	a := makeOp("op1", TypeDelete, 1, "12", "u1", 100)
	b := makeOp("op2", TypeDelete, 6, "678", "u2", 101)

	result := converge(t, content, a, b)
	if result != "03459" {
		t.Errorf("expected 03459, got %q", result)
	}
}

func TestDeleteThenReplaceDisjoint(t *testing.T) {
	content := "0123456789"
	del := makeOp("op1", TypeDelete, 0, "01", "u1", 100)
	rep := makeOp("op2", TypeReplace, 5, "XYZ", "u2", 101)

	result := converge(t, content, del, rep)
	if result != "234XYZ89" {
		t.Errorf("expected 234XYZ89, got %q", result)
	}
}

func TestOverlappingRangesRejected(t *testing.T) {
	tests := []struct {
		name string
		a, b Operation
	}{
		{
			"overlapping deletes",
			makeOp("op1", TypeDelete, 2, "234", "u1", 100),
			makeOp("op2", TypeDelete, 4, "456", "u2", 101),
		},
		{
			"delete inside replace",
			makeOp("op1", TypeReplace, 2, "XXXX", "u1", 100),
			makeOp("op2", TypeDelete, 3, "3", "u2", 101),
		},
		{
			"identical ranges",
			makeOp("op1", TypeReplace, 5, "AB", "u1", 100),
			makeOp("op2", TypeReplace, 5, "CD", "u2", 101),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := Transform(tt.a, tt.b); !errors.Is(err, ErrOverlap) {
				t.Errorf("expected ErrOverlap, got %v", err)
			}
		})
	}
}

func TestTransformDoesNotMutateArguments(t *testing.T) {
	a := makeOp("op1", TypeInsert, 5, "A", "u1", 100)
	b := makeOp("op2", TypeInsert, 5, "B", "u2", 101)

	_, b2, err := Transform(a, b)
	if err != nil {
		t.Fatalf("Transform failed: %v", err)
	}

	if b.Position != 5 {
		t.Errorf("argument mutated: b.Position = %d", b.Position)
	}
	if b2.Position != 6 {
		t.Errorf("expected shifted copy at 6, got %d", b2.Position)
	}
	if b2.ID != b.ID {
		t.Errorf("shifted copy lost identity: %q vs %q", b2.ID, b.ID)
	}
}

func TestBeforeTotalOrder(t *testing.T) {
	early := makeOp("op1", TypeInsert, 0, "x", "u1", 100)
	late := makeOp("op2", TypeInsert, 0, "x", "u1", 200)

	if !Before(early, late) {
		t.Error("earlier timestamp should order first")
	}
	if Before(late, early) {
		t.Error("later timestamp should not order first")
	}

	// Timestamp tie: user id decides.
	u1 := makeOp("op1", TypeInsert, 0, "x", "u1", 100)
	u2 := makeOp("op2", TypeInsert, 0, "x", "u2", 100)
	if !Before(u1, u2) {
		t.Error("lower user id should order first on timestamp tie")
	}

	// Full tie on timestamp and user: op id decides.
	x := makeOp("op1", TypeInsert, 0, "x", "u1", 100)
	y := makeOp("op2", TypeInsert, 0, "x", "u1", 100)
	if !Before(x, y) {
		t.Error("lower op id should order first on full tie")
	}
}

func TestLengthDelta(t *testing.T) {
	if d := makeOp("op1", TypeInsert, 0, "abc", "u1", 100).LengthDelta(); d != 3 {
		t.Errorf("insert delta = %d, want 3", d)
	}
	if d := makeOp("op2", TypeDelete, 0, "ab", "u1", 100).LengthDelta(); d != -2 {
		t.Errorf("delete delta = %d, want -2", d)
	}
	if d := makeOp("op3", TypeReplace, 0, "abcd", "u1", 100).LengthDelta(); d != 0 {
		t.Errorf("replace delta = %d, want 0", d)
	}
}

func TestConvergenceSweep(t *testing.T) {
	// Every pair of non-overlapping operations must converge
	// regardless of application order.
	content := strings.Repeat("abcdefghij", 3)
	ops := []Operation{
		makeOp("op1", TypeInsert, 0, "X", "u1", 100),
		makeOp("op2", TypeInsert, 15, "YZ", "u2", 101),
		makeOp("op3", TypeDelete, 4, "efg", "u3", 102),
		makeOp("op4", TypeReplace, 10, "AB", "u4", 103),
		makeOp("op5", TypeDelete, 20, "abcde", "u5", 104),
		makeOp("op6", TypeInsert, 30, "!", "u6", 105),
	}

	for i, a := range ops {
		for j, b := range ops {
			if i == j {
				continue
			}
			if _, _, err := Transform(a, b); errors.Is(err, ErrOverlap) {
				continue
			}
			converge(t, content, a, b)
		}
	}
}
