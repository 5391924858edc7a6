package subpic

import (
	"errors"
	"testing"
)

func TestArea(t *testing.T) {
	a, err := NewArea(10, 20, 19, 19)
	if err == nil {
		t.Fatal("expected an error on inverted bounds")
	}
	if !errors.Is(err, ErrMalformedHeader) {
		t.Fatalf("expected ErrMalformedHeader, got: %v", err)
	}
	if a, err = NewArea(10, 20, 19, 29); err != nil {
		t.Fatalf("failed to create the area: %v", err)
	}
	if a.Width() != 10 || a.Height() != 10 {
		t.Fatalf("expected a 10x10 area, got %dx%d", a.Width(), a.Height())
	}
	if a.Left() != 10 || a.Top() != 20 {
		t.Fatalf("unexpected origin (%d,%d)", a.Left(), a.Top())
	}
}

func TestAreaRelations(t *testing.T) {
	a := Area{X1: 0, Y1: 0, X2: 9, Y2: 9}
	inner := Area{X1: 2, Y1: 2, X2: 5, Y2: 5}
	crossing := Area{X1: 8, Y1: 8, X2: 12, Y2: 12}
	outside := Area{X1: 20, Y1: 20, X2: 25, Y2: 25}
	if !a.Contains(inner) || a.Contains(crossing) {
		t.Fatal("unexpected containment results")
	}
	if !a.Intersect(inner) || !a.Intersect(crossing) || a.Intersect(outside) {
		t.Fatal("unexpected intersection results")
	}
	extended := a.Extend(crossing)
	if extended != (Area{X1: 0, Y1: 0, X2: 12, Y2: 12}) {
		t.Fatalf("unexpected extended area: %+v", extended)
	}
}
