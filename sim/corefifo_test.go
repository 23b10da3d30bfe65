package sim

import "testing"

func TestCoreFIFOPushBackPopFrontPreservesOrder(t *testing.T) {
	f := newCoreFIFO()
	for i := 0; i < 20; i++ {
		f.PushBack(Event{TID: uint16(i)})
	}
	if f.Len() != 20 {
		t.Fatalf("expected 20 buffered, got %d", f.Len())
	}
	for i := 0; i < 20; i++ {
		got := f.Front()
		if got.TID != uint16(i) {
			t.Fatalf("pop %d: expected tid %d, got %d", i, i, got.TID)
		}
		f.PopFront()
	}
	if f.Len() != 0 {
		t.Fatalf("expected empty, got %d", f.Len())
	}
}

func TestCoreFIFOPushFrontTakesPriority(t *testing.T) {
	f := newCoreFIFO()
	f.PushBack(Event{TID: 1})
	f.PushBack(Event{TID: 2})
	f.PushFront(Event{TID: 0})

	if got := f.Front(); got.TID != 0 {
		t.Fatalf("expected tid 0 at front, got %d", got.TID)
	}
	f.PopFront()
	if got := f.Front(); got.TID != 1 {
		t.Fatalf("expected tid 1 next, got %d", got.TID)
	}
}

func TestCoreFIFOGrowsPastInitialCapacity(t *testing.T) {
	f := newCoreFIFO()
	const n = 100
	for i := 0; i < n; i++ {
		f.PushBack(Event{TID: uint16(i)})
	}
	if f.Len() != n {
		t.Fatalf("expected %d buffered after growth, got %d", n, f.Len())
	}
	for i := 0; i < n; i++ {
		if got := f.Front(); got.TID != uint16(i) {
			t.Fatalf("pop %d: expected tid %d, got %d", i, i, got.TID)
		}
		f.PopFront()
	}
}

func TestCoreFIFOWrapsAroundWithoutCorruption(t *testing.T) {
	f := newCoreFIFO()
	// fill and partially drain a few times so head drifts around the ring
	// and the second round's pushes wrap past the end of the buffer; the
	// third round's pushes then force a grow (with head back at slot 0).
	for round := 0; round < 3; round++ {
		for i := 0; i < 6; i++ {
			f.PushBack(Event{TID: uint16(round*10 + i)})
		}
		for i := 0; i < 4; i++ {
			f.PopFront()
		}
	}
	remaining := f.Len()
	drained := 0
	for f.Len() > 0 {
		f.Front()
		f.PopFront()
		drained++
	}
	if drained != remaining {
		t.Fatalf("expected to drain %d events, drained %d", remaining, drained)
	}
}
