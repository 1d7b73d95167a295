package fakeremote

import "testing"

func TestCapacityLimiter_TryAcquireRelease(t *testing.T) {
	l := NewCapacityLimiter(1)

	if !l.TryAcquire() {
		t.Fatalf("first acquire should succeed")
	}
	if l.TryAcquire() {
		t.Fatalf("second acquire should be refused while full")
	}

	l.Release()
	if !l.TryAcquire() {
		t.Fatalf("acquire should succeed after release")
	}
	l.Release()
}

func TestCapacityLimiter_SetLimitRaisesCapacity(t *testing.T) {
	l := NewCapacityLimiter(1)
	if !l.TryAcquire() {
		t.Fatalf("first acquire should succeed")
	}

	l.SetLimit(2)
	if l.Limit() != 2 {
		t.Fatalf("limit: want 2, got %d", l.Limit())
	}
	if !l.TryAcquire() {
		t.Fatalf("acquire should succeed once the limit is raised")
	}
	if l.InFlight() != 2 {
		t.Fatalf("in flight: want 2, got %d", l.InFlight())
	}
	l.Release()
	l.Release()
}

func TestCapacityLimiter_NonPositiveLimit(t *testing.T) {
	l := NewCapacityLimiter(0)
	if l.Limit() != 1 {
		t.Fatalf("limit: want 1, got %d", l.Limit())
	}
	l.SetLimit(-3)
	if l.Limit() != 1 {
		t.Fatalf("limit: want 1, got %d", l.Limit())
	}
}
