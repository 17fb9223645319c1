package atomic

import "testing"

func TestUint64(t *testing.T) {
	var u Uint64

	if got := u.Get(); got != 0 {
		t.Fatalf("want 0, got %d", got)
	}

	if got := u.Incr(5); got != 5 {
		t.Fatalf("want 5, got %d", got)
	}

	u.Set(10)
	if got := u.Get(); got != 10 {
		t.Fatalf("want 10, got %d", got)
	}
}

func TestAcquire(t *testing.T) {
	var a Acquire

	if !a.Acquire() {
		t.Fatal("want true, got false")
	}

	if a.Acquire() {
		t.Fatal("want false, got true on second acquire")
	}

	if a.IsRelease() {
		t.Fatal("want false, got true while held")
	}

	a.Release()
	if !a.IsRelease() {
		t.Fatal("want true, got false after release")
	}
}
