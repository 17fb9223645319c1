package container

import "testing"

func TestMapSetGetDelete(t *testing.T) {
	m := NewMap()

	m.Set(uint64(1024), "first")
	m.Set(uint64(1025), "second")

	if v, ok := m.Get(uint64(1024)); !ok || v != "first" {
		t.Fatalf("want first, got %v ok=%v", v, ok)
	}

	if m.Length() != 2 {
		t.Fatalf("want length 2, got %d", m.Length())
	}

	m.Delete(uint64(1024))
	if m.Exists(uint64(1024)) {
		t.Fatal("want false, got true after delete")
	}

	if m.Length() != 1 {
		t.Fatalf("want length 1, got %d", m.Length())
	}
}

func TestMapRange(t *testing.T) {
	m := NewMap()
	for i := uint64(0); i < 50; i++ {
		m.Set(i, i*2)
	}

	seen := 0
	m.Range(func(key, value interface{}) bool {
		seen++
		return true
	})

	if seen != 50 {
		t.Fatalf("want 50, got %d", seen)
	}

	stopped := 0
	m.Range(func(key, value interface{}) bool {
		stopped++
		return false
	})

	if stopped != 1 {
		t.Fatalf("want 1, got %d", stopped)
	}
}
