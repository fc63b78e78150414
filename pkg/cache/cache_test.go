package cache

import "testing"

func newBytesCache(t *testing.T, budget int64) *Weighted[string, []byte] {
	t.Helper()
	c, err := NewWeighted[string, []byte](budget, func(v []byte) int64 {
		return int64(len(v))
	})
	if err != nil {
		t.Fatalf("NewWeighted() error: %v", err)
	}
	return c
}

func TestNewWeightedValidation(t *testing.T) {
	if _, err := NewWeighted[string, []byte](0, func(v []byte) int64 { return 0 }); err == nil {
		t.Error("NewWeighted() with zero budget should fail")
	}
	if _, err := NewWeighted[string, []byte](10, nil); err == nil {
		t.Error("NewWeighted() without a weigh function should fail")
	}
}

func TestWeightedAddGet(t *testing.T) {
	c := newBytesCache(t, 100)

	c.Add("a", make([]byte, 10))
	got, ok := c.Get("a")
	if !ok || len(got) != 10 {
		t.Fatalf("Get(a) = (%d bytes, %v), want (10 bytes, true)", len(got), ok)
	}
	if c.UsedBytes() != 10 {
		t.Errorf("UsedBytes() = %d, want 10", c.UsedBytes())
	}
}

func TestWeightedEvictsAtBudget(t *testing.T) {
	c := newBytesCache(t, 30)

	c.Add("a", make([]byte, 10))
	c.Add("b", make([]byte, 10))
	c.Add("c", make([]byte, 10))

	// "a" is the LRU victim once the budget overflows.
	c.Add("d", make([]byte, 10))

	if _, ok := c.Get("a"); ok {
		t.Error("oldest entry should have been evicted")
	}
	for _, key := range []string{"b", "c", "d"} {
		if _, ok := c.Get(key); !ok {
			t.Errorf("entry %q should still be cached", key)
		}
	}
	if c.UsedBytes() != 30 {
		t.Errorf("UsedBytes() = %d, want 30", c.UsedBytes())
	}
}

func TestWeightedGetRefreshesRecency(t *testing.T) {
	c := newBytesCache(t, 20)

	c.Add("a", make([]byte, 10))
	c.Add("b", make([]byte, 10))
	c.Get("a")

	c.Add("c", make([]byte, 10))

	if _, ok := c.Get("b"); ok {
		t.Error("b should have been the eviction victim after a was touched")
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("a should survive, it was the most recently used")
	}
}

func TestWeightedReplaceAdjustsWeight(t *testing.T) {
	c := newBytesCache(t, 100)

	c.Add("a", make([]byte, 40))
	c.Add("a", make([]byte, 10))

	if c.UsedBytes() != 10 {
		t.Errorf("UsedBytes() after replace = %d, want 10", c.UsedBytes())
	}
	if c.Len() != 1 {
		t.Errorf("Len() after replace = %d, want 1", c.Len())
	}
}

func TestWeightedRejectsOversized(t *testing.T) {
	c := newBytesCache(t, 10)

	c.Add("big", make([]byte, 11))
	if _, ok := c.Get("big"); ok {
		t.Error("entries heavier than the budget must not be cached")
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0", c.Len())
	}
}

func TestWeightedPurge(t *testing.T) {
	c := newBytesCache(t, 100)
	c.Add("a", make([]byte, 10))
	c.Add("b", make([]byte, 20))

	c.Purge()
	if c.Len() != 0 || c.UsedBytes() != 0 {
		t.Errorf("after Purge: Len=%d UsedBytes=%d, want 0/0", c.Len(), c.UsedBytes())
	}
}

func TestWeightedRemove(t *testing.T) {
	c := newBytesCache(t, 100)
	c.Add("a", make([]byte, 10))
	c.Remove("a")

	if _, ok := c.Get("a"); ok {
		t.Error("removed entry should be gone")
	}
	if c.UsedBytes() != 0 {
		t.Errorf("UsedBytes() after Remove = %d, want 0", c.UsedBytes())
	}
}

func TestNewHandlesEvictHook(t *testing.T) {
	var evicted []string
	h, err := NewHandles[string, int](2, func(k string, _ int) {
		evicted = append(evicted, k)
	})
	if err != nil {
		t.Fatalf("NewHandles() error: %v", err)
	}

	h.Add("a", 1)
	h.Add("b", 2)
	h.Add("c", 3)

	if len(evicted) != 1 || evicted[0] != "a" {
		t.Errorf("evicted = %v, want [a]", evicted)
	}
}

func TestNewHandlesDefaultCap(t *testing.T) {
	h, err := NewHandles[string, int](0, nil)
	if err != nil {
		t.Fatalf("NewHandles() error: %v", err)
	}
	for i := 0; i < DefaultHandleCap+1; i++ {
		h.Add(string(rune('a'+i)), i)
	}
	if h.Len() != DefaultHandleCap {
		t.Errorf("Len() = %d, want %d", h.Len(), DefaultHandleCap)
	}
}
