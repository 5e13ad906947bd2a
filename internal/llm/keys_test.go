package llm

import (
	"testing"
	"time"
)

func TestKeyPoolRotation(t *testing.T) {
	p := newKeyPool([]string{"a", "b", "c"}, time.Minute)

	var got []int
	for i := 0; i < 5; i++ {
		idx, ok := p.next()
		if !ok {
			t.Fatalf("next() returned exhausted on iteration %d", i)
		}
		got = append(got, idx)
	}

	want := []int{0, 1, 2, 0, 1}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("rotation order = %v, want %v", got, want)
		}
	}
}

func TestKeyPoolSkipsLimitedKeys(t *testing.T) {
	p := newKeyPool([]string{"a", "b"}, time.Minute)

	idx, _ := p.next()
	if idx != 0 {
		t.Fatalf("first key = %d, want 0", idx)
	}
	p.reportLimited(0)

	for i := 0; i < 3; i++ {
		idx, ok := p.next()
		if !ok {
			t.Fatal("pool exhausted with one healthy key remaining")
		}
		if idx != 1 {
			t.Fatalf("next() = %d, want 1 while key 0 cools down", idx)
		}
	}
}

func TestKeyPoolExhaustion(t *testing.T) {
	p := newKeyPool([]string{"a", "b"}, time.Minute)
	p.reportLimited(0)
	p.reportLimited(1)

	if _, ok := p.next(); ok {
		t.Fatal("next() should report exhaustion when every key is limited")
	}
}

func TestKeyPoolDuplicateKeysCoolDownIndependently(t *testing.T) {
	p := newKeyPool([]string{"same", "same"}, time.Minute)

	p.reportLimited(0)
	idx, ok := p.next()
	if !ok {
		t.Fatal("pool exhausted although only slot 0 is cooling down")
	}
	if idx != 1 {
		t.Fatalf("next() = %d, want slot 1 while slot 0 cools down", idx)
	}
}

func TestKeyPoolCooldownExpiry(t *testing.T) {
	now := time.Now()
	p := newKeyPool([]string{"a"}, 61*time.Second)
	p.now = func() time.Time { return now }

	p.reportLimited(0)
	if _, ok := p.next(); ok {
		t.Fatal("key should be limited inside the cooldown window")
	}

	now = now.Add(61*time.Second + time.Millisecond)
	idx, ok := p.next()
	if !ok || idx != 0 {
		t.Fatalf("next() = (%d, %v), want key 0 back after cooldown", idx, ok)
	}
}
