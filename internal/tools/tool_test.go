package tools

import (
	"context"
	"encoding/json"
	"testing"
)

type fakeTool struct {
	name string
}

func (f *fakeTool) Name() string                { return f.name }
func (f *fakeTool) Description() string         { return "fake" }
func (f *fakeTool) Parameters() json.RawMessage { return nil }
func (f *fakeTool) Execute(context.Context, string) (string, error) {
	return "ok", nil
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(&fakeTool{name: "a"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	got, ok := reg.Get("a")
	if !ok || got.Name() != "a" {
		t.Fatalf("Get(a) = %v, %v", got, ok)
	}
	if _, ok := reg.Get("missing"); ok {
		t.Fatal("Get(missing) should report absence")
	}
}

func TestRegistry_DuplicateName(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(&fakeTool{name: "a"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.Register(&fakeTool{name: "a"}); err == nil {
		t.Fatal("duplicate registration should fail")
	}
}

func TestRegistry_AllPreservesOrder(t *testing.T) {
	reg := NewRegistry()
	for _, n := range []string{"c", "a", "b"} {
		if err := reg.Register(&fakeTool{name: n}); err != nil {
			t.Fatalf("register %s: %v", n, err)
		}
	}

	all := reg.All()
	want := []string{"c", "a", "b"}
	for i, n := range want {
		if all[i].Name() != n {
			t.Fatalf("order = %v, want %v", all, want)
		}
	}
}
