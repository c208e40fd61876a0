package ristretto

import (
	"context"
	"testing"
	"time"
)

func TestSetGetDelete(t *testing.T) {
	c, err := New(1 << 20)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer c.Close()

	ctx := context.Background()

	if err := c.Set(ctx, "dispatched:101", []byte{1}, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}

	_, ok, err := c.Get(ctx, "dispatched:101")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok {
		t.Fatal("expected hit after set")
	}

	if err := c.Delete(ctx, "dispatched:101"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := c.Get(ctx, "dispatched:101"); ok {
		t.Fatal("expected miss after delete")
	}
}

func TestMissingKey(t *testing.T) {
	c, err := New(1 << 20)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer c.Close()

	_, ok, err := c.Get(context.Background(), "nope")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok {
		t.Fatal("expected miss")
	}
}
