// Presenced - Plex Presence Bridge for Discord
// Copyright 2026 Presenced contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/presenceforplex/presenced

package cache

import (
	"fmt"
	"testing"
	"time"
)

func TestGetSet(t *testing.T) {
	c := New[string](time.Minute)

	c.Set("key1", "value1")

	got, ok := c.Get("key1")
	if !ok {
		t.Fatal("expected key1 to exist")
	}
	if got != "value1" {
		t.Errorf("got %q, want %q", got, "value1")
	}

	if _, ok := c.Get("missing"); ok {
		t.Error("expected missing key to not exist")
	}
}

func TestStructValues(t *testing.T) {
	type user struct {
		Name    string
		Product string
	}

	c := New[user](time.Minute)
	c.Set("session-42", user{Name: "alice", Product: "Plex Web"})

	got, ok := c.Get("session-42")
	if !ok {
		t.Fatal("expected session-42 to exist")
	}
	if got.Name != "alice" || got.Product != "Plex Web" {
		t.Errorf("got %+v", got)
	}
}

func TestExpiration(t *testing.T) {
	c := New[int](10 * time.Millisecond)

	c.Set("key1", 1)

	if _, ok := c.Get("key1"); !ok {
		t.Fatal("expected key1 to exist before expiry")
	}

	time.Sleep(20 * time.Millisecond)

	if _, ok := c.Get("key1"); ok {
		t.Error("expected key1 to be expired")
	}
}

func TestSetWithTTL(t *testing.T) {
	c := New[int](time.Minute)

	c.SetWithTTL("short", 1, 10*time.Millisecond)
	c.Set("long", 2)

	time.Sleep(20 * time.Millisecond)

	if _, ok := c.Get("short"); ok {
		t.Error("expected short-lived entry to be expired")
	}
	if _, ok := c.Get("long"); !ok {
		t.Error("expected default-TTL entry to survive")
	}
}

func TestReplace(t *testing.T) {
	c := New[string](time.Minute)

	c.Set("key1", "old")
	c.Set("key1", "new")

	got, _ := c.Get("key1")
	if got != "new" {
		t.Errorf("got %q, want %q", got, "new")
	}
	if c.Len() != 1 {
		t.Errorf("got %d entries, want 1", c.Len())
	}
}

func TestDelete(t *testing.T) {
	c := New[string](time.Minute)

	c.Set("key1", "value1")
	c.Delete("key1")

	if _, ok := c.Get("key1"); ok {
		t.Error("expected key1 to be deleted")
	}

	// Deleting an absent key must not panic.
	c.Delete("missing")
}

func TestClear(t *testing.T) {
	c := New[int](time.Minute)

	for i := 0; i < 5; i++ {
		c.Set(fmt.Sprintf("key%d", i), i)
	}
	if c.Len() != 5 {
		t.Fatalf("got %d entries, want 5", c.Len())
	}

	c.Clear()

	if c.Len() != 0 {
		t.Errorf("got %d entries after Clear, want 0", c.Len())
	}
	if _, ok := c.Get("key0"); ok {
		t.Error("expected key0 to be gone after Clear")
	}
}

func TestStats(t *testing.T) {
	c := New[string](time.Minute)

	c.Set("key1", "value1")
	c.Get("key1")
	c.Get("key1")
	c.Get("missing")

	s := c.GetStats()
	if s.Hits != 2 {
		t.Errorf("got %d hits, want 2", s.Hits)
	}
	if s.Misses != 1 {
		t.Errorf("got %d misses, want 1", s.Misses)
	}
	if s.Keys != 1 {
		t.Errorf("got %d keys, want 1", s.Keys)
	}
}

func TestHitRate(t *testing.T) {
	c := New[string](time.Minute)

	if rate := c.GetStats().HitRate(); rate != 0.0 {
		t.Errorf("got %f for empty cache, want 0", rate)
	}

	c.Set("key1", "value1")
	c.Get("key1")
	c.Get("key1")
	c.Get("key1")
	c.Get("missing")

	if rate := c.GetStats().HitRate(); rate != 75.0 {
		t.Errorf("got %f, want 75.0", rate)
	}
}

func TestCleanup(t *testing.T) {
	c := New[int](10 * time.Millisecond)

	c.Set("key1", 1)
	c.Set("key2", 2)

	time.Sleep(20 * time.Millisecond)
	c.cleanup()

	if c.Len() != 0 {
		t.Errorf("got %d entries after cleanup, want 0", c.Len())
	}
	if s := c.GetStats(); s.Evictions != 2 {
		t.Errorf("got %d evictions, want 2", s.Evictions)
	}
}

func TestConcurrentAccess(t *testing.T) {
	c := New[int](time.Minute)

	done := make(chan struct{})
	for w := 0; w < 8; w++ {
		go func(w int) {
			defer func() { done <- struct{}{} }()
			for i := 0; i < 100; i++ {
				key := fmt.Sprintf("key%d", i%10)
				c.Set(key, w*1000+i)
				c.Get(key)
			}
		}(w)
	}
	for w := 0; w < 8; w++ {
		<-done
	}

	if c.Len() != 10 {
		t.Errorf("got %d entries, want 10", c.Len())
	}
}
