package service

import (
	"context"
	"testing"
	"time"

	"permission-service/internal/models"
)

func TestMemoryCachePutGet(t *testing.T) {
	cache := NewMemoryPermissionCache(time.Minute)
	ctx := context.Background()

	if err := cache.Put(ctx, "alice", "d1", models.LevelEdit); err != nil {
		t.Fatalf("Put: %v", err)
	}

	level, hit, err := cache.Get(ctx, "alice", "d1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !hit {
		t.Fatal("expected hit")
	}
	if level != models.LevelEdit {
		t.Errorf("level = %v, want edit", level)
	}

	if _, hit, _ := cache.Get(ctx, "bob", "d1"); hit {
		t.Error("hit for a principal never cached")
	}
}

func TestMemoryCacheTTLExpiry(t *testing.T) {
	cache := NewMemoryPermissionCache(20 * time.Millisecond)
	ctx := context.Background()

	if err := cache.Put(ctx, "alice", "d1", models.LevelRead); err != nil {
		t.Fatalf("Put: %v", err)
	}

	time.Sleep(40 * time.Millisecond)

	if _, hit, _ := cache.Get(ctx, "alice", "d1"); hit {
		t.Error("entry served past its TTL")
	}
}

// An invalidation that has returned must be visible to every later
// read, for every principal with an entry on the resource.
func TestMemoryCacheInvalidate(t *testing.T) {
	cache := NewMemoryPermissionCache(time.Minute)
	ctx := context.Background()

	cache.Put(ctx, "alice", "d1", models.LevelManage)
	cache.Put(ctx, "bob", "d1", models.LevelRead)
	cache.Put(ctx, "alice", "d2", models.LevelRead)

	if err := cache.Invalidate(ctx, "d1"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}

	if _, hit, _ := cache.Get(ctx, "alice", "d1"); hit {
		t.Error("alice's entry for d1 survived invalidation")
	}
	if _, hit, _ := cache.Get(ctx, "bob", "d1"); hit {
		t.Error("bob's entry for d1 survived invalidation")
	}
	if _, hit, _ := cache.Get(ctx, "alice", "d2"); !hit {
		t.Error("unrelated resource entry was dropped")
	}
}

func TestMemoryCacheInvalidateMany(t *testing.T) {
	cache := NewMemoryPermissionCache(time.Minute)
	ctx := context.Background()

	cache.Put(ctx, "alice", "d1", models.LevelEdit)
	cache.Put(ctx, "alice", "d2", models.LevelEdit)
	cache.Put(ctx, "alice", "d3", models.LevelEdit)

	if err := cache.InvalidateMany(ctx, []string{"d1", "d3"}); err != nil {
		t.Fatalf("InvalidateMany: %v", err)
	}

	for _, resourceID := range []string{"d1", "d3"} {
		if _, hit, _ := cache.Get(ctx, "alice", resourceID); hit {
			t.Errorf("entry for %s survived invalidation", resourceID)
		}
	}
	if _, hit, _ := cache.Get(ctx, "alice", "d2"); !hit {
		t.Error("entry for d2 was dropped")
	}
}

func TestMemoryCacheOverwrite(t *testing.T) {
	cache := NewMemoryPermissionCache(time.Minute)
	ctx := context.Background()

	cache.Put(ctx, "alice", "d1", models.LevelRead)
	cache.Put(ctx, "alice", "d1", models.LevelManage)

	level, hit, _ := cache.Get(ctx, "alice", "d1")
	if !hit || level != models.LevelManage {
		t.Errorf("got (%v, %v), want latest write manage", level, hit)
	}
}
