package cron

import (
	"context"
	"strings"
	"testing"
	"time"
)

type memoryRedis struct {
	values map[string]string
}

func (m *memoryRedis) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	return true, nil
}

func (m *memoryRedis) CompareAndDelete(ctx context.Context, key, expected string) (bool, error) {
	if m.values[key] != expected {
		return false, nil
	}
	delete(m.values, key)
	return true, nil
}

func TestRedisLockExcludesSecondOwner(t *testing.T) {
	ctx := context.Background()
	store := &memoryRedis{values: map[string]string{}}
	first, err := NewRedisLock(store, "msn:lock:cron", time.Minute)
	if err != nil {
		t.Fatalf("NewRedisLock: %v", err)
	}
	second, _ := NewRedisLock(store, "msn:lock:cron", time.Minute)

	if ok, _ := first.Acquire(ctx); !ok {
		t.Fatal("first acquire should succeed")
	}
	if !strings.Contains(first.Owner(), "/") || store.values["msn:lock:cron"] != first.Owner() {
		t.Fatalf("lease should store the owner token, got %q", store.values["msn:lock:cron"])
	}
	if ok, _ := second.Acquire(ctx); ok {
		t.Fatal("second acquire should fail while held")
	}
	if err := second.Release(ctx); err != nil {
		t.Fatalf("release by non-owner: %v", err)
	}
	if _, held := store.values["msn:lock:cron"]; !held {
		t.Fatal("non-owner release must not drop the lock")
	}
	if err := first.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ok, _ := second.Acquire(ctx); !ok {
		t.Fatal("acquire after release should succeed")
	}
}

func TestRedisLockLeavesReacquiredLease(t *testing.T) {
	ctx := context.Background()
	store := &memoryRedis{values: map[string]string{}}
	lock, _ := NewRedisLock(store, "msn:lock:cron", time.Minute)

	if ok, _ := lock.Acquire(ctx); !ok {
		t.Fatal("acquire should succeed")
	}
	// lease expired and another replica took it
	store.values["msn:lock:cron"] = "other-host/1/abc"

	if err := lock.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if store.values["msn:lock:cron"] != "other-host/1/abc" {
		t.Fatal("release must not drop a lease held by another replica")
	}
	if lock.Owner() != "" {
		t.Fatal("owner should be cleared after release")
	}
}
