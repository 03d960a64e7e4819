package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func TestLRUGetSet(t *testing.T) {
	c := NewLRUCache(10)
	ctx := context.Background()

	if err := c.Set(ctx, "key1", []byte("value1"), time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	val, err := c.Get(ctx, "key1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(val) != "value1" {
		t.Errorf("value = %q, want value1", val)
	}

	// Miss returns nil, nil.
	val, err = c.Get(ctx, "missing")
	if err != nil {
		t.Fatalf("Get miss errored: %v", err)
	}
	if val != nil {
		t.Errorf("expected nil on miss, got %q", val)
	}
}

func TestLRUTTLExpiry(t *testing.T) {
	c := NewLRUCache(10)
	ctx := context.Background()

	if err := c.Set(ctx, "short", []byte("v"), 10*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)

	val, err := c.Get(ctx, "short")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if val != nil {
		t.Error("expired entry still served")
	}
}

func TestLRUEviction(t *testing.T) {
	c := NewLRUCache(3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := c.Set(ctx, fmt.Sprintf("key%d", i), []byte("v"), time.Minute); err != nil {
			t.Fatal(err)
		}
	}

	// Touch key0 so key1 becomes the oldest.
	if _, err := c.Get(ctx, "key0"); err != nil {
		t.Fatal(err)
	}

	if err := c.Set(ctx, "key3", []byte("v"), time.Minute); err != nil {
		t.Fatal(err)
	}

	if val, _ := c.Get(ctx, "key1"); val != nil {
		t.Error("least recently used entry not evicted")
	}
	if val, _ := c.Get(ctx, "key0"); val == nil {
		t.Error("recently used entry evicted")
	}

	size, capacity := c.Stats()
	if size != 3 || capacity != 3 {
		t.Errorf("stats = %d/%d, want 3/3", size, capacity)
	}
}

func TestLRUDelete(t *testing.T) {
	c := NewLRUCache(10)
	ctx := context.Background()

	if err := c.Set(ctx, "key1", []byte("v"), time.Minute); err != nil {
		t.Fatal(err)
	}
	if err := c.Delete(ctx, "key1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if val, _ := c.Get(ctx, "key1"); val != nil {
		t.Error("deleted entry still served")
	}

	// Deleting a missing key is a no-op.
	if err := c.Delete(ctx, "missing"); err != nil {
		t.Errorf("Delete of missing key errored: %v", err)
	}
}

func TestLRUAssessmentRoundTrip(t *testing.T) {
	c := NewLRUCache(10)
	ctx := context.Background()

	a := &domain.CreditAssessment{
		ID:           "a-001",
		MerchantID:   "m-001",
		Score:        63,
		RiskCategory: domain.RiskMedium,
		Eligible:     true,
		RulesVersion: "1.0.0",
	}
	if err := c.SetAssessment(ctx, "m-001", a, time.Minute); err != nil {
		t.Fatalf("SetAssessment failed: %v", err)
	}

	got, err := c.GetAssessment(ctx, "m-001")
	if err != nil {
		t.Fatalf("GetAssessment failed: %v", err)
	}
	if got == nil {
		t.Fatal("cached assessment missing")
	}
	if got.ID != "a-001" || got.Score != 63 || !got.Eligible {
		t.Errorf("assessment round trip lost fields: %+v", got)
	}

	// Miss returns nil, nil.
	got, err = c.GetAssessment(ctx, "m-unknown")
	if err != nil || got != nil {
		t.Errorf("expected nil, nil on miss, got %+v, %v", got, err)
	}
}

func TestLRUIncrementCounter(t *testing.T) {
	c := NewLRUCache(10)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := c.IncrementCounter(ctx, "fetch:m-001", time.Minute)
		if err != nil {
			t.Fatalf("IncrementCounter failed: %v", err)
		}
		if got != want {
			t.Errorf("counter = %d, want %d", got, want)
		}
	}

	// A fresh window restarts the count.
	if _, err := c.IncrementCounter(ctx, "fetch:m-002", 5*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	time.Sleep(10 * time.Millisecond)
	got, err := c.IncrementCounter(ctx, "fetch:m-002", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if got != 1 {
		t.Errorf("expired counter = %d, want 1", got)
	}
}

func TestNewUnsupportedType(t *testing.T) {
	if _, err := New(domain.CacheConfig{Type: "memcached"}); err == nil {
		t.Fatal("expected error for unsupported cache type")
	}
}

func TestNewMemory(t *testing.T) {
	c, err := New(domain.CacheConfig{Type: "memory", LocalMaxSize: 100})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer c.Close()

	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}
