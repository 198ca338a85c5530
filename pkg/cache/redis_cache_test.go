package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisCache(client), mr
}

func TestGetSetRoundTrip(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, KeyPrefix+"score:abc", "cached", time.Hour); err != nil {
		t.Fatalf("set: %v", err)
	}

	val, ok, err := c.Get(ctx, KeyPrefix+"score:abc")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok || val != "cached" {
		t.Errorf("got (%q, %v), want (cached, true)", val, ok)
	}
}

func TestGetMissReturnsFalse(t *testing.T) {
	c, _ := newTestCache(t)

	val, ok, err := c.Get(context.Background(), "absent")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok || val != "" {
		t.Errorf("expected miss, got (%q, %v)", val, ok)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	type payload struct {
		Title string  `json:"title"`
		Score float64 `json:"score"`
	}

	in := payload{Title: "SWE-bench", Score: 8.4}
	if err := c.SetJSON(ctx, "k", in, time.Minute); err != nil {
		t.Fatalf("setjson: %v", err)
	}

	var out payload
	found, err := c.GetJSON(ctx, "k", &out)
	if err != nil {
		t.Fatalf("getjson: %v", err)
	}
	if !found {
		t.Fatal("expected hit")
	}
	if out != in {
		t.Errorf("got %+v, want %+v", out, in)
	}

	var miss payload
	found, err = c.GetJSON(ctx, "nope", &miss)
	if err != nil || found {
		t.Errorf("miss: got (%v, %v)", found, err)
	}
}

func TestTTLExpiry(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, "fp", "1", 7*24*time.Hour); err != nil {
		t.Fatalf("set: %v", err)
	}

	ttl, err := c.TTL(ctx, "fp")
	if err != nil {
		t.Fatalf("ttl: %v", err)
	}
	if ttl <= 0 {
		t.Errorf("ttl = %v, want positive", ttl)
	}

	mr.FastForward(8 * 24 * time.Hour)
	_, ok, err := c.Get(ctx, "fp")
	if err != nil {
		t.Fatalf("get after expiry: %v", err)
	}
	if ok {
		t.Error("key should have expired")
	}
}

func TestIncrement(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := c.Increment(ctx, "counter")
		if err != nil {
			t.Fatalf("incr: %v", err)
		}
		if got != want {
			t.Errorf("incr = %d, want %d", got, want)
		}
	}
}
