package redisstore

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/0gfoundation/0g-vault-2fa/internal/identity"
)

// ── helpers ───────────────────────────────────────────────────────────────────

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s, err := New(context.Background(), rdb, "", zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

var (
	testAddrA = common.HexToAddress("0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")
	testAddrB = common.HexToAddress("0xBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB")
)

// ── Get / Set ─────────────────────────────────────────────────────────────────

func TestStore_SetThenGet(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if err := s.Set(ctx, "42", testAddrA); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok, err := s.Get(ctx, "42")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if got != testAddrA {
		t.Errorf("got %s want %s", got.Hex(), testAddrA.Hex())
	}
}

func TestStore_GetMissing(t *testing.T) {
	s, _ := newTestStore(t)
	_, ok, err := s.Get(context.Background(), "missing")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Error("missing identity reported as present")
	}
}

func TestStore_Overwrite(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	_ = s.Set(ctx, "42", testAddrA)
	_ = s.Set(ctx, "42", testAddrB)

	got, _, _ := s.Get(ctx, "42")
	if got != testAddrB {
		t.Errorf("got %s want %s", got.Hex(), testAddrB.Hex())
	}
	// Stored as the checksummed string
	raw, err := mr.Get("vault:identity:42")
	if err != nil {
		t.Fatalf("raw key: %v", err)
	}
	if raw != testAddrB.Hex() {
		t.Errorf("raw value: got %q want %q", raw, testAddrB.Hex())
	}
}

func TestStore_CorruptValue(t *testing.T) {
	s, mr := newTestStore(t)
	mr.Set("vault:identity:bad", "not-an-address")

	if _, _, err := s.Get(context.Background(), "bad"); err == nil {
		t.Fatal("expected error for corrupt value")
	}
}

func TestStore_KeyPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s, err := New(context.Background(), rdb, "tenant1:", zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Set(context.Background(), "7", testAddrA); err != nil {
		t.Fatal(err)
	}
	if !mr.Exists("tenant1:vault:identity:7") {
		t.Error("prefixed key not written")
	}
	if !mr.Exists("tenant1:vault:metadata:schema_version") {
		t.Error("prefixed schema key not written")
	}
}

// ── Schema / lifecycle ────────────────────────────────────────────────────────

func TestNew_RejectsUnknownSchema(t *testing.T) {
	mr := miniredis.RunT(t)
	mr.Set("vault:metadata:schema_version", "v9")
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	if _, err := New(context.Background(), rdb, "", zap.NewNop()); err == nil {
		t.Fatal("expected schema version error")
	}
}

func TestStore_RedisDown(t *testing.T) {
	s, mr := newTestStore(t)
	mr.Close()

	if err := s.Set(context.Background(), "42", testAddrA); err == nil {
		t.Error("Set should fail when redis is down")
	}
	if err := s.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck should fail when redis is down")
	}
}

func TestStore_ClosedRejects(t *testing.T) {
	s, _ := newTestStore(t)
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if _, _, err := s.Get(context.Background(), "42"); err == nil {
		t.Error("Get on closed store should fail")
	}
}

// Directory over redis surfaces the not-found and replace semantics.
func TestStore_WithDirectory(t *testing.T) {
	s, _ := newTestStore(t)
	d := identity.NewDirectory(s, zap.NewNop())
	ctx := context.Background()

	if _, err := d.Upsert(ctx, "42", "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	got, err := d.Lookup(ctx, "42")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got != testAddrA {
		t.Errorf("got %s want %s", got.Hex(), testAddrA.Hex())
	}
}
