package onboarding

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"
)

// fixedRand 按固定序列返回 Intn 结果，用于构造绑定码碰撞。
type fixedRand struct {
	values []int
	pos    int
}

func (r *fixedRand) Intn(n int) int {
	v := r.values[r.pos%len(r.values)]
	r.pos++
	return v % n
}

func (r *fixedRand) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = byte(r.Intn(256))
	}
	return len(p), nil
}

func TestMemoryRegistryIssueAndLookup(t *testing.T) {
	registry := NewMemoryRegistry(NewProvisioner(rand.New(rand.NewSource(1))), time.Minute)
	ctx := context.Background()

	code, err := registry.Issue(ctx, "0xwallet")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if len(code) != CodeLength {
		t.Fatalf("unexpected code %q", code)
	}

	wallet, err := registry.Lookup(ctx, code)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if wallet != "0xwallet" {
		t.Fatalf("expected 0xwallet, got %s", wallet)
	}

	// 大小写与空白不影响查找。
	wallet, err = registry.Lookup(ctx, "  "+code+" ")
	if err != nil || wallet != "0xwallet" {
		t.Fatalf("normalized lookup failed: %s %v", wallet, err)
	}

	if _, err := registry.Lookup(ctx, "ZZZZZZ"); !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("expected ErrCodeNotFound, got %v", err)
	}
}

func TestMemoryRegistryReusesOutstandingCode(t *testing.T) {
	registry := NewMemoryRegistry(NewProvisioner(rand.New(rand.NewSource(2))), time.Minute)
	ctx := context.Background()

	first, err := registry.Issue(ctx, "0xwallet")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	second, err := registry.Issue(ctx, "0xwallet")
	if err != nil {
		t.Fatalf("issue again: %v", err)
	}
	if first != second {
		t.Fatalf("expected outstanding code %s to be reused, got %s", first, second)
	}

	code, ok, err := registry.Outstanding(ctx, "0xwallet")
	if err != nil || !ok || code != first {
		t.Fatalf("outstanding mismatch: %s %v %v", code, ok, err)
	}
}

func TestMemoryRegistryCollisionReroll(t *testing.T) {
	// 前 6 次 Intn 与后 6 次结果相同会触发碰撞；再往后序列错开。
	rng := &fixedRand{values: []int{
		1, 2, 3, 4, 5, 6,
		1, 2, 3, 4, 5, 6,
		7, 8, 9, 10, 11, 12,
	}}
	registry := NewMemoryRegistry(NewProvisioner(rng), time.Minute)
	ctx := context.Background()

	first, err := registry.Issue(ctx, "0xalice")
	if err != nil {
		t.Fatalf("issue first: %v", err)
	}
	second, err := registry.Issue(ctx, "0xbob")
	if err != nil {
		t.Fatalf("issue second: %v", err)
	}
	if first == second {
		t.Fatalf("collision was not rerolled: both wallets hold %s", first)
	}

	wallet, err := registry.Lookup(ctx, first)
	if err != nil || wallet != "0xalice" {
		t.Fatalf("first code lookup: %s %v", wallet, err)
	}
	wallet, err = registry.Lookup(ctx, second)
	if err != nil || wallet != "0xbob" {
		t.Fatalf("second code lookup: %s %v", wallet, err)
	}
}

func TestMemoryRegistryExpiredCodeClaimedByOtherWallet(t *testing.T) {
	// alice 的绑定码过期后被 bob 抢占，alice 再次签发必须拿到新码。
	rng := &fixedRand{values: []int{
		1, 2, 3, 4, 5, 6,
		1, 2, 3, 4, 5, 6,
		1, 2, 3, 4, 5, 6,
		7, 8, 9, 10, 11, 12,
	}}
	registry := NewMemoryRegistry(NewProvisioner(rng), time.Minute)
	ctx := context.Background()

	current := time.Unix(1_700_000_000, 0)
	registry.now = func() time.Time { return current }

	stale, err := registry.Issue(ctx, "0xalice")
	if err != nil {
		t.Fatalf("issue alice: %v", err)
	}

	current = current.Add(2 * time.Minute)
	claimed, err := registry.Issue(ctx, "0xbob")
	if err != nil {
		t.Fatalf("issue bob: %v", err)
	}
	if claimed != stale {
		t.Fatalf("expected bob to claim expired code %s, got %s", stale, claimed)
	}

	fresh, err := registry.Issue(ctx, "0xalice")
	if err != nil {
		t.Fatalf("reissue alice: %v", err)
	}
	if fresh == stale {
		t.Fatalf("alice was handed a code now owned by another wallet: %s", fresh)
	}

	if wallet, err := registry.Lookup(ctx, claimed); err != nil || wallet != "0xbob" {
		t.Fatalf("claimed code lookup: %s %v", wallet, err)
	}
	if wallet, err := registry.Lookup(ctx, fresh); err != nil || wallet != "0xalice" {
		t.Fatalf("fresh code lookup: %s %v", wallet, err)
	}
	if code, ok, err := registry.Outstanding(ctx, "0xalice"); err != nil || !ok || code != fresh {
		t.Fatalf("alice outstanding mismatch: %s %v %v", code, ok, err)
	}
	if code, ok, err := registry.Outstanding(ctx, "0xbob"); err != nil || !ok || code != claimed {
		t.Fatalf("bob outstanding mismatch: %s %v %v", code, ok, err)
	}
}

func TestMemoryRegistryExpiry(t *testing.T) {
	registry := NewMemoryRegistry(NewProvisioner(rand.New(rand.NewSource(3))), time.Minute)
	ctx := context.Background()

	current := time.Unix(1_700_000_000, 0)
	registry.now = func() time.Time { return current }

	code, err := registry.Issue(ctx, "0xwallet")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	current = current.Add(2 * time.Minute)
	if _, err := registry.Lookup(ctx, code); !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("expected expired code to miss, got %v", err)
	}
	if _, ok, err := registry.Outstanding(ctx, "0xwallet"); err != nil || ok {
		t.Fatalf("expired code must not stay outstanding")
	}

	// 过期后可以重新签发。
	fresh, err := registry.Issue(ctx, "0xwallet")
	if err != nil {
		t.Fatalf("reissue: %v", err)
	}
	wallet, err := registry.Lookup(ctx, fresh)
	if err != nil || wallet != "0xwallet" {
		t.Fatalf("reissued lookup: %s %v", wallet, err)
	}
}
