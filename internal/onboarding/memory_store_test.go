package onboarding

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

func TestMemoryStoreEnsureAgentIdempotent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	record, created, err := store.EnsureAgent(ctx, "0xwallet", "0xaaaa")
	if err != nil {
		t.Fatalf("ensure agent: %v", err)
	}
	if !created {
		t.Fatalf("expected first call to create the record")
	}
	if record.AgentAddress != "0xaaaa" {
		t.Fatalf("unexpected address %s", record.AgentAddress)
	}

	record, created, err = store.EnsureAgent(ctx, "0xwallet", "0xbbbb")
	if err != nil {
		t.Fatalf("ensure agent again: %v", err)
	}
	if created {
		t.Fatalf("second call must not create a new record")
	}
	if record.AgentAddress != "0xaaaa" {
		t.Fatalf("address changed on repeat call: %s", record.AgentAddress)
	}
}

func TestMemoryStoreEnsureAgentSingleWinner(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	const workers = 16
	var wg sync.WaitGroup
	addresses := make([]string, workers)
	winners := make([]bool, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			record, created, err := store.EnsureAgent(ctx, "0xshared", fmt.Sprintf("0xaddr%02d", i))
			if err != nil {
				t.Errorf("worker %d: %v", i, err)
				return
			}
			addresses[i] = record.AgentAddress
			winners[i] = created
		}(i)
	}
	wg.Wait()

	created := 0
	for i := 1; i < workers; i++ {
		if addresses[i] != addresses[0] {
			t.Fatalf("worker %d observed %s, worker 0 observed %s", i, addresses[i], addresses[0])
		}
	}
	for _, won := range winners {
		if won {
			created++
		}
	}
	if created != 1 {
		t.Fatalf("expected exactly one winner, got %d", created)
	}
}

func TestMemoryStoreSetLinkedAccountOnce(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if _, err := store.SetLinkedAccount(ctx, "0xmissing", Account{ID: "user-1"}); !errors.Is(err, ErrWalletNotFound) {
		t.Fatalf("expected ErrWalletNotFound, got %v", err)
	}

	if _, _, err := store.EnsureAgent(ctx, "0xwallet", "0xaaaa"); err != nil {
		t.Fatalf("ensure agent: %v", err)
	}
	record, err := store.SetLinkedAccount(ctx, "0xwallet", Account{ID: "user-1", Username: "alice"})
	if err != nil {
		t.Fatalf("set linked account: %v", err)
	}
	if record.LinkedAccount == nil || record.LinkedAccount.ID != "user-1" {
		t.Fatalf("unexpected linked account: %+v", record.LinkedAccount)
	}

	record, err = store.SetLinkedAccount(ctx, "0xwallet", Account{ID: "user-2"})
	if !errors.Is(err, ErrAlreadyLinked) {
		t.Fatalf("expected ErrAlreadyLinked, got %v", err)
	}
	if record == nil || record.LinkedAccount.ID != "user-1" {
		t.Fatalf("linked account must not be overwritten: %+v", record.LinkedAccount)
	}
}

func TestMemoryStoreFinalize(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if _, err := store.Finalize(ctx, "0xmissing", "", nil, AgentInfo{}, Deployment{}); !errors.Is(err, ErrWalletNotFound) {
		t.Fatalf("expected ErrWalletNotFound, got %v", err)
	}

	if _, _, err := store.EnsureAgent(ctx, "0xwallet", "0xaaaa"); err != nil {
		t.Fatalf("ensure agent: %v", err)
	}
	prefs := Preferences{"riskTolerance": 42}
	record, err := store.Finalize(ctx, "0xwallet", "acct-ref-1", prefs,
		AgentInfo{ID: "agent-ABC123", Status: "active"},
		Deployment{Address: "0xaaaa", Network: "arbitrum-sepolia"})
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if !record.SetupComplete {
		t.Fatalf("expected record to be marked complete")
	}
	if record.ExternalRef != "acct-ref-1" {
		t.Fatalf("unexpected external ref %q", record.ExternalRef)
	}
	if record.Agent == nil || record.Agent.ID != "agent-ABC123" {
		t.Fatalf("unexpected agent info: %+v", record.Agent)
	}

	// 返回的副本不得与内部状态共享偏好表。
	record.Preferences["riskTolerance"] = 99
	fresh, err := store.Get(ctx, "0xwallet")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if fresh.Preferences["riskTolerance"] != 42 {
		t.Fatalf("internal preferences mutated through returned copy")
	}
}

func TestMemoryStoreStats(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		wallet := fmt.Sprintf("0xwallet%d", i)
		if _, _, err := store.EnsureAgent(ctx, wallet, fmt.Sprintf("0xaddr%d", i)); err != nil {
			t.Fatalf("ensure %s: %v", wallet, err)
		}
	}
	if _, err := store.SetLinkedAccount(ctx, "0xwallet0", Account{ID: "user-0"}); err != nil {
		t.Fatalf("link: %v", err)
	}
	if _, err := store.SetLinkedAccount(ctx, "0xwallet1", Account{ID: "user-1"}); err != nil {
		t.Fatalf("link: %v", err)
	}
	if _, err := store.Finalize(ctx, "0xwallet0", "", nil, AgentInfo{ID: "agent-1", Status: "active"}, Deployment{}); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 3 || stats.Linked != 2 || stats.SetupComplete != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}
