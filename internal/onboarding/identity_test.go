package onboarding

import (
	"math/rand"
	"regexp"
	"strings"
	"testing"
)

var addressPattern = regexp.MustCompile(`^0x[0-9a-f]{40}$`)

func TestDeriveAddressFormat(t *testing.T) {
	prov := NewProvisioner(nil)

	seen := make(map[string]bool)
	for i := 0; i < 64; i++ {
		addr := prov.DeriveAddress()
		if !addressPattern.MatchString(addr) {
			t.Fatalf("unexpected address format: %q", addr)
		}
		if seen[addr] {
			t.Fatalf("address %s generated twice", addr)
		}
		seen[addr] = true
	}
}

func TestDeriveAddressDeterministic(t *testing.T) {
	first := NewProvisioner(rand.New(rand.NewSource(7))).DeriveAddress()
	second := NewProvisioner(rand.New(rand.NewSource(7))).DeriveAddress()
	if first != second {
		t.Fatalf("same seed produced different addresses: %s vs %s", first, second)
	}
}

func TestNewCodeFormat(t *testing.T) {
	prov := NewProvisioner(rand.New(rand.NewSource(42)))

	for i := 0; i < 64; i++ {
		code := prov.NewCode()
		if len(code) != CodeLength {
			t.Fatalf("expected %d characters, got %q", CodeLength, code)
		}
		for _, ch := range code {
			if !strings.ContainsRune(codeAlphabet, ch) {
				t.Fatalf("code %q contains character outside alphabet", code)
			}
		}
	}
}
