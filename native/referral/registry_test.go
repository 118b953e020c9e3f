package referral

import (
	"math/big"
	"sort"
	"testing"

	"github.com/ethereum/go-ethereum/rlp"
)

type mockState struct {
	kv map[string][]byte
}

func newMockState() *mockState {
	return &mockState{kv: make(map[string][]byte)}
}

func (m *mockState) KVGet(key []byte, out interface{}) (bool, error) {
	raw, ok := m.kv[string(key)]
	if !ok {
		return false, nil
	}
	if err := rlp.DecodeBytes(raw, out); err != nil {
		return false, err
	}
	return true, nil
}

func (m *mockState) KVPut(key []byte, value interface{}) error {
	raw, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	m.kv[string(key)] = raw
	return nil
}

func (m *mockState) IteratePrefix(prefix []byte, fn func(key, raw []byte) bool) error {
	keys := make([]string, 0, len(m.kv))
	for key := range m.kv {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if len(key) < len(prefix) || key[:len(prefix)] != string(prefix) {
			continue
		}
		if !fn([]byte(key), m.kv[key]) {
			break
		}
	}
	return nil
}

func newTestRegistry(t *testing.T, joinFee *big.Int) (*Registry, *mockState) {
	t.Helper()
	state := newMockState()
	registry := NewRegistry("owner", joinFee)
	registry.SetState(state)
	return registry, state
}

func TestJoinUnknownReferrerFallsBackToOwner(t *testing.T) {
	registry, _ := newTestRegistry(t, nil)

	account, err := registry.Join("alice", "nobody", nil)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if account.Referrer != "owner" {
		t.Fatalf("expected owner referrer, got %q", account.Referrer)
	}
}

func TestJoinEmptyReferrerFallsBackToOwner(t *testing.T) {
	registry, _ := newTestRegistry(t, nil)

	account, err := registry.Join("alice", "", nil)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if account.Referrer != "owner" {
		t.Fatalf("expected owner referrer, got %q", account.Referrer)
	}
}

func TestJoinSelfReferralRejected(t *testing.T) {
	registry, _ := newTestRegistry(t, nil)

	if _, err := registry.Join("alice", "alice", nil); err != ErrSelfReferral {
		t.Fatalf("expected ErrSelfReferral, got %v", err)
	}
}

func TestJoinDuplicateRejected(t *testing.T) {
	registry, _ := newTestRegistry(t, nil)

	if _, err := registry.Join("alice", "", nil); err != nil {
		t.Fatalf("first join: %v", err)
	}
	if _, err := registry.Join("alice", "", nil); err != ErrAccountExists {
		t.Fatalf("expected ErrAccountExists, got %v", err)
	}
}

func TestJoinFeeExactMatchRequired(t *testing.T) {
	registry, _ := newTestRegistry(t, big.NewInt(100))

	if _, err := registry.Join("alice", "", nil); err != ErrJoinFee {
		t.Fatalf("expected ErrJoinFee for missing fee, got %v", err)
	}
	if _, err := registry.Join("alice", "", big.NewInt(99)); err != ErrJoinFee {
		t.Fatalf("expected ErrJoinFee for short fee, got %v", err)
	}
	if _, err := registry.Join("alice", "", big.NewInt(101)); err != ErrJoinFee {
		t.Fatalf("expected ErrJoinFee for excess fee, got %v", err)
	}
	if _, err := registry.Join("alice", "", big.NewInt(100)); err != nil {
		t.Fatalf("exact fee join: %v", err)
	}
}

func TestAffiliateFanOutAcrossThreeLevels(t *testing.T) {
	registry, _ := newTestRegistry(t, nil)

	// owner <- a <- b <- c <- d: d lands in c level 0, b level 1, a level 2.
	for _, join := range [][2]string{{"a", ""}, {"b", "a"}, {"c", "b"}, {"d", "c"}} {
		if _, err := registry.Join(join[0], join[1], nil); err != nil {
			t.Fatalf("join %s: %v", join[0], err)
		}
	}

	expect := map[string]int{"c": 0, "b": 1, "a": 2}
	for ancestor, level := range expect {
		affiliates, err := registry.Affiliates(ancestor)
		if err != nil {
			t.Fatalf("affiliates %s: %v", ancestor, err)
		}
		found := false
		for _, member := range affiliates[level] {
			if member == "d" {
				found = true
			}
		}
		if !found {
			t.Fatalf("expected d in %s level %d, got %v", ancestor, level, affiliates[level])
		}
	}
}

func TestFanOutStopsAtOwner(t *testing.T) {
	registry, state := newTestRegistry(t, nil)

	if _, err := registry.Join("a", "", nil); err != nil {
		t.Fatalf("join a: %v", err)
	}
	if _, err := registry.Join("b", "a", nil); err != nil {
		t.Fatalf("join b: %v", err)
	}

	// The owner has no stored record; nothing may have been written for it.
	if _, ok := state.kv[string(accountKey("owner"))]; ok {
		t.Fatal("owner must not collect affiliates")
	}
}

func TestReferrersChain(t *testing.T) {
	registry, _ := newTestRegistry(t, nil)

	for _, join := range [][2]string{{"a", ""}, {"b", "a"}, {"c", "b"}, {"d", "c"}} {
		if _, err := registry.Join(join[0], join[1], nil); err != nil {
			t.Fatalf("join %s: %v", join[0], err)
		}
	}

	chain, err := registry.Referrers("d")
	if err != nil {
		t.Fatalf("referrers: %v", err)
	}
	want := []string{"c", "b", "a"}
	if len(chain) != len(want) {
		t.Fatalf("expected chain %v, got %v", want, chain)
	}
	for i := range want {
		if chain[i] != want[i] {
			t.Fatalf("expected chain %v, got %v", want, chain)
		}
	}

	// Near the root the chain ends at the owner.
	chain, err = registry.Referrers("b")
	if err != nil {
		t.Fatalf("referrers: %v", err)
	}
	if len(chain) != 2 || chain[0] != "a" || chain[1] != "owner" {
		t.Fatalf("expected [a owner], got %v", chain)
	}
}

func TestLegacyAccountUpgrade(t *testing.T) {
	registry, state := newTestRegistry(t, nil)

	// Write a record in the legacy layout directly.
	payload, err := rlp.EncodeToBytes(&storedAccountLegacy{Referrer: "owner"})
	if err != nil {
		t.Fatalf("encode legacy: %v", err)
	}
	if err := state.KVPut(accountKey("old"), &vAccount{Version: accountVersionLegacy, Payload: payload}); err != nil {
		t.Fatalf("put legacy: %v", err)
	}

	account, err := registry.Account("old")
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	if account.Referrer != "owner" {
		t.Fatalf("expected owner referrer, got %q", account.Referrer)
	}
	for level, set := range account.Affiliates {
		if len(set) != 0 {
			t.Fatalf("expected empty level %d, got %v", level, set)
		}
	}
}

func TestMigrateLegacyAccounts(t *testing.T) {
	registry, state := newTestRegistry(t, nil)

	payload, err := rlp.EncodeToBytes(&storedAccountLegacy{Referrer: "owner"})
	if err != nil {
		t.Fatalf("encode legacy: %v", err)
	}
	for _, id := range []string{"u1", "u2"} {
		if err := state.KVPut(accountKey(id), &vAccount{Version: accountVersionLegacy, Payload: payload}); err != nil {
			t.Fatalf("put legacy %s: %v", id, err)
		}
	}
	if _, err := registry.Join("fresh", "", nil); err != nil {
		t.Fatalf("join: %v", err)
	}

	migrated, err := registry.MigrateLegacyAccounts(0)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if migrated != 2 {
		t.Fatalf("expected 2 migrated, got %d", migrated)
	}

	// Every stored record must now carry the current version.
	err = state.IteratePrefix(accountPrefix, func(key, raw []byte) bool {
		var envelope vAccount
		if err := rlp.DecodeBytes(raw, &envelope); err != nil {
			t.Fatalf("decode %s: %v", key, err)
		}
		if envelope.Version != accountVersionCurrent {
			t.Fatalf("record %s still at version %d", key, envelope.Version)
		}
		return true
	})
	if err != nil {
		t.Fatalf("iterate: %v", err)
	}
}
