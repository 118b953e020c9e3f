package referral

import (
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/rlp"

	"launchpad/core/events"
	"launchpad/core/types"
)

var accountPrefix = []byte("referral/acct/")

// registryState describes the minimal persistence functionality the
// registry needs from the surrounding state implementation.
type registryState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	IteratePrefix(prefix []byte, fn func(key, raw []byte) bool) error
}

type registryEvent struct {
	evt *types.Event
}

func (e registryEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

// Registry maintains the referral graph: which account sponsored which,
// and the up-to-three-level affiliate sets hanging off every referrer.
type Registry struct {
	state   registryState
	emitter events.Emitter
	owner   string
	joinFee *big.Int
}

// NewRegistry creates a registry with a no-op emitter. The owner account
// is the fallback referrer for accounts joining without a valid sponsor.
func NewRegistry(owner string, joinFee *big.Int) *Registry {
	fee := big.NewInt(0)
	if joinFee != nil {
		fee = new(big.Int).Set(joinFee)
	}
	return &Registry{
		emitter: events.NoopEmitter{},
		owner:   strings.TrimSpace(owner),
		joinFee: fee,
	}
}

// SetState configures the state backend used by the registry.
func (r *Registry) SetState(state registryState) { r.state = state }

// SetEmitter configures the event emitter. Passing nil resets it to a
// no-op implementation.
func (r *Registry) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		r.emitter = events.NoopEmitter{}
		return
	}
	r.emitter = emitter
}

// Owner returns the platform owner account.
func (r *Registry) Owner() string { return r.owner }

// JoinFee returns the configured join fee.
func (r *Registry) JoinFee() *big.Int { return new(big.Int).Set(r.joinFee) }

func (r *Registry) emit(evt *types.Event) {
	if r == nil || r.emitter == nil || evt == nil {
		return
	}
	r.emitter.Emit(registryEvent{evt: evt})
}

func accountKey(accountID string) []byte {
	trimmed := strings.TrimSpace(accountID)
	buf := make([]byte, len(accountPrefix)+len(trimmed))
	copy(buf, accountPrefix)
	copy(buf[len(accountPrefix):], trimmed)
	return buf
}

func (r *Registry) load(accountID string) (*Account, bool, error) {
	if r == nil || r.state == nil {
		return nil, false, errNilState
	}
	var envelope vAccount
	ok, err := r.state.KVGet(accountKey(accountID), &envelope)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	account, err := decodeAccount(accountID, &envelope)
	if err != nil {
		return nil, false, err
	}
	return account, true, nil
}

func decodeAccount(accountID string, envelope *vAccount) (*Account, error) {
	switch envelope.Version {
	case accountVersionLegacy:
		var stored storedAccountLegacy
		if err := rlp.DecodeBytes(envelope.Payload, &stored); err != nil {
			return nil, fmt.Errorf("referral: decode legacy account %s: %w", accountID, err)
		}
		// Lazy upgrade: legacy records carried no affiliate sets.
		return &Account{ID: accountID, Referrer: stored.Referrer}, nil
	case accountVersionCurrent:
		var stored storedAccount
		if err := rlp.DecodeBytes(envelope.Payload, &stored); err != nil {
			return nil, fmt.Errorf("referral: decode account %s: %w", accountID, err)
		}
		return &Account{ID: accountID, Referrer: stored.Referrer, Affiliates: stored.levels()}, nil
	default:
		return nil, fmt.Errorf("referral: unknown account version %d for %s", envelope.Version, accountID)
	}
}

func (r *Registry) store(account *Account) error {
	if r == nil || r.state == nil {
		return errNilState
	}
	stored := storedAccount{
		Referrer: account.Referrer,
		Level0:   sortedSet(account.Affiliates[0]),
		Level1:   sortedSet(account.Affiliates[1]),
		Level2:   sortedSet(account.Affiliates[2]),
	}
	payload, err := rlp.EncodeToBytes(&stored)
	if err != nil {
		return fmt.Errorf("referral: encode account %s: %w", account.ID, err)
	}
	return r.state.KVPut(accountKey(account.ID), &vAccount{Version: accountVersionCurrent, Payload: payload})
}

func sortedSet(values []string) []string {
	out := append([]string(nil), values...)
	sort.Strings(out)
	return out
}

func insertAffiliate(set []string, accountID string) []string {
	for _, existing := range set {
		if existing == accountID {
			return set
		}
	}
	return append(set, accountID)
}

// Join registers a new account. The referrer is optional: when absent,
// unknown or equal to the platform owner the owner becomes the referrer.
// Self-referral is rejected outright. On success the new account is
// inserted into up to three ancestor affiliate sets, stopping as soon as
// the chain reaches the owner.
func (r *Registry) Join(accountID, referrer string, paidFee *big.Int) (*Account, error) {
	if r == nil || r.state == nil {
		return nil, errNilState
	}
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return nil, fmt.Errorf("referral: empty account id")
	}
	if paid := paidFee; r.joinFee.Sign() > 0 {
		if paid == nil || paid.Cmp(r.joinFee) != 0 {
			return nil, ErrJoinFee
		}
	}
	if _, exists, err := r.load(accountID); err != nil {
		return nil, err
	} else if exists {
		return nil, ErrAccountExists
	}
	referrer = strings.TrimSpace(referrer)
	if referrer == accountID {
		return nil, ErrSelfReferral
	}
	resolved := r.owner
	if referrer != "" && referrer != r.owner {
		if _, exists, err := r.load(referrer); err != nil {
			return nil, err
		} else if exists {
			resolved = referrer
		}
	}

	account := &Account{ID: accountID, Referrer: resolved}
	if err := r.store(account); err != nil {
		return nil, err
	}
	if err := r.fanOutAffiliate(accountID, resolved); err != nil {
		return nil, err
	}
	r.emit(NewJoinedEvent(accountID, resolved))
	return account, nil
}

// fanOutAffiliate inserts the new account into the ancestor affiliate sets
// for each tracked level. The walk stops at the owner: the owner collects
// no affiliates and terminates every chain.
func (r *Registry) fanOutAffiliate(accountID, referrer string) error {
	ancestor := referrer
	for level := 0; level < Levels; level++ {
		if ancestor == r.owner || ancestor == "" {
			return nil
		}
		account, ok, err := r.load(ancestor)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		account.Affiliates[level] = insertAffiliate(account.Affiliates[level], accountID)
		if err := r.store(account); err != nil {
			return err
		}
		ancestor = account.Referrer
	}
	return nil
}

// Account returns the stored record for the given account.
func (r *Registry) Account(accountID string) (*Account, error) {
	account, ok, err := r.load(accountID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAccountNotFound
	}
	return account, nil
}

// IsRegistered reports whether the account has joined.
func (r *Registry) IsRegistered(accountID string) (bool, error) {
	_, ok, err := r.load(accountID)
	return ok, err
}

// Referrers returns the chain of up to three ancestor referrers, nearest
// first. The chain stops at the platform owner.
func (r *Registry) Referrers(accountID string) ([]string, error) {
	account, ok, err := r.load(accountID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAccountNotFound
	}
	chain := make([]string, 0, Levels)
	current := account
	for level := 0; level < Levels; level++ {
		chain = append(chain, current.Referrer)
		if current.Referrer == r.owner {
			break
		}
		next, ok, err := r.load(current.Referrer)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		current = next
	}
	return chain, nil
}

// Affiliates returns the three per-level affiliate sets for the account.
// Unregistered accounts yield empty sets.
func (r *Registry) Affiliates(accountID string) ([Levels][]string, error) {
	var none [Levels][]string
	account, ok, err := r.load(accountID)
	if err != nil {
		return none, err
	}
	if !ok {
		return none, nil
	}
	return account.Clone().Affiliates, nil
}

// MigrateLegacyAccounts rewrites up to limit legacy-format account records
// in the current layout. The lazy upgrade path makes this optional; the
// batch job only exists to retire the legacy decoder eventually. Returns
// the number of records rewritten.
func (r *Registry) MigrateLegacyAccounts(limit int) (int, error) {
	if r == nil || r.state == nil {
		return 0, errNilState
	}
	type pending struct {
		id       string
		envelope vAccount
	}
	var batch []pending
	err := r.state.IteratePrefix(accountPrefix, func(key, raw []byte) bool {
		if limit > 0 && len(batch) >= limit {
			return false
		}
		var envelope vAccount
		if err := rlp.DecodeBytes(raw, &envelope); err != nil {
			return true
		}
		if envelope.Version == accountVersionCurrent {
			return true
		}
		batch = append(batch, pending{id: string(key[len(accountPrefix):]), envelope: envelope})
		return true
	})
	if err != nil {
		return 0, err
	}
	migrated := 0
	for _, item := range batch {
		account, err := decodeAccount(item.id, &item.envelope)
		if err != nil {
			return migrated, err
		}
		if err := r.store(account); err != nil {
			return migrated, err
		}
		migrated++
	}
	return migrated, nil
}
