package sale

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"launchpad/core/events"
	"launchpad/core/types"
	"launchpad/native/referral"
)

// Levels mirrors the referral graph depth: one fee rate per ancestor.
const Levels = referral.Levels

// BpsDenominator is the fixed denominator for the referral fee schedule.
const BpsDenominator = 10_000

// referralGraph is the subset of the referral registry the engine needs
// to fan out affiliate rewards.
type referralGraph interface {
	Owner() string
	Account(accountID string) (*referral.Account, error)
	IsRegistered(accountID string) (bool, error)
}

type saleEvent struct {
	evt *types.Event
}

func (e saleEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

// Engine owns the sale aggregates: configuration, deposit admission with
// referral fan-out, and the claim/refund calculator. All mutating entry
// points are expected to be serialized by the caller (the settlement
// pipeline or the RPC layer hold a single lock).
type Engine struct {
	state       engineState
	graph       referralGraph
	emitter     events.Emitter
	owner       string
	defaultFees [Levels]uint64
	nowFn       func() int64
}

// NewEngine creates a sale engine with a no-op emitter. defaultFees is
// the referral fee schedule (basis points per level) used until the owner
// stores an explicit one.
func NewEngine(owner string, defaultFees [Levels]uint64) *Engine {
	return &Engine{
		emitter:     events.NoopEmitter{},
		owner:       strings.TrimSpace(owner),
		defaultFees: defaultFees,
		nowFn:       func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetReferralGraph configures the referral registry consulted during
// deposit admission.
func (e *Engine) SetReferralGraph(graph referralGraph) { e.graph = graph }

// SetEmitter configures the event emitter. Passing nil resets it to a
// no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source. Primarily intended for tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// Owner returns the privileged authority account.
func (e *Engine) Owner() string { return e.owner }

func (e *Engine) emit(evt *types.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(saleEvent{evt: evt})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) requireOwner(caller string) error {
	if strings.TrimSpace(caller) != e.owner {
		return ErrNotOwner
	}
	return nil
}

// CreateSale registers a new sale under the next sequential id. Owner
// only.
func (e *Engine) CreateSale(caller string, input SaleInput) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	if err := e.requireOwner(caller); err != nil {
		return 0, err
	}
	if err := input.Validate(); err != nil {
		return 0, err
	}
	id, err := e.bumpNumSales()
	if err != nil {
		return 0, err
	}
	s := input.toSale(id)
	if err := e.storeSale(s); err != nil {
		return 0, err
	}
	e.emit(NewCreatedEvent(s))
	return id, nil
}

// RemoveSale deletes a sale that never collected anything. Owner only.
func (e *Engine) RemoveSale(caller string, saleID uint64) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	s, err := e.loadSale(saleID)
	if err != nil {
		return err
	}
	if s.CollectedAmount.Sign() != 0 {
		return ErrSaleNotEmpty
	}
	if err := e.state.KVDelete(saleKey(saleID)); err != nil {
		return err
	}
	e.emit(NewRemovedEvent(saleID))
	return nil
}

// UpdateSaleDates adjusts the sale window. Rejected once a capped sale
// has collected its maximum. Owner only.
func (e *Engine) UpdateSaleDates(caller string, saleID uint64, start, end uint64) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	s, err := e.loadSale(saleID)
	if err != nil {
		return err
	}
	if s.MaxAmount != nil && s.CollectedAmount.Cmp(s.MaxAmount) >= 0 {
		return ErrSaleDone
	}
	s.StartDate = start
	s.EndDate = end
	return e.storeSale(s)
}

// SetDistributeToken configures the distribution token once. Owner only.
func (e *Engine) SetDistributeToken(caller string, saleID uint64, token string) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	s, err := e.loadSale(saleID)
	if err != nil {
		return err
	}
	if s.DistributeToken != "" {
		return ErrAlreadySet
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("sale: empty distribution token")
	}
	s.DistributeToken = token
	return e.storeSale(s)
}

// SetDistributeTokenDecimals configures the distribution token precision
// once. Owner only.
func (e *Engine) SetDistributeTokenDecimals(caller string, saleID uint64, decimals uint8) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	s, err := e.loadSale(saleID)
	if err != nil {
		return err
	}
	if s.DecimalsSet {
		return ErrAlreadySet
	}
	if decimals > MaxTokenDecimals {
		return ErrDecimalsOutOfRange
	}
	s.DistributeTokenDecimals = decimals
	s.DecimalsSet = true
	return e.storeSale(s)
}

// SetClaimAvailable toggles claiming. Requires the distribution token and
// its decimals to be configured. Owner only.
func (e *Engine) SetClaimAvailable(caller string, saleID uint64, available bool) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	s, err := e.loadSale(saleID)
	if err != nil {
		return err
	}
	if s.DistributeToken == "" || !s.DecimalsSet {
		return ErrNotEnoughData
	}
	s.ClaimAvailable = available
	return e.storeSale(s)
}

// UpdateReferralFees replaces the fee schedule. Exactly three entries,
// expressed in basis points. Owner only.
func (e *Engine) UpdateReferralFees(caller string, fees []uint64) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if len(fees) != Levels {
		return ErrWrongFeeCount
	}
	var schedule [Levels]uint64
	for i, fee := range fees {
		if fee > BpsDenominator {
			return fmt.Errorf("sale: fee %d out of range", fee)
		}
		schedule[i] = fee
	}
	return e.storeReferralFees(schedule)
}

// PrepareDeposit runs the admission pre-checks that precede any external
// call: the sale must exist, accept the paid token, be inside its window
// and (for capped sales) not be full, and a staking proof contract must
// be supplied and whitelisted when the sale requires staking. Returns a
// clone of the sale for the pipeline to inspect.
func (e *Engine) PrepareDeposit(saleID uint64, token, stakingContract string) (*Sale, error) {
	s, err := e.loadSale(saleID)
	if err != nil {
		return nil, err
	}
	if s.DepositToken != token {
		return nil, ErrWrongToken
	}
	if s.HardMaxAmountLimit {
		if s.MaxAmount == nil {
			return nil, ErrMustHaveMaxAmount
		}
		if s.CollectedAmount.Cmp(s.MaxAmount) >= 0 {
			return nil, ErrSaleDone
		}
	}
	now := e.now()
	if now < 0 || uint64(now) < s.StartDate {
		return nil, ErrSaleNotStarted
	}
	if uint64(now) > s.EndDate {
		return nil, ErrSaleDone
	}
	if s.RequiresStaking() {
		if strings.TrimSpace(stakingContract) == "" {
			return nil, ErrStakingContractRequired
		}
		if !s.AllowsStakingContract(stakingContract) {
			return nil, ErrStakingContractNotListed
		}
	}
	return s.Clone(), nil
}

// RecordDeposit validates and records a deposit for the given account.
// It is the single mutation point for collected-amount accounting: every
// settlement flow funnels here after its preconditions (stake check,
// currency wrap) have succeeded. Returns the unused remainder the caller
// must hand back to the depositor.
func (e *Engine) RecordDeposit(saleID uint64, token, depositor string, stakedBalance, amount *big.Int) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	s, err := e.loadSale(saleID)
	if err != nil {
		return nil, err
	}
	if s.DepositToken != token {
		return nil, ErrWrongToken
	}
	gross := cloneBigInt(amount)
	if gross.Sign() <= 0 {
		return nil, fmt.Errorf("sale: deposit must be positive")
	}
	if s.LimitPerTransaction != nil && s.LimitPerTransaction.Sign() > 0 && gross.Cmp(s.LimitPerTransaction) > 0 {
		return nil, ErrLimitPerTransaction
	}
	if s.RequiresStaking() {
		staked := cloneBigInt(stakedBalance)
		if staked.Cmp(s.MinStakeDeposit) < 0 {
			return nil, ErrNotEnoughStaked
		}
	}

	accepted := gross
	if s.HardMaxAmountLimit {
		if s.MaxAmount == nil {
			return nil, ErrMustHaveMaxAmount
		}
		headroom := new(big.Int).Sub(s.MaxAmount, s.CollectedAmount)
		if headroom.Sign() < 0 {
			headroom = big.NewInt(0)
		}
		accepted = minBig(gross, headroom)
	}

	record, existed, err := e.loadAccountRecord(saleAccountPrefix, saleID, depositor)
	if err != nil {
		return nil, err
	}
	if !existed {
		record = NewSaleAccount()
	}
	newTotal := new(big.Int).Add(record.Amount, accepted)
	if newTotal.Cmp(s.MinBuy) < 0 || newTotal.Cmp(s.MaxBuy) > 0 {
		return nil, ErrWrongAmount
	}
	record.Amount = newTotal

	if err := e.creditReferralChain(s, depositor, accepted); err != nil {
		return nil, err
	}

	if err := e.storeAccountRecord(saleAccountPrefix, saleID, depositor, record); err != nil {
		return nil, err
	}
	if !existed {
		if err := e.appendAccountIndex(saleID, depositor); err != nil {
			return nil, err
		}
		s.NumAccounts++
	}
	s.CollectedAmount = new(big.Int).Add(s.CollectedAmount, accepted)
	if err := e.storeSale(s); err != nil {
		return nil, err
	}
	remainder := new(big.Int).Sub(gross, accepted)
	e.emit(NewDepositEvent(saleID, depositor, accepted, remainder))
	return remainder, nil
}

// creditReferralChain walks up to three ancestor referrers of the
// depositor and accrues their affiliate rewards at the configured rates.
// The walk stops as soon as the chain reaches the platform owner: the
// owner collects no commission.
func (e *Engine) creditReferralChain(s *Sale, depositor string, accepted *big.Int) error {
	if e.graph == nil || accepted.Sign() == 0 {
		return nil
	}
	fees, err := e.ReferralFees()
	if err != nil {
		return err
	}
	owner := e.graph.Owner()
	current, err := e.graph.Account(depositor)
	if err != nil {
		if err == referral.ErrAccountNotFound {
			return nil
		}
		return err
	}
	for level := 0; level < Levels; level++ {
		beneficiary := current.Referrer
		if beneficiary == "" || beneficiary == owner {
			return nil
		}
		reward := new(big.Int).Mul(accepted, new(big.Int).SetUint64(fees[level]))
		reward.Quo(reward, big.NewInt(BpsDenominator))
		if reward.Sign() > 0 {
			if err := e.accrueAffiliateReward(s.ID, beneficiary, reward); err != nil {
				return err
			}
			e.emit(NewAffiliateAccruedEvent(s.ID, beneficiary, level, reward))
		}
		current, err = e.graph.Account(beneficiary)
		if err != nil {
			if err == referral.ErrAccountNotFound {
				return nil
			}
			return err
		}
	}
	return nil
}

func (e *Engine) accrueAffiliateReward(saleID uint64, account string, reward *big.Int) error {
	record, ok, err := e.loadAccountRecord(affiliatePrefix, saleID, account)
	if err != nil {
		return err
	}
	if !ok {
		record = NewSaleAccount()
	}
	record.Amount = new(big.Int).Add(record.Amount, reward)
	return e.storeAccountRecord(affiliatePrefix, saleID, account, record)
}

// SaleByID returns a clone of the stored sale.
func (e *Engine) SaleByID(saleID uint64) (*Sale, error) {
	s, err := e.loadSale(saleID)
	if err != nil {
		return nil, err
	}
	return s.Clone(), nil
}

// Sales returns up to limit sales starting at fromIndex. Removed ids are
// skipped.
func (e *Engine) Sales(fromIndex, limit uint64) ([]*Sale, error) {
	num, err := e.NumSales()
	if err != nil {
		return nil, err
	}
	end := fromIndex + limit
	if end > num {
		end = num
	}
	sales := make([]*Sale, 0)
	for id := fromIndex; id < end; id++ {
		s, err := e.loadSale(id)
		if err == ErrSaleNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		sales = append(sales, s.Clone())
	}
	return sales, nil
}

// SaleAccountEntry pairs an account id with its sale record for listing.
type SaleAccountEntry struct {
	Account string
	Record  *SaleAccount
}

// SaleAccounts returns up to limit (account, record) pairs for the sale,
// in deposit order, starting at fromIndex.
func (e *Engine) SaleAccounts(saleID uint64, fromIndex, limit uint64) ([]SaleAccountEntry, error) {
	if _, err := e.loadSale(saleID); err != nil {
		return nil, err
	}
	index, err := e.accountIndex(saleID)
	if err != nil {
		return nil, err
	}
	end := fromIndex + limit
	if end > uint64(len(index)) {
		end = uint64(len(index))
	}
	entries := make([]SaleAccountEntry, 0)
	for i := fromIndex; i < end; i++ {
		account := index[i]
		record, ok, err := e.loadAccountRecord(saleAccountPrefix, saleID, account)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		entries = append(entries, SaleAccountEntry{Account: account, Record: record})
	}
	return entries, nil
}

// SaleAccountOf returns the deposit record for the account, zeroed when
// the account never deposited.
func (e *Engine) SaleAccountOf(saleID uint64, account string) (*SaleAccount, error) {
	if _, err := e.loadSale(saleID); err != nil {
		return nil, err
	}
	record, ok, err := e.loadAccountRecord(saleAccountPrefix, saleID, account)
	if err != nil {
		return nil, err
	}
	if !ok {
		return NewSaleAccount(), nil
	}
	return record, nil
}

// AffiliateAccountOf returns the affiliate reward record for the account,
// zeroed when nothing accrued.
func (e *Engine) AffiliateAccountOf(saleID uint64, account string) (*SaleAccount, error) {
	if _, err := e.loadSale(saleID); err != nil {
		return nil, err
	}
	record, ok, err := e.loadAccountRecord(affiliatePrefix, saleID, account)
	if err != nil {
		return nil, err
	}
	if !ok {
		return NewSaleAccount(), nil
	}
	return record, nil
}
