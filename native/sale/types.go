package sale

import (
	"fmt"
	"math/big"
	"strings"
)

// Policy selects how the collected deposits convert into distribution
// tokens at claim time.
type Policy uint8

const (
	// PolicyByAmount allocates first-come: every accepted deposit buys at
	// the configured price until the hard capacity is reached.
	PolicyByAmount Policy = iota
	// PolicyBySubscription collects freely and allocates the configured
	// total supply pro-rata across all depositors at claim time.
	PolicyBySubscription
)

// Valid reports whether the policy value is within the supported range.
func (p Policy) Valid() bool {
	switch p {
	case PolicyByAmount, PolicyBySubscription:
		return true
	default:
		return false
	}
}

func (p Policy) String() string {
	switch p {
	case PolicyByAmount:
		return "by_amount"
	case PolicyBySubscription:
		return "by_subscription"
	default:
		return fmt.Sprintf("policy(%d)", uint8(p))
	}
}

// Metadata describes the project behind a sale. Display-only.
type Metadata struct {
	Name             string
	Symbol           string
	Description      string
	SmartContractURL string
	LogoURL          string
	OutputTicker     string
}

// Sale holds the immutable configuration and mutable accounting state of
// one fundraising event.
type Sale struct {
	ID       uint64
	Metadata Metadata

	// StakingContracts lists the oracles a depositor may prove stake
	// against. Empty when staking is not required.
	StakingContracts []string
	MinStakeDeposit  *big.Int

	DepositToken string

	ClaimAvailable          bool
	DistributeToken         string
	DistributeTokenDecimals uint8
	DecimalsSet             bool

	MinBuy *big.Int
	MaxBuy *big.Int
	// MaxAmount caps total collection; nil when uncapped. With
	// HardMaxAmountLimit set, admission clamps against it.
	MaxAmount          *big.Int
	HardMaxAmountLimit bool

	StartDate uint64
	EndDate   uint64

	Price               *big.Int
	LimitPerTransaction *big.Int

	Policy Policy
	// TotalSupply is the distributable token amount for subscription
	// sales; nil otherwise.
	TotalSupply *big.Int

	CollectedAmount *big.Int
	NumAccounts     uint64
}

// Clone returns a deep copy of the sale.
func (s *Sale) Clone() *Sale {
	if s == nil {
		return nil
	}
	clone := *s
	clone.StakingContracts = append([]string(nil), s.StakingContracts...)
	clone.MinStakeDeposit = cloneBigInt(s.MinStakeDeposit)
	clone.MinBuy = cloneBigInt(s.MinBuy)
	clone.MaxBuy = cloneBigInt(s.MaxBuy)
	if s.MaxAmount != nil {
		clone.MaxAmount = new(big.Int).Set(s.MaxAmount)
	}
	clone.Price = cloneBigInt(s.Price)
	clone.LimitPerTransaction = cloneBigInt(s.LimitPerTransaction)
	if s.TotalSupply != nil {
		clone.TotalSupply = new(big.Int).Set(s.TotalSupply)
	}
	clone.CollectedAmount = cloneBigInt(s.CollectedAmount)
	return &clone
}

// RequiresStaking reports whether deposits must prove a staked balance.
func (s *Sale) RequiresStaking() bool {
	return s != nil && len(s.StakingContracts) > 0
}

// AllowsStakingContract reports whether the named oracle is whitelisted
// for this sale.
func (s *Sale) AllowsStakingContract(contract string) bool {
	if s == nil {
		return false
	}
	for _, candidate := range s.StakingContracts {
		if candidate == contract {
			return true
		}
	}
	return false
}

// SaleAccount tracks one participant's accepted deposit and settlement
// progress within a sale. Claimed and Refunded are each set at most once;
// a refund requires a prior non-zero claim. The same record shape backs
// affiliate rewards, where Amount accrues incrementally and Claimed grows
// with each payout.
type SaleAccount struct {
	Amount   *big.Int
	Claimed  *big.Int
	Refund   *big.Int
	Refunded *big.Int
}

// NewSaleAccount returns a zeroed record.
func NewSaleAccount() *SaleAccount {
	return &SaleAccount{
		Amount:   big.NewInt(0),
		Claimed:  big.NewInt(0),
		Refund:   big.NewInt(0),
		Refunded: big.NewInt(0),
	}
}

// Clone returns a deep copy of the record.
func (a *SaleAccount) Clone() *SaleAccount {
	if a == nil {
		return nil
	}
	return &SaleAccount{
		Amount:   cloneBigInt(a.Amount),
		Claimed:  cloneBigInt(a.Claimed),
		Refund:   cloneBigInt(a.Refund),
		Refunded: cloneBigInt(a.Refunded),
	}
}

func (a *SaleAccount) normalize() *SaleAccount {
	if a.Amount == nil {
		a.Amount = big.NewInt(0)
	}
	if a.Claimed == nil {
		a.Claimed = big.NewInt(0)
	}
	if a.Refund == nil {
		a.Refund = big.NewInt(0)
	}
	if a.Refunded == nil {
		a.Refunded = big.NewInt(0)
	}
	return a
}

// SaleInput carries the owner-supplied configuration for a new sale.
type SaleInput struct {
	Metadata                Metadata
	StakingContracts        []string
	MinStakeDeposit         *big.Int
	DepositToken            string
	ClaimAvailable          bool
	DistributeToken         string
	DistributeTokenDecimals *uint8
	MinBuy                  *big.Int
	MaxBuy                  *big.Int
	MaxAmount               *big.Int
	HardMaxAmountLimit      bool
	StartDate               uint64
	EndDate                 uint64
	Price                   *big.Int
	LimitPerTransaction     *big.Int
	Policy                  Policy
	TotalSupply             *big.Int
}

// Validate checks the structural invariants of the input.
func (in *SaleInput) Validate() error {
	if in == nil {
		return fmt.Errorf("sale: nil input")
	}
	if strings.TrimSpace(in.DepositToken) == "" {
		return fmt.Errorf("sale: deposit token required")
	}
	if in.HardMaxAmountLimit && in.MaxAmount == nil {
		return ErrMustHaveMaxAmount
	}
	if in.DistributeTokenDecimals != nil && *in.DistributeTokenDecimals > MaxTokenDecimals {
		return ErrDecimalsOutOfRange
	}
	if !in.Policy.Valid() {
		return fmt.Errorf("sale: invalid policy %d", uint8(in.Policy))
	}
	if in.Policy == PolicyBySubscription && (in.TotalSupply == nil || in.TotalSupply.Sign() <= 0) {
		return ErrNoSupply
	}
	if in.MaxAmount != nil && in.MaxAmount.Sign() < 0 {
		return fmt.Errorf("sale: max amount must be non-negative")
	}
	if in.MaxBuy == nil || in.MaxBuy.Sign() <= 0 {
		return fmt.Errorf("sale: max buy must be positive")
	}
	if in.MinBuy != nil && in.MinBuy.Cmp(in.MaxBuy) > 0 {
		return fmt.Errorf("sale: min buy exceeds max buy")
	}
	return nil
}

func (in *SaleInput) toSale(id uint64) *Sale {
	s := &Sale{
		ID:                  id,
		Metadata:            in.Metadata,
		StakingContracts:    append([]string(nil), in.StakingContracts...),
		MinStakeDeposit:     cloneBigInt(in.MinStakeDeposit),
		DepositToken:        strings.TrimSpace(in.DepositToken),
		ClaimAvailable:      in.ClaimAvailable,
		DistributeToken:     strings.TrimSpace(in.DistributeToken),
		MinBuy:              cloneBigInt(in.MinBuy),
		MaxBuy:              cloneBigInt(in.MaxBuy),
		HardMaxAmountLimit:  in.HardMaxAmountLimit,
		StartDate:           in.StartDate,
		EndDate:             in.EndDate,
		Price:               cloneBigInt(in.Price),
		LimitPerTransaction: cloneBigInt(in.LimitPerTransaction),
		Policy:              in.Policy,
		CollectedAmount:     big.NewInt(0),
	}
	if in.MaxAmount != nil {
		s.MaxAmount = new(big.Int).Set(in.MaxAmount)
	}
	if in.DistributeTokenDecimals != nil {
		s.DistributeTokenDecimals = *in.DistributeTokenDecimals
		s.DecimalsSet = true
	}
	if in.TotalSupply != nil {
		s.TotalSupply = new(big.Int).Set(in.TotalSupply)
	}
	return s
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
