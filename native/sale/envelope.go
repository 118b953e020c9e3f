package sale

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"
)

// Versioned storage envelopes. Every persisted aggregate is wrapped in a
// tagged variant so records written under an older layout stay readable
// and are upgraded lazily, on first read, with absent fields mapped to
// policy-defined defaults. The on-disk format is never rewritten in
// place outside the explicit migration batch job.
const (
	saleVersionLegacy  uint8 = 1
	saleVersionCurrent uint8 = 2

	saleAccountVersionLegacy  uint8 = 1
	saleAccountVersionCurrent uint8 = 2
)

type vSale struct {
	Version uint8
	Payload []byte
}

type vSaleAccount struct {
	Version uint8
	Payload []byte
}

type storedMetadata struct {
	Name             string
	Symbol           string
	Description      string
	SmartContractURL string
	LogoURL          string
	OutputTicker     string
}

// storedSaleLegacy is the first on-disk sale layout: no distribution
// configuration, no allocation policy, no affiliate accounting.
type storedSaleLegacy struct {
	Metadata            storedMetadata
	StakingContracts    []string
	MinStakeDeposit     *big.Int
	DepositToken        string
	MinBuy              *big.Int
	MaxBuy              *big.Int
	HasMaxAmount        bool
	MaxAmount           *big.Int
	HardMaxAmountLimit  bool
	StartDate           uint64
	EndDate             uint64
	Price               *big.Int
	LimitPerTransaction *big.Int
	CollectedAmount     *big.Int
	NumAccounts         uint64
}

type storedSale struct {
	Metadata                storedMetadata
	StakingContracts        []string
	MinStakeDeposit         *big.Int
	DepositToken            string
	ClaimAvailable          bool
	DistributeToken         string
	DistributeTokenDecimals uint8
	DecimalsSet             bool
	MinBuy                  *big.Int
	MaxBuy                  *big.Int
	HasMaxAmount            bool
	MaxAmount               *big.Int
	HardMaxAmountLimit      bool
	StartDate               uint64
	EndDate                 uint64
	Price                   *big.Int
	LimitPerTransaction     *big.Int
	Policy                  uint8
	HasTotalSupply          bool
	TotalSupply             *big.Int
	CollectedAmount         *big.Int
	NumAccounts             uint64
}

type storedSaleAccountLegacy struct {
	Amount  *big.Int
	Claimed *big.Int
}

type storedSaleAccount struct {
	Amount   *big.Int
	Claimed  *big.Int
	Refund   *big.Int
	Refunded *big.Int
}

func encodeSale(s *Sale) (*vSale, error) {
	stored := storedSale{
		Metadata:                storedMetadata(s.Metadata),
		StakingContracts:        append([]string(nil), s.StakingContracts...),
		MinStakeDeposit:         cloneBigInt(s.MinStakeDeposit),
		DepositToken:            s.DepositToken,
		ClaimAvailable:          s.ClaimAvailable,
		DistributeToken:         s.DistributeToken,
		DistributeTokenDecimals: s.DistributeTokenDecimals,
		DecimalsSet:             s.DecimalsSet,
		MinBuy:                  cloneBigInt(s.MinBuy),
		MaxBuy:                  cloneBigInt(s.MaxBuy),
		HardMaxAmountLimit:      s.HardMaxAmountLimit,
		StartDate:               s.StartDate,
		EndDate:                 s.EndDate,
		Price:                   cloneBigInt(s.Price),
		LimitPerTransaction:     cloneBigInt(s.LimitPerTransaction),
		Policy:                  uint8(s.Policy),
		CollectedAmount:         cloneBigInt(s.CollectedAmount),
		NumAccounts:             s.NumAccounts,
	}
	if s.MaxAmount != nil {
		stored.HasMaxAmount = true
		stored.MaxAmount = new(big.Int).Set(s.MaxAmount)
	} else {
		stored.MaxAmount = big.NewInt(0)
	}
	if s.TotalSupply != nil {
		stored.HasTotalSupply = true
		stored.TotalSupply = new(big.Int).Set(s.TotalSupply)
	} else {
		stored.TotalSupply = big.NewInt(0)
	}
	payload, err := rlp.EncodeToBytes(&stored)
	if err != nil {
		return nil, fmt.Errorf("sale: encode sale %d: %w", s.ID, err)
	}
	return &vSale{Version: saleVersionCurrent, Payload: payload}, nil
}

func decodeSale(id uint64, envelope *vSale) (*Sale, error) {
	switch envelope.Version {
	case saleVersionLegacy:
		var stored storedSaleLegacy
		if err := rlp.DecodeBytes(envelope.Payload, &stored); err != nil {
			return nil, fmt.Errorf("sale: decode legacy sale %d: %w", id, err)
		}
		// Legacy sales predate distribution configuration and the
		// subscription policy: claims stay unavailable until the owner
		// configures the distribution token, and the policy defaults to
		// first-come allocation.
		s := &Sale{
			ID:                  id,
			Metadata:            Metadata(stored.Metadata),
			StakingContracts:    stored.StakingContracts,
			MinStakeDeposit:     cloneBigInt(stored.MinStakeDeposit),
			DepositToken:        stored.DepositToken,
			MinBuy:              cloneBigInt(stored.MinBuy),
			MaxBuy:              cloneBigInt(stored.MaxBuy),
			HardMaxAmountLimit:  stored.HardMaxAmountLimit,
			StartDate:           stored.StartDate,
			EndDate:             stored.EndDate,
			Price:               cloneBigInt(stored.Price),
			LimitPerTransaction: cloneBigInt(stored.LimitPerTransaction),
			Policy:              PolicyByAmount,
			CollectedAmount:     cloneBigInt(stored.CollectedAmount),
			NumAccounts:         stored.NumAccounts,
		}
		if stored.HasMaxAmount {
			s.MaxAmount = cloneBigInt(stored.MaxAmount)
		}
		return s, nil
	case saleVersionCurrent:
		var stored storedSale
		if err := rlp.DecodeBytes(envelope.Payload, &stored); err != nil {
			return nil, fmt.Errorf("sale: decode sale %d: %w", id, err)
		}
		s := &Sale{
			ID:                      id,
			Metadata:                Metadata(stored.Metadata),
			StakingContracts:        stored.StakingContracts,
			MinStakeDeposit:         cloneBigInt(stored.MinStakeDeposit),
			DepositToken:            stored.DepositToken,
			ClaimAvailable:          stored.ClaimAvailable,
			DistributeToken:         stored.DistributeToken,
			DistributeTokenDecimals: stored.DistributeTokenDecimals,
			DecimalsSet:             stored.DecimalsSet,
			MinBuy:                  cloneBigInt(stored.MinBuy),
			MaxBuy:                  cloneBigInt(stored.MaxBuy),
			HardMaxAmountLimit:      stored.HardMaxAmountLimit,
			StartDate:               stored.StartDate,
			EndDate:                 stored.EndDate,
			Price:                   cloneBigInt(stored.Price),
			LimitPerTransaction:     cloneBigInt(stored.LimitPerTransaction),
			Policy:                  Policy(stored.Policy),
			CollectedAmount:         cloneBigInt(stored.CollectedAmount),
			NumAccounts:             stored.NumAccounts,
		}
		if stored.HasMaxAmount {
			s.MaxAmount = cloneBigInt(stored.MaxAmount)
		}
		if stored.HasTotalSupply {
			s.TotalSupply = cloneBigInt(stored.TotalSupply)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("sale: unknown sale version %d", envelope.Version)
	}
}

func encodeSaleAccount(a *SaleAccount) (*vSaleAccount, error) {
	stored := storedSaleAccount{
		Amount:   cloneBigInt(a.Amount),
		Claimed:  cloneBigInt(a.Claimed),
		Refund:   cloneBigInt(a.Refund),
		Refunded: cloneBigInt(a.Refunded),
	}
	payload, err := rlp.EncodeToBytes(&stored)
	if err != nil {
		return nil, fmt.Errorf("sale: encode sale account: %w", err)
	}
	return &vSaleAccount{Version: saleAccountVersionCurrent, Payload: payload}, nil
}

func decodeSaleAccount(envelope *vSaleAccount) (*SaleAccount, error) {
	switch envelope.Version {
	case saleAccountVersionLegacy:
		var stored storedSaleAccountLegacy
		if err := rlp.DecodeBytes(envelope.Payload, &stored); err != nil {
			return nil, fmt.Errorf("sale: decode legacy sale account: %w", err)
		}
		// Legacy records predate the refund leg: both refund fields
		// default to zero.
		return (&SaleAccount{
			Amount:  cloneBigInt(stored.Amount),
			Claimed: cloneBigInt(stored.Claimed),
		}).normalize(), nil
	case saleAccountVersionCurrent:
		var stored storedSaleAccount
		if err := rlp.DecodeBytes(envelope.Payload, &stored); err != nil {
			return nil, fmt.Errorf("sale: decode sale account: %w", err)
		}
		return (&SaleAccount{
			Amount:   cloneBigInt(stored.Amount),
			Claimed:  cloneBigInt(stored.Claimed),
			Refund:   cloneBigInt(stored.Refund),
			Refunded: cloneBigInt(stored.Refunded),
		}).normalize(), nil
	default:
		return nil, fmt.Errorf("sale: unknown sale account version %d", envelope.Version)
	}
}
