package sale

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/rlp"
)

func TestDecodeLegacySaleDefaults(t *testing.T) {
	stored := storedSaleLegacy{
		Metadata:            storedMetadata{Name: "Old Sale"},
		MinStakeDeposit:     big.NewInt(0),
		DepositToken:        "usd",
		MinBuy:              big.NewInt(1),
		MaxBuy:              big.NewInt(100),
		MaxAmount:           big.NewInt(0),
		StartDate:           10,
		EndDate:             20,
		Price:               big.NewInt(50),
		LimitPerTransaction: big.NewInt(0),
		CollectedAmount:     big.NewInt(42),
		NumAccounts:         3,
	}
	payload, err := rlp.EncodeToBytes(&stored)
	if err != nil {
		t.Fatalf("encode legacy: %v", err)
	}

	s, err := decodeSale(7, &vSale{Version: saleVersionLegacy, Payload: payload})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if s.ID != 7 {
		t.Fatalf("expected id 7, got %d", s.ID)
	}
	// Legacy sales predate the distribution configuration: claims stay off
	// and allocation defaults to first-come.
	if s.ClaimAvailable {
		t.Fatal("legacy sale must not have claims available")
	}
	if s.Policy != PolicyByAmount {
		t.Fatalf("expected PolicyByAmount, got %v", s.Policy)
	}
	if s.TotalSupply != nil {
		t.Fatalf("expected nil total supply, got %s", s.TotalSupply)
	}
	if s.MaxAmount != nil {
		t.Fatalf("absent max amount must stay nil, got %s", s.MaxAmount)
	}
	if s.CollectedAmount.Cmp(big.NewInt(42)) != 0 {
		t.Fatalf("expected collected 42, got %s", s.CollectedAmount)
	}
}

func TestSaleEnvelopeRoundTrip(t *testing.T) {
	original := &Sale{
		ID:                  3,
		Metadata:            Metadata{Name: "Round Trip", Symbol: "RT"},
		MinStakeDeposit:     big.NewInt(5),
		DepositToken:        "usd",
		ClaimAvailable:      true,
		DistributeToken:     "tkn",
		DecimalsSet:         true,
		MinBuy:              big.NewInt(1),
		MaxBuy:              big.NewInt(100),
		MaxAmount:           big.NewInt(500),
		HardMaxAmountLimit:  true,
		StartDate:           10,
		EndDate:             20,
		Price:               big.NewInt(50),
		LimitPerTransaction: big.NewInt(25),
		Policy:              PolicyBySubscription,
		TotalSupply:         big.NewInt(1_000),
		CollectedAmount:     big.NewInt(123),
		NumAccounts:         4,
	}
	original.DistributeTokenDecimals = 6

	envelope, err := encodeSale(original)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if envelope.Version != saleVersionCurrent {
		t.Fatalf("expected current version, got %d", envelope.Version)
	}
	decoded, err := decodeSale(original.ID, envelope)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Policy != PolicyBySubscription || decoded.TotalSupply.Cmp(original.TotalSupply) != 0 {
		t.Fatalf("policy fields lost: %+v", decoded)
	}
	if decoded.MaxAmount == nil || decoded.MaxAmount.Cmp(original.MaxAmount) != 0 {
		t.Fatalf("max amount lost: %+v", decoded.MaxAmount)
	}
	if decoded.DistributeTokenDecimals != 6 || !decoded.DecimalsSet {
		t.Fatalf("decimals lost: %+v", decoded)
	}
}

func TestDecodeLegacySaleAccountDefaults(t *testing.T) {
	payload, err := rlp.EncodeToBytes(&storedSaleAccountLegacy{
		Amount:  big.NewInt(100),
		Claimed: big.NewInt(10),
	})
	if err != nil {
		t.Fatalf("encode legacy: %v", err)
	}
	record, err := decodeSaleAccount(&vSaleAccount{Version: saleAccountVersionLegacy, Payload: payload})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if record.Amount.Cmp(big.NewInt(100)) != 0 || record.Claimed.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("carried fields lost: %+v", record)
	}
	// The refund leg postdates the legacy layout; both fields default zero.
	if record.Refund.Sign() != 0 || record.Refunded.Sign() != 0 {
		t.Fatalf("expected zero refund fields, got %+v", record)
	}
}

func TestDecodeUnknownVersionRejected(t *testing.T) {
	if _, err := decodeSale(1, &vSale{Version: 99}); err == nil {
		t.Fatal("expected error for unknown sale version")
	}
	if _, err := decodeSaleAccount(&vSaleAccount{Version: 99}); err == nil {
		t.Fatal("expected error for unknown account version")
	}
}
