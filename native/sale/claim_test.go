package sale

import (
	"math/big"
	"testing"
)

func claimableInput() SaleInput {
	decimals := uint8(2)
	input := baseInput()
	input.ClaimAvailable = true
	input.DistributeToken = "tkn"
	input.DistributeTokenDecimals = &decimals
	return input
}

func TestClaimPurchaseByAmount(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	id := mustCreateSale(t, engine, claimableInput())

	if _, err := engine.RecordDeposit(id, "usd", "alice", nil, big.NewInt(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	result, err := engine.ClaimPurchase(id, "alice")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if result.Token != "tkn" {
		t.Fatalf("expected distribution token, got %q", result.Token)
	}
	// 100 * 10^2 / 1000 = 10 tokens; the whole deposit converts, no refund.
	if result.Amount.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("expected claim 10, got %s", result.Amount)
	}
	record, err := engine.SaleAccountOf(id, "alice")
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	if record.Refund.Sign() != 0 {
		t.Fatalf("expected zero refund, got %s", record.Refund)
	}

	if _, err := engine.ClaimPurchase(id, "alice"); err != ErrAlreadyClaimed {
		t.Fatalf("expected ErrAlreadyClaimed, got %v", err)
	}
}

func TestClaimPurchaseGates(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	id := mustCreateSale(t, engine, baseInput())

	if _, err := engine.RecordDeposit(id, "usd", "alice", nil, big.NewInt(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := engine.ClaimPurchase(id, "alice"); err != ErrClaimNotAvailable {
		t.Fatalf("expected ErrClaimNotAvailable, got %v", err)
	}
	if _, err := engine.ClaimPurchase(999, "alice"); err != ErrSaleNotFound {
		t.Fatalf("expected ErrSaleNotFound, got %v", err)
	}

	claimable := mustCreateSale(t, engine, claimableInput())
	if _, err := engine.ClaimPurchase(claimable, "nobody"); err != ErrNoDeposit {
		t.Fatalf("expected ErrNoDeposit, got %v", err)
	}
}

func TestClaimPurchaseSubscriptionOversubscribed(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	input := claimableInput()
	input.Policy = PolicyBySubscription
	input.TotalSupply = big.NewInt(5)
	id := mustCreateSale(t, engine, input)

	// Two depositors of 100 each: total full claim is 20 tokens against a
	// supply of 5, so each full claim of 10 rescales to 10*5/20 = 2.5 -> 2.
	for _, account := range []string{"alice", "bob"} {
		if _, err := engine.RecordDeposit(id, "usd", account, nil, big.NewInt(100)); err != nil {
			t.Fatalf("deposit %s: %v", account, err)
		}
	}

	result, err := engine.ClaimPurchase(id, "alice")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if result.Amount.Cmp(big.NewInt(2)) != 0 {
		t.Fatalf("expected rescaled claim 2, got %s", result.Amount)
	}

	// Refund covers the unfilled deposit: 100 - cost(2) = 100 - 20 = 80.
	record, err := engine.SaleAccountOf(id, "alice")
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	if record.Refund.Cmp(big.NewInt(80)) != 0 {
		t.Fatalf("expected refund 80, got %s", record.Refund)
	}
}

func TestClaimPurchaseSubscriptionUndersubscribed(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	input := claimableInput()
	input.Policy = PolicyBySubscription
	input.TotalSupply = big.NewInt(1_000)
	id := mustCreateSale(t, engine, input)

	if _, err := engine.RecordDeposit(id, "usd", "alice", nil, big.NewInt(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	result, err := engine.ClaimPurchase(id, "alice")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if result.Amount.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("expected full claim 10, got %s", result.Amount)
	}
}

func TestRevertPurchaseClaimRestoresState(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	input := claimableInput()
	input.Policy = PolicyBySubscription
	input.TotalSupply = big.NewInt(5)
	id := mustCreateSale(t, engine, input)

	for _, account := range []string{"alice", "bob"} {
		if _, err := engine.RecordDeposit(id, "usd", account, nil, big.NewInt(100)); err != nil {
			t.Fatalf("deposit %s: %v", account, err)
		}
	}
	before, err := engine.SaleAccountOf(id, "alice")
	if err != nil {
		t.Fatalf("account: %v", err)
	}

	if _, err := engine.ClaimPurchase(id, "alice"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := engine.RevertPurchaseClaim(id, "alice"); err != nil {
		t.Fatalf("revert: %v", err)
	}

	after, err := engine.SaleAccountOf(id, "alice")
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	if after.Amount.Cmp(before.Amount) != 0 || after.Claimed.Sign() != 0 || after.Refund.Sign() != 0 {
		t.Fatalf("state not restored: %+v", after)
	}

	// The retry yields the identical result.
	result, err := engine.ClaimPurchase(id, "alice")
	if err != nil {
		t.Fatalf("retry claim: %v", err)
	}
	if result.Amount.Cmp(big.NewInt(2)) != 0 {
		t.Fatalf("expected retry claim 2, got %s", result.Amount)
	}
}

func TestClaimRefundLifecycle(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	input := claimableInput()
	input.Policy = PolicyBySubscription
	input.TotalSupply = big.NewInt(5)
	id := mustCreateSale(t, engine, input)

	for _, account := range []string{"alice", "bob"} {
		if _, err := engine.RecordDeposit(id, "usd", account, nil, big.NewInt(100)); err != nil {
			t.Fatalf("deposit %s: %v", account, err)
		}
	}

	// Refund requires a prior claim.
	if _, err := engine.ClaimRefund(id, "alice"); err != ErrRefundBeforeClaim {
		t.Fatalf("expected ErrRefundBeforeClaim, got %v", err)
	}
	if _, err := engine.ClaimPurchase(id, "alice"); err != nil {
		t.Fatalf("claim: %v", err)
	}

	result, err := engine.ClaimRefund(id, "alice")
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if result.Token != "usd" {
		t.Fatalf("refund pays the deposit token, got %q", result.Token)
	}
	if result.Amount.Cmp(big.NewInt(80)) != 0 {
		t.Fatalf("expected refund 80, got %s", result.Amount)
	}
	if _, err := engine.ClaimRefund(id, "alice"); err != ErrAlreadyRefunded {
		t.Fatalf("expected ErrAlreadyRefunded, got %v", err)
	}

	// A paid refund locks the claim against rollback.
	if err := engine.RevertPurchaseClaim(id, "alice"); err != ErrAlreadyRefunded {
		t.Fatalf("expected ErrAlreadyRefunded on revert, got %v", err)
	}

	// The refund itself can be compensated and retried.
	if err := engine.RevertRefund(id, "alice"); err != nil {
		t.Fatalf("revert refund: %v", err)
	}
	if _, err := engine.ClaimRefund(id, "alice"); err != nil {
		t.Fatalf("retry refund: %v", err)
	}
}

func TestClaimAffiliateRewardDelta(t *testing.T) {
	engine, _, graph := newTestEngine(t)
	id := mustCreateSale(t, engine, baseInput())

	graph.referrers["ref"] = "owner"
	graph.referrers["buyer"] = "ref"

	if _, err := engine.RecordDeposit(id, "usd", "buyer", nil, big.NewInt(10_000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	result, err := engine.ClaimAffiliateReward(id, "ref")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if result.Token != "usd" {
		t.Fatalf("affiliate rewards pay the deposit token, got %q", result.Token)
	}
	if result.Amount.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("expected 500, got %s", result.Amount)
	}

	// Nothing outstanding until new rewards accrue.
	if _, err := engine.ClaimAffiliateReward(id, "ref"); err != ErrNothingToClaim {
		t.Fatalf("expected ErrNothingToClaim, got %v", err)
	}

	if _, err := engine.RecordDeposit(id, "usd", "buyer", nil, big.NewInt(10_000)); err != nil {
		t.Fatalf("second deposit: %v", err)
	}
	result, err = engine.ClaimAffiliateReward(id, "ref")
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if result.Amount.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("expected delta 500, got %s", result.Amount)
	}
}

func TestRevertAffiliateClaim(t *testing.T) {
	engine, _, graph := newTestEngine(t)
	id := mustCreateSale(t, engine, baseInput())

	graph.referrers["ref"] = "owner"
	graph.referrers["buyer"] = "ref"
	if _, err := engine.RecordDeposit(id, "usd", "buyer", nil, big.NewInt(10_000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	result, err := engine.ClaimAffiliateReward(id, "ref")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := engine.RevertAffiliateClaim(id, "ref", result.Amount); err != nil {
		t.Fatalf("revert: %v", err)
	}

	retry, err := engine.ClaimAffiliateReward(id, "ref")
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if retry.Amount.Cmp(result.Amount) != 0 {
		t.Fatalf("expected retry %s, got %s", result.Amount, retry.Amount)
	}
}

func TestPreviewClaimDoesNotMutate(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	id := mustCreateSale(t, engine, claimableInput())

	if _, err := engine.RecordDeposit(id, "usd", "alice", nil, big.NewInt(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	preview, err := engine.PreviewClaim(id, "alice")
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if preview.Tokens.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("expected preview 10, got %s", preview.Tokens)
	}
	record, err := engine.SaleAccountOf(id, "alice")
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	if record.Claimed.Sign() != 0 {
		t.Fatalf("preview must not mark the claim, got %s", record.Claimed)
	}
}
