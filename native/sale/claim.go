package sale

import (
	"math/big"
)

// ClaimResult reports what a claim entitles the account to: the token
// amount to transfer and the token it is denominated in.
type ClaimResult struct {
	Token  string
	Amount *big.Int
}

// ClaimPreview projects the settlement outcome for an account without
// mutating any record.
type ClaimPreview struct {
	Tokens *big.Int
	Refund *big.Int
	Token  string
}

func (e *Engine) claimableSale(saleID uint64) (*Sale, error) {
	s, err := e.loadSale(saleID)
	if err != nil {
		return nil, err
	}
	if !s.ClaimAvailable {
		return nil, ErrClaimNotAvailable
	}
	if s.DistributeToken == "" {
		return nil, ErrNoTokenID
	}
	if !s.DecimalsSet {
		return nil, ErrNoTokenDecimals
	}
	return s, nil
}

// purchaseAllocation computes the distribution-token claim and the
// deposit-token refund for the record under the sale's policy. For
// first-come sales the whole accepted amount buys at the fixed price.
// Subscription sales rescale the full entitlement by
// TotalSupply/totalFull when deposits oversubscribed the supply; the
// unfilled part of the deposit comes back as the refund.
func (e *Engine) purchaseAllocation(s *Sale, record *SaleAccount) (*big.Int, *big.Int, error) {
	full, err := TokensForDeposit(record.Amount, s.Price, s.DistributeTokenDecimals)
	if err != nil {
		return nil, nil, err
	}
	claim := full
	if s.Policy == PolicyBySubscription {
		if s.TotalSupply == nil || s.TotalSupply.Sign() == 0 {
			return nil, nil, ErrNoSupply
		}
		totalFull, err := TokensForDeposit(s.CollectedAmount, s.Price, s.DistributeTokenDecimals)
		if err != nil {
			return nil, nil, err
		}
		if totalFull.Cmp(s.TotalSupply) > 0 {
			claim, err = ScaleProRata(full, s.TotalSupply, totalFull)
			if err != nil {
				return nil, nil, err
			}
		}
	}
	cost, err := CostOfTokens(claim, s.Price, s.DistributeTokenDecimals)
	if err != nil {
		return nil, nil, err
	}
	refund := new(big.Int).Sub(record.Amount, cost)
	if refund.Sign() < 0 {
		refund = big.NewInt(0)
	}
	return claim, refund, nil
}

// ClaimPurchase marks the account's purchase as claimed and returns the
// distribution-token amount the caller must transfer. The refund leg is
// fixed at the same moment. Claiming is single-shot: the pipeline pairs
// this with RevertPurchaseClaim when the transfer fails.
func (e *Engine) ClaimPurchase(saleID uint64, account string) (*ClaimResult, error) {
	s, err := e.claimableSale(saleID)
	if err != nil {
		return nil, err
	}
	record, ok, err := e.loadAccountRecord(saleAccountPrefix, saleID, account)
	if err != nil {
		return nil, err
	}
	if !ok || record.Amount.Sign() == 0 {
		return nil, ErrNoDeposit
	}
	if record.Claimed.Sign() != 0 {
		return nil, ErrAlreadyClaimed
	}
	claim, refund, err := e.purchaseAllocation(s, record)
	if err != nil {
		return nil, err
	}
	if claim.Sign() == 0 {
		return nil, ErrNothingToClaim
	}
	record.Claimed = claim
	record.Refund = refund
	if err := e.storeAccountRecord(saleAccountPrefix, saleID, account, record); err != nil {
		return nil, err
	}
	e.emit(NewPurchaseClaimedEvent(saleID, account, claim, refund))
	return &ClaimResult{Token: s.DistributeToken, Amount: new(big.Int).Set(claim)}, nil
}

// RevertPurchaseClaim compensates a failed claim transfer: the claimed
// marking and the derived refund are cleared so the account can retry.
// Rejected once the refund leg has been paid out.
func (e *Engine) RevertPurchaseClaim(saleID uint64, account string) error {
	record, ok, err := e.loadAccountRecord(saleAccountPrefix, saleID, account)
	if err != nil {
		return err
	}
	if !ok || record.Claimed.Sign() == 0 {
		return ErrNothingToClaim
	}
	if record.Refunded.Sign() != 0 {
		return ErrAlreadyRefunded
	}
	reverted := record.Claimed
	record.Claimed = big.NewInt(0)
	record.Refund = big.NewInt(0)
	if err := e.storeAccountRecord(saleAccountPrefix, saleID, account, record); err != nil {
		return err
	}
	e.emit(NewClaimRevertedEvent(saleID, account, reverted))
	return nil
}

// ClaimRefund marks the account's refund as paid and returns the
// deposit-token amount to transfer. Requires a prior non-zero claim and
// pays at most once.
func (e *Engine) ClaimRefund(saleID uint64, account string) (*ClaimResult, error) {
	s, err := e.loadSale(saleID)
	if err != nil {
		return nil, err
	}
	record, ok, err := e.loadAccountRecord(saleAccountPrefix, saleID, account)
	if err != nil {
		return nil, err
	}
	if !ok || record.Amount.Sign() == 0 {
		return nil, ErrNoDeposit
	}
	if record.Claimed.Sign() == 0 {
		return nil, ErrRefundBeforeClaim
	}
	if record.Refunded.Sign() != 0 {
		return nil, ErrAlreadyRefunded
	}
	if record.Refund.Sign() == 0 {
		return nil, ErrNothingToRefund
	}
	record.Refunded = new(big.Int).Set(record.Refund)
	if err := e.storeAccountRecord(saleAccountPrefix, saleID, account, record); err != nil {
		return nil, err
	}
	e.emit(NewRefundClaimedEvent(saleID, account, record.Refunded))
	return &ClaimResult{Token: s.DepositToken, Amount: new(big.Int).Set(record.Refunded)}, nil
}

// RevertRefund compensates a failed refund transfer.
func (e *Engine) RevertRefund(saleID uint64, account string) error {
	record, ok, err := e.loadAccountRecord(saleAccountPrefix, saleID, account)
	if err != nil {
		return err
	}
	if !ok || record.Refunded.Sign() == 0 {
		return ErrNothingToRefund
	}
	reverted := record.Refunded
	record.Refunded = big.NewInt(0)
	if err := e.storeAccountRecord(saleAccountPrefix, saleID, account, record); err != nil {
		return err
	}
	e.emit(NewRefundRevertedEvent(saleID, account, reverted))
	return nil
}

// affiliateEntitlement is the total reward the account may ever collect
// from the sale. First-come sales pay the accrued amount as is. For
// oversubscribed subscription sales only part of each deposit was
// effective, so the accrual is rescaled by the same supply ratio as the
// purchases it was earned on.
func (e *Engine) affiliateEntitlement(s *Sale, record *SaleAccount) (*big.Int, error) {
	if s.Policy != PolicyBySubscription {
		return new(big.Int).Set(record.Amount), nil
	}
	if !s.ClaimAvailable {
		return nil, ErrClaimNotAvailable
	}
	if s.TotalSupply == nil || s.TotalSupply.Sign() == 0 {
		return nil, ErrNoSupply
	}
	if !s.DecimalsSet {
		return nil, ErrNoTokenDecimals
	}
	totalFull, err := TokensForDeposit(s.CollectedAmount, s.Price, s.DistributeTokenDecimals)
	if err != nil {
		return nil, err
	}
	if totalFull.Cmp(s.TotalSupply) <= 0 {
		return new(big.Int).Set(record.Amount), nil
	}
	return ScaleProRata(record.Amount, s.TotalSupply, totalFull)
}

// ClaimAffiliateReward pays out the account's outstanding affiliate
// rewards in the deposit token. Rewards keep accruing while the sale
// runs, so payout is incremental: each call transfers the entitlement
// earned since the last one.
func (e *Engine) ClaimAffiliateReward(saleID uint64, account string) (*ClaimResult, error) {
	s, err := e.loadSale(saleID)
	if err != nil {
		return nil, err
	}
	record, ok, err := e.loadAccountRecord(affiliatePrefix, saleID, account)
	if err != nil {
		return nil, err
	}
	if !ok || record.Amount.Sign() == 0 {
		return nil, ErrNoAffiliateReward
	}
	entitled, err := e.affiliateEntitlement(s, record)
	if err != nil {
		return nil, err
	}
	payable := new(big.Int).Sub(entitled, record.Claimed)
	if payable.Sign() <= 0 {
		return nil, ErrNothingToClaim
	}
	record.Claimed = new(big.Int).Add(record.Claimed, payable)
	if err := e.storeAccountRecord(affiliatePrefix, saleID, account, record); err != nil {
		return nil, err
	}
	e.emit(NewAffiliateClaimedEvent(saleID, account, payable))
	return &ClaimResult{Token: s.DepositToken, Amount: payable}, nil
}

// RevertAffiliateClaim compensates a failed affiliate payout by putting
// the amount back into the outstanding balance.
func (e *Engine) RevertAffiliateClaim(saleID uint64, account string, amount *big.Int) error {
	record, ok, err := e.loadAccountRecord(affiliatePrefix, saleID, account)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoAffiliateReward
	}
	restored := new(big.Int).Sub(record.Claimed, cloneBigInt(amount))
	if restored.Sign() < 0 {
		restored = big.NewInt(0)
	}
	record.Claimed = restored
	if err := e.storeAccountRecord(affiliatePrefix, saleID, account, record); err != nil {
		return err
	}
	e.emit(NewAffiliateRevertedEvent(saleID, account, amount))
	return nil
}

// PreviewClaim projects the claim and refund for the account without
// touching state. Works before claims open as long as the distribution
// token configuration is complete.
func (e *Engine) PreviewClaim(saleID uint64, account string) (*ClaimPreview, error) {
	s, err := e.loadSale(saleID)
	if err != nil {
		return nil, err
	}
	if s.DistributeToken == "" {
		return nil, ErrNoTokenID
	}
	if !s.DecimalsSet {
		return nil, ErrNoTokenDecimals
	}
	record, ok, err := e.loadAccountRecord(saleAccountPrefix, saleID, account)
	if err != nil {
		return nil, err
	}
	if !ok || record.Amount.Sign() == 0 {
		return nil, ErrNoDeposit
	}
	if record.Claimed.Sign() != 0 {
		return &ClaimPreview{
			Tokens: new(big.Int).Set(record.Claimed),
			Refund: new(big.Int).Set(record.Refund),
			Token:  s.DistributeToken,
		}, nil
	}
	claim, refund, err := e.purchaseAllocation(s, record)
	if err != nil {
		return nil, err
	}
	return &ClaimPreview{Tokens: claim, Refund: refund, Token: s.DistributeToken}, nil
}
