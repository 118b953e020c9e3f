package sale

import "errors"

// Business-rule violations surfaced verbatim to callers. Each aborts the
// whole call with no partial state change.
var (
	ErrSaleNotFound        = errors.New("sale: not found")
	ErrWrongToken          = errors.New("sale: wrong deposit token")
	ErrLimitPerTransaction = errors.New("sale: amount exceeds per-transaction limit")
	ErrNotEnoughStaked     = errors.New("sale: staked balance below minimum")
	ErrWrongAmount         = errors.New("sale: account total outside buy limits")
	ErrMustHaveMaxAmount   = errors.New("sale: hard capacity requires max amount")
	ErrSaleNotStarted      = errors.New("sale: not started")
	ErrSaleDone            = errors.New("sale: done")
	ErrSaleNotEmpty        = errors.New("sale: collected amount not zero")

	ErrStakingContractRequired  = errors.New("sale: staking contract required")
	ErrStakingContractNotListed = errors.New("sale: staking contract not whitelisted")

	ErrClaimNotAvailable = errors.New("sale: claim not available")
	ErrNoSalePrice       = errors.New("sale: no price configured")
	ErrNoTokenID         = errors.New("sale: no distribution token configured")
	ErrNoTokenDecimals   = errors.New("sale: no distribution token decimals configured")
	ErrNoSupply          = errors.New("sale: no total supply configured")
	ErrNoDeposit         = errors.New("sale: no deposit recorded for account")
	ErrAlreadyClaimed    = errors.New("sale: already claimed")
	ErrNothingToClaim    = errors.New("sale: nothing to claim")
	ErrNoAffiliateReward = errors.New("sale: no affiliate rewards")
	ErrNothingToRefund   = errors.New("sale: nothing to refund")
	ErrRefundBeforeClaim = errors.New("sale: refund requires a prior claim")
	ErrAlreadyRefunded   = errors.New("sale: already refunded")

	ErrNotOwner           = errors.New("sale: caller must be owner")
	ErrAlreadySet         = errors.New("sale: field already set")
	ErrDecimalsOutOfRange = errors.New("sale: distribution token decimals out of range")
	ErrNotEnoughData      = errors.New("sale: distribution token and decimals required")
	ErrWrongFeeCount      = errors.New("sale: referral fee schedule must have three entries")

	errNilState = errors.New("sale: engine state not configured")
)
