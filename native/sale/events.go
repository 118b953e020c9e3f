package sale

import (
	"math/big"
	"strconv"

	"launchpad/core/types"
)

const (
	EventTypeCreated           = "sale.created"
	EventTypeRemoved           = "sale.removed"
	EventTypeDeposit           = "sale.deposit.accepted"
	EventTypeAffiliateAccrued  = "sale.affiliate.accrued"
	EventTypePurchaseClaimed   = "sale.purchase.claimed"
	EventTypeRefundClaimed     = "sale.refund.claimed"
	EventTypeAffiliateClaimed  = "sale.affiliate.claimed"
	EventTypeClaimReverted     = "sale.claim.reverted"
	EventTypeRefundReverted    = "sale.refund.reverted"
	EventTypeAffiliateReverted = "sale.affiliate.reverted"
)

func bigAttr(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// NewCreatedEvent captures a freshly registered sale.
func NewCreatedEvent(s *Sale) *types.Event {
	return &types.Event{
		Type: EventTypeCreated,
		Attributes: map[string]string{
			"saleId":       strconv.FormatUint(s.ID, 10),
			"depositToken": s.DepositToken,
			"policy":       s.Policy.String(),
		},
	}
}

// NewRemovedEvent captures the deletion of an empty sale.
func NewRemovedEvent(saleID uint64) *types.Event {
	return &types.Event{
		Type: EventTypeRemoved,
		Attributes: map[string]string{
			"saleId": strconv.FormatUint(saleID, 10),
		},
	}
}

// NewDepositEvent captures an admitted deposit and the remainder returned
// to the depositor.
func NewDepositEvent(saleID uint64, account string, accepted, remainder *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeDeposit,
		Attributes: map[string]string{
			"saleId":    strconv.FormatUint(saleID, 10),
			"account":   account,
			"accepted":  bigAttr(accepted),
			"remainder": bigAttr(remainder),
		},
	}
}

// NewAffiliateAccruedEvent captures a referral commission accrual.
func NewAffiliateAccruedEvent(saleID uint64, account string, level int, reward *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeAffiliateAccrued,
		Attributes: map[string]string{
			"saleId":  strconv.FormatUint(saleID, 10),
			"account": account,
			"level":   strconv.Itoa(level),
			"reward":  bigAttr(reward),
		},
	}
}

// NewPurchaseClaimedEvent captures a purchase claim marking, with the
// refund the calculator derived for the account.
func NewPurchaseClaimedEvent(saleID uint64, account string, claimed, refund *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypePurchaseClaimed,
		Attributes: map[string]string{
			"saleId":  strconv.FormatUint(saleID, 10),
			"account": account,
			"claimed": bigAttr(claimed),
			"refund":  bigAttr(refund),
		},
	}
}

// NewRefundClaimedEvent captures a refund payout marking.
func NewRefundClaimedEvent(saleID uint64, account string, refunded *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeRefundClaimed,
		Attributes: map[string]string{
			"saleId":   strconv.FormatUint(saleID, 10),
			"account":  account,
			"refunded": bigAttr(refunded),
		},
	}
}

// NewAffiliateClaimedEvent captures an affiliate reward payout marking.
func NewAffiliateClaimedEvent(saleID uint64, account string, claimed *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeAffiliateClaimed,
		Attributes: map[string]string{
			"saleId":  strconv.FormatUint(saleID, 10),
			"account": account,
			"claimed": bigAttr(claimed),
		},
	}
}

func newRevertEvent(eventType string, saleID uint64, account string, amount *big.Int) *types.Event {
	return &types.Event{
		Type: eventType,
		Attributes: map[string]string{
			"saleId":  strconv.FormatUint(saleID, 10),
			"account": account,
			"amount":  bigAttr(amount),
		},
	}
}

// NewClaimRevertedEvent captures a compensating rollback of a purchase
// claim after the external transfer failed.
func NewClaimRevertedEvent(saleID uint64, account string, amount *big.Int) *types.Event {
	return newRevertEvent(EventTypeClaimReverted, saleID, account, amount)
}

// NewRefundRevertedEvent captures a compensating rollback of a refund.
func NewRefundRevertedEvent(saleID uint64, account string, amount *big.Int) *types.Event {
	return newRevertEvent(EventTypeRefundReverted, saleID, account, amount)
}

// NewAffiliateRevertedEvent captures a compensating rollback of an
// affiliate payout.
func NewAffiliateRevertedEvent(saleID uint64, account string, amount *big.Int) *types.Event {
	return newRevertEvent(EventTypeAffiliateReverted, saleID, account, amount)
}
