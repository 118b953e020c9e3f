package referral

import "launchpad/core/types"

const (
	// EventTypeJoined is emitted when a new account registers.
	EventTypeJoined = "referral.joined"
)

// NewJoinedEvent returns the canonical event payload for a newly
// registered account.
func NewJoinedEvent(accountID, referrer string) *types.Event {
	return &types.Event{
		Type: EventTypeJoined,
		Attributes: map[string]string{
			"account":  accountID,
			"referrer": referrer,
		},
	}
}
