package referral

// Levels is the maximum referral depth tracked per account. Deposits pay
// commissions to at most this many ancestor referrers.
const Levels = 3

// Account captures the referral relationships of a registered participant.
// The referrer is fixed at join time for the lifetime of the account. The
// per-level affiliate sets record downstream accounts: level 0 holds
// direct referrals, level 1 second-degree, level 2 third-degree. Sets only
// ever grow.
type Account struct {
	ID         string
	Referrer   string
	Affiliates [Levels][]string
}

// Clone returns a deep copy so callers can mutate the result freely.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	clone := &Account{ID: a.ID, Referrer: a.Referrer}
	for level := range a.Affiliates {
		clone.Affiliates[level] = append([]string(nil), a.Affiliates[level]...)
	}
	return clone
}

// Stored layouts. accountVersionLegacy records carried only the referrer;
// affiliate sets were introduced later and default to empty on upgrade.
const (
	accountVersionLegacy  uint8 = 1
	accountVersionCurrent uint8 = 2
)

type vAccount struct {
	Version uint8
	Payload []byte
}

type storedAccountLegacy struct {
	Referrer string
}

type storedAccount struct {
	Referrer string
	Level0   []string
	Level1   []string
	Level2   []string
}

func (s *storedAccount) levels() [Levels][]string {
	return [Levels][]string{
		append([]string(nil), s.Level0...),
		append([]string(nil), s.Level1...),
		append([]string(nil), s.Level2...),
	}
}
