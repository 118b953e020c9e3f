package referral

import "errors"

var (
	// ErrAccountExists is returned when an account attempts to join twice.
	ErrAccountExists = errors.New("referral: account already registered")
	// ErrSelfReferral is returned when an account names itself as referrer.
	ErrSelfReferral = errors.New("referral: self referral not allowed")
	// ErrAccountNotFound is returned by lookups for unregistered accounts.
	ErrAccountNotFound = errors.New("referral: account not registered")
	// ErrJoinFee is returned when the attached join fee does not match the
	// configured fee exactly.
	ErrJoinFee = errors.New("referral: wrong join fee")

	errNilState = errors.New("referral: registry state not configured")
)
