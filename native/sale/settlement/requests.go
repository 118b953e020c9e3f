package settlement

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"math/big"
)

// RequestKind names the external effect a request asks for.
type RequestKind uint8

const (
	// RequestStakeQuery asks a staking oracle for an account's staked
	// balance.
	RequestStakeQuery RequestKind = iota + 1
	// RequestTransfer asks the token ledger to move tokens to an account.
	RequestTransfer
	// RequestWrap asks the ledger to convert native currency into its
	// wrapped fungible form held by the service.
	RequestWrap
	// RequestUnwrap converts wrapped tokens back into native currency.
	RequestUnwrap
	// RequestNativeForward sends native currency to an account.
	RequestNativeForward
)

func (k RequestKind) String() string {
	switch k {
	case RequestStakeQuery:
		return "stake_query"
	case RequestTransfer:
		return "transfer"
	case RequestWrap:
		return "wrap"
	case RequestUnwrap:
		return "unwrap"
	case RequestNativeForward:
		return "native_forward"
	default:
		return "unknown"
	}
}

// Request is one outstanding external effect. The adapter that executes
// it must hand the Authority value back through Pipeline.Resolve; the
// pipeline rejects resolutions carrying any other value, so a party that
// merely knows a workflow id cannot forge an outcome.
type Request struct {
	WorkflowID string
	Authority  string
	Kind       RequestKind
	SaleID     uint64
	// Contract is the staking oracle for stake queries and the token
	// contract for transfers.
	Contract string
	Account  string
	Token    string
	Amount   *big.Int
}

// StakingOracle executes stake queries. Implementations deliver the
// result asynchronously via Pipeline.Resolve.
type StakingOracle interface {
	QueryStake(ctx context.Context, req *Request) error
}

// TokenLedger executes token movements. Implementations deliver the
// outcome asynchronously via Pipeline.Resolve.
type TokenLedger interface {
	Transfer(ctx context.Context, req *Request) error
	Wrap(ctx context.Context, req *Request) error
	Unwrap(ctx context.Context, req *Request) error
}

// Result carries the outcome of a request back into the pipeline. Value
// is the staked balance for stake queries and ignored otherwise.
type Result struct {
	OK    bool
	Value *big.Int
}

var (
	ErrUnknownWorkflow   = errors.New("settlement: unknown workflow")
	ErrForgedResolution  = errors.New("settlement: resolution authority mismatch")
	ErrOracleUnavailable = errors.New("settlement: no staking oracle configured")
	ErrLedgerUnavailable = errors.New("settlement: no token ledger configured")
	ErrNotRegistered     = errors.New("settlement: depositor not registered")
)

func newToken() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return hex.EncodeToString(buf)
}
