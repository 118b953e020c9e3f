package settlement

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"launchpad/native/sale"
	"launchpad/observability"
)

// ClaimKind selects which settlement leg a claim workflow executes.
type ClaimKind uint8

const (
	ClaimPurchase ClaimKind = iota + 1
	ClaimRefund
	ClaimAffiliate
)

func (k ClaimKind) String() string {
	switch k {
	case ClaimPurchase:
		return "purchase"
	case ClaimRefund:
		return "refund"
	case ClaimAffiliate:
		return "affiliate"
	default:
		return "unknown"
	}
}

type stage uint8

const (
	stageStakeQuery stage = iota + 1
	stageWrap
	stageReturnRemainder
	stageRefuseReturn
	stageUnwrapRemainder
	stageForwardRemainder
	stageCompensateUnwrap
	stageCompensateForward
	stageClaimTransfer
)

type workflow struct {
	id              string
	authority       string
	stage           stage
	saleID          uint64
	account         string
	token           string
	stakingContract string
	// staking records whether the sale required a stake proof at submit
	// time, so continuations do not re-derive it from the contract field.
	staking bool
	native  bool
	gross           *big.Int
	remainder       *big.Int
	claimKind       ClaimKind
	claimAmount     *big.Int
}

type membership interface {
	IsRegistered(accountID string) (bool, error)
}

// DepositOutcome reports how far a submitted deposit got. Settled means
// admission completed synchronously; otherwise the workflow waits on the
// request identified by WorkflowID.
type DepositOutcome struct {
	WorkflowID string
	Settled    bool
	Remainder  *big.Int
}

// Pipeline drives the asynchronous settlement workflows around the sale
// engine: stake-gated admission, native-currency wrapping, and the
// transfer legs of claims with their compensating rollbacks. A single
// mutex serializes every state transition, so each workflow observes and
// mutates engine state atomically. Workflow bookkeeping is in-memory: an
// in-flight request lost to a restart is retried by resubmitting, which
// is safe because admission and claim markings only commit on resolve.
type Pipeline struct {
	mu      sync.Mutex
	engine  *sale.Engine
	members membership
	oracle  StakingOracle
	ledger  TokenLedger
	// wrappedToken is the fungible form native deposits are converted to
	// before admission.
	wrappedToken string
	log          *slog.Logger
	pending      map[string]*workflow
}

// NewPipeline wires the pipeline to its engine and external adapters.
func NewPipeline(engine *sale.Engine, oracle StakingOracle, ledger TokenLedger, wrappedToken string, log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		engine:       engine,
		oracle:       oracle,
		ledger:       ledger,
		wrappedToken: wrappedToken,
		log:          log.With("component", "settlement"),
		pending:      make(map[string]*workflow),
	}
}

// SetMembership configures the registry used to require depositors to be
// referral members before admission.
func (p *Pipeline) SetMembership(m membership) { p.members = m }

// SetOracle configures the staking oracle adapter. Adapters resolve
// through the pipeline, so they are constructed after it and wired here.
func (p *Pipeline) SetOracle(oracle StakingOracle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.oracle = oracle
}

// SetLedger configures the token ledger adapter.
func (p *Pipeline) SetLedger(ledger TokenLedger) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ledger = ledger
}

// PendingWorkflows reports the number of workflows waiting on an external
// request.
func (p *Pipeline) PendingWorkflows() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

func (p *Pipeline) requireMember(account string) error {
	if p.members == nil {
		return nil
	}
	ok, err := p.members.IsRegistered(account)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotRegistered
	}
	return nil
}

// issue registers the workflow as pending and hands the request to the
// adapter. The workflow holds at most one outstanding request; its
// authority value is regenerated for every request.
func (p *Pipeline) issue(ctx context.Context, wf *workflow, req *Request, send func(context.Context, *Request) error) error {
	wf.authority = newToken()
	req.WorkflowID = wf.id
	req.Authority = wf.authority
	p.pending[wf.id] = wf
	if err := send(ctx, req); err != nil {
		delete(p.pending, wf.id)
		return err
	}
	return nil
}

// SubmitDeposit starts the settlement of a fungible-token deposit. Sales
// without a staking requirement settle synchronously; otherwise the
// workflow first queries the staking oracle and admits in the
// continuation.
func (p *Pipeline) SubmitDeposit(ctx context.Context, saleID uint64, depositor, token, stakingContract string, amount *big.Int) (*DepositOutcome, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.requireMember(depositor); err != nil {
		return nil, err
	}
	s, err := p.engine.PrepareDeposit(saleID, token, stakingContract)
	if err != nil {
		observability.RecordDepositRefused(err.Error())
		return nil, err
	}

	wf := &workflow{
		id:              newToken(),
		saleID:          saleID,
		account:         depositor,
		token:           token,
		stakingContract: stakingContract,
		staking:         s.RequiresStaking(),
		gross:           new(big.Int).Set(amount),
	}
	if wf.staking {
		if p.oracle == nil {
			return nil, ErrOracleUnavailable
		}
		wf.stage = stageStakeQuery
		req := &Request{
			Kind:     RequestStakeQuery,
			SaleID:   saleID,
			Contract: stakingContract,
			Account:  depositor,
		}
		if err := p.issue(ctx, wf, req, p.oracle.QueryStake); err != nil {
			return nil, err
		}
		return &DepositOutcome{WorkflowID: wf.id}, nil
	}
	remainder, err := p.admit(ctx, wf, nil)
	if err != nil {
		observability.RecordDepositRefused(err.Error())
		return nil, err
	}
	return &DepositOutcome{WorkflowID: wf.id, Settled: true, Remainder: remainder}, nil
}

// SubmitNativeDeposit starts the settlement of a native-currency deposit.
// The attached amount is wrapped into the configured fungible token
// before admission; any unused remainder is unwrapped and forwarded back.
func (p *Pipeline) SubmitNativeDeposit(ctx context.Context, saleID uint64, depositor, stakingContract string, amount *big.Int) (*DepositOutcome, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ledger == nil {
		return nil, ErrLedgerUnavailable
	}
	if err := p.requireMember(depositor); err != nil {
		return nil, err
	}
	s, err := p.engine.PrepareDeposit(saleID, p.wrappedToken, stakingContract)
	if err != nil {
		observability.RecordDepositRefused(err.Error())
		return nil, err
	}

	wf := &workflow{
		id:              newToken(),
		saleID:          saleID,
		account:         depositor,
		token:           p.wrappedToken,
		stakingContract: stakingContract,
		staking:         s.RequiresStaking(),
		native:          true,
		gross:           new(big.Int).Set(amount),
	}
	wf.stage = stageWrap
	req := &Request{
		Kind:    RequestWrap,
		SaleID:  saleID,
		Account: depositor,
		Token:   p.wrappedToken,
		Amount:  new(big.Int).Set(amount),
	}
	if err := p.issue(ctx, wf, req, p.ledger.Wrap); err != nil {
		return nil, err
	}
	return &DepositOutcome{WorkflowID: wf.id}, nil
}

// admit records the deposit and, when part of it was not accepted,
// schedules the return of the remainder. Native remainders go through an
// unwrap first. Returns the remainder for synchronous callers.
func (p *Pipeline) admit(ctx context.Context, wf *workflow, staked *big.Int) (*big.Int, error) {
	remainder, err := p.engine.RecordDeposit(wf.saleID, wf.token, wf.account, staked, wf.gross)
	if err != nil {
		return nil, err
	}
	observability.RecordDepositAdmitted()
	if remainder.Sign() == 0 {
		return remainder, nil
	}
	wf.remainder = remainder
	if wf.native {
		wf.stage = stageUnwrapRemainder
		req := &Request{
			Kind:    RequestUnwrap,
			SaleID:  wf.saleID,
			Account: wf.account,
			Token:   wf.token,
			Amount:  new(big.Int).Set(remainder),
		}
		if err := p.issue(ctx, wf, req, p.ledger.Unwrap); err != nil {
			p.log.Error("remainder unwrap dispatch failed", "workflow", wf.id, "err", err)
		}
		return remainder, nil
	}
	if p.ledger == nil {
		p.log.Error("no ledger to return remainder", "workflow", wf.id, "remainder", remainder)
		return remainder, nil
	}
	wf.stage = stageReturnRemainder
	req := &Request{
		Kind:     RequestTransfer,
		SaleID:   wf.saleID,
		Contract: wf.token,
		Account:  wf.account,
		Token:    wf.token,
		Amount:   new(big.Int).Set(remainder),
	}
	if err := p.issue(ctx, wf, req, p.ledger.Transfer); err != nil {
		p.log.Error("remainder return dispatch failed", "workflow", wf.id, "err", err)
	}
	return remainder, nil
}

// refuse returns the whole deposit after a post-oracle admission failure.
// Native deposits compensate by unwrapping what was wrapped and
// forwarding it back.
func (p *Pipeline) refuse(ctx context.Context, wf *workflow, cause error) {
	observability.RecordDepositRefused(cause.Error())
	p.log.Info("deposit refused",
		"workflow", wf.id, "sale", wf.saleID, "account", wf.account, "cause", cause)
	if p.ledger == nil {
		return
	}
	if wf.native {
		observability.RecordCompensation("deposit_unwrap")
		wf.stage = stageCompensateUnwrap
		req := &Request{
			Kind:    RequestUnwrap,
			SaleID:  wf.saleID,
			Account: wf.account,
			Token:   wf.token,
			Amount:  new(big.Int).Set(wf.gross),
		}
		if err := p.issue(ctx, wf, req, p.ledger.Unwrap); err != nil {
			p.log.Error("compensating unwrap dispatch failed", "workflow", wf.id, "err", err)
		}
		return
	}
	wf.stage = stageRefuseReturn
	req := &Request{
		Kind:     RequestTransfer,
		SaleID:   wf.saleID,
		Contract: wf.token,
		Account:  wf.account,
		Token:    wf.token,
		Amount:   new(big.Int).Set(wf.gross),
	}
	if err := p.issue(ctx, wf, req, p.ledger.Transfer); err != nil {
		p.log.Error("deposit return dispatch failed", "workflow", wf.id, "err", err)
	}
}

// SubmitClaim executes one settlement leg for the account: the engine
// marks the claim first, then the transfer goes out, and a failed
// transfer rolls the marking back so the account can retry.
func (p *Pipeline) SubmitClaim(ctx context.Context, kind ClaimKind, saleID uint64, account string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ledger == nil {
		return "", ErrLedgerUnavailable
	}
	var (
		result *sale.ClaimResult
		err    error
	)
	switch kind {
	case ClaimPurchase:
		result, err = p.engine.ClaimPurchase(saleID, account)
	case ClaimRefund:
		result, err = p.engine.ClaimRefund(saleID, account)
	case ClaimAffiliate:
		result, err = p.engine.ClaimAffiliateReward(saleID, account)
	default:
		return "", fmt.Errorf("settlement: unknown claim kind %d", kind)
	}
	if err != nil {
		return "", err
	}

	wf := &workflow{
		id:          newToken(),
		stage:       stageClaimTransfer,
		saleID:      saleID,
		account:     account,
		token:       result.Token,
		claimKind:   kind,
		claimAmount: new(big.Int).Set(result.Amount),
	}
	req := &Request{
		Kind:     RequestTransfer,
		SaleID:   saleID,
		Contract: result.Token,
		Account:  account,
		Token:    result.Token,
		Amount:   new(big.Int).Set(result.Amount),
	}
	if err := p.issue(ctx, wf, req, p.ledger.Transfer); err != nil {
		p.revertClaim(wf)
		return "", err
	}
	return wf.id, nil
}

func (p *Pipeline) revertClaim(wf *workflow) {
	var err error
	switch wf.claimKind {
	case ClaimPurchase:
		err = p.engine.RevertPurchaseClaim(wf.saleID, wf.account)
	case ClaimRefund:
		err = p.engine.RevertRefund(wf.saleID, wf.account)
	case ClaimAffiliate:
		err = p.engine.RevertAffiliateClaim(wf.saleID, wf.account, wf.claimAmount)
	}
	if err != nil {
		p.log.Error("claim rollback failed",
			"workflow", wf.id, "sale", wf.saleID, "account", wf.account,
			"kind", wf.claimKind.String(), "err", err)
		return
	}
	observability.RecordCompensation("claim_" + wf.claimKind.String())
}

// Resolve delivers the outcome of an external request. Each pending
// request resolves at most once, and the caller must present the exact
// authority value issued with it.
func (p *Pipeline) Resolve(ctx context.Context, workflowID, authority string, res Result) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	wf, ok := p.pending[workflowID]
	if !ok {
		return ErrUnknownWorkflow
	}
	if wf.authority == "" || wf.authority != authority {
		return ErrForgedResolution
	}
	delete(p.pending, workflowID)
	wf.authority = ""

	switch wf.stage {
	case stageStakeQuery:
		if !res.OK {
			p.refuse(ctx, wf, sale.ErrNotEnoughStaked)
			return nil
		}
		if _, err := p.admit(ctx, wf, res.Value); err != nil {
			p.refuse(ctx, wf, err)
		}
		return nil
	case stageWrap:
		if !res.OK {
			observability.RecordDepositRefused("wrap failed")
			p.log.Warn("native wrap failed", "workflow", wf.id, "sale", wf.saleID, "account", wf.account)
			p.forwardNative(ctx, wf, wf.gross, stageCompensateForward)
			return nil
		}
		if wf.staking {
			if p.oracle == nil {
				p.refuse(ctx, wf, ErrOracleUnavailable)
				return nil
			}
			wf.stage = stageStakeQuery
			req := &Request{
				Kind:     RequestStakeQuery,
				SaleID:   wf.saleID,
				Contract: wf.stakingContract,
				Account:  wf.account,
			}
			if err := p.issue(ctx, wf, req, p.oracle.QueryStake); err != nil {
				p.refuse(ctx, wf, err)
			}
			return nil
		}
		_, err := p.admit(ctx, wf, nil)
		if err != nil {
			p.refuse(ctx, wf, err)
		}
		return nil
	case stageReturnRemainder, stageRefuseReturn:
		if !res.OK {
			p.log.Error("deposit return transfer failed",
				"workflow", wf.id, "sale", wf.saleID, "account", wf.account)
		}
		return nil
	case stageUnwrapRemainder:
		if !res.OK {
			// Terminal: the wrapped remainder stays with the service for
			// operator reconciliation.
			p.log.Error("remainder unwrap failed",
				"workflow", wf.id, "sale", wf.saleID, "account", wf.account, "amount", wf.remainder)
			return nil
		}
		p.forwardNative(ctx, wf, wf.remainder, stageForwardRemainder)
		return nil
	case stageCompensateUnwrap:
		if !res.OK {
			p.log.Error("compensating unwrap failed",
				"workflow", wf.id, "sale", wf.saleID, "account", wf.account, "amount", wf.gross)
			return nil
		}
		p.forwardNative(ctx, wf, wf.gross, stageCompensateForward)
		return nil
	case stageForwardRemainder, stageCompensateForward:
		if !res.OK {
			p.log.Error("native forward failed",
				"workflow", wf.id, "sale", wf.saleID, "account", wf.account)
		}
		return nil
	case stageClaimTransfer:
		if !res.OK {
			p.revertClaim(wf)
			return nil
		}
		observability.RecordClaimSettled(wf.claimKind.String())
		p.log.Info("claim settled",
			"workflow", wf.id, "sale", wf.saleID, "account", wf.account,
			"kind", wf.claimKind.String(), "amount", wf.claimAmount)
		return nil
	default:
		return fmt.Errorf("settlement: workflow %s in unexpected stage %d", wf.id, wf.stage)
	}
}

func (p *Pipeline) forwardNative(ctx context.Context, wf *workflow, amount *big.Int, next stage) {
	if p.ledger == nil || amount == nil || amount.Sign() == 0 {
		return
	}
	wf.stage = next
	req := &Request{
		Kind:    RequestNativeForward,
		SaleID:  wf.saleID,
		Account: wf.account,
		Amount:  new(big.Int).Set(amount),
	}
	if err := p.issue(ctx, wf, req, p.ledger.Transfer); err != nil {
		p.log.Error("native forward dispatch failed", "workflow", wf.id, "err", err)
	}
}
