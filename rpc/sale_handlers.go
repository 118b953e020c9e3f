package rpc

import (
	"math/big"
	"net/http"

	"launchpad/native/sale"
	"launchpad/native/sale/settlement"
)

type saleMetadataPayload struct {
	Name             string `json:"name"`
	Symbol           string `json:"symbol"`
	Description      string `json:"description,omitempty"`
	SmartContractURL string `json:"smartContractUrl,omitempty"`
	LogoURL          string `json:"logoUrl,omitempty"`
	OutputTicker     string `json:"outputTicker,omitempty"`
}

type saleCreateParams struct {
	Caller                  string              `json:"caller"`
	Metadata                saleMetadataPayload `json:"metadata"`
	StakingContracts        []string            `json:"stakingContracts,omitempty"`
	MinStakeDeposit         string              `json:"minStakeDeposit,omitempty"`
	DepositToken            string              `json:"depositToken"`
	ClaimAvailable          bool                `json:"claimAvailable,omitempty"`
	DistributeToken         string              `json:"distributeToken,omitempty"`
	DistributeTokenDecimals *uint8              `json:"distributeTokenDecimals,omitempty"`
	MinBuy                  string              `json:"minBuy,omitempty"`
	MaxBuy                  string              `json:"maxBuy,omitempty"`
	MaxAmount               string              `json:"maxAmount,omitempty"`
	HardMaxAmountLimit      bool                `json:"hardMaxAmountLimit,omitempty"`
	StartDate               uint64              `json:"startDate"`
	EndDate                 uint64              `json:"endDate"`
	Price                   string              `json:"price,omitempty"`
	LimitPerTransaction     string              `json:"limitPerTransaction,omitempty"`
	Policy                  string              `json:"policy,omitempty"`
	TotalSupply             string              `json:"totalSupply,omitempty"`
}

type saleIDParams struct {
	Caller string `json:"caller,omitempty"`
	SaleID uint64 `json:"saleId"`
}

type saleDatesParams struct {
	Caller    string `json:"caller"`
	SaleID    uint64 `json:"saleId"`
	StartDate uint64 `json:"startDate"`
	EndDate   uint64 `json:"endDate"`
}

type distributeTokenParams struct {
	Caller string `json:"caller"`
	SaleID uint64 `json:"saleId"`
	Token  string `json:"token"`
}

type distributeDecimalsParams struct {
	Caller   string `json:"caller"`
	SaleID   uint64 `json:"saleId"`
	Decimals uint8  `json:"decimals"`
}

type claimAvailableParams struct {
	Caller    string `json:"caller"`
	SaleID    uint64 `json:"saleId"`
	Available bool   `json:"available"`
}

type referralFeesParams struct {
	Caller string   `json:"caller"`
	Fees   []uint64 `json:"fees"`
}

type depositParams struct {
	SaleID          uint64 `json:"saleId"`
	Account         string `json:"account"`
	Token           string `json:"token,omitempty"`
	StakingContract string `json:"stakingContract,omitempty"`
	Amount          string `json:"amount"`
}

type claimParams struct {
	SaleID  uint64 `json:"saleId"`
	Account string `json:"account"`
}

type listParams struct {
	FromIndex uint64 `json:"fromIndex"`
	Limit     uint64 `json:"limit"`
}

type saleAccountsParams struct {
	SaleID    uint64 `json:"saleId"`
	FromIndex uint64 `json:"fromIndex"`
	Limit     uint64 `json:"limit"`
}

type accountQueryParams struct {
	SaleID  uint64 `json:"saleId"`
	Account string `json:"account"`
}

type saleResult struct {
	ID                      uint64              `json:"id"`
	Metadata                saleMetadataPayload `json:"metadata"`
	StakingContracts        []string            `json:"stakingContracts,omitempty"`
	MinStakeDeposit         string              `json:"minStakeDeposit"`
	DepositToken            string              `json:"depositToken"`
	ClaimAvailable          bool                `json:"claimAvailable"`
	DistributeToken         string              `json:"distributeToken,omitempty"`
	DistributeTokenDecimals *uint8              `json:"distributeTokenDecimals,omitempty"`
	MinBuy                  string              `json:"minBuy"`
	MaxBuy                  string              `json:"maxBuy"`
	MaxAmount               *string             `json:"maxAmount,omitempty"`
	HardMaxAmountLimit      bool                `json:"hardMaxAmountLimit"`
	StartDate               uint64              `json:"startDate"`
	EndDate                 uint64              `json:"endDate"`
	Price                   string              `json:"price"`
	LimitPerTransaction     string              `json:"limitPerTransaction"`
	Policy                  string              `json:"policy"`
	TotalSupply             *string             `json:"totalSupply,omitempty"`
	CollectedAmount         string              `json:"collectedAmount"`
	NumAccounts             uint64              `json:"numAccounts"`
}

type saleAccountResult struct {
	Account  string `json:"account,omitempty"`
	Amount   string `json:"amount"`
	Claimed  string `json:"claimed"`
	Refund   string `json:"refund"`
	Refunded string `json:"refunded"`
}

type depositResult struct {
	WorkflowID string `json:"workflowId"`
	Settled    bool   `json:"settled"`
	Remainder  string `json:"remainder,omitempty"`
}

type claimSubmittedResult struct {
	WorkflowID string `json:"workflowId"`
}

type previewClaimResult struct {
	Token  string `json:"token"`
	Tokens string `json:"tokens"`
	Refund string `json:"refund"`
}

func newSaleResult(s *sale.Sale) saleResult {
	result := saleResult{
		ID:                  s.ID,
		Metadata:            saleMetadataPayload(s.Metadata),
		StakingContracts:    s.StakingContracts,
		MinStakeDeposit:     bigString(s.MinStakeDeposit),
		DepositToken:        s.DepositToken,
		ClaimAvailable:      s.ClaimAvailable,
		DistributeToken:     s.DistributeToken,
		MinBuy:              bigString(s.MinBuy),
		MaxBuy:              bigString(s.MaxBuy),
		HardMaxAmountLimit:  s.HardMaxAmountLimit,
		StartDate:           s.StartDate,
		EndDate:             s.EndDate,
		Price:               bigString(s.Price),
		LimitPerTransaction: bigString(s.LimitPerTransaction),
		Policy:              s.Policy.String(),
		CollectedAmount:     bigString(s.CollectedAmount),
		NumAccounts:         s.NumAccounts,
	}
	if s.DecimalsSet {
		decimals := s.DistributeTokenDecimals
		result.DistributeTokenDecimals = &decimals
	}
	if s.MaxAmount != nil {
		value := s.MaxAmount.String()
		result.MaxAmount = &value
	}
	if s.TotalSupply != nil {
		value := s.TotalSupply.String()
		result.TotalSupply = &value
	}
	return result
}

func newSaleAccountResult(account string, record *sale.SaleAccount) saleAccountResult {
	return saleAccountResult{
		Account:  account,
		Amount:   bigString(record.Amount),
		Claimed:  bigString(record.Claimed),
		Refund:   bigString(record.Refund),
		Refunded: bigString(record.Refunded),
	}
}

func (s *Server) handleSaleCreate(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params saleCreateParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	input := sale.SaleInput{
		Metadata:                sale.Metadata(params.Metadata),
		StakingContracts:        params.StakingContracts,
		DepositToken:            params.DepositToken,
		ClaimAvailable:          params.ClaimAvailable,
		DistributeToken:         params.DistributeToken,
		DistributeTokenDecimals: params.DistributeTokenDecimals,
		HardMaxAmountLimit:      params.HardMaxAmountLimit,
		StartDate:               params.StartDate,
		EndDate:                 params.EndDate,
	}
	switch params.Policy {
	case "", "by_amount":
		input.Policy = sale.PolicyByAmount
	case "by_subscription":
		input.Policy = sale.PolicyBySubscription
	default:
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "unknown policy "+params.Policy, nil)
		return
	}
	amounts := []struct {
		dst **big.Int
		src string
	}{
		{&input.MinStakeDeposit, params.MinStakeDeposit},
		{&input.MinBuy, params.MinBuy},
		{&input.MaxBuy, params.MaxBuy},
		{&input.MaxAmount, params.MaxAmount},
		{&input.Price, params.Price},
		{&input.LimitPerTransaction, params.LimitPerTransaction},
		{&input.TotalSupply, params.TotalSupply},
	}
	for _, field := range amounts {
		value, err := parseBig(field.src)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
			return
		}
		*field.dst = value
	}
	id, err := s.engine.CreateSale(params.Caller, input)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]uint64{"saleId": id})
}

func (s *Server) handleSaleRemove(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params saleIDParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.engine.RemoveSale(params.Caller, params.SaleID); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"removed": true})
}

func (s *Server) handleSaleUpdateDates(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params saleDatesParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.engine.UpdateSaleDates(params.Caller, params.SaleID, params.StartDate, params.EndDate); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"updated": true})
}

func (s *Server) handleSetDistributeToken(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params distributeTokenParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.engine.SetDistributeToken(params.Caller, params.SaleID, params.Token); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"updated": true})
}

func (s *Server) handleSetDistributeTokenDecimals(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params distributeDecimalsParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.engine.SetDistributeTokenDecimals(params.Caller, params.SaleID, params.Decimals); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"updated": true})
}

func (s *Server) handleSetClaimAvailable(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params claimAvailableParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.engine.SetClaimAvailable(params.Caller, params.SaleID, params.Available); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"updated": true})
}

func (s *Server) handleUpdateReferralFees(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params referralFeesParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.engine.UpdateReferralFees(params.Caller, params.Fees); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"updated": true})
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params depositParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	amount, err := parseBig(params.Amount)
	if err != nil || amount == nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "amount required", nil)
		return
	}
	outcome, err := s.pipeline.SubmitDeposit(r.Context(), params.SaleID, params.Account, params.Token, params.StakingContract, amount)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	result := depositResult{WorkflowID: outcome.WorkflowID, Settled: outcome.Settled}
	if outcome.Remainder != nil {
		result.Remainder = outcome.Remainder.String()
	}
	writeResult(w, req.ID, result)
}

func (s *Server) handleDepositNative(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params depositParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	amount, err := parseBig(params.Amount)
	if err != nil || amount == nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "amount required", nil)
		return
	}
	outcome, err := s.pipeline.SubmitNativeDeposit(r.Context(), params.SaleID, params.Account, params.StakingContract, amount)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, depositResult{WorkflowID: outcome.WorkflowID})
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request, req *RPCRequest, kind settlement.ClaimKind) {
	var params claimParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	workflowID, err := s.pipeline.SubmitClaim(r.Context(), kind, params.SaleID, params.Account)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, claimSubmittedResult{WorkflowID: workflowID})
}

func (s *Server) handleSaleGet(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params saleIDParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	s2, err := s.engine.SaleByID(params.SaleID)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, newSaleResult(s2))
}

func (s *Server) handleSaleList(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params listParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	sales, err := s.engine.Sales(params.FromIndex, params.Limit)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	results := make([]saleResult, 0, len(sales))
	for _, entry := range sales {
		results = append(results, newSaleResult(entry))
	}
	writeResult(w, req.ID, results)
}

func (s *Server) handleSaleAccounts(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params saleAccountsParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	entries, err := s.engine.SaleAccounts(params.SaleID, params.FromIndex, params.Limit)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	results := make([]saleAccountResult, 0, len(entries))
	for _, entry := range entries {
		results = append(results, newSaleAccountResult(entry.Account, entry.Record))
	}
	writeResult(w, req.ID, results)
}

func (s *Server) handleSaleAccount(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params accountQueryParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	record, err := s.engine.SaleAccountOf(params.SaleID, params.Account)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, newSaleAccountResult(params.Account, record))
}

func (s *Server) handleAffiliateAccount(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params accountQueryParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	record, err := s.engine.AffiliateAccountOf(params.SaleID, params.Account)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, newSaleAccountResult(params.Account, record))
}

func (s *Server) handlePreviewClaim(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params accountQueryParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	preview, err := s.engine.PreviewClaim(params.SaleID, params.Account)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, previewClaimResult{
		Token:  preview.Token,
		Tokens: bigString(preview.Tokens),
		Refund: bigString(preview.Refund),
	})
}

func (s *Server) handleReferralFees(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	fees, err := s.engine.ReferralFees()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string][]uint64{"fees": fees[:]})
}
