package rpc

import (
	"net/http"

	"launchpad/native/referral"
)

type referralJoinParams struct {
	Account  string `json:"account"`
	Referrer string `json:"referrer,omitempty"`
	PaidFee  string `json:"paidFee,omitempty"`
}

type referralAccountParams struct {
	Account string `json:"account"`
}

type referralJoinResult struct {
	Account  string `json:"account"`
	Referrer string `json:"referrer"`
}

type referralAffiliatesResult struct {
	Account    string     `json:"account"`
	Affiliates [][]string `json:"affiliates"`
}

func (s *Server) handleReferralJoin(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params referralJoinParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	paidFee, err := parseBig(params.PaidFee)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	account, err := s.registry.Join(params.Account, params.Referrer, paidFee)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, referralJoinResult{Account: account.ID, Referrer: account.Referrer})
}

func (s *Server) handleReferralReferrers(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params referralAccountParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	chain, err := s.registry.Referrers(params.Account)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string][]string{"referrers": chain})
}

func (s *Server) handleReferralAffiliates(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params referralAccountParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	affiliates, err := s.registry.Affiliates(params.Account)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	levels := make([][]string, referral.Levels)
	for i := range affiliates {
		levels[i] = affiliates[i]
	}
	writeResult(w, req.ID, referralAffiliatesResult{Account: params.Account, Affiliates: levels})
}
