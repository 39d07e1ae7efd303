package rpc

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"localsolana/core/types"
	"localsolana/native/escrow"
	"localsolana/observability"
)

type escrowKeyParams struct {
	EscrowID uint64 `json:"escrowId"`
	TradeID  uint64 `json:"tradeId"`
}

type escrowCreateParams struct {
	escrowKeyParams
	Seller            string `json:"seller"`
	Buyer             string `json:"buyer"`
	Amount            string `json:"amount"`
	Sequential        bool   `json:"sequential"`
	SequentialAddress string `json:"sequentialAddress,omitempty"`
}

type escrowActorParams struct {
	escrowKeyParams
	Caller string `json:"caller"`
}

type escrowAddressParams struct {
	escrowKeyParams
	Caller  string `json:"caller"`
	Address string `json:"address"`
}

type escrowEvidenceParams struct {
	escrowKeyParams
	Caller       string `json:"caller"`
	EvidenceHash string `json:"evidenceHash"`
}

type escrowResolveParams struct {
	escrowKeyParams
	Caller          string `json:"caller"`
	BuyerWins       bool   `json:"buyerWins"`
	ExplanationHash string `json:"explanationHash"`
}

type balanceParams struct {
	Address string `json:"address"`
}

type escrowJSON struct {
	EscrowID          uint64  `json:"escrowId"`
	TradeID           uint64  `json:"tradeId"`
	Address           string  `json:"address"`
	Seller            string  `json:"seller"`
	Buyer             string  `json:"buyer"`
	Arbitrator        string  `json:"arbitrator"`
	Amount            string  `json:"amount"`
	Fee               string  `json:"fee"`
	DepositDeadline   int64   `json:"depositDeadline"`
	FiatDeadline      int64   `json:"fiatDeadline,omitempty"`
	Status            string  `json:"status"`
	Sequential        bool    `json:"sequential"`
	SequentialAddress *string `json:"sequentialAddress,omitempty"`
	FiatPaid          bool    `json:"fiatPaid"`
	Counter           uint64  `json:"counter"`
	TrackedBalance    string  `json:"trackedBalance"`
	DisputeInitiator  *string `json:"disputeInitiator,omitempty"`
	ResponseDeadline  int64   `json:"responseDeadline,omitempty"`
	BuyerEvidence     *string `json:"buyerEvidence,omitempty"`
	SellerEvidence    *string `json:"sellerEvidence,omitempty"`
}

type derivedAddressesJSON struct {
	Record     string `json:"record"`
	Vault      string `json:"vault"`
	BuyerBond  string `json:"buyerBond"`
	SellerBond string `json:"sellerBond"`
}

func escrowToJSON(e *escrow.Escrow) *escrowJSON {
	out := &escrowJSON{
		EscrowID:        e.EscrowID,
		TradeID:         e.TradeID,
		Address:         e.Address().String(),
		Seller:          e.Seller.String(),
		Buyer:           e.Buyer.String(),
		Arbitrator:      e.Arbitrator.String(),
		Amount:          strconv.FormatUint(e.Amount, 10),
		Fee:             strconv.FormatUint(e.Fee, 10),
		DepositDeadline: e.DepositDeadline,
		FiatDeadline:    e.FiatDeadline,
		Status:          e.Status.String(),
		Sequential:      e.Sequential,
		FiatPaid:        e.FiatPaid,
		Counter:         e.Counter,
		TrackedBalance:  strconv.FormatUint(e.TrackedBalance, 10),
	}
	if e.Sequential && !e.SequentialAddress.IsZero() {
		addr := e.SequentialAddress.String()
		out.SequentialAddress = &addr
	}
	if !e.DisputeInitiator.IsZero() {
		initiator := e.DisputeInitiator.String()
		out.DisputeInitiator = &initiator
		out.ResponseDeadline = e.ResponseDeadline
	}
	if e.BuyerEvidenceSet {
		hash := e.BuyerEvidence.String()
		out.BuyerEvidence = &hash
	}
	if e.SellerEvidenceSet {
		hash := e.SellerEvidence.String()
		out.SellerEvidence = &hash
	}
	return out
}

func escrowErrorCode(err error) (int, string) {
	switch {
	case errors.Is(err, escrow.ErrNotFound):
		return codeEscrowNotFound, "not_found"
	case errors.Is(err, escrow.ErrUnauthorized):
		return codeEscrowForbidden, "forbidden"
	case errors.Is(err, escrow.ErrInvalidState):
		return codeEscrowConflict, "conflict"
	case errors.Is(err, escrow.ErrDeadline):
		return codeEscrowDeadline, "deadline"
	case errors.Is(err, escrow.ErrInsufficientFunds):
		return codeEscrowFunds, "insufficient_funds"
	case errors.Is(err, escrow.ErrReinitialized):
		return codeEscrowReinit, "already_initialized"
	case errors.Is(err, escrow.ErrValidation), errors.Is(err, escrow.ErrArithmetic):
		return codeEscrowInvalidParams, "invalid_params"
	default:
		return codeEscrowInternal, "internal"
	}
}

func decodeParams(req *RPCRequest, dst interface{}) error {
	if len(req.Params) != 1 {
		return errors.New("exactly one parameter object expected")
	}
	return json.Unmarshal(req.Params[0], dst)
}

func parseAmount(raw string) (uint64, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, errors.New("amount required")
	}
	return strconv.ParseUint(trimmed, 10, 64)
}

// runOp serializes an engine operation and wraps it in a state transaction so
// a failure leaves no partial fund movement or field mutation behind. Events
// stay buffered until the commit lands, so subscribers never observe an
// operation that was rolled back.
func (s *Server) runOp(operation string, fn func() error) error {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Begin()
	err := fn()
	if err == nil {
		err = s.state.Commit()
	}
	if err != nil {
		s.state.Rollback()
		s.events.Discard()
	} else {
		s.events.Flush()
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
		_, kind := escrowErrorCode(err)
		observability.Ledger().ObserveError(operation, kind)
		s.log.Warn("escrow operation failed", "operation", operation, "err", err)
	}
	observability.Ledger().ObserveRequest(operation, outcome, time.Since(start))
	return err
}

func (s *Server) writeEscrowError(w http.ResponseWriter, id interface{}, err error) {
	code, message := escrowErrorCode(err)
	status := http.StatusBadRequest
	switch code {
	case codeEscrowNotFound:
		status = http.StatusNotFound
	case codeEscrowForbidden:
		status = http.StatusForbidden
	case codeEscrowConflict, codeEscrowReinit:
		status = http.StatusConflict
	case codeEscrowInternal:
		status = http.StatusInternalServerError
	}
	writeError(w, status, id, code, message, err.Error())
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params escrowCreateParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	seller, err := types.ParseAddress(params.Seller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	buyer, err := types.ParseAddress(params.Buyer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	var sequentialAddr *types.Address
	if strings.TrimSpace(params.SequentialAddress) != "" {
		parsed, err := types.ParseAddress(params.SequentialAddress)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
			return
		}
		sequentialAddr = &parsed
	}
	var created *escrow.Escrow
	opErr := s.runOp("create", func() error {
		var err error
		created, err = s.engine.Create(params.EscrowID, params.TradeID, seller, buyer, amount, params.Sequential, sequentialAddr)
		return err
	})
	if opErr != nil {
		s.writeEscrowError(w, req.ID, opErr)
		return
	}
	writeResult(w, req.ID, escrowToJSON(created))
}

// actorOp runs a caller-parameterised engine operation shared by most of the
// mutating methods.
func (s *Server) actorOp(w http.ResponseWriter, r *http.Request, req *RPCRequest, operation string, fn func(addr, caller types.Address) error) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params escrowActorParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := types.ParseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	addr := escrow.RecordAddress(params.EscrowID, params.TradeID)
	if opErr := s.runOp(operation, func() error { return fn(addr, caller) }); opErr != nil {
		s.writeEscrowError(w, req.ID, opErr)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

func (s *Server) handleFund(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.actorOp(w, r, req, "fund", s.engine.Fund)
}

func (s *Server) handleMarkFiatPaid(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.actorOp(w, r, req, "mark_fiat_paid", s.engine.MarkFiatPaid)
}

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.actorOp(w, r, req, "release", s.engine.Release)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.actorOp(w, r, req, "cancel", s.engine.Cancel)
}

func (s *Server) handleAutoCancel(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.actorOp(w, r, req, "auto_cancel", s.engine.AutoCancel)
}

func (s *Server) handleInitBuyerBond(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.actorOp(w, r, req, "init_buyer_bond", s.engine.InitializeBuyerBondAccount)
}

func (s *Server) handleInitSellerBond(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.actorOp(w, r, req, "init_seller_bond", s.engine.InitializeSellerBondAccount)
}

func (s *Server) handleDefaultJudgment(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.actorOp(w, r, req, "default_judgment", s.engine.DefaultJudgment)
}

func (s *Server) handleUpdateSequentialAddress(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params escrowAddressParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := types.ParseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	next, err := types.ParseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	addr := escrow.RecordAddress(params.EscrowID, params.TradeID)
	opErr := s.runOp("update_sequential_address", func() error {
		return s.engine.UpdateSequentialAddress(addr, caller, next)
	})
	if opErr != nil {
		s.writeEscrowError(w, req.ID, opErr)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

// evidenceOp runs a dispute operation carrying a 32-byte evidence hash.
func (s *Server) evidenceOp(w http.ResponseWriter, r *http.Request, req *RPCRequest, operation string, fn func(addr, caller types.Address, evidence types.Hash32) error) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params escrowEvidenceParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := types.ParseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	evidence, err := types.ParseHash32(params.EvidenceHash)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	addr := escrow.RecordAddress(params.EscrowID, params.TradeID)
	if opErr := s.runOp(operation, func() error { return fn(addr, caller, evidence) }); opErr != nil {
		s.writeEscrowError(w, req.ID, opErr)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

func (s *Server) handleOpenDispute(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.evidenceOp(w, r, req, "open_dispute", s.engine.OpenDisputeWithBond)
}

func (s *Server) handleRespondToDispute(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.evidenceOp(w, r, req, "respond_to_dispute", s.engine.RespondToDisputeWithBond)
}

func (s *Server) handleResolveDispute(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params escrowResolveParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := types.ParseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	explanation, err := types.ParseHash32(params.ExplanationHash)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	addr := escrow.RecordAddress(params.EscrowID, params.TradeID)
	opErr := s.runOp("resolve_dispute", func() error {
		return s.engine.ResolveDisputeWithExplanation(addr, caller, params.BuyerWins, explanation)
	})
	if opErr != nil {
		s.writeEscrowError(w, req.ID, opErr)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

func (s *Server) handleGet(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params escrowKeyParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	addr := escrow.RecordAddress(params.EscrowID, params.TradeID)
	esc, ok := s.state.EscrowGet(addr)
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeEscrowNotFound, "not_found", addr.String())
		return
	}
	writeResult(w, req.ID, escrowToJSON(esc))
}

func (s *Server) handleDerivedAddresses(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params escrowKeyParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	record := escrow.RecordAddress(params.EscrowID, params.TradeID)
	writeResult(w, req.ID, derivedAddressesJSON{
		Record:     record.String(),
		Vault:      escrow.VaultAddress(record).String(),
		BuyerBond:  escrow.BuyerBondAddress(record).String(),
		SellerBond: escrow.SellerBondAddress(record).String(),
	})
}

func (s *Server) handleBalance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params balanceParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	addr, err := types.ParseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	if vault, ok := s.state.VaultGet(addr); ok {
		writeResult(w, req.ID, map[string]string{
			"address": addr.String(),
			"kind":    "vault",
			"role":    vault.Role,
			"balance": strconv.FormatUint(vault.Balance, 10),
		})
		return
	}
	account, err := s.state.GetAccount(addr)
	if err != nil {
		s.writeEscrowError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{
		"address": addr.String(),
		"kind":    "account",
		"balance": strconv.FormatUint(account.Balance, 10),
	})
}
