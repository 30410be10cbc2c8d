package rpc

import "net/http"

// OKResult acknowledges operations that return nothing else.
type OKResult struct {
	OK bool `json:"ok"`
}

func (s *Server) respondAccount(w http.ResponseWriter, r *http.Request, addr [20]byte) {
	acct, err := s.engine.Account(addr)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Account{Address: ledgerString(acct.Address), Native: Quantity(acct.Native), Escrow: Quantity(acct.Escrow)})
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req AmountRequest
	signer, err := s.authenticate(r, &req)
	if err == nil {
		err = s.engine.Deposit(signer, uint64(req.Amount))
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.respondAccount(w, r, signer)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req AmountRequest
	signer, err := s.authenticate(r, &req)
	if err == nil {
		err = s.engine.Withdraw(signer, uint64(req.Amount))
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.respondAccount(w, r, signer)
}

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req PlaceOrderRequest
	signer, err := s.authenticate(r, &req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	id, err := s.engine.PlaceOrder(signer, uint64(req.Amount), uint64(req.Rate))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, IDResult{ID: Quantity(id)})
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	id, err := uintParam(r, "id", 64)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	signer, err := s.authenticate(r, nil)
	if err == nil {
		err = s.engine.CancelOrder(id, signer)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, OKResult{OK: true})
}

func (s *Server) handleCloseOrder(w http.ResponseWriter, r *http.Request) {
	id, err := uintParam(r, "id", 64)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if _, err = s.authenticate(r, nil); err == nil {
		err = s.engine.CloseOrder(id)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, OKResult{OK: true})
}

func (s *Server) handleAttest(w http.ResponseWriter, r *http.Request) {
	var req AttestRequest
	signer, err := s.authenticate(r, &req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	claim, err := req.Claim.toLending()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	status, err := s.engine.SubmitAttestation(claim.ChainID, claim.LockID, claim, signer)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResult{Status: status.String()})
}

func (s *Server) handleClearAttestation(w http.ResponseWriter, r *http.Request) {
	var req LockRequest
	_, err := s.authenticate(r, &req)
	if err == nil {
		err = s.engine.ClearAttestation(req.ChainID, uint64(req.LockID))
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, OKResult{OK: true})
}

func (s *Server) handleBorrow(w http.ResponseWriter, r *http.Request) {
	var req LockRequest
	signer, err := s.authenticate(r, &req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	id, err := s.engine.Borrow(req.ChainID, uint64(req.LockID), signer)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, IDResult{ID: Quantity(id)})
}

func (s *Server) handleRepay(w http.ResponseWriter, r *http.Request) {
	id, err := uintParam(r, "id", 64)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	signer, err := s.authenticate(r, nil)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	quote, err := s.engine.Repay(id, signer)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newQuote(quote))
}

func (s *Server) handleLiquidate(w http.ResponseWriter, r *http.Request) {
	id, err := uintParam(r, "id", 64)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req LiquidateRequest
	signer, err := s.authenticate(r, &req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	receiver, err := parseForeignAddress("receiver", req.Receiver)
	if err == nil {
		err = s.engine.Liquidate(id, signer, receiver)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, OKResult{OK: true})
}

func (s *Server) handleSetConfig(w http.ResponseWriter, r *http.Request) {
	var req Config
	signer, err := s.authenticate(r, &req)
	if err == nil {
		err = s.engine.SetConfig(signer, req.toLending())
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, OKResult{OK: true})
}

func (s *Server) handleSetRelayFee(w http.ResponseWriter, r *http.Request) {
	var req RelayFeeRequest
	signer, err := s.authenticate(r, &req)
	if err == nil {
		err = s.engine.SetRelayFee(signer, req.ChainID, uint64(req.Fee))
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, OKResult{OK: true})
}

func (s *Server) handleAddWitness(w http.ResponseWriter, r *http.Request) {
	s.changeWitness(w, r, s.engine.AddWitness)
}

func (s *Server) handleRemoveWitness(w http.ResponseWriter, r *http.Request) {
	s.changeWitness(w, r, s.engine.RemoveWitness)
}

func (s *Server) changeWitness(w http.ResponseWriter, r *http.Request, apply func(caller, witness [20]byte) error) {
	var req WitnessRequest
	signer, err := s.authenticate(r, &req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	witness, err := parseLedgerAddress("witness", req.Witness)
	if err == nil {
		err = apply(signer, witness)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.respondWitnesses(w, r)
}

func (s *Server) respondWitnesses(w http.ResponseWriter, r *http.Request) {
	set, err := s.engine.Witnesses()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newWitnesses(set))
}
