package lending

// Borrow turns the winning claim of a quorate attestation into a loan. The
// loan amount leaves the vault for the claim's borrower, who must match
// recipient. It returns the allocated receipt id.
func (e *Engine) Borrow(chainID uint32, lockID uint64, recipient [20]byte) (uint64, error) {
	var id uint64
	err := e.execute("borrow", true, func(tx *txn) error {
		global, err := tx.global()
		if err != nil {
			return err
		}
		key := AttestationKey{ChainID: chainID, LockID: lockID}
		record, ok, err := tx.GetAttestation(key)
		if err != nil {
			return err
		}
		if !ok || record == nil {
			return ErrAttestationNotFound
		}
		record = record.Clone()
		claim, ok := record.Winner()
		if !ok {
			return ErrNoQuorum
		}
		if claim.Borrower != recipient {
			return ErrRecipientMismatch
		}
		order, err := tx.order(claim.OrderID)
		if err != nil {
			return err
		}
		if order.Remaining < claim.Amount {
			return ErrInsufficientOrderCapacity
		}

		global = global.Clone()
		receipt := &LoanReceipt{
			ID:       global.allocateReceiptID(),
			Borrower: claim.Borrower,
			Lender:   order.Lender,
			ChainID:  claim.ChainID,
			LockID:   claim.LockID,
			Source:   claim.Source,
			Token:    claim.Token,
			Frozen:   claim.Frozen,
			Amount:   claim.Amount,
			IssuedAt: uint64(tx.now),
			Rate:     order.Rate,
			OrderID:  order.ID,
		}
		order.Remaining -= claim.Amount
		record.Status = StatusFinished

		if err := tx.PutGlobal(global); err != nil {
			return err
		}
		if err := tx.PutOrder(order); err != nil {
			return err
		}
		if err := tx.PutAttestation(record); err != nil {
			return err
		}
		if err := tx.PutReceipt(receipt); err != nil {
			return err
		}
		if err := tx.transferNative(VaultAddress, claim.Borrower, claim.Amount); err != nil {
			return err
		}
		id = receipt.ID
		tx.emit(newBorrowEvent(receipt, order))
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// Repay settles a receipt. The payer is charged the amount due plus the
// relay fee; the lender's escrow receives the amount due less commission and
// the administrator receives the commission and relay fee.
func (e *Engine) Repay(receiptID uint64, payer [20]byte) (RepaymentQuote, error) {
	var quote RepaymentQuote
	err := e.execute("repay", true, func(tx *txn) error {
		global, err := tx.global()
		if err != nil {
			return err
		}
		receipt, err := tx.receipt(receiptID)
		if err != nil {
			return err
		}
		if receipt.Borrower != payer {
			return ErrNotBorrower
		}
		q, err := tx.quote(receipt)
		if err != nil {
			return err
		}
		if err := tx.debitNative(payer, q.TotalCharged); err != nil {
			return err
		}
		if err := tx.creditNative(VaultAddress, q.LenderIncome); err != nil {
			return err
		}
		adminCut, err := checkedAdd(q.Commission, q.RelayFee)
		if err != nil {
			return err
		}
		if err := tx.creditNative(global.Admin, adminCut); err != nil {
			return err
		}
		if err := tx.creditEscrow(receipt.Lender, q.LenderIncome); err != nil {
			return err
		}
		if err := tx.DeleteReceipt(receiptID); err != nil {
			return err
		}
		quote = q
		tx.emit(newRepayEvent(receipt, q))
		return nil
	})
	if err != nil {
		return RepaymentQuote{}, err
	}
	return quote, nil
}

// Liquidate closes an overdue receipt on the lender's behalf. The caller
// pays the relay fee and receiver is the foreign address that takes the
// frozen collateral.
func (e *Engine) Liquidate(receiptID uint64, caller, receiver [20]byte) error {
	return e.execute("liquidate", true, func(tx *txn) error {
		global, err := tx.global()
		if err != nil {
			return err
		}
		cfg, err := tx.config()
		if err != nil {
			return err
		}
		receipt, err := tx.receipt(receiptID)
		if err != nil {
			return err
		}
		if receipt.Lender != caller {
			return ErrNotLender
		}
		if !liquidatable(receipt.IssuedAt, cfg.LiquidationDeadline, tx.now) {
			return ErrDeadlineNotReached
		}
		fee, err := tx.GetRelayFee(receipt.ChainID)
		if err != nil {
			return err
		}
		if err := tx.transferNative(caller, global.Admin, fee); err != nil {
			return err
		}
		if err := tx.DeleteReceipt(receiptID); err != nil {
			return err
		}
		tx.emit(newLiquidatedEvent(receipt, receiver, fee))
		return nil
	})
}

func (t *txn) receipt(id uint64) (*LoanReceipt, error) {
	receipt, ok, err := t.GetReceipt(id)
	if err != nil {
		return nil, err
	}
	if !ok || receipt == nil {
		return nil, ErrReceiptNotFound
	}
	return receipt.Clone(), nil
}

func (t *txn) quote(receipt *LoanReceipt) (RepaymentQuote, error) {
	cfg, err := t.config()
	if err != nil {
		return RepaymentQuote{}, err
	}
	fee, err := t.GetRelayFee(receipt.ChainID)
	if err != nil {
		return RepaymentQuote{}, err
	}
	return QuoteRepayment(receipt, cfg, t.now, fee)
}
