package lending

// Account summarises the balances held for one address.
type Account struct {
	Address [20]byte
	Native  uint64
	Escrow  uint64
}

// Global returns the root record.
func (e *Engine) Global() (*Global, error) {
	var out *Global
	err := e.view(func(tx *txn) error {
		g, err := tx.global()
		if err != nil {
			return err
		}
		out = g.Clone()
		return nil
	})
	return out, err
}

// Config returns the active protocol parameters.
func (e *Engine) Config() (Config, error) {
	var out Config
	err := e.view(func(tx *txn) error {
		cfg, err := tx.config()
		out = cfg
		return err
	})
	return out, err
}

// Order returns the order with the given id.
func (e *Engine) Order(id uint64) (*Order, error) {
	var out *Order
	err := e.view(func(tx *txn) error {
		order, err := tx.order(id)
		out = order
		return err
	})
	return out, err
}

// Receipt returns the open loan receipt with the given id.
func (e *Engine) Receipt(id uint64) (*LoanReceipt, error) {
	var out *LoanReceipt
	err := e.view(func(tx *txn) error {
		receipt, err := tx.receipt(id)
		out = receipt
		return err
	})
	return out, err
}

// Attestation returns the record for the lock event (chainID, lockID).
func (e *Engine) Attestation(chainID uint32, lockID uint64) (*AttestationRecord, error) {
	var out *AttestationRecord
	err := e.view(func(tx *txn) error {
		record, ok, err := tx.GetAttestation(AttestationKey{ChainID: chainID, LockID: lockID})
		if err != nil {
			return err
		}
		if !ok || record == nil {
			return ErrAttestationNotFound
		}
		out = record.Clone()
		return nil
	})
	return out, err
}

// Witnesses returns the current witness set.
func (e *Engine) Witnesses() (*WitnessSet, error) {
	var out *WitnessSet
	err := e.view(func(tx *txn) error {
		set, err := tx.GetWitnesses()
		if err != nil {
			return err
		}
		out = set.Clone()
		return nil
	})
	return out, err
}

// RelayFee returns the relay fee for chainID.
func (e *Engine) RelayFee(chainID uint32) (uint64, error) {
	var out uint64
	err := e.view(func(tx *txn) error {
		fee, err := tx.GetRelayFee(chainID)
		out = fee
		return err
	})
	return out, err
}

// Account returns the native and escrow balances of addr.
func (e *Engine) Account(addr [20]byte) (Account, error) {
	out := Account{Address: addr}
	err := e.view(func(tx *txn) error {
		native, err := tx.GetNativeBalance(addr)
		if err != nil {
			return err
		}
		escrow, err := tx.GetEscrowBalance(addr)
		if err != nil {
			return err
		}
		out.Native, out.Escrow = native, escrow
		return nil
	})
	return out, err
}

// QuoteRepayment returns what repaying receiptID would charge right now.
func (e *Engine) QuoteRepayment(receiptID uint64) (RepaymentQuote, error) {
	var out RepaymentQuote
	err := e.view(func(tx *txn) error {
		receipt, err := tx.receipt(receiptID)
		if err != nil {
			return err
		}
		q, err := tx.quote(receipt)
		out = q
		return err
	})
	return out, err
}
