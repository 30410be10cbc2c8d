package lending

// Deposit moves amount of the account's native balance into its escrow
// balance. The funds are held by the vault.
func (e *Engine) Deposit(account [20]byte, amount uint64) error {
	return e.execute("deposit", true, func(tx *txn) error {
		if _, err := tx.global(); err != nil {
			return err
		}
		if amount == 0 {
			return ErrInvalidAmount
		}
		if err := tx.transferNative(account, VaultAddress, amount); err != nil {
			return err
		}
		if err := tx.creditEscrow(account, amount); err != nil {
			return err
		}
		escrow, err := tx.GetEscrowBalance(account)
		if err != nil {
			return err
		}
		tx.emit(newBalanceEvent(EventTypeDeposited, account, amount, escrow))
		return nil
	})
}

// Withdraw returns amount of escrow to the account's native balance.
func (e *Engine) Withdraw(account [20]byte, amount uint64) error {
	return e.execute("withdraw", true, func(tx *txn) error {
		if _, err := tx.global(); err != nil {
			return err
		}
		if amount == 0 {
			return ErrInvalidAmount
		}
		if err := tx.debitEscrow(account, amount); err != nil {
			return err
		}
		if err := tx.transferNative(VaultAddress, account, amount); err != nil {
			return err
		}
		escrow, err := tx.GetEscrowBalance(account)
		if err != nil {
			return err
		}
		tx.emit(newBalanceEvent(EventTypeWithdrawn, account, amount, escrow))
		return nil
	})
}
