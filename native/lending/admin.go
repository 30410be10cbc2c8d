package lending

import "fmt"

// Initialize seeds the protocol: counters start at 1, the administrator,
// parameters, witness set, relay fees and opening native balances are
// stored. It fails with ErrAlreadyInitialized when run twice.
func (e *Engine) Initialize(genesis Genesis) error {
	return e.execute("initialize", false, func(tx *txn) error {
		_, ok, err := tx.GetGlobal()
		if err != nil {
			return err
		}
		if ok {
			return ErrAlreadyInitialized
		}
		if genesis.Admin == ([20]byte{}) {
			return fmt.Errorf("%w: administrator address required", ErrInvalidConfig)
		}
		if err := genesis.Config.Validate(); err != nil {
			return err
		}
		global := &Global{NextOrderID: 1, NextReceiptID: 1, Admin: genesis.Admin}
		if err := tx.PutGlobal(global); err != nil {
			return err
		}
		cfg := genesis.Config
		if err := tx.PutConfig(&cfg); err != nil {
			return err
		}
		set := &WitnessSet{}
		for _, w := range genesis.Witnesses {
			set.add(w)
		}
		set.normalize()
		if err := tx.PutWitnesses(set); err != nil {
			return err
		}
		for chainID, fee := range genesis.RelayFees {
			if err := tx.PutRelayFee(chainID, fee); err != nil {
				return err
			}
		}
		for addr, amount := range genesis.Balances {
			if err := tx.creditNative(addr, amount); err != nil {
				return err
			}
		}
		tx.emit(attrs{}.
			addr("admin", genesis.Admin).
			u64("witnesses", uint64(len(set.Members))).
			u64("threshold", set.Threshold).
			event(EventTypeInitialized))
		return nil
	})
}

// SetConfig replaces the protocol parameters.
func (e *Engine) SetConfig(caller [20]byte, cfg Config) error {
	return e.execute("set_config", false, func(tx *txn) error {
		if _, err := tx.requireAdmin(caller); err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		next := cfg
		if err := tx.PutConfig(&next); err != nil {
			return err
		}
		tx.emit(newConfigEvent(cfg))
		return nil
	})
}

// SetRelayFee sets the relay fee charged for repayments and liquidations of
// loans collateralised on chainID.
func (e *Engine) SetRelayFee(caller [20]byte, chainID uint32, fee uint64) error {
	return e.execute("set_relay_fee", false, func(tx *txn) error {
		if _, err := tx.requireAdmin(caller); err != nil {
			return err
		}
		if err := tx.PutRelayFee(chainID, fee); err != nil {
			return err
		}
		tx.emit(newRelayFeeEvent(chainID, fee))
		return nil
	})
}

// AddWitness appends a witness and recomputes the quorum threshold.
func (e *Engine) AddWitness(caller, witness [20]byte) error {
	return e.execute("add_witness", false, func(tx *txn) error {
		if _, err := tx.requireAdmin(caller); err != nil {
			return err
		}
		set, err := tx.GetWitnesses()
		if err != nil {
			return err
		}
		set = set.Clone()
		if !set.add(witness) {
			return ErrWitnessExists
		}
		if err := tx.PutWitnesses(set); err != nil {
			return err
		}
		tx.emit(newWitnessEvent(EventTypeWitnessAdded, witness, set))
		return nil
	})
}

// RemoveWitness drops a witness and recomputes the quorum threshold.
// Signatures it already contributed to open records are kept; open records
// that now meet the threshold settle on their next attestation.
func (e *Engine) RemoveWitness(caller, witness [20]byte) error {
	return e.execute("remove_witness", false, func(tx *txn) error {
		if _, err := tx.requireAdmin(caller); err != nil {
			return err
		}
		set, err := tx.GetWitnesses()
		if err != nil {
			return err
		}
		set = set.Clone()
		if !set.remove(witness) {
			return ErrWitnessNotFound
		}
		if err := tx.PutWitnesses(set); err != nil {
			return err
		}
		tx.emit(newWitnessEvent(EventTypeWitnessRemoved, witness, set))
		return nil
	})
}
