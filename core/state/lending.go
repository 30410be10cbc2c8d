package state

import (
	"fmt"

	"xlend/native/lending"
)

type storedGlobal struct {
	NextOrderID   uint64
	NextReceiptID uint64
	Admin         [20]byte
}

type storedConfig struct {
	MinRate             uint64
	MaxRate             uint64
	PenaltyRate         uint64
	PenaltyCapDays      uint64
	CommissionRate      uint64
	RepaymentCycle      uint64
	LiquidationDeadline uint64
}

type storedOrder struct {
	ID        uint64
	Lender    [20]byte
	Remaining uint64
	Rate      uint64
}

type storedClaim struct {
	ChainID  uint32
	LockID   uint64
	Source   [20]byte
	Token    [20]byte
	Frozen   uint64
	Borrower [20]byte
	OrderID  uint64
	Amount   uint64
}

type storedBranch struct {
	Claim   storedClaim
	Signers [][20]byte
}

type storedAttestation struct {
	ChainID  uint32
	LockID   uint64
	Status   uint8
	Branches []storedBranch
}

type storedReceipt struct {
	ID       uint64
	Borrower [20]byte
	Lender   [20]byte
	ChainID  uint32
	LockID   uint64
	Source   [20]byte
	Token    [20]byte
	Frozen   uint64
	Amount   uint64
	IssuedAt uint64
	Rate     uint64
	OrderID  uint64
}

type storedWitnessSet struct {
	Members   [][20]byte
	Threshold uint64
}

func newStoredClaim(c lending.CollateralClaim) storedClaim {
	return storedClaim(c)
}

func (s storedClaim) toClaim() lending.CollateralClaim {
	return lending.CollateralClaim(s)
}

// kv is the read/write surface shared by transactions.
type kv interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
}

// LendingState persists lending records through the state manager. Each
// Update runs in its own transaction and commits as one batch.
type LendingState struct {
	manager *Manager
}

// NewLendingState wraps manager for the lending engine.
func NewLendingState(manager *Manager) *LendingState {
	return &LendingState{manager: manager}
}

// Update runs fn in a transaction and commits when it returns nil.
func (s *LendingState) Update(fn func(lending.Store) error) error {
	if s == nil || s.manager == nil {
		return fmt.Errorf("state: lending state unavailable")
	}
	tx := s.manager.Begin()
	if err := fn(&lendingStore{kv: tx}); err != nil {
		tx.Discard()
		return err
	}
	return tx.Commit()
}

// View runs fn against a transaction that is always discarded.
func (s *LendingState) View(fn func(lending.Store) error) error {
	if s == nil || s.manager == nil {
		return fmt.Errorf("state: lending state unavailable")
	}
	tx := s.manager.Begin()
	defer tx.Discard()
	return fn(&lendingStore{kv: tx})
}

type lendingStore struct {
	kv kv
}

func (s *lendingStore) GetGlobal() (*lending.Global, bool, error) {
	var stored storedGlobal
	ok, err := s.kv.KVGet(LendingGlobalKey(), &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &lending.Global{NextOrderID: stored.NextOrderID, NextReceiptID: stored.NextReceiptID, Admin: stored.Admin}, true, nil
}

func (s *lendingStore) PutGlobal(g *lending.Global) error {
	if g == nil {
		return fmt.Errorf("state: nil lending global")
	}
	return s.kv.KVPut(LendingGlobalKey(), &storedGlobal{NextOrderID: g.NextOrderID, NextReceiptID: g.NextReceiptID, Admin: g.Admin})
}

func (s *lendingStore) GetConfig() (*lending.Config, bool, error) {
	var stored storedConfig
	ok, err := s.kv.KVGet(LendingConfigKey(), &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	cfg := lending.Config{
		MinRate:             stored.MinRate,
		MaxRate:             stored.MaxRate,
		PenaltyRate:         stored.PenaltyRate,
		PenaltyCapDays:      stored.PenaltyCapDays,
		CommissionRate:      stored.CommissionRate,
		RepaymentCycle:      stored.RepaymentCycle,
		LiquidationDeadline: stored.LiquidationDeadline,
	}
	return &cfg, true, nil
}

func (s *lendingStore) PutConfig(cfg *lending.Config) error {
	if cfg == nil {
		return fmt.Errorf("state: nil lending config")
	}
	return s.kv.KVPut(LendingConfigKey(), &storedConfig{
		MinRate:             cfg.MinRate,
		MaxRate:             cfg.MaxRate,
		PenaltyRate:         cfg.PenaltyRate,
		PenaltyCapDays:      cfg.PenaltyCapDays,
		CommissionRate:      cfg.CommissionRate,
		RepaymentCycle:      cfg.RepaymentCycle,
		LiquidationDeadline: cfg.LiquidationDeadline,
	})
}

func (s *lendingStore) GetOrder(id uint64) (*lending.Order, bool, error) {
	var stored storedOrder
	ok, err := s.kv.KVGet(LendingOrderKey(id), &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &lending.Order{ID: stored.ID, Lender: stored.Lender, Remaining: stored.Remaining, Rate: stored.Rate}, true, nil
}

func (s *lendingStore) PutOrder(order *lending.Order) error {
	if order == nil {
		return fmt.Errorf("state: nil lending order")
	}
	return s.kv.KVPut(LendingOrderKey(order.ID), &storedOrder{ID: order.ID, Lender: order.Lender, Remaining: order.Remaining, Rate: order.Rate})
}

func (s *lendingStore) DeleteOrder(id uint64) error {
	return s.kv.KVDelete(LendingOrderKey(id))
}

func (s *lendingStore) GetAttestation(key lending.AttestationKey) (*lending.AttestationRecord, bool, error) {
	var stored storedAttestation
	ok, err := s.kv.KVGet(LendingAttestationKey(key.ChainID, key.LockID), &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	status := lending.AttestationStatus(stored.Status)
	if !status.Valid() {
		return nil, false, fmt.Errorf("state: attestation %s has invalid status %d", key, stored.Status)
	}
	record := &lending.AttestationRecord{ChainID: stored.ChainID, LockID: stored.LockID, Status: status}
	for _, b := range stored.Branches {
		record.Branches = append(record.Branches, lending.Branch{
			Claim:   b.Claim.toClaim(),
			Signers: append([][20]byte(nil), b.Signers...),
		})
	}
	return record, true, nil
}

func (s *lendingStore) PutAttestation(record *lending.AttestationRecord) error {
	if record == nil {
		return fmt.Errorf("state: nil attestation record")
	}
	stored := &storedAttestation{ChainID: record.ChainID, LockID: record.LockID, Status: uint8(record.Status)}
	for _, b := range record.Branches {
		stored.Branches = append(stored.Branches, storedBranch{
			Claim:   newStoredClaim(b.Claim),
			Signers: append([][20]byte(nil), b.Signers...),
		})
	}
	return s.kv.KVPut(LendingAttestationKey(record.ChainID, record.LockID), stored)
}

func (s *lendingStore) GetReceipt(id uint64) (*lending.LoanReceipt, bool, error) {
	var stored storedReceipt
	ok, err := s.kv.KVGet(LendingReceiptKey(id), &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	receipt := lending.LoanReceipt(stored)
	return &receipt, true, nil
}

func (s *lendingStore) PutReceipt(receipt *lending.LoanReceipt) error {
	if receipt == nil {
		return fmt.Errorf("state: nil loan receipt")
	}
	stored := storedReceipt(*receipt)
	return s.kv.KVPut(LendingReceiptKey(receipt.ID), &stored)
}

func (s *lendingStore) DeleteReceipt(id uint64) error {
	return s.kv.KVDelete(LendingReceiptKey(id))
}

func (s *lendingStore) GetWitnesses() (*lending.WitnessSet, error) {
	var stored storedWitnessSet
	ok, err := s.kv.KVGet(LendingWitnessesKey(), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &lending.WitnessSet{}, nil
	}
	return &lending.WitnessSet{Members: stored.Members, Threshold: stored.Threshold}, nil
}

func (s *lendingStore) PutWitnesses(set *lending.WitnessSet) error {
	if set == nil {
		return fmt.Errorf("state: nil witness set")
	}
	return s.kv.KVPut(LendingWitnessesKey(), &storedWitnessSet{
		Members:   append([][20]byte(nil), set.Members...),
		Threshold: set.Threshold,
	})
}

func (s *lendingStore) getUint(key []byte) (uint64, error) {
	var value uint64
	if _, err := s.kv.KVGet(key, &value); err != nil {
		return 0, err
	}
	return value, nil
}

func (s *lendingStore) GetRelayFee(chainID uint32) (uint64, error) {
	return s.getUint(LendingRelayFeeKey(chainID))
}

func (s *lendingStore) PutRelayFee(chainID uint32, fee uint64) error {
	return s.kv.KVPut(LendingRelayFeeKey(chainID), fee)
}

func (s *lendingStore) GetEscrowBalance(addr [20]byte) (uint64, error) {
	return s.getUint(LendingEscrowKey(addr))
}

func (s *lendingStore) PutEscrowBalance(addr [20]byte, amount uint64) error {
	if amount == 0 {
		return s.kv.KVDelete(LendingEscrowKey(addr))
	}
	return s.kv.KVPut(LendingEscrowKey(addr), amount)
}

func (s *lendingStore) GetNativeBalance(addr [20]byte) (uint64, error) {
	return s.getUint(NativeBalanceKey(addr))
}

func (s *lendingStore) PutNativeBalance(addr [20]byte, amount uint64) error {
	if amount == 0 {
		return s.kv.KVDelete(NativeBalanceKey(addr))
	}
	return s.kv.KVPut(NativeBalanceKey(addr), amount)
}
