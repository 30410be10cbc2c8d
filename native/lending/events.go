package lending

import (
	"encoding/hex"
	"strconv"

	"xlend/core/types"
	"xlend/crypto"
)

const (
	EventTypeInitialized         = "lending.initialized"
	EventTypeDeposited           = "lending.deposited"
	EventTypeWithdrawn           = "lending.withdrawn"
	EventTypeOrderPlaced         = "lending.order.placed"
	EventTypeOrderCancelled      = "lending.order.cancelled"
	EventTypeOrderClosed         = "lending.order.closed"
	EventTypeAttestationRecorded = "lending.attestation.recorded"
	EventTypeAttestationQuorum   = "lending.attestation.quorum"
	EventTypeAttestationCleared  = "lending.attestation.cleared"
	EventTypeBorrowSucceeded     = "lending.borrow.succeeded"
	EventTypeRepaySucceeded      = "lending.repay.succeeded"
	EventTypeLiquidated          = "lending.liquidated"
	EventTypeConfigUpdated       = "lending.config.updated"
	EventTypeRelayFeeUpdated     = "lending.relay_fee.updated"
	EventTypeWitnessAdded        = "lending.witness.added"
	EventTypeWitnessRemoved      = "lending.witness.removed"
)

// lendingEvent adapts a canonical attribute payload to events.Event.
type lendingEvent struct {
	evt *types.Event
}

func (l lendingEvent) EventType() string {
	if l.evt == nil {
		return ""
	}
	return l.evt.Type
}

func (l lendingEvent) Event() *types.Event { return l.evt }

type attrs map[string]string

func (a attrs) addr(key string, b [20]byte) attrs {
	a[key] = crypto.FromBytes20(b).String()
	return a
}

func (a attrs) foreign(key string, b [20]byte) attrs {
	a[key] = "0x" + hex.EncodeToString(b[:])
	return a
}

func (a attrs) u64(key string, v uint64) attrs {
	a[key] = strconv.FormatUint(v, 10)
	return a
}

func (a attrs) event(eventType string) lendingEvent {
	return lendingEvent{evt: &types.Event{Type: eventType, Attributes: map[string]string(a)}}
}

func newBalanceEvent(eventType string, account [20]byte, amount, escrow uint64) lendingEvent {
	return attrs{}.addr("account", account).u64("amount", amount).u64("escrowBalance", escrow).event(eventType)
}

func newOrderEvent(eventType string, order *Order, amount uint64) lendingEvent {
	return attrs{}.
		u64("orderId", order.ID).
		addr("lender", order.Lender).
		u64("amount", amount).
		u64("rate", order.Rate).
		event(eventType)
}

func claimAttrs(claim CollateralClaim) attrs {
	return attrs{}.
		u64("chainId", uint64(claim.ChainID)).
		u64("lockId", claim.LockID).
		foreign("source", claim.Source).
		foreign("token", claim.Token).
		u64("frozen", claim.Frozen).
		addr("borrower", claim.Borrower).
		u64("orderId", claim.OrderID).
		u64("amount", claim.Amount)
}

func newAttestationRecordedEvent(claim CollateralClaim, signer [20]byte, signers int, threshold uint64) lendingEvent {
	return claimAttrs(claim).
		addr("witness", signer).
		u64("signers", uint64(signers)).
		u64("threshold", threshold).
		event(EventTypeAttestationRecorded)
}

func newQuorumEvent(claim CollateralClaim, signers int) lendingEvent {
	return claimAttrs(claim).u64("signers", uint64(signers)).event(EventTypeAttestationQuorum)
}

func newClearedEvent(key AttestationKey) lendingEvent {
	return attrs{}.u64("chainId", uint64(key.ChainID)).u64("lockId", key.LockID).event(EventTypeAttestationCleared)
}

func receiptAttrs(r *LoanReceipt) attrs {
	return attrs{}.
		u64("receiptId", r.ID).
		addr("borrower", r.Borrower).
		addr("lender", r.Lender).
		u64("chainId", uint64(r.ChainID)).
		u64("lockId", r.LockID).
		foreign("source", r.Source).
		foreign("token", r.Token).
		u64("frozen", r.Frozen).
		u64("amount", r.Amount).
		u64("issuedAt", r.IssuedAt).
		u64("rate", r.Rate)
}

func newBorrowEvent(r *LoanReceipt, order *Order) lendingEvent {
	return receiptAttrs(r).
		u64("orderId", order.ID).
		u64("orderRemaining", order.Remaining).
		event(EventTypeBorrowSucceeded)
}

func newRepayEvent(r *LoanReceipt, quote RepaymentQuote) lendingEvent {
	return attrs{}.
		u64("receiptId", r.ID).
		addr("borrower", r.Borrower).
		addr("lender", r.Lender).
		u64("chainId", uint64(r.ChainID)).
		u64("lockId", r.LockID).
		foreign("source", r.Source).
		foreign("token", r.Token).
		u64("frozen", r.Frozen).
		u64("principal", quote.Principal).
		u64("amountPaid", quote.AmountDue).
		u64("lenderIncome", quote.LenderIncome).
		u64("commission", quote.Commission).
		u64("relayFee", quote.RelayFee).
		event(EventTypeRepaySucceeded)
}

func newLiquidatedEvent(r *LoanReceipt, receiver [20]byte, relayFee uint64) lendingEvent {
	return receiptAttrs(r).
		foreign("receiver", receiver).
		u64("relayFee", relayFee).
		event(EventTypeLiquidated)
}

func newConfigEvent(cfg Config) lendingEvent {
	return attrs{}.
		u64("minRate", cfg.MinRate).
		u64("maxRate", cfg.MaxRate).
		u64("penaltyRate", cfg.PenaltyRate).
		u64("penaltyCapDays", cfg.PenaltyCapDays).
		u64("commissionRate", cfg.CommissionRate).
		u64("repaymentCycle", cfg.RepaymentCycle).
		u64("liquidationDeadline", cfg.LiquidationDeadline).
		event(EventTypeConfigUpdated)
}

func newRelayFeeEvent(chainID uint32, fee uint64) lendingEvent {
	return attrs{}.u64("chainId", uint64(chainID)).u64("fee", fee).event(EventTypeRelayFeeUpdated)
}

func newWitnessEvent(eventType string, witness [20]byte, set *WitnessSet) lendingEvent {
	return attrs{}.
		addr("witness", witness).
		u64("members", uint64(len(set.Members))).
		u64("threshold", set.Threshold).
		event(eventType)
}
