package lending

import "testing"

const loanAmount = 1_000_000

func (f *fixture) openLoan(t *testing.T, lockID uint64) (orderID, receiptID uint64) {
	t.Helper()
	orderID = f.placeOrder(t, loanAmount, 500)
	f.attestQuorum(t, claimFor(lockID, orderID, loanAmount))
	receiptID, err := f.engine.Borrow(testChain, lockID, borrowerAddr)
	if err != nil {
		t.Fatalf("borrow: %v", err)
	}
	return orderID, receiptID
}

func TestBorrowIssuesReceipt(t *testing.T) {
	f := newFixture(t)
	orderID, receiptID := f.openLoan(t, 21)
	if receiptID != 1 {
		t.Fatalf("expected first receipt id 1, got %d", receiptID)
	}

	receipt, err := f.engine.Receipt(receiptID)
	if err != nil {
		t.Fatalf("receipt: %v", err)
	}
	if receipt.Borrower != borrowerAddr || receipt.Lender != lenderAddr || receipt.Amount != loanAmount {
		t.Fatalf("unexpected receipt %+v", receipt)
	}
	if receipt.Rate != 500 || receipt.IssuedAt != uint64(testIssued) || receipt.LockID != 21 {
		t.Fatalf("unexpected receipt terms %+v", receipt)
	}
	order, _ := f.engine.Order(orderID)
	if order.Remaining != 0 {
		t.Fatalf("expected order drained, got %d", order.Remaining)
	}
	record, _ := f.engine.Attestation(testChain, 21)
	if record.Status != StatusFinished {
		t.Fatalf("expected finished record, got %s", record.Status)
	}
	borrower, _ := f.engine.Account(borrowerAddr)
	if borrower.Native != 2_000_000 {
		t.Fatalf("expected loan paid out to borrower, got %d", borrower.Native)
	}
	attrs := f.emitter.last(t, EventTypeBorrowSucceeded)
	if attrs["receiptId"] != "1" || attrs["orderRemaining"] != "0" || attrs["amount"] != "1000000" {
		t.Fatalf("unexpected borrow attributes %v", attrs)
	}

	_, err = f.engine.Borrow(testChain, 21, borrowerAddr)
	expectErr(t, err, ErrNoQuorum)
}

func TestBorrowPreconditions(t *testing.T) {
	f := newFixture(t)
	orderID := f.placeOrder(t, 500, 500)

	_, err := f.engine.Borrow(testChain, 30, borrowerAddr)
	expectErr(t, err, ErrAttestationNotFound)

	if _, err := f.engine.SubmitAttestation(testChain, 30, claimFor(30, orderID, 500), witnessA); err != nil {
		t.Fatalf("attest: %v", err)
	}
	_, err = f.engine.Borrow(testChain, 30, borrowerAddr)
	expectErr(t, err, ErrNoQuorum)

	f.attestQuorum(t, claimFor(31, orderID, 501))
	_, err = f.engine.Borrow(testChain, 31, borrowerAddr)
	expectErr(t, err, ErrInsufficientOrderCapacity)

	f.attestQuorum(t, claimFor(32, orderID, 100))
	_, err = f.engine.Borrow(testChain, 32, strangerAddr)
	expectErr(t, err, ErrRecipientMismatch)

	f.attestQuorum(t, claimFor(33, orderID+7, 100))
	_, err = f.engine.Borrow(testChain, 33, borrowerAddr)
	expectErr(t, err, ErrOrderNotFound)

	order, _ := f.engine.Order(orderID)
	if order.Remaining != 500 {
		t.Fatalf("expected failed borrows to leave the order untouched, got %d", order.Remaining)
	}
	global, _ := f.engine.Global()
	if global.NextReceiptID != 1 {
		t.Fatalf("expected no receipt ids allocated, got next=%d", global.NextReceiptID)
	}
	record, _ := f.engine.Attestation(testChain, 31)
	if record.Status != StatusReachedQuorum {
		t.Fatalf("expected failed borrow to keep quorum status, got %s", record.Status)
	}
}

func TestRepayOnTime(t *testing.T) {
	f := newFixture(t)
	_, receiptID := f.openLoan(t, 40)
	f.clock.advance(testCycle)

	quote, err := f.engine.QuoteRepayment(receiptID)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if quote.AmountDue != 1_050_000 {
		t.Fatalf("unexpected quote %+v", quote)
	}

	paid, err := f.engine.Repay(receiptID, borrowerAddr)
	if err != nil {
		t.Fatalf("repay: %v", err)
	}
	if paid != quote {
		t.Fatalf("expected repay to match quote, got %+v want %+v", paid, quote)
	}

	borrower, _ := f.engine.Account(borrowerAddr)
	if borrower.Native != 2_000_000-1_050_500 {
		t.Fatalf("unexpected borrower balance %d", borrower.Native)
	}
	admin, _ := f.engine.Account(adminAddr)
	if admin.Native != 5_000+500 {
		t.Fatalf("expected admin to receive commission and relay fee, got %d", admin.Native)
	}
	lender, _ := f.engine.Account(lenderAddr)
	if lender.Escrow != 1_045_000 {
		t.Fatalf("expected lender escrow credited, got %d", lender.Escrow)
	}
	vault, _ := f.engine.Account(VaultAddress)
	if vault.Native != 1_045_000 {
		t.Fatalf("expected vault to back lender escrow, got %d", vault.Native)
	}
	if _, err := f.engine.Receipt(receiptID); err == nil {
		t.Fatalf("expected receipt deleted")
	}
	attrs := f.emitter.last(t, EventTypeRepaySucceeded)
	if attrs["amountPaid"] != "1050000" || attrs["commission"] != "5000" || attrs["relayFee"] != "500" || attrs["lenderIncome"] != "1045000" {
		t.Fatalf("unexpected repay attributes %v", attrs)
	}

	_, err = f.engine.Repay(receiptID, borrowerAddr)
	expectErr(t, err, ErrReceiptNotFound)
}

func TestRepayWithPenalty(t *testing.T) {
	f := newFixture(t)
	_, receiptID := f.openLoan(t, 41)
	f.clock.advance(testCycle + 1)
	quote, err := f.engine.Repay(receiptID, borrowerAddr)
	if err != nil {
		t.Fatalf("repay: %v", err)
	}
	if quote.AmountDue != 1_060_000 || quote.Penalty != 10_000 {
		t.Fatalf("unexpected penalty quote %+v", quote)
	}
}

func TestRepayFailuresLeaveStateUntouched(t *testing.T) {
	f := newFixture(t)
	_, receiptID := f.openLoan(t, 42)

	_, err := f.engine.Repay(receiptID, lenderAddr)
	expectErr(t, err, ErrNotBorrower)

	f.state.data.native[borrowerAddr] = 1_000
	f.emitter.events = nil
	_, err = f.engine.Repay(receiptID, borrowerAddr)
	expectErr(t, err, ErrInsufficientFunds)

	if _, err := f.engine.Receipt(receiptID); err != nil {
		t.Fatalf("expected receipt to survive, got %v", err)
	}
	borrower, _ := f.engine.Account(borrowerAddr)
	if borrower.Native != 1_000 {
		t.Fatalf("expected balance untouched, got %d", borrower.Native)
	}
	if len(f.emitter.events) != 0 {
		t.Fatalf("expected no events, got %v", f.emitter.types())
	}
}

func TestLiquidate(t *testing.T) {
	f := newFixture(t)
	_, receiptID := f.openLoan(t, 50)
	receiver := makeAddress(0xEE)

	f.clock.advance(int64(testConfig().LiquidationDeadline))
	expectErr(t, f.engine.Liquidate(receiptID, lenderAddr, receiver), ErrDeadlineNotReached)
	f.clock.advance(1)
	expectErr(t, f.engine.Liquidate(receiptID, borrowerAddr, receiver), ErrNotLender)

	before, _ := f.engine.Account(lenderAddr)
	if err := f.engine.Liquidate(receiptID, lenderAddr, receiver); err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	after, _ := f.engine.Account(lenderAddr)
	if before.Native-after.Native != 500 {
		t.Fatalf("expected lender to pay relay fee, paid %d", before.Native-after.Native)
	}
	admin, _ := f.engine.Account(adminAddr)
	if admin.Native != 500 {
		t.Fatalf("expected admin to collect relay fee, got %d", admin.Native)
	}
	attrs := f.emitter.last(t, EventTypeLiquidated)
	if attrs["receiver"] != "0x01000000000000000000000000000000000000ee" {
		t.Fatalf("unexpected receiver attribute %q", attrs["receiver"])
	}
	expectErr(t, f.engine.Liquidate(receiptID, lenderAddr, receiver), ErrReceiptNotFound)
}
