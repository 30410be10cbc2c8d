package lending

import "testing"

func TestPlaceAndCancelRestoresEscrow(t *testing.T) {
	f := newFixture(t)
	if err := f.engine.Deposit(lenderAddr, 5_000); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	id, err := f.engine.PlaceOrder(lenderAddr, 3_000, 500)
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if id != 1 {
		t.Fatalf("expected first order id 1, got %d", id)
	}
	account, _ := f.engine.Account(lenderAddr)
	if account.Escrow != 2_000 {
		t.Fatalf("expected escrow 2000 after placement, got %d", account.Escrow)
	}
	placed := f.emitter.last(t, EventTypeOrderPlaced)
	if placed["orderId"] != "1" || placed["amount"] != "3000" || placed["rate"] != "500" {
		t.Fatalf("unexpected placed attributes %v", placed)
	}

	if err := f.engine.CancelOrder(id, lenderAddr); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	account, _ = f.engine.Account(lenderAddr)
	if account.Escrow != 5_000 {
		t.Fatalf("expected escrow restored to 5000, got %d", account.Escrow)
	}
	if _, err := f.engine.Order(id); err == nil {
		t.Fatalf("expected order to be removed")
	}
	if cancelled := f.emitter.last(t, EventTypeOrderCancelled); cancelled["amount"] != "3000" {
		t.Fatalf("unexpected cancelled attributes %v", cancelled)
	}

	next, err := f.engine.PlaceOrder(lenderAddr, 1_000, 500)
	if err != nil {
		t.Fatalf("place again: %v", err)
	}
	if next != 2 {
		t.Fatalf("expected order ids to keep increasing, got %d", next)
	}
}

func TestPlaceOrderValidation(t *testing.T) {
	f := newFixture(t)
	if err := f.engine.Deposit(lenderAddr, 1_000); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	f.emitter.events = nil

	_, err := f.engine.PlaceOrder(lenderAddr, 1_001, 500)
	expectErr(t, err, ErrInsufficientBalance)
	_, err = f.engine.PlaceOrder(lenderAddr, 100, 99)
	expectErr(t, err, ErrRateOutOfRange)
	_, err = f.engine.PlaceOrder(lenderAddr, 100, 1_001)
	expectErr(t, err, ErrRateOutOfRange)
	_, err = f.engine.PlaceOrder(lenderAddr, 0, 500)
	expectErr(t, err, ErrInvalidAmount)

	if len(f.emitter.events) != 0 {
		t.Fatalf("expected no events, got %v", f.emitter.types())
	}
	global, _ := f.engine.Global()
	if global.NextOrderID != 1 {
		t.Fatalf("expected counter untouched by failures, got %d", global.NextOrderID)
	}
	if id, err := f.engine.PlaceOrder(lenderAddr, 1_000, 1_000); err != nil || id != 1 {
		t.Fatalf("expected boundary rate accepted, got id=%d err=%v", id, err)
	}
}

func TestCancelOrderRequiresOwner(t *testing.T) {
	f := newFixture(t)
	id := f.placeOrder(t, 1_000, 500)
	expectErr(t, f.engine.CancelOrder(id, strangerAddr), ErrNotOwner)
	expectErr(t, f.engine.CancelOrder(id+1, lenderAddr), ErrOrderNotFound)
	order, err := f.engine.Order(id)
	if err != nil || order.Remaining != 1_000 {
		t.Fatalf("expected order intact, got %+v err=%v", order, err)
	}
}

func TestCloseOrderRequiresZeroBalance(t *testing.T) {
	f := newFixture(t)
	id := f.placeOrder(t, 1_000, 500)
	expectErr(t, f.engine.CloseOrder(id), ErrNonZeroBalance)

	f.attestQuorum(t, claimFor(1, id, 1_000))
	if _, err := f.engine.Borrow(testChain, 1, borrowerAddr); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	if err := f.engine.CloseOrder(id); err != nil {
		t.Fatalf("close: %v", err)
	}
	f.emitter.last(t, EventTypeOrderClosed)
	expectErr(t, f.engine.CloseOrder(id), ErrOrderNotFound)
}

func TestDepositAndWithdraw(t *testing.T) {
	f := newFixture(t)
	if err := f.engine.Deposit(strangerAddr, 600); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	expectErr(t, f.engine.Deposit(strangerAddr, 401), ErrInsufficientFunds)
	expectErr(t, f.engine.Withdraw(strangerAddr, 601), ErrInsufficientBalance)
	if err := f.engine.Withdraw(strangerAddr, 200); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	account, _ := f.engine.Account(strangerAddr)
	if account.Native != 600 || account.Escrow != 400 {
		t.Fatalf("unexpected balances %+v", account)
	}
	vault, _ := f.engine.Account(VaultAddress)
	if vault.Native != 400 {
		t.Fatalf("expected vault to hold 400, got %d", vault.Native)
	}
}
