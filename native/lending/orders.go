package lending

// PlaceOrder debits amount from the lender's escrow and opens a standing
// order at rate basis points. It returns the allocated order id.
func (e *Engine) PlaceOrder(lender [20]byte, amount, rate uint64) (uint64, error) {
	var id uint64
	err := e.execute("place_order", true, func(tx *txn) error {
		global, err := tx.global()
		if err != nil {
			return err
		}
		cfg, err := tx.config()
		if err != nil {
			return err
		}
		if amount == 0 {
			return ErrInvalidAmount
		}
		if !cfg.RateAllowed(rate) {
			return ErrRateOutOfRange
		}
		if err := tx.debitEscrow(lender, amount); err != nil {
			return err
		}
		global = global.Clone()
		order := &Order{ID: global.allocateOrderID(), Lender: lender, Remaining: amount, Rate: rate}
		if err := tx.PutGlobal(global); err != nil {
			return err
		}
		if err := tx.PutOrder(order); err != nil {
			return err
		}
		id = order.ID
		tx.emit(newOrderEvent(EventTypeOrderPlaced, order, amount))
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// CancelOrder refunds the remaining balance to the lender's escrow and
// removes the order.
func (e *Engine) CancelOrder(id uint64, caller [20]byte) error {
	return e.execute("cancel_order", true, func(tx *txn) error {
		order, err := tx.order(id)
		if err != nil {
			return err
		}
		if order.Lender != caller {
			return ErrNotOwner
		}
		refund := order.Remaining
		if err := tx.creditEscrow(order.Lender, refund); err != nil {
			return err
		}
		if err := tx.DeleteOrder(id); err != nil {
			return err
		}
		order.Remaining = 0
		tx.emit(newOrderEvent(EventTypeOrderCancelled, order, refund))
		return nil
	})
}

// CloseOrder removes an order whose remaining balance has been fully lent.
func (e *Engine) CloseOrder(id uint64) error {
	return e.execute("close_order", true, func(tx *txn) error {
		order, err := tx.order(id)
		if err != nil {
			return err
		}
		if order.Remaining != 0 {
			return ErrNonZeroBalance
		}
		if err := tx.DeleteOrder(id); err != nil {
			return err
		}
		tx.emit(newOrderEvent(EventTypeOrderClosed, order, 0))
		return nil
	})
}

func (t *txn) order(id uint64) (*Order, error) {
	order, ok, err := t.GetOrder(id)
	if err != nil {
		return nil, err
	}
	if !ok || order == nil {
		return nil, ErrOrderNotFound
	}
	return order.Clone(), nil
}
