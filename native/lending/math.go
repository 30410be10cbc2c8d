package lending

import "github.com/holiman/uint256"

const (
	secondsPerDay         = 86_400
	rateDenominator       = 10_000
	penaltyDenominator    = 1_000
	commissionDenominator = 100
)

// RepaymentQuote breaks down what a borrower owes at a point in time.
type RepaymentQuote struct {
	Principal    uint64
	Interest     uint64
	Penalty      uint64
	OverdueDays  uint64
	AmountDue    uint64
	Commission   uint64
	LenderIncome uint64
	RelayFee     uint64
	// TotalCharged is AmountDue plus the relay fee.
	TotalCharged uint64
}

// QuoteRepayment computes the amount due on receipt at now.
//
//	interest = amount * rate / 10000
//	due      = amount + interest (+ penalty once the cycle has elapsed)
//	penalty  = amount * penaltyRate / 1000 * min(floor(overdue / 1d) + 1, cap)
//	commission = (due - amount) * commissionRate / 100
//
// Intermediate products are carried in 256 bits; a result that does not fit
// in uint64 yields ErrOverflow.
func QuoteRepayment(receipt *LoanReceipt, cfg Config, now int64, relayFee uint64) (RepaymentQuote, error) {
	if receipt == nil {
		return RepaymentQuote{}, ErrReceiptNotFound
	}
	amount := uint256.NewInt(receipt.Amount)

	interest := mulDiv(receipt.Amount, receipt.Rate, rateDenominator)
	due := new(uint256.Int).Add(amount, interest)

	penalty := new(uint256.Int)
	days := overdueDays(receipt.IssuedAt, cfg.RepaymentCycle, cfg.PenaltyCapDays, now)
	if days > 0 {
		perDay := mulDiv(receipt.Amount, cfg.PenaltyRate, penaltyDenominator)
		penalty.Mul(perDay, uint256.NewInt(days))
		due.Add(due, penalty)
	}

	earned := new(uint256.Int).Sub(due, amount)
	commission := new(uint256.Int).Mul(earned, uint256.NewInt(cfg.CommissionRate))
	commission.Div(commission, uint256.NewInt(commissionDenominator))

	total := new(uint256.Int).Add(due, uint256.NewInt(relayFee))
	if !total.IsUint64() {
		return RepaymentQuote{}, ErrOverflow
	}
	income := new(uint256.Int).Sub(due, commission)

	return RepaymentQuote{
		Principal:    receipt.Amount,
		Interest:     interest.Uint64(),
		Penalty:      penalty.Uint64(),
		OverdueDays:  days,
		AmountDue:    due.Uint64(),
		Commission:   commission.Uint64(),
		LenderIncome: income.Uint64(),
		RelayFee:     relayFee,
		TotalCharged: total.Uint64(),
	}, nil
}

// overdueDays returns the number of penalised days. It is zero while now is
// within the repayment cycle; partial days count as a whole day.
func overdueDays(issuedAt, cycle, capDays uint64, now int64) uint64 {
	if now < 0 {
		return 0
	}
	dueBy := new(uint256.Int).Add(uint256.NewInt(issuedAt), uint256.NewInt(cycle))
	current := uint256.NewInt(uint64(now))
	if !current.Gt(dueBy) {
		return 0
	}
	elapsed := new(uint256.Int).Sub(current, dueBy)
	days := elapsed.Uint64()/secondsPerDay + 1
	if days > capDays {
		days = capDays
	}
	return days
}

// liquidatable reports whether now is strictly past issuedAt + deadline.
func liquidatable(issuedAt, deadline uint64, now int64) bool {
	if now < 0 {
		return false
	}
	limit := new(uint256.Int).Add(uint256.NewInt(issuedAt), uint256.NewInt(deadline))
	return uint256.NewInt(uint64(now)).Gt(limit)
}

func mulDiv(a, b, d uint64) *uint256.Int {
	product := new(uint256.Int).Mul(uint256.NewInt(a), uint256.NewInt(b))
	return product.Div(product, uint256.NewInt(d))
}

func checkedAdd(a, b uint64) (uint64, error) {
	sum := new(uint256.Int).Add(uint256.NewInt(a), uint256.NewInt(b))
	if !sum.IsUint64() {
		return 0, ErrOverflow
	}
	return sum.Uint64(), nil
}
