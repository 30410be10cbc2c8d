package rpc

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"xlend/crypto"
	"xlend/native/lending"
)

// Quantity is a uint64 carried as a decimal string on the wire. Bare JSON
// numbers are accepted on input.
type Quantity uint64

func (q Quantity) MarshalJSON() ([]byte, error) {
	return json.Marshal(strconv.FormatUint(uint64(q), 10))
}

func (q *Quantity) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		return nil
	}
	raw = strings.Trim(raw, `"`)
	v, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid quantity %q", raw)
	}
	*q = Quantity(v)
	return nil
}

func parseLedgerAddress(field, value string) ([20]byte, error) {
	addr, err := crypto.DecodeAddress20(strings.TrimSpace(value), crypto.XLPrefix)
	if err != nil {
		return [20]byte{}, invalidParam(fmt.Errorf("%s: %w", field, err))
	}
	return addr, nil
}

func parseForeignAddress(field, value string) ([20]byte, error) {
	value = strings.TrimSpace(value)
	if !common.IsHexAddress(value) {
		return [20]byte{}, invalidParam(fmt.Errorf("%s: expected a 0x-prefixed 20-byte hex address", field))
	}
	return [20]byte(common.HexToAddress(value)), nil
}

func ledgerString(b [20]byte) string { return crypto.FromBytes20(b).String() }

func foreignString(b [20]byte) string { return "0x" + hex.EncodeToString(b[:]) }

// AmountRequest moves funds between native and escrow balances.
type AmountRequest struct {
	Amount Quantity `json:"amount"`
}

// PlaceOrderRequest offers Amount of the signer's escrow at Rate.
type PlaceOrderRequest struct {
	Amount Quantity `json:"amount"`
	Rate   Quantity `json:"rate"`
}

// Claim is the wire form of a collateral claim.
type Claim struct {
	ChainID  uint32   `json:"chainId"`
	LockID   Quantity `json:"lockId"`
	Source   string   `json:"source"`
	Token    string   `json:"token"`
	Frozen   Quantity `json:"frozen"`
	Borrower string   `json:"borrower"`
	OrderID  Quantity `json:"orderId"`
	Amount   Quantity `json:"amount"`
}

// NewClaim renders c for the wire.
func NewClaim(c lending.CollateralClaim) Claim {
	return Claim{
		ChainID:  c.ChainID,
		LockID:   Quantity(c.LockID),
		Source:   foreignString(c.Source),
		Token:    foreignString(c.Token),
		Frozen:   Quantity(c.Frozen),
		Borrower: ledgerString(c.Borrower),
		OrderID:  Quantity(c.OrderID),
		Amount:   Quantity(c.Amount),
	}
}

func (c Claim) toLending() (lending.CollateralClaim, error) {
	source, err := parseForeignAddress("source", c.Source)
	if err != nil {
		return lending.CollateralClaim{}, err
	}
	token, err := parseForeignAddress("token", c.Token)
	if err != nil {
		return lending.CollateralClaim{}, err
	}
	borrower, err := parseLedgerAddress("borrower", c.Borrower)
	if err != nil {
		return lending.CollateralClaim{}, err
	}
	return lending.CollateralClaim{
		ChainID:  c.ChainID,
		LockID:   uint64(c.LockID),
		Source:   source,
		Token:    token,
		Frozen:   uint64(c.Frozen),
		Borrower: borrower,
		OrderID:  uint64(c.OrderID),
		Amount:   uint64(c.Amount),
	}, nil
}

// AttestRequest submits one witness signature over Claim.
type AttestRequest struct {
	Claim Claim `json:"claim"`
}

// LockRequest names a lock event on a foreign ledger.
type LockRequest struct {
	ChainID uint32   `json:"chainId"`
	LockID  Quantity `json:"lockId"`
}

// LiquidateRequest names the foreign address that receives the collateral.
type LiquidateRequest struct {
	Receiver string `json:"receiver"`
}

// RelayFeeRequest sets the relay fee for one foreign chain.
type RelayFeeRequest struct {
	ChainID uint32   `json:"chainId"`
	Fee     Quantity `json:"fee"`
}

// WitnessRequest adds or removes a witness.
type WitnessRequest struct {
	Witness string `json:"witness"`
}

// Config is the wire form of the protocol parameters.
type Config struct {
	MinRate                    Quantity `json:"minRate"`
	MaxRate                    Quantity `json:"maxRate"`
	PenaltyRate                Quantity `json:"penaltyRate"`
	PenaltyCapDays             Quantity `json:"penaltyCapDays"`
	CommissionRate             Quantity `json:"commissionRate"`
	RepaymentCycleSeconds      Quantity `json:"repaymentCycleSeconds"`
	LiquidationDeadlineSeconds Quantity `json:"liquidationDeadlineSeconds"`
}

func newConfig(c lending.Config) Config {
	return Config{
		MinRate:                    Quantity(c.MinRate),
		MaxRate:                    Quantity(c.MaxRate),
		PenaltyRate:                Quantity(c.PenaltyRate),
		PenaltyCapDays:             Quantity(c.PenaltyCapDays),
		CommissionRate:             Quantity(c.CommissionRate),
		RepaymentCycleSeconds:      Quantity(c.RepaymentCycle),
		LiquidationDeadlineSeconds: Quantity(c.LiquidationDeadline),
	}
}

func (c Config) toLending() lending.Config {
	return lending.Config{
		MinRate:             uint64(c.MinRate),
		MaxRate:             uint64(c.MaxRate),
		PenaltyRate:         uint64(c.PenaltyRate),
		PenaltyCapDays:      uint64(c.PenaltyCapDays),
		CommissionRate:      uint64(c.CommissionRate),
		RepaymentCycle:      uint64(c.RepaymentCycleSeconds),
		LiquidationDeadline: uint64(c.LiquidationDeadlineSeconds),
	}
}

// ConfigResult is returned by the config endpoint.
type ConfigResult struct {
	Admin  string `json:"admin"`
	Config Config `json:"config"`
}

// IDResult reports an allocated order or receipt id.
type IDResult struct {
	ID Quantity `json:"id"`
}

// StatusResult reports the attestation status after a submission.
type StatusResult struct {
	Status string `json:"status"`
}

// Order is the wire form of an order book entry.
type Order struct {
	ID        Quantity `json:"id"`
	Lender    string   `json:"lender"`
	Remaining Quantity `json:"remaining"`
	Rate      Quantity `json:"rate"`
}

func newOrder(o *lending.Order) Order {
	return Order{ID: Quantity(o.ID), Lender: ledgerString(o.Lender), Remaining: Quantity(o.Remaining), Rate: Quantity(o.Rate)}
}

// Receipt is the wire form of an open loan.
type Receipt struct {
	ID       Quantity `json:"id"`
	Borrower string   `json:"borrower"`
	Lender   string   `json:"lender"`
	ChainID  uint32   `json:"chainId"`
	LockID   Quantity `json:"lockId"`
	Source   string   `json:"source"`
	Token    string   `json:"token"`
	Frozen   Quantity `json:"frozen"`
	Amount   Quantity `json:"amount"`
	IssuedAt Quantity `json:"issuedAt"`
	Rate     Quantity `json:"rate"`
	OrderID  Quantity `json:"orderId"`
}

func newReceipt(r *lending.LoanReceipt) Receipt {
	return Receipt{
		ID:       Quantity(r.ID),
		Borrower: ledgerString(r.Borrower),
		Lender:   ledgerString(r.Lender),
		ChainID:  r.ChainID,
		LockID:   Quantity(r.LockID),
		Source:   foreignString(r.Source),
		Token:    foreignString(r.Token),
		Frozen:   Quantity(r.Frozen),
		Amount:   Quantity(r.Amount),
		IssuedAt: Quantity(r.IssuedAt),
		Rate:     Quantity(r.Rate),
		OrderID:  Quantity(r.OrderID),
	}
}

// Quote is the wire form of a repayment quote.
type Quote struct {
	Principal    Quantity `json:"principal"`
	Interest     Quantity `json:"interest"`
	Penalty      Quantity `json:"penalty"`
	OverdueDays  Quantity `json:"overdueDays"`
	AmountDue    Quantity `json:"amountDue"`
	Commission   Quantity `json:"commission"`
	LenderIncome Quantity `json:"lenderIncome"`
	RelayFee     Quantity `json:"relayFee"`
	TotalCharged Quantity `json:"totalCharged"`
}

func newQuote(q lending.RepaymentQuote) Quote {
	return Quote{
		Principal:    Quantity(q.Principal),
		Interest:     Quantity(q.Interest),
		Penalty:      Quantity(q.Penalty),
		OverdueDays:  Quantity(q.OverdueDays),
		AmountDue:    Quantity(q.AmountDue),
		Commission:   Quantity(q.Commission),
		LenderIncome: Quantity(q.LenderIncome),
		RelayFee:     Quantity(q.RelayFee),
		TotalCharged: Quantity(q.TotalCharged),
	}
}

// Branch is one candidate claim and the witnesses that signed it.
type Branch struct {
	ClaimHash string   `json:"claimHash"`
	Claim     Claim    `json:"claim"`
	Signers   []string `json:"signers"`
}

// Attestation is the wire form of an attestation record.
type Attestation struct {
	ChainID  uint32   `json:"chainId"`
	LockID   Quantity `json:"lockId"`
	Status   string   `json:"status"`
	Branches []Branch `json:"branches"`
}

func newAttestation(rec *lending.AttestationRecord) Attestation {
	out := Attestation{
		ChainID:  rec.ChainID,
		LockID:   Quantity(rec.LockID),
		Status:   rec.Status.String(),
		Branches: make([]Branch, 0, len(rec.Branches)),
	}
	for _, b := range rec.Branches {
		hash := b.Claim.Hash()
		signers := make([]string, 0, len(b.Signers))
		for _, s := range b.Signers {
			signers = append(signers, ledgerString(s))
		}
		out.Branches = append(out.Branches, Branch{
			ClaimHash: "0x" + hex.EncodeToString(hash[:]),
			Claim:     NewClaim(b.Claim),
			Signers:   signers,
		})
	}
	return out
}

// Witnesses lists the witness set and its quorum threshold.
type Witnesses struct {
	Members   []string `json:"members"`
	Threshold Quantity `json:"threshold"`
}

func newWitnesses(set *lending.WitnessSet) Witnesses {
	out := Witnesses{Members: make([]string, 0, len(set.Members)), Threshold: Quantity(set.Threshold)}
	for _, m := range set.Members {
		out.Members = append(out.Members, ledgerString(m))
	}
	return out
}

// Account reports native and escrow balances.
type Account struct {
	Address string   `json:"address"`
	Native  Quantity `json:"native"`
	Escrow  Quantity `json:"escrow"`
}

// RelayFee reports the relay fee configured for a chain.
type RelayFee struct {
	ChainID uint32   `json:"chainId"`
	Fee     Quantity `json:"fee"`
}

// EventsResult is a page of the event log.
type EventsResult struct {
	Events  []EventRecord `json:"events"`
	LastSeq uint64        `json:"lastSeq"`
}

// EventRecord is one sequenced event.
type EventRecord struct {
	Seq        uint64            `json:"seq"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
