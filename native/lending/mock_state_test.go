package lending

import (
	"errors"
	"testing"
	"time"

	"xlend/core/events"
)

// mockEngineState keeps every record in maps. Update runs against a copy and
// swaps it in only when fn succeeds.
type mockEngineState struct {
	data *mockData
}

type mockData struct {
	global       *Global
	config       *Config
	orders       map[uint64]*Order
	attestations map[AttestationKey]*AttestationRecord
	receipts     map[uint64]*LoanReceipt
	witnesses    *WitnessSet
	relayFees    map[uint32]uint64
	escrow       map[[20]byte]uint64
	native       map[[20]byte]uint64
}

func newMockEngineState() *mockEngineState {
	return &mockEngineState{data: &mockData{
		orders:       make(map[uint64]*Order),
		attestations: make(map[AttestationKey]*AttestationRecord),
		receipts:     make(map[uint64]*LoanReceipt),
		witnesses:    &WitnessSet{},
		relayFees:    make(map[uint32]uint64),
		escrow:       make(map[[20]byte]uint64),
		native:       make(map[[20]byte]uint64),
	}}
}

func (d *mockData) clone() *mockData {
	out := &mockData{
		global:       d.global.Clone(),
		orders:       make(map[uint64]*Order, len(d.orders)),
		attestations: make(map[AttestationKey]*AttestationRecord, len(d.attestations)),
		receipts:     make(map[uint64]*LoanReceipt, len(d.receipts)),
		witnesses:    d.witnesses.Clone(),
		relayFees:    make(map[uint32]uint64, len(d.relayFees)),
		escrow:       make(map[[20]byte]uint64, len(d.escrow)),
		native:       make(map[[20]byte]uint64, len(d.native)),
	}
	if d.config != nil {
		cfg := *d.config
		out.config = &cfg
	}
	for k, v := range d.orders {
		out.orders[k] = v.Clone()
	}
	for k, v := range d.attestations {
		out.attestations[k] = v.Clone()
	}
	for k, v := range d.receipts {
		out.receipts[k] = v.Clone()
	}
	for k, v := range d.relayFees {
		out.relayFees[k] = v
	}
	for k, v := range d.escrow {
		out.escrow[k] = v
	}
	for k, v := range d.native {
		out.native[k] = v
	}
	return out
}

func (m *mockEngineState) Update(fn func(Store) error) error {
	working := m.data.clone()
	if err := fn(working); err != nil {
		return err
	}
	m.data = working
	return nil
}

func (m *mockEngineState) View(fn func(Store) error) error {
	return fn(m.data.clone())
}

func (d *mockData) GetGlobal() (*Global, bool, error) {
	return d.global.Clone(), d.global != nil, nil
}

func (d *mockData) PutGlobal(g *Global) error {
	d.global = g.Clone()
	return nil
}

func (d *mockData) GetConfig() (*Config, bool, error) {
	if d.config == nil {
		return nil, false, nil
	}
	cfg := *d.config
	return &cfg, true, nil
}

func (d *mockData) PutConfig(cfg *Config) error {
	next := *cfg
	d.config = &next
	return nil
}

func (d *mockData) GetOrder(id uint64) (*Order, bool, error) {
	order, ok := d.orders[id]
	return order.Clone(), ok, nil
}

func (d *mockData) PutOrder(order *Order) error {
	d.orders[order.ID] = order.Clone()
	return nil
}

func (d *mockData) DeleteOrder(id uint64) error {
	delete(d.orders, id)
	return nil
}

func (d *mockData) GetAttestation(key AttestationKey) (*AttestationRecord, bool, error) {
	record, ok := d.attestations[key]
	return record.Clone(), ok, nil
}

func (d *mockData) PutAttestation(record *AttestationRecord) error {
	d.attestations[record.Key()] = record.Clone()
	return nil
}

func (d *mockData) GetReceipt(id uint64) (*LoanReceipt, bool, error) {
	receipt, ok := d.receipts[id]
	return receipt.Clone(), ok, nil
}

func (d *mockData) PutReceipt(receipt *LoanReceipt) error {
	d.receipts[receipt.ID] = receipt.Clone()
	return nil
}

func (d *mockData) DeleteReceipt(id uint64) error {
	delete(d.receipts, id)
	return nil
}

func (d *mockData) GetWitnesses() (*WitnessSet, error) { return d.witnesses.Clone(), nil }

func (d *mockData) PutWitnesses(set *WitnessSet) error {
	d.witnesses = set.Clone()
	return nil
}

func (d *mockData) GetRelayFee(chainID uint32) (uint64, error) { return d.relayFees[chainID], nil }

func (d *mockData) PutRelayFee(chainID uint32, fee uint64) error {
	d.relayFees[chainID] = fee
	return nil
}

func (d *mockData) GetEscrowBalance(addr [20]byte) (uint64, error) { return d.escrow[addr], nil }

func (d *mockData) PutEscrowBalance(addr [20]byte, amount uint64) error {
	d.escrow[addr] = amount
	return nil
}

func (d *mockData) GetNativeBalance(addr [20]byte) (uint64, error) { return d.native[addr], nil }

func (d *mockData) PutNativeBalance(addr [20]byte, amount uint64) error {
	d.native[addr] = amount
	return nil
}

type captureEmitter struct {
	events []events.Event
}

func (c *captureEmitter) Emit(evt events.Event) { c.events = append(c.events, evt) }

func (c *captureEmitter) types() []string {
	out := make([]string, len(c.events))
	for i, evt := range c.events {
		out[i] = evt.EventType()
	}
	return out
}

func (c *captureEmitter) last(t *testing.T, eventType string) map[string]string {
	t.Helper()
	for i := len(c.events) - 1; i >= 0; i-- {
		if c.events[i].EventType() != eventType {
			continue
		}
		payload, ok := c.events[i].(events.Payload)
		if !ok {
			t.Fatalf("event %s carries no payload", eventType)
		}
		return payload.Event().Attributes
	}
	t.Fatalf("event %s not emitted; got %v", eventType, c.types())
	return nil
}

type fakeClock struct {
	now int64
}

func (c *fakeClock) Now() time.Time { return time.Unix(c.now, 0) }

func (c *fakeClock) advance(seconds int64) { c.now += seconds }

func makeAddress(b byte) [20]byte {
	var out [20]byte
	out[0] = 0x01
	out[19] = b
	return out
}

var (
	adminAddr    = makeAddress(0xA0)
	lenderAddr   = makeAddress(0xA1)
	borrowerAddr = makeAddress(0xA2)
	strangerAddr = makeAddress(0xA3)
	witnessA     = makeAddress(0xB1)
	witnessB     = makeAddress(0xB2)
	witnessC     = makeAddress(0xB3)
)

const (
	testChain  uint32 = 1
	testCycle         = 30 * secondsPerDay
	testIssued int64  = 1_700_000_000
)

func testConfig() Config {
	return Config{
		MinRate:             100,
		MaxRate:             1_000,
		PenaltyRate:         10,
		PenaltyCapDays:      5,
		CommissionRate:      10,
		RepaymentCycle:      testCycle,
		LiquidationDeadline: 60 * secondsPerDay,
	}
}

type fixture struct {
	engine  *Engine
	state   *mockEngineState
	emitter *captureEmitter
	clock   *fakeClock
}

func newFixture(t *testing.T, witnesses ...[20]byte) *fixture {
	t.Helper()
	if len(witnesses) == 0 {
		witnesses = [][20]byte{witnessA, witnessB, witnessC}
	}
	f := &fixture{
		engine:  NewEngine(),
		state:   newMockEngineState(),
		emitter: &captureEmitter{},
		clock:   &fakeClock{now: testIssued},
	}
	f.engine.SetState(f.state)
	f.engine.SetEmitter(f.emitter)
	f.engine.SetNowFunc(f.clock.Now)
	err := f.engine.Initialize(Genesis{
		Admin:     adminAddr,
		Config:    testConfig(),
		Witnesses: witnesses,
		RelayFees: map[uint32]uint64{testChain: 500},
		Balances: map[[20]byte]uint64{
			lenderAddr:   10_000_000,
			borrowerAddr: 1_000_000,
			strangerAddr: 1_000,
		},
	})
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	f.emitter.events = nil
	return f
}

// placeOrder deposits and lists amount at rate for the lender.
func (f *fixture) placeOrder(t *testing.T, amount, rate uint64) uint64 {
	t.Helper()
	if err := f.engine.Deposit(lenderAddr, amount); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	id, err := f.engine.PlaceOrder(lenderAddr, amount, rate)
	if err != nil {
		t.Fatalf("place order: %v", err)
	}
	return id
}

func claimFor(lockID, orderID, amount uint64) CollateralClaim {
	return CollateralClaim{
		ChainID:  testChain,
		LockID:   lockID,
		Source:   makeAddress(0xC1),
		Token:    makeAddress(0xC2),
		Frozen:   amount * 2,
		Borrower: borrowerAddr,
		OrderID:  orderID,
		Amount:   amount,
	}
}

// attestQuorum submits claim from witnesses A and B.
func (f *fixture) attestQuorum(t *testing.T, claim CollateralClaim) {
	t.Helper()
	for _, w := range [][20]byte{witnessA, witnessB} {
		if _, err := f.engine.SubmitAttestation(claim.ChainID, claim.LockID, claim, w); err != nil {
			t.Fatalf("attest: %v", err)
		}
	}
}

func expectErr(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("expected %v, got %v", target, err)
	}
}
