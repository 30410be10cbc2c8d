package lending

import (
	"sync"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"xlend/core/events"
	nativecommon "xlend/native/common"
)

const moduleName = "lending"

// VaultAddress is the protocol account holding deposited escrow funds.
var VaultAddress = func() [20]byte {
	var out [20]byte
	copy(out[:], ethcrypto.Keccak256([]byte("xlend/lending/vault"))[12:])
	return out
}()

// Store is the transactional view the engine mutates. Getters report
// absence through the boolean rather than an error.
type Store interface {
	GetGlobal() (*Global, bool, error)
	PutGlobal(g *Global) error
	GetConfig() (*Config, bool, error)
	PutConfig(cfg *Config) error

	GetOrder(id uint64) (*Order, bool, error)
	PutOrder(order *Order) error
	DeleteOrder(id uint64) error

	GetAttestation(key AttestationKey) (*AttestationRecord, bool, error)
	PutAttestation(record *AttestationRecord) error

	GetReceipt(id uint64) (*LoanReceipt, bool, error)
	PutReceipt(receipt *LoanReceipt) error
	DeleteReceipt(id uint64) error

	GetWitnesses() (*WitnessSet, error)
	PutWitnesses(set *WitnessSet) error

	GetRelayFee(chainID uint32) (uint64, error)
	PutRelayFee(chainID uint32, fee uint64) error

	GetEscrowBalance(addr [20]byte) (uint64, error)
	PutEscrowBalance(addr [20]byte, amount uint64) error
	GetNativeBalance(addr [20]byte) (uint64, error)
	PutNativeBalance(addr [20]byte, amount uint64) error
}

// engineState runs fn against a Store. Update must apply every write made
// by fn or none of them.
type engineState interface {
	Update(fn func(Store) error) error
	View(fn func(Store) error) error
}

// OperationRecorder observes the outcome of each engine operation.
type OperationRecorder interface {
	RecordOperation(operation string, err error, elapsed time.Duration)
}

// Engine orchestrates the state transitions for the lending module.
type Engine struct {
	mu       sync.Mutex
	state    engineState
	emitter  events.Emitter
	recorder OperationRecorder
	nowFn    func() time.Time
	pauses   nativecommon.PauseView
}

// NewEngine constructs an engine with a no-op emitter and the wall clock.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   time.Now,
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the sink receiving events after successful commits.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

// SetNowFunc overrides the clock used to stamp loans and measure deadlines.
func (e *Engine) SetNowFunc(now func() time.Time) {
	if e == nil {
		return
	}
	if now == nil {
		now = time.Now
	}
	e.nowFn = now
}

func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

func (e *Engine) SetRecorder(r OperationRecorder) {
	if e == nil {
		return
	}
	e.recorder = r
}

func (e *Engine) now() int64 {
	if e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn().Unix()
}

// txn carries the store for one operation and buffers its events until the
// state commit succeeds.
type txn struct {
	Store
	now    int64
	events []events.Event
}

func (t *txn) emit(evt events.Event) { t.events = append(t.events, evt) }

// global returns the root record or ErrNotInitialized.
func (t *txn) global() (*Global, error) {
	g, ok, err := t.GetGlobal()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotInitialized
	}
	return g, nil
}

func (t *txn) config() (Config, error) {
	cfg, ok, err := t.GetConfig()
	if err != nil {
		return Config{}, err
	}
	if !ok || cfg == nil {
		return Config{}, ErrNotInitialized
	}
	return *cfg, nil
}

func (t *txn) requireAdmin(caller [20]byte) (*Global, error) {
	g, err := t.global()
	if err != nil {
		return nil, err
	}
	if g.Admin != caller {
		return nil, ErrNotAdmin
	}
	return g, nil
}

func (t *txn) creditNative(addr [20]byte, amount uint64) error {
	if amount == 0 {
		return nil
	}
	balance, err := t.GetNativeBalance(addr)
	if err != nil {
		return err
	}
	next, err := checkedAdd(balance, amount)
	if err != nil {
		return err
	}
	return t.PutNativeBalance(addr, next)
}

func (t *txn) debitNative(addr [20]byte, amount uint64) error {
	if amount == 0 {
		return nil
	}
	balance, err := t.GetNativeBalance(addr)
	if err != nil {
		return err
	}
	if balance < amount {
		return ErrInsufficientFunds
	}
	return t.PutNativeBalance(addr, balance-amount)
}

func (t *txn) transferNative(from, to [20]byte, amount uint64) error {
	if from == to {
		return nil
	}
	if err := t.debitNative(from, amount); err != nil {
		return err
	}
	return t.creditNative(to, amount)
}

func (t *txn) creditEscrow(addr [20]byte, amount uint64) error {
	balance, err := t.GetEscrowBalance(addr)
	if err != nil {
		return err
	}
	next, err := checkedAdd(balance, amount)
	if err != nil {
		return err
	}
	return t.PutEscrowBalance(addr, next)
}

func (t *txn) debitEscrow(addr [20]byte, amount uint64) error {
	balance, err := t.GetEscrowBalance(addr)
	if err != nil {
		return err
	}
	if balance < amount {
		return ErrInsufficientBalance
	}
	return t.PutEscrowBalance(addr, balance-amount)
}

// execute runs fn inside one state transaction. Guarded operations are
// refused while the module is paused. Events are only emitted once the
// transaction has committed.
func (e *Engine) execute(operation string, guarded bool, fn func(*txn) error) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if guarded {
		if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
			return err
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	started := time.Now()
	var committed []events.Event
	err := e.state.Update(func(store Store) error {
		tx := &txn{Store: store, now: e.now()}
		if err := fn(tx); err != nil {
			return err
		}
		committed = tx.events
		return nil
	})
	if e.recorder != nil {
		e.recorder.RecordOperation(operation, err, time.Since(started))
	}
	if err != nil {
		return err
	}
	emitter := e.emitter
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	for _, evt := range committed {
		emitter.Emit(evt)
	}
	return nil
}

// view runs fn against a read-only snapshot.
func (e *Engine) view(fn func(*txn) error) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.View(func(store Store) error {
		return fn(&txn{Store: store, now: e.now()})
	})
}
