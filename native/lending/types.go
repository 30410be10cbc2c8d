package lending

import (
	"bytes"
	"fmt"
	"sort"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// AttestationStatus tracks the lifecycle of a collateral attestation record.
type AttestationStatus uint8

const (
	StatusStarting AttestationStatus = iota
	StatusInProgress
	StatusReachedQuorum
	StatusFinished
)

func (s AttestationStatus) String() string {
	switch s {
	case StatusStarting:
		return "starting"
	case StatusInProgress:
		return "in_progress"
	case StatusReachedQuorum:
		return "reached_quorum"
	case StatusFinished:
		return "finished"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// Valid reports whether the status is one of the known lifecycle stages.
func (s AttestationStatus) Valid() bool { return s <= StatusFinished }

// AttestationKey identifies a lock event on a foreign ledger.
type AttestationKey struct {
	ChainID uint32
	LockID  uint64
}

func (k AttestationKey) String() string {
	return fmt.Sprintf("%d/%d", k.ChainID, k.LockID)
}

// CollateralClaim is the content witnesses attest to. Two claims are equal
// only when every field matches.
type CollateralClaim struct {
	ChainID  uint32
	LockID   uint64
	Source   [20]byte
	Token    [20]byte
	Frozen   uint64
	Borrower [20]byte
	OrderID  uint64
	Amount   uint64
}

// Key returns the attestation record key the claim belongs to.
func (c CollateralClaim) Key() AttestationKey {
	return AttestationKey{ChainID: c.ChainID, LockID: c.LockID}
}

// Hash returns keccak256 over the RLP encoding of every claim field. It is
// used to look up the branch holding an identical claim.
func (c CollateralClaim) Hash() [32]byte {
	encoded, err := rlp.EncodeToBytes(&c)
	if err != nil {
		// Fixed-size and integer fields always encode.
		panic(fmt.Sprintf("lending: encode claim: %v", err))
	}
	var out [32]byte
	copy(out[:], ethcrypto.Keccak256(encoded))
	return out
}

// Branch groups the witnesses that attested to exactly the same claim.
type Branch struct {
	Claim   CollateralClaim
	Signers [][20]byte
}

func (b *Branch) hasSigner(signer [20]byte) bool {
	for _, s := range b.Signers {
		if s == signer {
			return true
		}
	}
	return false
}

// AttestationRecord collects competing branches for one foreign lock event.
// A signer appears in at most one branch.
type AttestationRecord struct {
	ChainID  uint32
	LockID   uint64
	Status   AttestationStatus
	Branches []Branch

	index map[[32]byte]int
}

// Key returns the record key.
func (r *AttestationRecord) Key() AttestationKey {
	return AttestationKey{ChainID: r.ChainID, LockID: r.LockID}
}

func (r *AttestationRecord) reindex() {
	r.index = make(map[[32]byte]int, len(r.Branches))
	for i := range r.Branches {
		r.index[r.Branches[i].Claim.Hash()] = i
	}
}

// branchFor returns the index of the branch carrying an identical claim, or -1.
func (r *AttestationRecord) branchFor(claim CollateralClaim) int {
	if r.index == nil || len(r.index) != len(r.Branches) {
		r.reindex()
	}
	idx, ok := r.index[claim.Hash()]
	if !ok {
		return -1
	}
	return idx
}

func (r *AttestationRecord) openBranch(claim CollateralClaim, signer [20]byte) {
	r.Branches = append(r.Branches, Branch{Claim: claim, Signers: [][20]byte{signer}})
	if r.index == nil {
		r.index = make(map[[32]byte]int)
	}
	r.index[claim.Hash()] = len(r.Branches) - 1
}

// quorateBranch returns the index of the first branch holding at least
// threshold signers, or -1.
func (r *AttestationRecord) quorateBranch(threshold uint64) int {
	if threshold == 0 {
		return -1
	}
	for i := range r.Branches {
		if uint64(len(r.Branches[i].Signers)) >= threshold {
			return i
		}
	}
	return -1
}

// settle keeps branch idx with its first threshold signers and marks the
// record as having reached quorum.
func (r *AttestationRecord) settle(idx int, threshold uint64) {
	branch := r.Branches[idx]
	if uint64(len(branch.Signers)) > threshold {
		branch.Signers = append([][20]byte(nil), branch.Signers[:threshold]...)
	}
	r.Branches = []Branch{branch}
	r.reindex()
	r.Status = StatusReachedQuorum
}

// HasSigned reports whether signer appears in any branch.
func (r *AttestationRecord) HasSigned(signer [20]byte) bool {
	for i := range r.Branches {
		if r.Branches[i].hasSigner(signer) {
			return true
		}
	}
	return false
}

// SignerCount returns the number of signers across all retained branches.
func (r *AttestationRecord) SignerCount() int {
	total := 0
	for i := range r.Branches {
		total += len(r.Branches[i].Signers)
	}
	return total
}

// Winner returns the finalized claim once the record has reached quorum.
func (r *AttestationRecord) Winner() (CollateralClaim, bool) {
	if r == nil || r.Status != StatusReachedQuorum || len(r.Branches) != 1 {
		return CollateralClaim{}, false
	}
	return r.Branches[0].Claim, true
}

// Clone returns a deep copy of the record.
func (r *AttestationRecord) Clone() *AttestationRecord {
	if r == nil {
		return nil
	}
	clone := &AttestationRecord{ChainID: r.ChainID, LockID: r.LockID, Status: r.Status}
	if len(r.Branches) > 0 {
		clone.Branches = make([]Branch, len(r.Branches))
		for i, b := range r.Branches {
			clone.Branches[i] = Branch{Claim: b.Claim, Signers: append([][20]byte(nil), b.Signers...)}
		}
	}
	return clone
}

// Order is a lender's standing offer. Remaining only decreases after
// placement.
type Order struct {
	ID        uint64
	Lender    [20]byte
	Remaining uint64
	Rate      uint64
}

// Clone returns a copy of the order.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	return &clone
}

// LoanReceipt records one open loan.
type LoanReceipt struct {
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

// Clone returns a copy of the receipt.
func (r *LoanReceipt) Clone() *LoanReceipt {
	if r == nil {
		return nil
	}
	clone := *r
	return &clone
}

// WitnessSet lists the authorised witnesses and the quorum threshold.
type WitnessSet struct {
	Members   [][20]byte
	Threshold uint64
}

// QuorumThreshold returns ceil(2n/3).
func QuorumThreshold(members int) uint64 {
	if members <= 0 {
		return 0
	}
	return uint64((2*members + 2) / 3)
}

// Contains reports whether addr is a member.
func (w *WitnessSet) Contains(addr [20]byte) bool {
	if w == nil {
		return false
	}
	for _, m := range w.Members {
		if m == addr {
			return true
		}
	}
	return false
}

func (w *WitnessSet) add(addr [20]byte) bool {
	if w.Contains(addr) {
		return false
	}
	w.Members = append(w.Members, addr)
	w.normalize()
	return true
}

func (w *WitnessSet) remove(addr [20]byte) bool {
	for i, m := range w.Members {
		if m == addr {
			w.Members = append(w.Members[:i:i], w.Members[i+1:]...)
			w.normalize()
			return true
		}
	}
	return false
}

// normalize sorts members for deterministic encoding and recomputes the
// threshold.
func (w *WitnessSet) normalize() {
	sort.Slice(w.Members, func(i, j int) bool {
		return bytes.Compare(w.Members[i][:], w.Members[j][:]) < 0
	})
	w.Threshold = QuorumThreshold(len(w.Members))
}

// Clone returns a deep copy of the witness set.
func (w *WitnessSet) Clone() *WitnessSet {
	if w == nil {
		return &WitnessSet{}
	}
	return &WitnessSet{Members: append([][20]byte(nil), w.Members...), Threshold: w.Threshold}
}

// Global is the root record holding the sequence counters and the
// administrator identity.
type Global struct {
	NextOrderID   uint64
	NextReceiptID uint64
	Admin         [20]byte
}

// Clone returns a copy of the global record.
func (g *Global) Clone() *Global {
	if g == nil {
		return nil
	}
	clone := *g
	return &clone
}

func (g *Global) allocateOrderID() uint64 {
	id := g.NextOrderID
	g.NextOrderID++
	return id
}

func (g *Global) allocateReceiptID() uint64 {
	id := g.NextReceiptID
	g.NextReceiptID++
	return id
}

// Genesis seeds the protocol on first start.
type Genesis struct {
	Admin     [20]byte
	Config    Config
	Witnesses [][20]byte
	RelayFees map[uint32]uint64
	Balances  map[[20]byte]uint64
}
