package lending

import "testing"

func TestQuorumThreshold(t *testing.T) {
	cases := map[int]uint64{0: 0, 1: 1, 2: 2, 3: 2, 4: 3, 5: 4, 6: 4, 7: 5, 9: 6}
	for members, want := range cases {
		if got := QuorumThreshold(members); got != want {
			t.Fatalf("threshold(%d): got %d want %d", members, got, want)
		}
	}
}

func TestAttestationReachesQuorumWithTwoOfThree(t *testing.T) {
	f := newFixture(t)
	claim := claimFor(7, 1, 1_000)

	status, err := f.engine.SubmitAttestation(testChain, 7, claim, witnessA)
	if err != nil {
		t.Fatalf("first attestation: %v", err)
	}
	if status != StatusInProgress {
		t.Fatalf("expected in progress, got %s", status)
	}
	status, err = f.engine.SubmitAttestation(testChain, 7, claim, witnessB)
	if err != nil {
		t.Fatalf("second attestation: %v", err)
	}
	if status != StatusReachedQuorum {
		t.Fatalf("expected quorum, got %s", status)
	}

	record, err := f.engine.Attestation(testChain, 7)
	if err != nil {
		t.Fatalf("load record: %v", err)
	}
	winner, ok := record.Winner()
	if !ok || winner != claim {
		t.Fatalf("unexpected winner %+v ok=%v", winner, ok)
	}
	attrs := f.emitter.last(t, EventTypeAttestationQuorum)
	if attrs["signers"] != "2" || attrs["lockId"] != "7" {
		t.Fatalf("unexpected quorum attributes %v", attrs)
	}
}

func TestAttestationTwoMemberSetNeedsBoth(t *testing.T) {
	f := newFixture(t, witnessA, witnessB)
	set, err := f.engine.Witnesses()
	if err != nil {
		t.Fatalf("witnesses: %v", err)
	}
	if set.Threshold != 2 {
		t.Fatalf("expected threshold 2, got %d", set.Threshold)
	}
	claim := claimFor(1, 1, 10)
	if status, _ := f.engine.SubmitAttestation(testChain, 1, claim, witnessA); status != StatusInProgress {
		t.Fatalf("expected in progress after one signer, got %s", status)
	}
	if status, _ := f.engine.SubmitAttestation(testChain, 1, claim, witnessB); status != StatusReachedQuorum {
		t.Fatalf("expected quorum after both signers, got %s", status)
	}
}

func TestAttestationSingleWitnessQuorumImmediately(t *testing.T) {
	f := newFixture(t, witnessA)
	status, err := f.engine.SubmitAttestation(testChain, 3, claimFor(3, 1, 10), witnessA)
	if err != nil {
		t.Fatalf("attest: %v", err)
	}
	if status != StatusReachedQuorum {
		t.Fatalf("expected immediate quorum, got %s", status)
	}
}

func TestAttestationCompetingBranches(t *testing.T) {
	f := newFixture(t)
	honest := claimFor(9, 1, 1_000)
	forged := honest
	forged.Amount = 9_999

	if _, err := f.engine.SubmitAttestation(testChain, 9, honest, witnessA); err != nil {
		t.Fatalf("honest attestation: %v", err)
	}
	if _, err := f.engine.SubmitAttestation(testChain, 9, forged, witnessB); err != nil {
		t.Fatalf("forged attestation: %v", err)
	}
	record, _ := f.engine.Attestation(testChain, 9)
	if len(record.Branches) != 2 || record.Status != StatusInProgress {
		t.Fatalf("expected two open branches, got %d status %s", len(record.Branches), record.Status)
	}
	if record.SignerCount() != 2 {
		t.Fatalf("expected 2 signers, got %d", record.SignerCount())
	}

	if status, err := f.engine.SubmitAttestation(testChain, 9, honest, witnessC); err != nil || status != StatusReachedQuorum {
		t.Fatalf("expected quorum, got %s err=%v", status, err)
	}
	record, _ = f.engine.Attestation(testChain, 9)
	if len(record.Branches) != 1 {
		t.Fatalf("expected losing branches discarded, got %d", len(record.Branches))
	}
	if record.Branches[0].Claim != honest || len(record.Branches[0].Signers) != 2 {
		t.Fatalf("unexpected surviving branch %+v", record.Branches[0])
	}
}

func TestAttestationRejectsDuplicateSigner(t *testing.T) {
	f := newFixture(t)
	claim := claimFor(2, 1, 100)
	if _, err := f.engine.SubmitAttestation(testChain, 2, claim, witnessA); err != nil {
		t.Fatalf("attest: %v", err)
	}
	f.emitter.events = nil

	_, err := f.engine.SubmitAttestation(testChain, 2, claim, witnessA)
	expectErr(t, err, ErrDuplicateSignature)

	other := claim
	other.Frozen++
	_, err = f.engine.SubmitAttestation(testChain, 2, other, witnessA)
	expectErr(t, err, ErrDuplicateSignature)

	record, _ := f.engine.Attestation(testChain, 2)
	if len(record.Branches) != 1 || record.SignerCount() != 1 {
		t.Fatalf("expected record untouched, got %+v", record)
	}
	if len(f.emitter.events) != 0 {
		t.Fatalf("expected no events on failure, got %v", f.emitter.types())
	}
}

func TestAttestationRejectsNonWitness(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.SubmitAttestation(testChain, 4, claimFor(4, 1, 100), strangerAddr)
	expectErr(t, err, ErrUnauthorized)
	if _, err := f.engine.Attestation(testChain, 4); err == nil {
		t.Fatalf("expected no record to be created")
	}
}

func TestAttestationRejectsMismatchedKey(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.SubmitAttestation(testChain, 5, claimFor(6, 1, 100), witnessA)
	expectErr(t, err, ErrInvalidClaim)

	empty := claimFor(5, 1, 0)
	_, err = f.engine.SubmitAttestation(testChain, 5, empty, witnessA)
	expectErr(t, err, ErrInvalidClaim)
}

func TestAttestationAfterQuorumIsNoop(t *testing.T) {
	f := newFixture(t)
	claim := claimFor(8, 1, 100)
	f.attestQuorum(t, claim)
	f.emitter.events = nil

	other := claim
	other.Amount = 1
	status, err := f.engine.SubmitAttestation(testChain, 8, other, witnessC)
	if err != nil {
		t.Fatalf("late attestation: %v", err)
	}
	if status != StatusReachedQuorum {
		t.Fatalf("expected status to stay at quorum, got %s", status)
	}
	record, _ := f.engine.Attestation(testChain, 8)
	if record.HasSigned(witnessC) || len(record.Branches) != 1 {
		t.Fatalf("expected late signer to be ignored, got %+v", record)
	}
	if len(f.emitter.events) != 0 {
		t.Fatalf("expected no events for late attestation, got %v", f.emitter.types())
	}
}

func TestClearAttestation(t *testing.T) {
	f := newFixture(t)
	orderID := f.placeOrder(t, 1_000, 500)
	claim := claimFor(11, orderID, 1_000)

	expectErr(t, f.engine.ClearAttestation(testChain, 11), ErrAttestationNotFound)
	f.attestQuorum(t, claim)
	expectErr(t, f.engine.ClearAttestation(testChain, 11), ErrNotFinished)

	if _, err := f.engine.Borrow(testChain, 11, borrowerAddr); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	if err := f.engine.ClearAttestation(testChain, 11); err != nil {
		t.Fatalf("clear: %v", err)
	}
	record, _ := f.engine.Attestation(testChain, 11)
	if record.Status != StatusFinished || len(record.Branches) != 0 {
		t.Fatalf("expected finished record with no branches, got %+v", record)
	}

	status, err := f.engine.SubmitAttestation(testChain, 11, claim, witnessC)
	if err != nil || status != StatusFinished {
		t.Fatalf("expected replay to be ignored, got %s err=%v", status, err)
	}
}

func TestRemovedWitnessLowersThreshold(t *testing.T) {
	f := newFixture(t, witnessA, witnessB, witnessC, strangerAddr)
	claim := claimFor(12, 1, 100)
	for _, w := range [][20]byte{witnessA, witnessB} {
		if _, err := f.engine.SubmitAttestation(testChain, 12, claim, w); err != nil {
			t.Fatalf("attest: %v", err)
		}
	}
	if err := f.engine.RemoveWitness(adminAddr, strangerAddr); err != nil {
		t.Fatalf("remove witness: %v", err)
	}
	// Threshold drops from 3 to 2; the branch already holds 2 signers.
	status, err := f.engine.SubmitAttestation(testChain, 12, claim, witnessC)
	if err != nil || status != StatusReachedQuorum {
		t.Fatalf("expected quorum, got %s err=%v", status, err)
	}
	record, _ := f.engine.Attestation(testChain, 12)
	if len(record.Branches) != 1 || len(record.Branches[0].Signers) != 2 {
		t.Fatalf("expected exactly threshold signers, got %+v", record.Branches)
	}
	if record.HasSigned(witnessC) {
		t.Fatalf("settling attestation must not join the branch")
	}
	attrs := f.emitter.last(t, EventTypeAttestationQuorum)
	if attrs["signers"] != "2" {
		t.Fatalf("unexpected quorum attributes %v", attrs)
	}
}

func TestExistingSignersSettleAfterThresholdDrops(t *testing.T) {
	f := newFixture(t, witnessA, witnessB, witnessC, strangerAddr)
	claim := claimFor(13, 1, 100)
	for _, w := range [][20]byte{witnessA, witnessB} {
		if _, err := f.engine.SubmitAttestation(testChain, 13, claim, w); err != nil {
			t.Fatalf("attest: %v", err)
		}
	}
	for _, w := range [][20]byte{strangerAddr, witnessC} {
		if err := f.engine.RemoveWitness(adminAddr, w); err != nil {
			t.Fatalf("remove witness: %v", err)
		}
	}
	// Only A and B remain (threshold 2) and both have already signed.
	status, err := f.engine.SubmitAttestation(testChain, 13, claim, witnessA)
	if err != nil || status != StatusReachedQuorum {
		t.Fatalf("expected quorum, got %s err=%v", status, err)
	}
	if _, err := f.engine.SubmitAttestation(testChain, 13, claim, witnessB); err != nil {
		t.Fatalf("late attestation: %v", err)
	}
}

func TestSettlingTrimsToThreshold(t *testing.T) {
	five := [][20]byte{witnessA, witnessB, witnessC, strangerAddr, makeAddress(0xB4)}
	f := newFixture(t, five...)
	claim := claimFor(14, 1, 100)
	for _, w := range five[:3] {
		if _, err := f.engine.SubmitAttestation(testChain, 14, claim, w); err != nil {
			t.Fatalf("attest: %v", err)
		}
	}
	for _, w := range five[3:] {
		if err := f.engine.RemoveWitness(adminAddr, w); err != nil {
			t.Fatalf("remove witness: %v", err)
		}
	}
	// Threshold falls from 4 to 2 while the branch holds 3 signers.
	if status, err := f.engine.SubmitAttestation(testChain, 14, claim, witnessC); err != nil || status != StatusReachedQuorum {
		t.Fatalf("expected quorum, got %s err=%v", status, err)
	}
	record, _ := f.engine.Attestation(testChain, 14)
	signers := record.Branches[0].Signers
	if len(signers) != 2 || signers[0] != witnessA || signers[1] != witnessB {
		t.Fatalf("expected first two signers retained, got %v", signers)
	}
}

func TestLateInvalidClaimIsNoop(t *testing.T) {
	f := newFixture(t)
	claim := claimFor(15, 1, 100)
	f.attestQuorum(t, claim)
	f.emitter.events = nil

	for _, late := range []CollateralClaim{claimFor(15, 1, 0), claimFor(99, 1, 100)} {
		status, err := f.engine.SubmitAttestation(testChain, 15, late, witnessC)
		if err != nil || status != StatusReachedQuorum {
			t.Fatalf("expected silent no-op, got %s err=%v", status, err)
		}
	}
	if len(f.emitter.events) != 0 {
		t.Fatalf("expected no events, got %v", f.emitter.types())
	}
}
