package lending

import "fmt"

// SubmitAttestation records signer's attestation of claim for the lock event
// (chainID, lockID) and returns the record status afterwards.
//
// Signers that agree on an identical claim share a branch. The first branch
// whose signer count reaches the witness threshold wins: the record moves to
// StatusReachedQuorum, competing branches are discarded and exactly threshold
// signers are retained. Attestations arriving after quorum are accepted
// without changing the record.
//
// Removing a witness lowers the threshold without touching open records. A
// branch that already meets the lowered threshold is settled by the next
// attestation on the record, from any witness, and that attestation is not
// added to the branch.
func (e *Engine) SubmitAttestation(chainID uint32, lockID uint64, claim CollateralClaim, signer [20]byte) (AttestationStatus, error) {
	var status AttestationStatus
	err := e.execute("submit_attestation", true, func(tx *txn) error {
		if _, err := tx.global(); err != nil {
			return err
		}
		witnesses, err := tx.GetWitnesses()
		if err != nil {
			return err
		}
		if !witnesses.Contains(signer) {
			return ErrUnauthorized
		}
		key := AttestationKey{ChainID: chainID, LockID: lockID}
		record, ok, err := tx.GetAttestation(key)
		if err != nil {
			return err
		}
		if !ok || record == nil {
			record = &AttestationRecord{ChainID: chainID, LockID: lockID, Status: StatusStarting}
		} else {
			record = record.Clone()
		}

		switch record.Status {
		case StatusReachedQuorum, StatusFinished:
			status = record.Status
			return nil
		case StatusStarting, StatusInProgress:
		default:
			return fmt.Errorf("lending: attestation %s has unknown status %d", key, record.Status)
		}

		if claim.Key() != key {
			return fmt.Errorf("%w: claim targets %s, record is %s", ErrInvalidClaim, claim.Key(), key)
		}
		if claim.Amount == 0 {
			return fmt.Errorf("%w: loan amount must be positive", ErrInvalidClaim)
		}

		if idx := record.quorateBranch(witnesses.Threshold); idx >= 0 {
			record.settle(idx, witnesses.Threshold)
			tx.emit(newQuorumEvent(record.Branches[0].Claim, len(record.Branches[0].Signers)))
			if err := tx.PutAttestation(record); err != nil {
				return err
			}
			status = record.Status
			return nil
		}

		if record.HasSigned(signer) {
			return ErrDuplicateSignature
		}
		record.Status = StatusInProgress
		idx := record.branchFor(claim)
		if idx < 0 {
			record.openBranch(claim, signer)
			idx = len(record.Branches) - 1
		} else {
			record.Branches[idx].Signers = append(record.Branches[idx].Signers, signer)
		}
		signers := len(record.Branches[idx].Signers)
		tx.emit(newAttestationRecordedEvent(claim, signer, signers, witnesses.Threshold))

		if uint64(signers) >= witnesses.Threshold {
			record.settle(idx, witnesses.Threshold)
			tx.emit(newQuorumEvent(claim, signers))
		}
		if err := tx.PutAttestation(record); err != nil {
			return err
		}
		status = record.Status
		return nil
	})
	if err != nil {
		return 0, err
	}
	return status, nil
}

// ClearAttestation purges the branches of a finished record. The record
// itself stays Finished so the lock event cannot be attested again.
func (e *Engine) ClearAttestation(chainID uint32, lockID uint64) error {
	return e.execute("clear_attestation", true, func(tx *txn) error {
		key := AttestationKey{ChainID: chainID, LockID: lockID}
		record, ok, err := tx.GetAttestation(key)
		if err != nil {
			return err
		}
		if !ok || record == nil {
			return ErrAttestationNotFound
		}
		if record.Status != StatusFinished {
			return ErrNotFinished
		}
		cleared := &AttestationRecord{ChainID: chainID, LockID: lockID, Status: StatusFinished}
		if err := tx.PutAttestation(cleared); err != nil {
			return err
		}
		tx.emit(newClearedEvent(key))
		return nil
	})
}
