package lending

import (
	"errors"

	nativecommon "xlend/native/common"
)

var (
	errNilState = errors.New("lending engine: state not configured")

	// Authorization errors.
	ErrUnauthorized = errors.New("lending: signer is not a witness")
	ErrNotAdmin     = errors.New("lending: caller is not the administrator")
	ErrNotOwner     = errors.New("lending: caller does not own the order")
	ErrNotBorrower  = errors.New("lending: caller is not the borrower")
	ErrNotLender    = errors.New("lending: caller is not the lender")

	// State-precondition errors.
	ErrNotInitialized     = errors.New("lending: protocol not initialised")
	ErrAlreadyInitialized = errors.New("lending: protocol already initialised")
	ErrNoQuorum           = errors.New("lending: attestation has not reached quorum")
	ErrNotFinished        = errors.New("lending: attestation is not finished")
	ErrNonZeroBalance     = errors.New("lending: order has non-zero balance")

	// Value errors.
	ErrInvalidAmount             = errors.New("lending: amount must be positive")
	ErrInsufficientBalance       = errors.New("lending: insufficient escrow balance")
	ErrInsufficientFunds         = errors.New("lending: insufficient native funds")
	ErrInsufficientOrderCapacity = errors.New("lending: insufficient order capacity")
	ErrRateOutOfRange            = errors.New("lending: interest rate out of range")
	ErrDeadlineNotReached        = errors.New("lending: liquidation deadline not reached")
	ErrInvalidClaim              = errors.New("lending: invalid collateral claim")
	ErrInvalidConfig             = errors.New("lending: invalid config")
	ErrRecipientMismatch         = errors.New("lending: recipient does not match claim borrower")
	ErrOverflow                  = errors.New("lending: arithmetic overflow")

	// Integrity errors.
	ErrDuplicateSignature = errors.New("lending: witness already signed this attestation")
	ErrWitnessExists      = errors.New("lending: witness already exists")

	// Lookup errors.
	ErrOrderNotFound       = errors.New("lending: order not found")
	ErrReceiptNotFound     = errors.New("lending: receipt not found")
	ErrAttestationNotFound = errors.New("lending: attestation not found")
	ErrWitnessNotFound     = errors.New("lending: witness not found")
)

// ErrorKind classifies lending failures for callers that surface them over a
// transport.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindAuthorization
	KindState
	KindValue
	KindIntegrity
	KindNotFound
	KindUnavailable
)

func (k ErrorKind) String() string {
	switch k {
	case KindAuthorization:
		return "authorization"
	case KindState:
		return "state"
	case KindValue:
		return "value"
	case KindIntegrity:
		return "integrity"
	case KindNotFound:
		return "not_found"
	case KindUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

var errorKinds = map[error]ErrorKind{
	ErrUnauthorized: KindAuthorization,
	ErrNotAdmin:     KindAuthorization,
	ErrNotOwner:     KindAuthorization,
	ErrNotBorrower:  KindAuthorization,
	ErrNotLender:    KindAuthorization,

	ErrNotInitialized:     KindState,
	ErrAlreadyInitialized: KindState,
	ErrNoQuorum:           KindState,
	ErrNotFinished:        KindState,
	ErrNonZeroBalance:     KindState,

	ErrInvalidAmount:             KindValue,
	ErrInsufficientBalance:       KindValue,
	ErrInsufficientFunds:         KindValue,
	ErrInsufficientOrderCapacity: KindValue,
	ErrRateOutOfRange:            KindValue,
	ErrDeadlineNotReached:        KindValue,
	ErrInvalidClaim:              KindValue,
	ErrInvalidConfig:             KindValue,
	ErrRecipientMismatch:         KindValue,
	ErrOverflow:                  KindValue,

	ErrDuplicateSignature: KindIntegrity,
	ErrWitnessExists:      KindIntegrity,

	ErrOrderNotFound:       KindNotFound,
	ErrReceiptNotFound:     KindNotFound,
	ErrAttestationNotFound: KindNotFound,
	ErrWitnessNotFound:     KindNotFound,

	nativecommon.ErrModulePaused: KindUnavailable,
}

// KindOf returns the classification of err, unwrapping as needed.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	for sentinel, kind := range errorKinds {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return KindUnknown
}
