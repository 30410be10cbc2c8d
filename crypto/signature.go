package crypto

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
)

// SignatureLength is the size of a recoverable secp256k1 signature [R || S || V].
const SignatureLength = crypto.SignatureLength

var errBadDigest = errors.New("crypto: digest must be 32 bytes")

// Digest hashes message with keccak256.
func Digest(message []byte) []byte {
	return crypto.Keccak256(message)
}

// Sign produces a recoverable signature over a 32-byte digest.
func (k *PrivateKey) Sign(digest []byte) ([]byte, error) {
	if k == nil || k.PrivateKey == nil {
		return nil, errors.New("crypto: nil private key")
	}
	if len(digest) != crypto.DigestLength {
		return nil, errBadDigest
	}
	return crypto.Sign(digest, k.PrivateKey)
}

// RecoverAddress returns the ledger address that produced sig over digest.
// Signatures with V in {27, 28} are accepted as well as {0, 1}.
func RecoverAddress(digest, sig []byte) (Address, error) {
	if len(digest) != crypto.DigestLength {
		return Address{}, errBadDigest
	}
	if len(sig) != SignatureLength {
		return Address{}, fmt.Errorf("crypto: signature must be %d bytes", SignatureLength)
	}
	normalized := append([]byte(nil), sig...)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}
	pub, err := crypto.SigToPub(digest, normalized)
	if err != nil {
		return Address{}, fmt.Errorf("crypto: recover signer: %w", err)
	}
	return NewAddress(XLPrefix, crypto.PubkeyToAddress(*pub).Bytes()), nil
}
