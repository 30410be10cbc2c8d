package state

import (
	"encoding/hex"
	"strconv"
)

var (
	lendingGlobalKeyBytes      = []byte("lending/global")
	lendingConfigKeyBytes      = []byte("lending/config")
	lendingWitnessesKeyBytes   = []byte("lending/witnesses")
	lendingOrderPrefix         = "lending/orders/"
	lendingReceiptPrefix       = "lending/receipts/"
	lendingAttestationPrefix   = "lending/attestations/"
	lendingRelayFeePrefix      = "lending/relay-fees/"
	lendingEscrowPrefix        = "lending/escrow/"
	accountNativeBalancePrefix = "accounts/native/"
)

// LendingGlobalKey stores the sequence counters and administrator.
func LendingGlobalKey() []byte { return append([]byte(nil), lendingGlobalKeyBytes...) }

// LendingConfigKey stores the protocol parameters.
func LendingConfigKey() []byte { return append([]byte(nil), lendingConfigKeyBytes...) }

// LendingWitnessesKey stores the witness set.
func LendingWitnessesKey() []byte { return append([]byte(nil), lendingWitnessesKeyBytes...) }

func LendingOrderKey(id uint64) []byte {
	return []byte(lendingOrderPrefix + strconv.FormatUint(id, 10))
}

func LendingReceiptKey(id uint64) []byte {
	return []byte(lendingReceiptPrefix + strconv.FormatUint(id, 10))
}

func LendingAttestationKey(chainID uint32, lockID uint64) []byte {
	return []byte(lendingAttestationPrefix + strconv.FormatUint(uint64(chainID), 10) + "/" + strconv.FormatUint(lockID, 10))
}

func LendingRelayFeeKey(chainID uint32) []byte {
	return []byte(lendingRelayFeePrefix + strconv.FormatUint(uint64(chainID), 10))
}

func LendingEscrowKey(addr [20]byte) []byte {
	return []byte(lendingEscrowPrefix + hex.EncodeToString(addr[:]))
}

func NativeBalanceKey(addr [20]byte) []byte {
	return []byte(accountNativeBalancePrefix + hex.EncodeToString(addr[:]))
}
