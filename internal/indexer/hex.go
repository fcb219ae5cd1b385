// Package indexer parses and validates the settlement event feed pushed by
// the external chain indexer.
package indexer

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ValidTxHash reports whether s is a 0x-prefixed 32-byte hex string.
func ValidTxHash(s string) bool {
	if len(s) != 2+2*common.HashLength {
		return false
	}
	_, err := hexutil.Decode(s)
	return err == nil
}

// ValidAddress reports whether s is a 0x-prefixed 20-byte hex address.
func ValidAddress(s string) bool {
	return common.IsHexAddress(s) && len(s) == 2+2*common.AddressLength
}
