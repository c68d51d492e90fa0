package id

import "strings"

// Classify decides which chain an address belongs to from its shape alone.
// A base58 string is always Solana. A 0x address follows the hint when the
// hint is BSC and falls back to Ethereum otherwise. Anything else is
// unresolved and callers must not guess.
func Classify(address string, hint Network) (Network, bool) {
	address = strings.TrimSpace(address)
	switch {
	case IsSolanaAddress(address):
		return Solana, true
	case IsEVMAddress(address):
		if hint == BSC {
			return BSC, true
		}
		return Ethereum, true
	}
	return "", false
}
