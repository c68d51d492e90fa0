package signer

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

// GenerateSolanaKey returns a new keypair and its hex-encoded 64-byte secret.
func GenerateSolanaKey() (solana.PrivateKey, string) {
	wallet := solana.NewWallet()
	return wallet.PrivateKey, EncodeSolanaSecret(wallet.PrivateKey)
}

// EncodeSolanaSecret is the storage form of a Solana secret: lowercase hex
// of the 64-byte key.
func EncodeSolanaSecret(pk solana.PrivateKey) string {
	return hex.EncodeToString(pk)
}

// ParseSolanaSecret accepts the hex form produced by GenerateSolanaKey or
// the base58 form wallets export.
func ParseSolanaSecret(raw string) (solana.PrivateKey, error) {
	clean := strings.TrimSpace(raw)
	if clean == "" {
		return nil, fmt.Errorf("empty solana secret")
	}

	var buf []byte
	if len(clean) == hex.EncodedLen(ed25519.PrivateKeySize) {
		decoded, err := hex.DecodeString(clean)
		if err == nil {
			buf = decoded
		}
	}
	if buf == nil {
		decoded, err := base58.Decode(clean)
		if err != nil {
			return nil, fmt.Errorf("parse solana secret: not hex or base58")
		}
		buf = decoded
	}
	if len(buf) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("parse solana secret: expected %d bytes, got %d", ed25519.PrivateKeySize, len(buf))
	}
	pk := solana.PrivateKey(buf)
	// The trailing half must be the public key derived from the seed.
	derived := ed25519.NewKeyFromSeed(buf[:ed25519.SeedSize])
	if !strings.EqualFold(hex.EncodeToString(derived), hex.EncodeToString(buf)) {
		return nil, fmt.Errorf("parse solana secret: public half does not match seed")
	}
	return pk, nil
}
