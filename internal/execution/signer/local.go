package signer

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// LocalSigner holds an in-memory secp256k1 key. It is created per swap from
// the wallet's stored secret and never persisted.
type LocalSigner struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

func (s *LocalSigner) Address() common.Address {
	return s.address
}

func (s *LocalSigner) SignTx(chainID *big.Int, tx *types.Transaction) (*types.Transaction, error) {
	if s == nil || s.privateKey == nil {
		return nil, errors.New("local signer is not initialized")
	}
	signer := types.LatestSignerForChainID(chainID)
	return types.SignTx(tx, signer, s.privateKey)
}

// PrivateKeyHex is the 0x-prefixed secret, as shown once after generation.
func (s *LocalSigner) PrivateKeyHex() string {
	return hexutil.Encode(crypto.FromECDSA(s.privateKey))
}

// NewLocalSigner parses a hex secret with or without the 0x prefix.
func NewLocalSigner(privateKeyHex string) (*LocalSigner, error) {
	pk, err := parseHexKey(privateKeyHex)
	if err != nil {
		return nil, err
	}
	return fromKey(pk)
}

// GenerateLocalSigner creates a fresh random key.
func GenerateLocalSigner() (*LocalSigner, error) {
	pk, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate private key: %w", err)
	}
	return fromKey(pk)
}

func fromKey(pk *ecdsa.PrivateKey) (*LocalSigner, error) {
	pub, ok := pk.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("invalid ECDSA public key")
	}
	return &LocalSigner{privateKey: pk, address: crypto.PubkeyToAddress(*pub)}, nil
}

func parseHexKey(raw string) (*ecdsa.PrivateKey, error) {
	clean := strings.TrimSpace(raw)
	clean = strings.TrimPrefix(strings.TrimPrefix(clean, "0x"), "0X")
	if clean == "" {
		return nil, fmt.Errorf("empty private key")
	}
	pk, err := crypto.HexToECDSA(clean)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return pk, nil
}
