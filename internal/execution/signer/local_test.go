package signer

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/mr-tron/base58"
)

const testPrivateKey = "59c6995e998f97a5a0044976f0945388cf9b7e5e5f4f9d2d9d8f1f5b7f6d11d1"

func TestNewLocalSignerSignsTransactions(t *testing.T) {
	for _, raw := range []string{testPrivateKey, "0x" + testPrivateKey, "  " + testPrivateKey + "\n"} {
		s, err := NewLocalSigner(raw)
		if err != nil {
			t.Fatalf("NewLocalSigner(%q) failed: %v", raw, err)
		}
		if s.Address() == (common.Address{}) {
			t.Fatal("expected non-zero signer address")
		}
		tx := types.NewTx(&types.LegacyTx{
			Nonce:    0,
			To:       ptrAddress(common.HexToAddress("0x0000000000000000000000000000000000000001")),
			Value:    big.NewInt(0),
			Gas:      21_000,
			GasPrice: big.NewInt(1),
		})
		if _, err := s.SignTx(big.NewInt(56), tx); err != nil {
			t.Fatalf("SignTx failed: %v", err)
		}
	}
}

func TestNewLocalSignerRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"", "0x", "zz", "1234"} {
		if _, err := NewLocalSigner(raw); err == nil {
			t.Fatalf("expected %q to be rejected", raw)
		}
	}
}

func TestGenerateLocalSignerRoundTrips(t *testing.T) {
	s, err := GenerateLocalSigner()
	if err != nil {
		t.Fatalf("GenerateLocalSigner failed: %v", err)
	}
	secret := s.PrivateKeyHex()
	if !strings.HasPrefix(secret, "0x") || len(secret) != 66 {
		t.Fatalf("unexpected secret shape %q", secret)
	}
	again, err := NewLocalSigner(secret)
	if err != nil {
		t.Fatalf("re-import failed: %v", err)
	}
	if again.Address() != s.Address() {
		t.Fatalf("address mismatch %s vs %s", again.Address(), s.Address())
	}
}

func TestSolanaSecretFormats(t *testing.T) {
	pk, secret := GenerateSolanaKey()
	if len(secret) != 128 {
		t.Fatalf("expected 128 hex chars, got %d", len(secret))
	}

	fromHex, err := ParseSolanaSecret(secret)
	if err != nil {
		t.Fatalf("parse hex secret: %v", err)
	}
	if !fromHex.PublicKey().Equals(pk.PublicKey()) {
		t.Fatal("hex secret resolved to another key")
	}

	fromB58, err := ParseSolanaSecret(base58.Encode(pk))
	if err != nil {
		t.Fatalf("parse base58 secret: %v", err)
	}
	if !fromB58.PublicKey().Equals(pk.PublicKey()) {
		t.Fatal("base58 secret resolved to another key")
	}

	tampered := []byte(pk)
	tampered[63] ^= 0xff
	if _, err := ParseSolanaSecret(base58.Encode(tampered)); err == nil {
		t.Fatal("expected mismatched public half to be rejected")
	}
	if _, err := ParseSolanaSecret("0OIl"); err == nil {
		t.Fatal("expected invalid base58 to be rejected")
	}
}

func ptrAddress(v common.Address) *common.Address {
	return &v
}
