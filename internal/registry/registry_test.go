package registry

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ggonzalez94/volume-bot/internal/id"
)

func TestV2Contracts(t *testing.T) {
	for _, network := range []id.Network{id.BSC, id.Ethereum} {
		router, wrapped, ok := V2Contracts(network)
		if !ok || router == "" || wrapped == "" {
			t.Fatalf("expected v2 contracts for %s, got router=%q wrapped=%q", network, router, wrapped)
		}
		if !id.IsEVMAddress(router) || !id.IsEVMAddress(wrapped) {
			t.Fatalf("malformed contracts for %s", network)
		}
	}
	if _, _, ok := V2Contracts(id.Solana); ok {
		t.Fatal("did not expect v2 contracts for solana")
	}
}

func TestABIConstantsParse(t *testing.T) {
	for _, raw := range []string{ERC20MinimalABI, UniswapV2RouterABI} {
		if _, err := abi.JSON(strings.NewReader(raw)); err != nil {
			t.Fatalf("failed to parse abi json: %v", err)
		}
	}
}

func TestResolveRPCURL(t *testing.T) {
	for _, network := range id.Networks {
		if rpc, ok := DefaultRPCURL(network); !ok || rpc == "" {
			t.Fatalf("expected default rpc for %s", network)
		}
	}
	got, err := ResolveRPCURL("  https://example.org/rpc ", id.BSC)
	if err != nil || got != "https://example.org/rpc" {
		t.Fatalf("expected override to win, got %q err=%v", got, err)
	}
	if _, err := ResolveRPCURL("", id.Network("Polygon")); err == nil {
		t.Fatal("expected error for unknown network")
	}
}

func TestExplorerTxURL(t *testing.T) {
	cases := map[id.Network]string{
		id.Solana:   "https://solscan.io/tx/abc",
		id.BSC:      "https://bscscan.com/tx/abc",
		id.Ethereum: "https://etherscan.io/tx/abc",
	}
	for network, want := range cases {
		if got := ExplorerTxURL(network, "abc"); got != want {
			t.Fatalf("ExplorerTxURL(%s) = %q, want %q", network, got, want)
		}
	}
}
