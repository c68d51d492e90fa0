package id

import (
	"regexp"
	"strings"

	clierr "github.com/ggonzalez94/volume-bot/internal/errors"
)

var (
	evmAddressPattern    = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	solanaAddressPattern = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`)
)

// Network is one of the chains the bot trades on.
type Network string

const (
	Solana   Network = "Solana"
	BSC      Network = "BSC"
	Ethereum Network = "Ethereum"
)

// Networks lists the supported chains in menu order.
var Networks = []Network{Solana, BSC, Ethereum}

type networkInfo struct {
	Slug         string
	NativeSymbol string
	Decimals     int32
	EVMChainID   int64
}

var networkInfoByName = map[Network]networkInfo{
	Solana:   {Slug: "solana", NativeSymbol: "SOL", Decimals: 9},
	BSC:      {Slug: "bsc", NativeSymbol: "BNB", Decimals: 18, EVMChainID: 56},
	Ethereum: {Slug: "ethereum", NativeSymbol: "ETH", Decimals: 18, EVMChainID: 1},
}

func (n Network) Valid() bool {
	_, ok := networkInfoByName[n]
	return ok
}

func (n Network) String() string { return string(n) }

func (n Network) Slug() string { return networkInfoByName[n].Slug }

func (n Network) IsEVM() bool { return networkInfoByName[n].EVMChainID != 0 }

// NativeSymbol is the ticker of the coin that pays fees and funds buys.
func (n Network) NativeSymbol() string { return networkInfoByName[n].NativeSymbol }

// NativeDecimals is the base-unit exponent of the native coin (lamports, wei).
func (n Network) NativeDecimals() int32 { return networkInfoByName[n].Decimals }

func (n Network) EVMChainID() int64 { return networkInfoByName[n].EVMChainID }

// ParseNetwork accepts a display name or slug, case-insensitively.
func ParseNetwork(input string) (Network, error) {
	norm := strings.ToLower(strings.TrimSpace(input))
	if norm == "" {
		return "", clierr.New(clierr.CodeUsage, "network is required")
	}
	for _, n := range Networks {
		if norm == strings.ToLower(string(n)) || norm == n.Slug() {
			return n, nil
		}
	}
	switch norm {
	case "eth", "mainnet":
		return Ethereum, nil
	case "bnb", "binance":
		return BSC, nil
	case "sol":
		return Solana, nil
	}
	return "", clierr.New(clierr.CodeUnsupported, "unsupported network "+input)
}

// NetworkFromChainHint maps a third-party chain label (for example a
// DexScreener chainId) onto a supported network.
func NetworkFromChainHint(label string) (Network, bool) {
	norm := strings.ToLower(strings.TrimSpace(label))
	switch {
	case norm == "":
		return "", false
	case strings.Contains(norm, "bsc"):
		return BSC, true
	case strings.Contains(norm, "eth"):
		return Ethereum, true
	case strings.Contains(norm, "sol"):
		return Solana, true
	}
	return "", false
}

func IsEVMAddress(v string) bool { return evmAddressPattern.MatchString(v) }

func IsSolanaAddress(v string) bool { return solanaAddressPattern.MatchString(v) }
