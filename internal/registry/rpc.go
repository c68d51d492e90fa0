package registry

import (
	"fmt"
	"strings"

	"github.com/ggonzalez94/volume-bot/internal/id"
)

// Public fallback endpoints. Production deployments are expected to set
// their own through configuration.
var defaultRPCByNetwork = map[id.Network]string{
	id.Solana:   "https://api.mainnet-beta.solana.com",
	id.BSC:      "https://bsc-dataseed.binance.org",
	id.Ethereum: "https://eth.llamarpc.com",
}

func DefaultRPCURL(network id.Network) (string, bool) {
	value, ok := defaultRPCByNetwork[network]
	return value, ok
}

func ResolveRPCURL(override string, network id.Network) (string, error) {
	if strings.TrimSpace(override) != "" {
		return strings.TrimSpace(override), nil
	}
	if value, ok := DefaultRPCURL(network); ok {
		return value, nil
	}
	return "", fmt.Errorf("no default rpc configured for network %s", network)
}
