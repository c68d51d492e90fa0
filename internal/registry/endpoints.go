package registry

import (
	"strings"

	"github.com/ggonzalez94/volume-bot/internal/id"
)

const (
	JupiterLiteBaseURL = "https://lite-api.jup.ag/swap/v1"
	JupiterProBaseURL  = "https://api.jup.ag/swap/v1"
	DexScreenerBaseURL = "https://api.dexscreener.com/latest/dex"
	TelegramAPIBaseURL = "https://api.telegram.org"
)

var explorerTxBaseByNetwork = map[id.Network]string{
	id.Solana:   "https://solscan.io/tx/",
	id.BSC:      "https://bscscan.com/tx/",
	id.Ethereum: "https://etherscan.io/tx/",
}

// ExplorerTxURL links a transaction id to the network's block explorer.
func ExplorerTxURL(network id.Network, txID string) string {
	txID = strings.TrimSpace(txID)
	base, ok := explorerTxBaseByNetwork[network]
	if !ok || txID == "" {
		return txID
	}
	return base + txID
}
