package registry

import "github.com/ggonzalez94/volume-bot/internal/id"

// SolanaNativeMint is the wrapped SOL mint used as the quote side of every
// Solana swap.
const SolanaNativeMint = "So11111111111111111111111111111111111111112"

// V2 router deployments. BSC trades through PancakeSwap, Ethereum through
// Uniswap; both quote against the wrapped native coin.
var v2ContractsByNetwork = map[id.Network]struct {
	Router        string
	WrappedNative string
}{
	id.BSC: {
		Router:        "0x10ED43C718714eb63d5aA57B78B54704E256024E",
		WrappedNative: "0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c",
	},
	id.Ethereum: {
		Router:        "0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D",
		WrappedNative: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2",
	},
}

func V2Contracts(network id.Network) (router string, wrappedNative string, ok bool) {
	contracts, ok := v2ContractsByNetwork[network]
	if !ok {
		return "", "", false
	}
	return contracts.Router, contracts.WrappedNative, true
}
