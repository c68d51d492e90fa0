package execution

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	clierr "github.com/ggonzalez94/volume-bot/internal/errors"
	"github.com/ggonzalez94/volume-bot/internal/execution/signer"
	"github.com/ggonzalez94/volume-bot/internal/id"
	"github.com/ggonzalez94/volume-bot/internal/model"
	"github.com/ggonzalez94/volume-bot/internal/registry"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type EVMOptions struct {
	PollInterval   time.Duration
	ReceiptTimeout time.Duration
	GasMultiplier  float64
	SwapDeadline   time.Duration
}

func DefaultEVMOptions() EVMOptions {
	return EVMOptions{
		PollInterval:   2 * time.Second,
		ReceiptTimeout: 2 * time.Minute,
		GasMultiplier:  1.2,
		SwapDeadline:   10 * time.Minute,
	}
}

func (o EVMOptions) normalized() EVMOptions {
	def := DefaultEVMOptions()
	if o.PollInterval <= 0 {
		o.PollInterval = def.PollInterval
	}
	if o.ReceiptTimeout <= 0 {
		o.ReceiptTimeout = def.ReceiptTimeout
	}
	if o.GasMultiplier <= 1 {
		o.GasMultiplier = def.GasMultiplier
	}
	if o.SwapDeadline <= 0 {
		o.SwapDeadline = def.SwapDeadline
	}
	return o
}

// evmClient is the slice of *ethclient.Client the adapter uses.
type evmClient interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// EVMAdapter swaps native coin against a token through a Uniswap V2 style
// router (PancakeSwap on BSC, Uniswap on Ethereum).
type EVMAdapter struct {
	network   id.Network
	client    evmClient
	router    common.Address
	wrapped   common.Address
	routerABI abi.ABI
	erc20ABI  abi.ABI
	opts      EVMOptions
	now       func() time.Time
	log       zerolog.Logger
}

func DialEVM(ctx context.Context, network id.Network, rpcURL string, opts EVMOptions, log zerolog.Logger) (*EVMAdapter, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "connect rpc", err)
	}
	adapter, err := NewEVMAdapter(network, client, opts, log)
	if err != nil {
		client.Close()
		return nil, err
	}
	return adapter, nil
}

func NewEVMAdapter(network id.Network, client evmClient, opts EVMOptions, log zerolog.Logger) (*EVMAdapter, error) {
	if !network.IsEVM() {
		return nil, clierr.New(clierr.CodeUnsupported, fmt.Sprintf("%s is not an EVM network", network))
	}
	router, wrapped, ok := registry.V2Contracts(network)
	if !ok {
		return nil, clierr.New(clierr.CodeUnsupported, fmt.Sprintf("no router configured for %s", network))
	}
	routerABI, err := abi.JSON(strings.NewReader(registry.UniswapV2RouterABI))
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "parse router abi", err)
	}
	erc20ABI, err := abi.JSON(strings.NewReader(registry.ERC20MinimalABI))
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "parse erc20 abi", err)
	}
	return &EVMAdapter{
		network:   network,
		client:    client,
		router:    common.HexToAddress(router),
		wrapped:   common.HexToAddress(wrapped),
		routerABI: routerABI,
		erc20ABI:  erc20ABI,
		opts:      opts.normalized(),
		now:       time.Now,
		log:       log.With().Str("network", network.String()).Logger(),
	}, nil
}

func (a *EVMAdapter) Network() id.Network { return a.network }

// Close releases the underlying RPC connection when it has one.
func (a *EVMAdapter) Close() {
	if c, ok := a.client.(interface{ Close() }); ok {
		c.Close()
	}
}

func (a *EVMAdapter) GenerateWallets(ctx context.Context, count int) ([]model.Wallet, error) {
	wallets := make([]model.Wallet, 0, count)
	for i := 0; i < count; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s, err := signer.GenerateLocalSigner()
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeSigner, "generate wallet", err)
		}
		wallets = append(wallets, model.Wallet{PublicAddress: s.Address().Hex(), PrivateKey: s.PrivateKeyHex()})
	}
	return wallets, nil
}

func (a *EVMAdapter) Balance(ctx context.Context, address string) (decimal.Decimal, error) {
	if !common.IsHexAddress(address) {
		return decimal.Zero, clierr.New(clierr.CodeUsage, fmt.Sprintf("invalid %s address %q", a.network, address))
	}
	wei, err := a.client.BalanceAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return decimal.Zero, clierr.Wrap(clierr.CodeUnavailable, "read balance", err)
	}
	return id.FromBaseUnits(wei, a.network.NativeDecimals()), nil
}

func (a *EVMAdapter) ExecuteSwap(ctx context.Context, req model.SwapRequest) (string, error) {
	s, err := signer.NewLocalSigner(req.PrivateKey)
	if err != nil {
		// The parse error can echo key material, so it is not wrapped.
		return "", clierr.New(clierr.CodeSigner, "invalid wallet private key")
	}
	if !common.IsHexAddress(req.TokenAddress) {
		return "", clierr.New(clierr.CodeUsage, fmt.Sprintf("invalid token address %q", req.TokenAddress))
	}
	token := common.HexToAddress(req.TokenAddress)
	bps := id.SlippageBps(req.SlippagePercent)

	switch req.Side {
	case model.SideBuy:
		return a.buy(ctx, s, token, req.Amount, bps)
	case model.SideSell:
		return a.sell(ctx, s, token, bps)
	default:
		return "", clierr.New(clierr.CodeUsage, fmt.Sprintf("invalid swap side %q", req.Side))
	}
}

func (a *EVMAdapter) buy(ctx context.Context, s signer.Signer, token common.Address, amount decimal.Decimal, bps int) (string, error) {
	amountIn, err := id.ToBaseUnits(amount, a.network.NativeDecimals())
	if err != nil {
		return "", clierr.Wrap(clierr.CodeUsage, "convert buy amount", err)
	}
	if amountIn.Sign() <= 0 {
		return "", clierr.New(clierr.CodeUsage, "buy amount must be positive")
	}
	path := []common.Address{a.wrapped, token}
	quoted, err := a.amountsOut(ctx, amountIn, path)
	if err != nil {
		return "", err
	}
	data, err := a.routerABI.Pack("swapExactETHForTokens", id.MinAmountOut(quoted, bps), path, s.Address(), a.deadline())
	if err != nil {
		return "", clierr.Wrap(clierr.CodeInternal, "pack swapExactETHForTokens", err)
	}
	return a.send(ctx, s, a.router, amountIn, data)
}

// sell liquidates the wallet's whole token balance, approving the router
// first when the current allowance does not cover it.
func (a *EVMAdapter) sell(ctx context.Context, s signer.Signer, token common.Address, bps int) (string, error) {
	owner := s.Address()
	balance, err := a.callUint(ctx, a.erc20ABI, token, "balanceOf", owner)
	if err != nil {
		return "", err
	}
	if balance.Sign() == 0 {
		return "", clierr.New(clierr.CodeUsage, "wallet holds no tokens to sell")
	}
	allowance, err := a.callUint(ctx, a.erc20ABI, token, "allowance", owner, a.router)
	if err != nil {
		return "", err
	}
	if allowance.Cmp(balance) < 0 {
		data, err := a.erc20ABI.Pack("approve", a.router, balance)
		if err != nil {
			return "", clierr.Wrap(clierr.CodeInternal, "pack approve", err)
		}
		hash, err := a.send(ctx, s, token, big.NewInt(0), data)
		if err != nil {
			return "", fmt.Errorf("approve router: %w", err)
		}
		a.log.Debug().Str("wallet", owner.Hex()).Str("tx", hash).Msg("router approved")
	}

	path := []common.Address{token, a.wrapped}
	quoted, err := a.amountsOut(ctx, balance, path)
	if err != nil {
		return "", err
	}
	data, err := a.routerABI.Pack("swapExactTokensForETH", balance, id.MinAmountOut(quoted, bps), path, owner, a.deadline())
	if err != nil {
		return "", clierr.Wrap(clierr.CodeInternal, "pack swapExactTokensForETH", err)
	}
	return a.send(ctx, s, a.router, big.NewInt(0), data)
}

func (a *EVMAdapter) amountsOut(ctx context.Context, amountIn *big.Int, path []common.Address) (*big.Int, error) {
	values, err := a.call(ctx, a.routerABI, a.router, "getAmountsOut", amountIn, path)
	if err != nil {
		return nil, err
	}
	amounts, ok := values[0].([]*big.Int)
	if !ok || len(amounts) != len(path) {
		return nil, clierr.New(clierr.CodeUnavailable, "unexpected getAmountsOut response")
	}
	out := amounts[len(amounts)-1]
	if out.Sign() <= 0 {
		return nil, clierr.New(clierr.CodeUnsupported, "router quoted zero output; pool has no liquidity")
	}
	return out, nil
}

func (a *EVMAdapter) callUint(ctx context.Context, parsed abi.ABI, to common.Address, method string, args ...any) (*big.Int, error) {
	values, err := a.call(ctx, parsed, to, method, args...)
	if err != nil {
		return nil, err
	}
	v, ok := values[0].(*big.Int)
	if !ok {
		return nil, clierr.New(clierr.CodeUnavailable, fmt.Sprintf("unexpected %s response", method))
	}
	return v, nil
}

func (a *EVMAdapter) call(ctx context.Context, parsed abi.ABI, to common.Address, method string, args ...any) ([]any, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "pack "+method, err)
	}
	raw, err := a.client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "call "+method, err)
	}
	values, err := parsed.Unpack(method, raw)
	if err != nil || len(values) == 0 {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "decode "+method, err)
	}
	return values, nil
}

func (a *EVMAdapter) deadline() *big.Int {
	return big.NewInt(a.now().Add(a.opts.SwapDeadline).Unix())
}

// send simulates, prices, signs and broadcasts one transaction and waits for
// its receipt. A reverted receipt is an error.
func (a *EVMAdapter) send(ctx context.Context, s signer.Signer, to common.Address, value *big.Int, data []byte) (string, error) {
	chainID, err := a.client.ChainID(ctx)
	if err != nil {
		return "", clierr.Wrap(clierr.CodeUnavailable, "read chain id", err)
	}
	if want := a.network.EVMChainID(); chainID.Int64() != want {
		return "", clierr.New(clierr.CodeUnsupported, fmt.Sprintf("rpc chain id %d does not match %s (%d)", chainID.Int64(), a.network, want))
	}
	msg := ethereum.CallMsg{From: s.Address(), To: &to, Value: value, Data: data}
	if _, err := a.client.CallContract(ctx, msg, nil); err != nil {
		return "", clierr.Wrap(clierr.CodeSimulation, "simulate transaction (eth_call)", err)
	}
	gasLimit, err := a.client.EstimateGas(ctx, msg)
	if err != nil {
		return "", clierr.Wrap(clierr.CodeSimulation, "estimate gas", err)
	}
	gasLimit = uint64(float64(gasLimit) * a.opts.GasMultiplier)

	tipCap, err := a.client.SuggestGasTipCap(ctx)
	if err != nil {
		tipCap = big.NewInt(2_000_000_000) // 2 gwei fallback
	}
	header, err := a.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return "", clierr.Wrap(clierr.CodeUnavailable, "fetch latest header", err)
	}
	baseFee := header.BaseFee
	if baseFee == nil {
		baseFee = big.NewInt(1_000_000_000)
	}
	feeCap := new(big.Int).Mul(baseFee, big.NewInt(2))
	feeCap.Add(feeCap, tipCap)

	nonce, err := a.client.PendingNonceAt(ctx, s.Address())
	if err != nil {
		return "", clierr.Wrap(clierr.CodeUnavailable, "fetch nonce", err)
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        &to,
		Value:     value,
		Data:      data,
	})
	signed, err := s.SignTx(chainID, tx)
	if err != nil {
		return "", clierr.Wrap(clierr.CodeSigner, "sign transaction", err)
	}
	if err := a.client.SendTransaction(ctx, signed); err != nil {
		return "", clierr.Wrap(clierr.CodeUnavailable, "broadcast transaction", err)
	}
	hash := signed.Hash()
	if err := a.waitReceipt(ctx, hash); err != nil {
		return hash.Hex(), err
	}
	return hash.Hex(), nil
}

func (a *EVMAdapter) waitReceipt(ctx context.Context, hash common.Hash) error {
	waitCtx, cancel := context.WithTimeout(ctx, a.opts.ReceiptTimeout)
	defer cancel()
	ticker := time.NewTicker(a.opts.PollInterval)
	defer ticker.Stop()
	for {
		receipt, err := a.client.TransactionReceipt(waitCtx, hash)
		if err == nil && receipt != nil {
			if receipt.Status == types.ReceiptStatusSuccessful {
				return nil
			}
			return clierr.New(clierr.CodeReverted, "transaction reverted on-chain")
		}
		// Transient polling failures are ignored until the timeout.
		select {
		case <-waitCtx.Done():
			return clierr.Wrap(clierr.CodeTimeout, "timed out waiting for receipt", waitCtx.Err())
		case <-ticker.C:
		}
	}
}
