package execution

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	clierr "github.com/ggonzalez94/volume-bot/internal/errors"
	"github.com/ggonzalez94/volume-bot/internal/execution/signer"
	"github.com/ggonzalez94/volume-bot/internal/id"
	"github.com/ggonzalez94/volume-bot/internal/model"
	"github.com/ggonzalez94/volume-bot/internal/providers/jupiter"
	"github.com/ggonzalez94/volume-bot/internal/registry"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type solanaRPC interface {
	GetBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error)
	GetTokenAccountBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetTokenAccountBalanceResult, error)
	SendTransactionWithOpts(ctx context.Context, transaction *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error)
}

// solanaSwapper builds unsigned swap transactions; *jupiter.Client is the
// production implementation.
type solanaSwapper interface {
	Quote(ctx context.Context, req jupiter.QuoteRequest) (jupiter.Quote, error)
	SwapTransaction(ctx context.Context, req jupiter.SwapRequest) ([]byte, error)
}

// SolanaAdapter routes swaps through the Jupiter aggregator against wrapped
// SOL and signs them locally.
type SolanaAdapter struct {
	rpc         solanaRPC
	swapper     solanaSwapper
	priorityFee uint64
	log         zerolog.Logger
}

func NewSolanaAdapter(rpcURL string, swapper *jupiter.Client, priorityFeeLamports uint64, log zerolog.Logger) *SolanaAdapter {
	return newSolanaAdapter(rpc.New(rpcURL), swapper, priorityFeeLamports, log)
}

func newSolanaAdapter(client solanaRPC, swapper solanaSwapper, priorityFeeLamports uint64, log zerolog.Logger) *SolanaAdapter {
	return &SolanaAdapter{
		rpc:         client,
		swapper:     swapper,
		priorityFee: priorityFeeLamports,
		log:         log.With().Str("network", id.Solana.String()).Logger(),
	}
}

func (a *SolanaAdapter) Network() id.Network { return id.Solana }

func (a *SolanaAdapter) GenerateWallets(ctx context.Context, count int) ([]model.Wallet, error) {
	wallets := make([]model.Wallet, 0, count)
	for i := 0; i < count; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pk, secret := signer.GenerateSolanaKey()
		wallets = append(wallets, model.Wallet{PublicAddress: pk.PublicKey().String(), PrivateKey: secret})
	}
	return wallets, nil
}

func (a *SolanaAdapter) Balance(ctx context.Context, address string) (decimal.Decimal, error) {
	owner, err := solana.PublicKeyFromBase58(strings.TrimSpace(address))
	if err != nil {
		return decimal.Zero, clierr.New(clierr.CodeUsage, fmt.Sprintf("invalid solana address %q", address))
	}
	res, err := a.rpc.GetBalance(ctx, owner, rpc.CommitmentConfirmed)
	if err != nil {
		return decimal.Zero, clierr.Wrap(clierr.CodeUnavailable, "read balance", err)
	}
	if res == nil {
		return decimal.Zero, nil
	}
	return id.FromBaseUnits(new(big.Int).SetUint64(res.Value), id.Solana.NativeDecimals()), nil
}

func (a *SolanaAdapter) ExecuteSwap(ctx context.Context, req model.SwapRequest) (string, error) {
	key, err := signer.ParseSolanaSecret(req.PrivateKey)
	if err != nil {
		return "", clierr.New(clierr.CodeSigner, "invalid wallet private key")
	}
	mint, err := solana.PublicKeyFromBase58(strings.TrimSpace(req.TokenAddress))
	if err != nil {
		return "", clierr.New(clierr.CodeUsage, fmt.Sprintf("invalid token mint %q", req.TokenAddress))
	}
	owner := key.PublicKey()

	quoteReq := jupiter.QuoteRequest{SlippageBps: id.SlippageBps(req.SlippagePercent)}
	switch req.Side {
	case model.SideBuy:
		lamports, err := id.ToBaseUnits(req.Amount, id.Solana.NativeDecimals())
		if err != nil {
			return "", clierr.Wrap(clierr.CodeUsage, "convert buy amount", err)
		}
		if lamports.Sign() <= 0 || !lamports.IsUint64() {
			return "", clierr.New(clierr.CodeUsage, "buy amount out of range")
		}
		quoteReq.InputMint = registry.SolanaNativeMint
		quoteReq.OutputMint = mint.String()
		quoteReq.Amount = lamports.Uint64()
	case model.SideSell:
		held, err := a.tokenBalance(ctx, owner, mint)
		if err != nil {
			return "", err
		}
		if held == 0 {
			return "", clierr.New(clierr.CodeUsage, "wallet holds no tokens to sell")
		}
		quoteReq.InputMint = mint.String()
		quoteReq.OutputMint = registry.SolanaNativeMint
		quoteReq.Amount = held
	default:
		return "", clierr.New(clierr.CodeUsage, fmt.Sprintf("invalid swap side %q", req.Side))
	}

	quote, err := a.swapper.Quote(ctx, quoteReq)
	if err != nil {
		return "", err
	}
	raw, err := a.swapper.SwapTransaction(ctx, jupiter.SwapRequest{
		Quote:                     quote,
		UserPublicKey:             owner.String(),
		PrioritizationFeeLamports: a.priorityFee,
	})
	if err != nil {
		return "", err
	}
	tx, err := solana.TransactionFromBytes(raw)
	if err != nil {
		return "", clierr.Wrap(clierr.CodeUnavailable, "parse swap transaction", err)
	}
	if _, err := tx.Sign(func(pub solana.PublicKey) *solana.PrivateKey {
		if pub.Equals(owner) {
			return &key
		}
		return nil
	}); err != nil {
		return "", clierr.Wrap(clierr.CodeSigner, "sign transaction", err)
	}
	sig, err := a.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       false,
		PreflightCommitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return "", clierr.Wrap(clierr.CodeUnavailable, "broadcast transaction", err)
	}
	a.log.Debug().Str("wallet", owner.String()).Str("side", string(req.Side)).Str("route", quote.Route).Msg("swap sent")
	return sig.String(), nil
}

// tokenBalance reads the owner's associated token account; a missing account
// is a zero balance.
func (a *SolanaAdapter) tokenBalance(ctx context.Context, owner, mint solana.PublicKey) (uint64, error) {
	ata, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return 0, clierr.Wrap(clierr.CodeInternal, "derive token account", err)
	}
	res, err := a.rpc.GetTokenAccountBalance(ctx, ata, rpc.CommitmentConfirmed)
	if err != nil {
		if isAccountNotFound(err) {
			return 0, nil
		}
		return 0, clierr.Wrap(clierr.CodeUnavailable, "read token balance", err)
	}
	if res == nil || res.Value == nil {
		return 0, nil
	}
	amount, err := strconv.ParseUint(res.Value.Amount, 10, 64)
	if err != nil {
		return 0, clierr.Wrap(clierr.CodeUnavailable, "parse token balance", err)
	}
	return amount, nil
}

func isAccountNotFound(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "could not find account") || strings.Contains(msg, "account not found")
}
