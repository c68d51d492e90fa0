package app

import (
	"context"

	"github.com/ggonzalez94/volume-bot/internal/execution"
	"github.com/ggonzalez94/volume-bot/internal/id"
	"github.com/ggonzalez94/volume-bot/internal/observability"
	"github.com/ggonzalez94/volume-bot/internal/providers/dexscreener"
	"github.com/ggonzalez94/volume-bot/internal/providers/jupiter"
	"github.com/ggonzalez94/volume-bot/internal/registry"
	"github.com/ggonzalez94/volume-bot/internal/scheduler"
)

// chainRegistry dials one adapter per supported network. Dialing is lazy for
// HTTP endpoints, so offline commands such as wallet generation work too.
func (s *runtimeState) chainRegistry(ctx context.Context) (*execution.Registry, error) {
	if s.chains != nil {
		return s.chains, nil
	}
	settings := s.settings

	solURL, err := registry.ResolveRPCURL(settings.SolanaRPCURL, id.Solana)
	if err != nil {
		return nil, err
	}
	swapper := jupiter.New(s.http, settings.JupiterAPIKey)
	chains := execution.NewRegistry(execution.NewSolanaAdapter(solURL, swapper, settings.PriorityFeeLamports, s.log))

	opts := execution.DefaultEVMOptions()
	if settings.GasMultiplier > 0 {
		opts.GasMultiplier = settings.GasMultiplier
	}
	if settings.ReceiptTimeout > 0 {
		opts.ReceiptTimeout = settings.ReceiptTimeout
	}
	overrides := map[id.Network]string{
		id.BSC:      settings.BSCRPCURL,
		id.Ethereum: settings.EthereumRPCURL,
	}
	for _, network := range []id.Network{id.BSC, id.Ethereum} {
		url, err := registry.ResolveRPCURL(overrides[network], network)
		if err != nil {
			return nil, err
		}
		adapter, err := execution.DialEVM(ctx, network, url, opts, s.log)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, adapter.Close)
		chains.Register(adapter)
	}
	s.chains = chains
	return chains, nil
}

func (s *runtimeState) tradePolicy() scheduler.Policy {
	policy := scheduler.DefaultPolicy()
	if s.settings.InterRoundDelay >= 0 {
		policy.InterRoundDelay = s.settings.InterRoundDelay
	}
	if s.settings.GasFloor.IsPositive() {
		policy.GasFloor = s.settings.GasFloor
	}
	return policy
}

func (s *runtimeState) tokenLookup(metrics *observability.Metrics) *dexscreener.Client {
	opts := []dexscreener.Option{
		dexscreener.WithLogger(s.log),
		dexscreener.WithMetrics(metrics),
	}
	if s.cache != nil {
		opts = append(opts, dexscreener.WithCache(s.cache, s.settings.TokenTTL, s.settings.MaxStale))
	}
	return dexscreener.New(s.http, opts...)
}
