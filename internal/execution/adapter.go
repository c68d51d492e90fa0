package execution

import (
	"context"
	"fmt"
	"sort"
	"sync"

	clierr "github.com/ggonzalez94/volume-bot/internal/errors"
	"github.com/ggonzalez94/volume-bot/internal/id"
	"github.com/ggonzalez94/volume-bot/internal/model"
	"github.com/shopspring/decimal"
)

// Adapter is the per-network capability set the bot needs: key generation,
// native balance reads and swaps against the network's DEX.
type Adapter interface {
	Network() id.Network
	GenerateWallets(ctx context.Context, count int) ([]model.Wallet, error)
	Balance(ctx context.Context, address string) (decimal.Decimal, error)
	ExecuteSwap(ctx context.Context, req model.SwapRequest) (string, error)
}

// Registry routes calls to the adapter registered for a network.
type Registry struct {
	mu       sync.RWMutex
	adapters map[id.Network]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: map[id.Network]Adapter{}}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register replaces any adapter previously registered for the same network.
func (r *Registry) Register(a Adapter) {
	if a == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Network()] = a
}

func (r *Registry) Adapter(network id.Network) (Adapter, error) {
	r.mu.RLock()
	a, ok := r.adapters[network]
	r.mu.RUnlock()
	if !ok {
		return nil, clierr.New(clierr.CodeUnsupported, fmt.Sprintf("no adapter configured for network %q", network))
	}
	return a, nil
}

// Networks lists registered networks in stable order.
func (r *Registry) Networks() []id.Network {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]id.Network, 0, len(r.adapters))
	for n := range r.adapters {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r *Registry) GenerateWallets(ctx context.Context, network id.Network, count int) ([]model.Wallet, error) {
	if count < 1 {
		return nil, clierr.New(clierr.CodeUsage, "wallet count must be at least 1")
	}
	a, err := r.Adapter(network)
	if err != nil {
		return nil, err
	}
	return a.GenerateWallets(ctx, count)
}

func (r *Registry) Balance(ctx context.Context, network id.Network, address string) (decimal.Decimal, error) {
	a, err := r.Adapter(network)
	if err != nil {
		return decimal.Zero, err
	}
	return a.Balance(ctx, address)
}

func (r *Registry) ExecuteSwap(ctx context.Context, req model.SwapRequest) (string, error) {
	if !req.Side.Valid() {
		return "", clierr.New(clierr.CodeUsage, fmt.Sprintf("invalid swap side %q", req.Side))
	}
	a, err := r.Adapter(req.Network)
	if err != nil {
		return "", err
	}
	return a.ExecuteSwap(ctx, req)
}
