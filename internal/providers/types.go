package providers

import (
	"context"

	"github.com/ggonzalez94/volume-bot/internal/model"
)

// Info describes an upstream data or routing provider.
type Info struct {
	Name          string   `json:"name"`
	Type          string   `json:"type"`
	RequiresKey   bool     `json:"requires_key"`
	KeyEnvVarName string   `json:"key_env_var_name,omitempty"`
	Capabilities  []string `json:"capabilities"`
}

type Provider interface {
	Info() Info
}

// TokenIdentifier resolves a token address to its chain and market data.
// A nil result with a nil error means the source has never seen the token.
type TokenIdentifier interface {
	Provider
	IdentifyToken(ctx context.Context, address string) (*model.TokenInfo, error)
}
