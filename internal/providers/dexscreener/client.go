package dexscreener

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ggonzalez94/volume-bot/internal/cache"
	clierr "github.com/ggonzalez94/volume-bot/internal/errors"
	"github.com/ggonzalez94/volume-bot/internal/httpx"
	"github.com/ggonzalez94/volume-bot/internal/id"
	"github.com/ggonzalez94/volume-bot/internal/model"
	"github.com/ggonzalez94/volume-bot/internal/observability"
	"github.com/ggonzalez94/volume-bot/internal/providers"
	"github.com/ggonzalez94/volume-bot/internal/registry"
	"github.com/rs/zerolog"
)

const (
	defaultTTL      = 2 * time.Minute
	defaultMaxStale = 10 * time.Minute
)

type Client struct {
	http     *httpx.Client
	baseURL  string
	cache    *cache.Store
	ttl      time.Duration
	maxStale time.Duration
	now      func() time.Time
	log      zerolog.Logger
	metrics  *observability.Metrics
}

type Option func(*Client)

// WithCache serves repeat lookups from store. Entries older than ttl are
// refreshed; up to maxStale past ttl they still cover a provider outage.
func WithCache(store *cache.Store, ttl, maxStale time.Duration) Option {
	return func(c *Client) {
		c.cache = store
		if ttl > 0 {
			c.ttl = ttl
		}
		if maxStale >= 0 {
			c.maxStale = maxStale
		}
	}
}

func WithBaseURL(base string) Option {
	return func(c *Client) {
		if strings.TrimSpace(base) != "" {
			c.baseURL = strings.TrimRight(base, "/")
		}
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

func New(httpClient *httpx.Client, opts ...Option) *Client {
	c := &Client{
		http:     httpClient,
		baseURL:  registry.DexScreenerBaseURL,
		ttl:      defaultTTL,
		maxStale: defaultMaxStale,
		now:      time.Now,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Info() providers.Info {
	return providers.Info{
		Name:         "dexscreener",
		Type:         "market_data",
		RequiresKey:  false,
		Capabilities: []string{"token.identify"},
	}
}

// Lookup is a token lookup together with how the cache served it.
type Lookup struct {
	Token *model.TokenInfo
	Cache model.CacheStatus
}

func (c *Client) IdentifyToken(ctx context.Context, address string) (*model.TokenInfo, error) {
	res, err := c.Lookup(ctx, address)
	if err != nil {
		return nil, err
	}
	return res.Token, nil
}

// Lookup resolves address through the cache first. A nil Token means the
// source lists no pair for it; such misses are not cached.
func (c *Client) Lookup(ctx context.Context, address string) (Lookup, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return Lookup{}, clierr.New(clierr.CodeUsage, "token address is required")
	}
	key := "dexscreener:token:" + address

	var (
		cached model.TokenInfo
		res    cache.Result
	)
	if c.cache != nil {
		var err error
		res, err = c.cache.GetJSON(ctx, key, c.maxStale, &cached)
		if err != nil {
			c.log.Warn().Err(err).Str("token", address).Msg("token cache read failed")
			res = cache.Result{}
		}
		if res.Hit && !res.Stale {
			c.metrics.ObserveTokenLookup("hit")
			return Lookup{Token: &cached, Cache: status("hit", res)}, nil
		}
	}

	info, err := c.fetch(ctx, address)
	if err != nil {
		if res.Usable() {
			c.log.Warn().Err(err).Str("token", address).Dur("age", res.Age).Msg("serving stale token data")
			c.metrics.ObserveTokenLookup("stale")
			return Lookup{Token: &cached, Cache: status("stale", res)}, nil
		}
		return Lookup{}, err
	}
	c.metrics.ObserveTokenLookup("miss")
	if info != nil && c.cache != nil {
		if err := c.cache.SetJSON(ctx, key, info, c.ttl); err != nil {
			c.log.Warn().Err(err).Str("token", address).Msg("token cache write failed")
		}
	}
	return Lookup{Token: info, Cache: model.CacheStatus{Status: "miss"}}, nil
}

type tokensResponse struct {
	Pairs []pair `json:"pairs"`
}

type pair struct {
	ChainID   string `json:"chainId"`
	ChainName string `json:"chainName"`
	URL       string `json:"url"`
	PriceUSD  string `json:"priceUsd"`
	Volume    struct {
		H24 json.Number `json:"h24"`
	} `json:"volume"`
	BaseToken struct {
		Address string `json:"address"`
		Name    string `json:"name"`
		Symbol  string `json:"symbol"`
	} `json:"baseToken"`
}

func (c *Client) fetch(ctx context.Context, address string) (*model.TokenInfo, error) {
	endpoint := fmt.Sprintf("%s/tokens/%s", c.baseURL, url.PathEscape(address))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "build dexscreener request", err)
	}
	var resp tokensResponse
	if _, err := c.http.DoJSON(ctx, req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Pairs) == 0 {
		return nil, nil
	}

	p := resp.Pairs[0]
	label := p.ChainID
	if strings.TrimSpace(label) == "" {
		label = p.ChainName
	}
	network, _ := id.NetworkFromChainHint(label)

	info := &model.TokenInfo{
		Address:   address,
		Network:   network,
		ChainID:   label,
		Name:      p.BaseToken.Name,
		Symbol:    p.BaseToken.Symbol,
		PairURL:   p.URL,
		FetchedAt: c.now().UTC().Format(time.RFC3339),
	}
	if vol := p.Volume.H24.String(); p.PriceUSD != "" && vol != "" && vol != "0" {
		info.PriceUSD = p.PriceUSD
		info.Volume24h = vol
	}
	return info, nil
}

func status(name string, res cache.Result) model.CacheStatus {
	return model.CacheStatus{Status: name, AgeMS: res.Age.Milliseconds(), Stale: res.Stale}
}
