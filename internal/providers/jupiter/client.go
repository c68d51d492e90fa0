package jupiter

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	clierr "github.com/ggonzalez94/volume-bot/internal/errors"
	"github.com/ggonzalez94/volume-bot/internal/httpx"
	"github.com/ggonzalez94/volume-bot/internal/providers"
	"github.com/ggonzalez94/volume-bot/internal/registry"
)

type Client struct {
	http    *httpx.Client
	baseURL string
	apiKey  string
}

func New(httpClient *httpx.Client, apiKey string) *Client {
	apiKey = strings.TrimSpace(apiKey)
	baseURL := registry.JupiterLiteBaseURL
	if apiKey != "" {
		baseURL = registry.JupiterProBaseURL
	}
	return &Client{http: httpClient, baseURL: baseURL, apiKey: apiKey}
}

// WithBaseURL points the client at another deployment.
func (c *Client) WithBaseURL(base string) *Client {
	if strings.TrimSpace(base) != "" {
		c.baseURL = strings.TrimRight(base, "/")
	}
	return c
}

func (c *Client) Info() providers.Info {
	return providers.Info{
		Name:          "jupiter",
		Type:          "swap",
		RequiresKey:   false,
		KeyEnvVarName: "VOLUMEBOT_JUPITER_API_KEY",
		Capabilities:  []string{"swap.quote", "swap.transaction"},
	}
}

type QuoteRequest struct {
	InputMint   string
	OutputMint  string
	Amount      uint64
	SlippageBps int
}

// Quote keeps the raw response because the swap endpoint wants it back verbatim.
type Quote struct {
	InAmount       string
	OutAmount      string
	PriceImpactPct float64
	Route          string
	Raw            json.RawMessage
}

type quoteResponse struct {
	InAmount       string `json:"inAmount"`
	OutAmount      string `json:"outAmount"`
	PriceImpactPct string `json:"priceImpactPct"`
	RoutePlan      []struct {
		SwapInfo struct {
			Label string `json:"label"`
		} `json:"swapInfo"`
	} `json:"routePlan"`
}

func (c *Client) Quote(ctx context.Context, req QuoteRequest) (Quote, error) {
	if req.InputMint == "" || req.OutputMint == "" {
		return Quote{}, clierr.New(clierr.CodeUsage, "jupiter quote needs input and output mints")
	}
	if req.Amount == 0 {
		return Quote{}, clierr.New(clierr.CodeUsage, "jupiter quote amount must be positive")
	}

	vals := url.Values{}
	vals.Set("inputMint", req.InputMint)
	vals.Set("outputMint", req.OutputMint)
	vals.Set("amount", strconv.FormatUint(req.Amount, 10))
	vals.Set("slippageBps", strconv.Itoa(req.SlippageBps))
	vals.Set("swapMode", "ExactIn")

	endpoint := fmt.Sprintf("%s/quote?%s", strings.TrimRight(c.baseURL, "/"), vals.Encode())
	hReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Quote{}, clierr.Wrap(clierr.CodeInternal, "build jupiter quote request", err)
	}
	if c.apiKey != "" {
		hReq.Header.Set("x-api-key", c.apiKey)
	}

	var raw json.RawMessage
	if _, err := c.http.DoJSON(ctx, hReq, &raw); err != nil {
		return Quote{}, err
	}
	var resp quoteResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return Quote{}, clierr.Wrap(clierr.CodeUnavailable, "decode jupiter quote", err)
	}
	if strings.TrimSpace(resp.OutAmount) == "" || resp.OutAmount == "0" {
		return Quote{}, clierr.New(clierr.CodeUnavailable, "jupiter quote has no output amount")
	}

	route := make([]string, 0, len(resp.RoutePlan))
	for _, hop := range resp.RoutePlan {
		route = append(route, hop.SwapInfo.Label)
	}
	return Quote{
		InAmount:       resp.InAmount,
		OutAmount:      resp.OutAmount,
		PriceImpactPct: parsePriceImpactPct(resp.PriceImpactPct),
		Route:          routeLabel(route),
		Raw:            raw,
	}, nil
}

type SwapRequest struct {
	Quote         Quote
	UserPublicKey string
	// PrioritizationFeeLamports of zero lets Jupiter pick the fee.
	PrioritizationFeeLamports uint64
}

type swapPayload struct {
	QuoteResponse             json.RawMessage `json:"quoteResponse"`
	UserPublicKey             string          `json:"userPublicKey"`
	WrapAndUnwrapSol          bool            `json:"wrapAndUnwrapSol"`
	DynamicComputeUnitLimit   bool            `json:"dynamicComputeUnitLimit"`
	PrioritizationFeeLamports any             `json:"prioritizationFeeLamports"`
}

type swapResponse struct {
	SwapTransaction string `json:"swapTransaction"`
}

// SwapTransaction returns the unsigned serialized transaction for a quote.
func (c *Client) SwapTransaction(ctx context.Context, req SwapRequest) ([]byte, error) {
	if len(req.Quote.Raw) == 0 {
		return nil, clierr.New(clierr.CodeUsage, "jupiter swap needs a quote")
	}
	if req.UserPublicKey == "" {
		return nil, clierr.New(clierr.CodeUsage, "jupiter swap needs the user public key")
	}
	var fee any = "auto"
	if req.PrioritizationFeeLamports > 0 {
		fee = req.PrioritizationFeeLamports
	}
	payload := swapPayload{
		QuoteResponse:             req.Quote.Raw,
		UserPublicKey:             req.UserPublicKey,
		WrapAndUnwrapSol:          true,
		DynamicComputeUnitLimit:   true,
		PrioritizationFeeLamports: fee,
	}
	headers := map[string]string{}
	if c.apiKey != "" {
		headers["x-api-key"] = c.apiKey
	}

	var resp swapResponse
	if _, err := httpx.PostJSON(ctx, c.http, strings.TrimRight(c.baseURL, "/")+"/swap", payload, headers, &resp); err != nil {
		return nil, err
	}
	if strings.TrimSpace(resp.SwapTransaction) == "" {
		return nil, clierr.New(clierr.CodeUnavailable, "jupiter swap returned no transaction")
	}
	buf, err := base64.StdEncoding.DecodeString(resp.SwapTransaction)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "decode jupiter swap transaction", err)
	}
	return buf, nil
}

func parsePriceImpactPct(v string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || f < 0 {
		return 0
	}
	return f
}

func routeLabel(labels []string) string {
	parts := make([]string, 0, len(labels))
	for _, label := range labels {
		label = strings.TrimSpace(label)
		if label == "" {
			continue
		}
		if len(parts) == 0 || parts[len(parts)-1] != label {
			parts = append(parts, label)
		}
	}
	if len(parts) == 0 {
		return "jupiter"
	}
	return strings.Join(parts, " > ")
}
