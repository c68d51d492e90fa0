package model

import (
	"time"

	"github.com/ggonzalez94/volume-bot/internal/id"
	"github.com/shopspring/decimal"
)

const EnvelopeVersion = "v1"

type Envelope struct {
	Version  string       `json:"version"`
	Success  bool         `json:"success"`
	Data     any          `json:"data,omitempty"`
	Error    *ErrorBody   `json:"error"`
	Warnings []string     `json:"warnings,omitempty"`
	Meta     EnvelopeMeta `json:"meta"`
}

type ErrorBody struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

type EnvelopeMeta struct {
	RequestID string      `json:"request_id"`
	Timestamp time.Time   `json:"timestamp"`
	Command   string      `json:"command"`
	Cache     CacheStatus `json:"cache"`
}

type CacheStatus struct {
	Status string `json:"status"`
	AgeMS  int64  `json:"age_ms"`
	Stale  bool   `json:"stale"`
}

// Side is the direction of a swap relative to the traded token.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

func (s Side) Valid() bool { return s == SideBuy || s == SideSell }

// Speed is the user-selected trading tempo.
type Speed string

const (
	SpeedSlow     Speed = "slow"
	SpeedModerate Speed = "moderate"
	SpeedFast     Speed = "fast"
)

// Speeds lists the tiers in menu order.
var Speeds = []Speed{SpeedSlow, SpeedModerate, SpeedFast}

func (s Speed) Valid() bool {
	return s == SpeedSlow || s == SpeedModerate || s == SpeedFast
}

// Wallet is a generated key pair. The secret never serializes and String
// only exposes the public address.
type Wallet struct {
	PublicAddress string `json:"public_address"`
	PrivateKey    string `json:"-"`
}

func (w Wallet) String() string { return w.PublicAddress }

// TokenInfo is what the market-data lookup knows about a token address.
// PriceUSD and Volume24h are empty when the source has no figures.
type TokenInfo struct {
	Address   string     `json:"address"`
	Network   id.Network `json:"network"`
	ChainID   string     `json:"chain_id"`
	Name      string     `json:"name,omitempty"`
	Symbol    string     `json:"symbol,omitempty"`
	PriceUSD  string     `json:"price_usd,omitempty"`
	Volume24h string     `json:"volume_24h,omitempty"`
	PairURL   string     `json:"pair_url,omitempty"`
	FetchedAt string     `json:"fetched_at"`
}

func (t TokenInfo) HasMarketData() bool {
	return t.PriceUSD != "" && t.Volume24h != ""
}

// SwapRequest is one swap against the network's DEX. Amount is denominated
// in the native coin and only applies to buys; sells liquidate the wallet's
// whole token balance.
type SwapRequest struct {
	Network         id.Network
	PrivateKey      string
	TokenAddress    string
	Amount          decimal.Decimal
	SlippagePercent decimal.Decimal
	Side            Side
}

type OperationStatus string

const (
	OperationSucceeded OperationStatus = "succeeded"
	OperationFailed    OperationStatus = "failed"
	OperationSkipped   OperationStatus = "skipped"
)

// Operation is one entry of a cycle's log.
type Operation struct {
	Round  int             `json:"round"`
	Wallet string          `json:"wallet"`
	Side   Side            `json:"side"`
	Status OperationStatus `json:"status"`
	TxID   string          `json:"tx_id,omitempty"`
	URL    string          `json:"url,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Display is the one-line form used by the transaction views.
func (o Operation) Display() string {
	switch o.Status {
	case OperationSucceeded:
		if o.URL != "" {
			return o.URL
		}
		return o.TxID
	case OperationSkipped:
		return "Skipped (low balance): " + o.Wallet
	default:
		if o.URL != "" {
			return "Error: " + o.Error + " (" + o.URL + ")"
		}
		return "Error: " + o.Error
	}
}

// CycleReport summarizes one buy or sell cycle.
type CycleReport struct {
	ID              string      `json:"id"`
	UserID          int64       `json:"user_id"`
	Network         id.Network  `json:"network"`
	TokenAddress    string      `json:"token_address"`
	Side            Side        `json:"side"`
	Speed           Speed       `json:"speed"`
	TotalOperations int         `json:"total_operations"`
	Rounds          int         `json:"rounds"`
	Sent            int         `json:"sent"`
	Succeeded       int         `json:"succeeded"`
	Failed          int         `json:"failed"`
	Skipped         []string    `json:"skipped_wallets,omitempty"`
	Operations      []Operation `json:"operations"`
	Interrupted     bool        `json:"interrupted"`
	StartedAt       time.Time   `json:"started_at"`
	FinishedAt      time.Time   `json:"finished_at"`
}

// WalletBalance is a balance reading; Err is set when the lookup failed and
// the balance must be treated as insufficient.
type WalletBalance struct {
	Wallet  string          `json:"wallet"`
	Balance decimal.Decimal `json:"balance"`
	Err     error           `json:"-"`
}

func (b WalletBalance) Display() string {
	if b.Err != nil {
		return "Error"
	}
	return b.Balance.String()
}

// AtLeast reports whether the reading is usable and not below min.
func (b WalletBalance) AtLeast(min decimal.Decimal) bool {
	return b.Err == nil && b.Balance.GreaterThanOrEqual(min)
}
