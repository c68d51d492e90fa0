package session

import (
	"errors"
	"time"

	"github.com/ggonzalez94/volume-bot/internal/id"
	"github.com/ggonzalez94/volume-bot/internal/model"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidTransition = errors.New("session: invalid step transition")
	ErrNoPreviousStep    = errors.New("session: no previous step")
	ErrNotReady          = errors.New("session: configuration incomplete")
)

// Step is the input the conversation is waiting for. StepIdle means none.
type Step string

const (
	StepIdle                  Step = ""
	StepAwaitingWalletCount   Step = "awaiting_wallet_count"
	StepAwaitingWalletNetwork Step = "awaiting_wallet_network"
	StepAwaitingTokenAddress  Step = "awaiting_token_address"
	StepAwaitingSlippage      Step = "awaiting_slippage"
	StepAwaitingBuyAmount     Step = "awaiting_buy_amount"
)

func (s Step) Valid() bool {
	switch s {
	case StepIdle, StepAwaitingWalletCount, StepAwaitingWalletNetwork,
		StepAwaitingTokenAddress, StepAwaitingSlippage, StepAwaitingBuyAmount:
		return true
	}
	return false
}

func (s Step) String() string {
	if s == StepIdle {
		return "idle"
	}
	return string(s)
}

// Session is one user's conversation and trading configuration. It lives
// only in memory.
type Session struct {
	UserID int64
	ChatID int64

	CurrentStep  Step
	PreviousStep Step

	Wallets            map[id.Network][]model.Wallet
	PendingWalletCount int

	TradeNetwork id.Network
	TokenAddress string

	Speed           model.Speed
	SlippagePercent decimal.Decimal
	SlippageSet     bool
	BuyAmount       decimal.Decimal
	BuyAmountSet    bool

	ExecutionReady  bool
	ActiveExecution map[id.Network]bool

	// LastOperationLog holds the most recent cycle's entries per network and side.
	LastOperationLog map[id.Network]map[model.Side][]model.Operation
	LastCycleID      map[id.Network]string

	UpdatedAt time.Time
}

func New(userID int64) *Session {
	return &Session{
		UserID:           userID,
		Wallets:          map[id.Network][]model.Wallet{},
		ActiveExecution:  map[id.Network]bool{},
		LastOperationLog: map[id.Network]map[model.Side][]model.Operation{},
		LastCycleID:      map[id.Network]string{},
	}
}

// HasToken reports whether a token and its network are selected.
func (s *Session) HasToken() bool {
	return s.TradeNetwork != "" && s.TokenAddress != ""
}

// SetToken selects the traded token. Network and address always move together
// and a change to either drops execution readiness.
func (s *Session) SetToken(network id.Network, address string) {
	if !network.Valid() || address == "" {
		s.ClearToken()
		return
	}
	if network != s.TradeNetwork || address != s.TokenAddress {
		s.ExecutionReady = false
	}
	s.TradeNetwork = network
	s.TokenAddress = address
}

func (s *Session) ClearToken() {
	s.TradeNetwork = ""
	s.TokenAddress = ""
	s.ExecutionReady = false
}

// TradeWallets returns the wallets of the trade network.
func (s *Session) TradeWallets() []model.Wallet {
	if s.TradeNetwork == "" {
		return nil
	}
	return s.Wallets[s.TradeNetwork]
}

// ReplaceWallets swaps the whole wallet list of a network.
func (s *Session) ReplaceWallets(network id.Network, wallets []model.Wallet) {
	if s.Wallets == nil {
		s.Wallets = map[id.Network][]model.Wallet{}
	}
	s.Wallets[network] = append([]model.Wallet(nil), wallets...)
	if network == s.TradeNetwork {
		s.ExecutionReady = false
	}
}

func (s *Session) SetSlippage(percent decimal.Decimal) {
	s.SlippagePercent = percent
	s.SlippageSet = true
}

func (s *Session) SetBuyAmount(amount decimal.Decimal) {
	s.BuyAmount = amount
	s.BuyAmountSet = true
}

// Configured reports whether every input execution needs is present.
func (s *Session) Configured() bool {
	return s.HasToken() &&
		len(s.TradeWallets()) > 0 &&
		s.Speed.Valid() &&
		s.SlippageSet &&
		s.BuyAmountSet
}

// MarkReady opens the buy/sell gate. It refuses while anything is missing.
func (s *Session) MarkReady() error {
	if !s.Configured() {
		s.ExecutionReady = false
		return ErrNotReady
	}
	s.ExecutionReady = true
	return nil
}

func (s *Session) SetActive(network id.Network, active bool) {
	if s.ActiveExecution == nil {
		s.ActiveExecution = map[id.Network]bool{}
	}
	s.ActiveExecution[network] = active
}

// Executing reports whether a cycle is running on any network.
func (s *Session) Executing() bool {
	for _, active := range s.ActiveExecution {
		if active {
			return true
		}
	}
	return false
}

// RecordOperations overwrites the log kept for a network and side.
func (s *Session) RecordOperations(network id.Network, side model.Side, cycleID string, ops []model.Operation) {
	if s.LastOperationLog == nil {
		s.LastOperationLog = map[id.Network]map[model.Side][]model.Operation{}
	}
	if s.LastOperationLog[network] == nil {
		s.LastOperationLog[network] = map[model.Side][]model.Operation{}
	}
	s.LastOperationLog[network][side] = append([]model.Operation(nil), ops...)
	if s.LastCycleID == nil {
		s.LastCycleID = map[id.Network]string{}
	}
	s.LastCycleID[network] = cycleID
}

func (s *Session) Operations(network id.Network, side model.Side) []model.Operation {
	return s.LastOperationLog[network][side]
}

// Clone returns a deep copy safe to read without the store lock.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Wallets = make(map[id.Network][]model.Wallet, len(s.Wallets))
	for net, wallets := range s.Wallets {
		cp.Wallets[net] = append([]model.Wallet(nil), wallets...)
	}
	cp.ActiveExecution = make(map[id.Network]bool, len(s.ActiveExecution))
	for net, v := range s.ActiveExecution {
		cp.ActiveExecution[net] = v
	}
	cp.LastOperationLog = make(map[id.Network]map[model.Side][]model.Operation, len(s.LastOperationLog))
	for net, bySide := range s.LastOperationLog {
		inner := make(map[model.Side][]model.Operation, len(bySide))
		for side, ops := range bySide {
			inner[side] = append([]model.Operation(nil), ops...)
		}
		cp.LastOperationLog[net] = inner
	}
	cp.LastCycleID = make(map[id.Network]string, len(s.LastCycleID))
	for net, v := range s.LastCycleID {
		cp.LastCycleID[net] = v
	}
	return &cp
}
