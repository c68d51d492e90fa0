package bot

import (
	"context"
	"errors"
	"strconv"
	"strings"

	clierr "github.com/ggonzalez94/volume-bot/internal/errors"
	"github.com/ggonzalez94/volume-bot/internal/id"
	"github.com/ggonzalez94/volume-bot/internal/model"
	"github.com/ggonzalez94/volume-bot/internal/observability"
	"github.com/ggonzalez94/volume-bot/internal/preflight"
	"github.com/ggonzalez94/volume-bot/internal/scheduler"
	"github.com/ggonzalez94/volume-bot/internal/session"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var (
	DefaultSlippage  = decimal.NewFromInt(1)
	DefaultBuyAmount = decimal.RequireFromString("0.001")

	MinSlippage  = decimal.RequireFromString("0.1")
	MaxSlippage  = decimal.NewFromInt(50)
	MinBuyAmount = decimal.RequireFromString("0.0001")
	MaxBuyAmount = decimal.NewFromInt(10)
)

const (
	DefaultMaxWallets = 20
	maxMessageLen     = 4000
)

// Message is one outbound chat message.
type Message struct {
	Text     string
	HTML     bool
	Keyboard *Keyboard
}

// Transport delivers replies to the chat platform.
type Transport interface {
	Send(ctx context.Context, chatID int64, msg Message) error
	// Answer acknowledges an inline action; text may be empty.
	Answer(ctx context.Context, callbackID, text string) error
}

// Chain generates wallets and reads native balances by network.
type Chain interface {
	GenerateWallets(ctx context.Context, network id.Network, count int) ([]model.Wallet, error)
	Balance(ctx context.Context, network id.Network, address string) (decimal.Decimal, error)
}

type TokenIdentifier interface {
	IdentifyToken(ctx context.Context, address string) (*model.TokenInfo, error)
}

type CycleRunner interface {
	RunCycle(ctx context.Context, c scheduler.Cycle, progress func(scheduler.Progress)) (model.CycleReport, error)
	Policy() scheduler.Policy
}

// CycleRecorder keeps finished cycle reports. It is optional.
type CycleRecorder interface {
	Save(ctx context.Context, report model.CycleReport) error
}

// UserMessage is an inbound text message.
type UserMessage struct {
	UserID int64
	ChatID int64
	Text   string
}

// UserAction is an inbound inline-button press.
type UserAction struct {
	UserID     int64
	ChatID     int64
	CallbackID string
	Data       string
}

type Config struct {
	Sessions   *session.Store
	Chain      Chain
	Tokens     TokenIdentifier
	Validator  *preflight.Validator
	Cycles     CycleRunner
	Journal    CycleRecorder
	Transport  Transport
	MaxWallets int
	Log        zerolog.Logger
	Metrics    *observability.Metrics
}

// Machine interprets user input against the session's current step and
// drives the validator and the scheduler.
type Machine struct {
	sessions   *session.Store
	chain      Chain
	tokens     TokenIdentifier
	validator  *preflight.Validator
	cycles     CycleRunner
	journal    CycleRecorder
	transport  Transport
	maxWallets int
	log        zerolog.Logger
	metrics    *observability.Metrics
}

func New(cfg Config) (*Machine, error) {
	switch {
	case cfg.Sessions == nil:
		return nil, clierr.New(clierr.CodeInternal, "bot: missing session store")
	case cfg.Chain == nil:
		return nil, clierr.New(clierr.CodeInternal, "bot: missing chain access")
	case cfg.Tokens == nil:
		return nil, clierr.New(clierr.CodeInternal, "bot: missing token identifier")
	case cfg.Validator == nil:
		return nil, clierr.New(clierr.CodeInternal, "bot: missing validator")
	case cfg.Cycles == nil:
		return nil, clierr.New(clierr.CodeInternal, "bot: missing cycle runner")
	case cfg.Transport == nil:
		return nil, clierr.New(clierr.CodeInternal, "bot: missing transport")
	}
	maxWallets := cfg.MaxWallets
	if maxWallets <= 0 {
		maxWallets = DefaultMaxWallets
	}
	return &Machine{
		sessions:   cfg.Sessions,
		chain:      cfg.Chain,
		tokens:     cfg.Tokens,
		validator:  cfg.Validator,
		cycles:     cfg.Cycles,
		journal:    cfg.Journal,
		transport:  cfg.Transport,
		maxWallets: maxWallets,
		log:        cfg.Log,
		metrics:    cfg.Metrics,
	}, nil
}

// HandleMessage routes a text message. Menu labels and commands win over the
// current step, as they do on the chat keyboard.
func (m *Machine) HandleMessage(ctx context.Context, in UserMessage) {
	m.metrics.ObserveUpdate("message")
	text := strings.TrimSpace(in.Text)
	s := m.touch(in.UserID, in.ChatID)

	switch text {
	case CommandStart:
		m.update(in.UserID, func(s *session.Session) error { s.Reset(); return nil })
		m.reply(ctx, in.ChatID, msgWelcome, mainMenu())
		return
	case CommandEnterToken, LabelEnterToken:
		m.fire(in.UserID, session.TriggerEnterToken)
		m.reply(ctx, in.ChatID, msgEnterToken, backOnlyKeyboard())
		return
	case LabelGenerateWallet:
		m.fire(in.UserID, session.TriggerGenerateWallets)
		m.reply(ctx, in.ChatID, walletCountPrompt(m.maxWallets), backOnlyKeyboard())
		return
	case LabelShowWallets:
		m.showWallets(ctx, in.ChatID, s)
		return
	case LabelStartVolume:
		m.startVolume(ctx, in.ChatID, s)
		return
	case LabelBackToMain:
		m.backToMain(ctx, in.UserID, in.ChatID)
		return
	case LabelGoBack:
		if s.PreviousStep != session.StepIdle {
			m.update(in.UserID, func(s *session.Session) error { return s.GoBack() })
			m.reply(ctx, in.ChatID, msgReturning, backOnlyKeyboard())
			return
		}
	}

	switch s.CurrentStep {
	case session.StepAwaitingWalletCount:
		m.acceptWalletCount(ctx, in.ChatID, s, text)
	case session.StepAwaitingWalletNetwork:
		m.acceptWalletNetwork(ctx, in.ChatID, s, text)
	case session.StepAwaitingTokenAddress:
		m.acceptTokenAddress(ctx, in.ChatID, s, text)
	case session.StepAwaitingSlippage:
		m.acceptSlippage(ctx, in.ChatID, s, text)
	case session.StepAwaitingBuyAmount:
		m.acceptBuyAmount(ctx, in.ChatID, s, text)
	default:
		m.fire(in.UserID, session.TriggerUnrecognized)
		m.reply(ctx, in.ChatID, msgNotUnderstood, mainMenu())
	}
}

// HandleAction routes an inline-button press and always answers it.
func (m *Machine) HandleAction(ctx context.Context, in UserAction) {
	m.metrics.ObserveUpdate("action")
	s := m.touch(in.UserID, in.ChatID)

	ack := ""
	switch {
	case in.Data == ActionShowWallets:
		m.showWallets(ctx, in.ChatID, s)
	case in.Data == ActionBackToMain:
		m.backToMain(ctx, in.UserID, in.ChatID)
	case in.Data == ActionBuy:
		ack = m.runCycle(ctx, in.ChatID, s, model.SideBuy)
	case in.Data == ActionDump:
		ack = m.runCycle(ctx, in.ChatID, s, model.SideSell)
	case in.Data == ActionTrxBuy:
		m.showOperations(ctx, in.ChatID, s, model.SideBuy)
	case in.Data == ActionTrxSell:
		m.showOperations(ctx, in.ChatID, s, model.SideSell)
	case strings.HasPrefix(in.Data, actionSpeedPrefix):
		ack = m.selectSpeed(ctx, in.ChatID, s, model.Speed(strings.TrimPrefix(in.Data, actionSpeedPrefix)))
	default:
		m.log.Debug().Int64("user_id", in.UserID).Str("action", in.Data).Msg("unknown action")
	}
	if in.CallbackID == "" {
		return
	}
	if err := m.transport.Answer(ctx, in.CallbackID, ack); err != nil {
		m.log.Warn().Err(err).Int64("user_id", in.UserID).Msg("answer callback failed")
	}
}

// touch returns a snapshot of the user's session, recording the chat the
// user last wrote from.
func (m *Machine) touch(userID, chatID int64) *session.Session {
	m.update(userID, func(s *session.Session) error {
		if chatID != 0 {
			s.ChatID = chatID
		}
		return nil
	})
	m.metrics.SetActiveSessions(m.sessions.Len())
	return m.sessions.Get(userID)
}

func (m *Machine) update(userID int64, fn func(*session.Session) error) bool {
	if err := m.sessions.Update(userID, fn); err != nil {
		m.log.Debug().Err(err).Int64("user_id", userID).Msg("session update rejected")
		return false
	}
	return true
}

func (m *Machine) fire(userID int64, t session.Trigger) bool {
	return m.update(userID, func(s *session.Session) error { return s.Fire(t) })
}

func (m *Machine) backToMain(ctx context.Context, userID, chatID int64) {
	m.fire(userID, session.TriggerBackToMain)
	m.reply(ctx, chatID, msgBackToMain, mainMenu())
}

func (m *Machine) acceptWalletCount(ctx context.Context, chatID int64, s *session.Session, text string) {
	count, err := strconv.Atoi(text)
	if err != nil || count < 1 || count > m.maxWallets {
		m.reply(ctx, chatID, invalidWalletCount(m.maxWallets), backOnlyKeyboard())
		return
	}
	m.update(s.UserID, func(s *session.Session) error {
		if err := s.Fire(session.TriggerWalletCountAccepted); err != nil {
			return err
		}
		s.PendingWalletCount = count
		return nil
	})
	m.reply(ctx, chatID, msgSelectNetwork, networkKeyboard())
}

func (m *Machine) acceptWalletNetwork(ctx context.Context, chatID int64, s *session.Session, text string) {
	network, err := id.ParseNetwork(text)
	if err != nil {
		m.reply(ctx, chatID, msgInvalidNetwork, backOnlyKeyboard())
		return
	}
	count := s.PendingWalletCount
	if count < 1 || count > m.maxWallets {
		count = 1
	}
	wallets, err := m.chain.GenerateWallets(ctx, network, count)
	if err != nil {
		m.log.Error().Err(err).Int64("user_id", s.UserID).Str("network", network.String()).Msg("wallet generation failed")
		m.reply(ctx, chatID, msgGenerateFailed, backOnlyKeyboard())
		return
	}
	m.update(s.UserID, func(s *session.Session) error {
		if err := s.Fire(session.TriggerWalletsGenerated); err != nil {
			return err
		}
		s.ReplaceWallets(network, wallets)
		s.PendingWalletCount = 0
		return nil
	})
	m.log.Info().Int64("user_id", s.UserID).Str("network", network.String()).Int("count", len(wallets)).Msg("wallets generated")
	m.reply(ctx, chatID, generatedWallets(network, wallets), enterTokenMenu())
	m.reply(ctx, chatID, msgFundWallets, enterTokenMenu())
}

// acceptTokenAddress resolves the chain through the metadata source and falls
// back to the address shape when the source fails or has no listing.
func (m *Machine) acceptTokenAddress(ctx context.Context, chatID int64, s *session.Session, text string) {
	address := text
	info, err := m.tokens.IdentifyToken(ctx, address)
	if err != nil {
		m.log.Warn().Err(err).Int64("user_id", s.UserID).Str("token", address).Msg("token lookup failed, classifying by address")
		info = nil
	}

	var (
		network    id.Network
		chainLabel string
		resolved   bool
	)
	switch {
	case info != nil:
		network, resolved = info.Network, info.Network.Valid()
		chainLabel = info.ChainID
	default:
		network, resolved = id.Classify(address, s.TradeNetwork)
		chainLabel = network.Slug()
	}
	if !resolved {
		m.reply(ctx, chatID, msgNetworkUndetect, enterTokenMenu())
		return
	}

	ok := m.update(s.UserID, func(s *session.Session) error {
		if err := s.Fire(session.TriggerTokenResolved); err != nil {
			return err
		}
		s.SetToken(network, address)
		return nil
	})
	if !ok {
		return
	}
	balances := m.readBalances(ctx, network, s.Wallets[network])
	m.reply(ctx, chatID, tokenSummary(address, network, chainLabel, info, balances), startVolumeMenu())
}

func (m *Machine) acceptSlippage(ctx context.Context, chatID int64, s *session.Session, text string) {
	percent := DefaultSlippage
	if text != LabelDefaultSlippage {
		v, err := id.ParseDecimalInRange(text, MinSlippage, MaxSlippage)
		if err != nil {
			m.reply(ctx, chatID, msgInvalidSlippage, slippageKeyboard())
			return
		}
		percent = v
	}
	m.update(s.UserID, func(s *session.Session) error {
		if err := s.Fire(session.TriggerSlippageAccepted); err != nil {
			return err
		}
		s.SetSlippage(percent)
		return nil
	})
	m.reply(ctx, chatID, slippageAccepted(percent, s.TradeNetwork), amountKeyboard())
}

func (m *Machine) acceptBuyAmount(ctx context.Context, chatID int64, s *session.Session, text string) {
	amount := DefaultBuyAmount
	if text != LabelDefaultAmount {
		v, err := id.ParseDecimalInRange(text, MinBuyAmount, MaxBuyAmount)
		if err != nil {
			m.reply(ctx, chatID, msgInvalidAmount, amountKeyboard())
			return
		}
		amount = v
	}
	var readyErr error
	m.update(s.UserID, func(s *session.Session) error {
		if err := s.Fire(session.TriggerBuyAmountAccepted); err != nil {
			return err
		}
		s.SetBuyAmount(amount)
		readyErr = s.MarkReady()
		return nil
	})
	if readyErr != nil {
		m.reply(ctx, chatID, msgSetupIncomplete, startVolumeMenu())
		return
	}
	m.reply(ctx, chatID, buyAmountAccepted(amount, s.TradeNetwork), buySellMenu())
}

// startVolume runs the start checks and moves the conversation to the first
// input still needed. A full configuration is confirmed again from slippage.
func (m *Machine) startVolume(ctx context.Context, chatID int64, s *session.Session) {
	res := m.validator.CanStartExecution(ctx, s)
	if res.Swept {
		network := s.TradeNetwork
		m.update(s.UserID, func(s *session.Session) error {
			s.SetActive(network, res.AnyFunded)
			return nil
		})
	}

	switch res.Reason {
	case preflight.ReasonTokenNotSelected:
		m.reply(ctx, chatID, msgTokenFirst, startVolumeMenu())
		return
	case preflight.ReasonNoWallets:
		m.reply(ctx, chatID, msgNoWalletsNetwork, mainMenu())
		return
	case preflight.ReasonPrimaryUnfunded:
		m.reply(ctx, chatID, msgPrimaryUnfunded, startVolumeMenu())
		return
	case preflight.ReasonAllUnfunded:
		m.reply(ctx, chatID, msgAllUnfunded, startVolumeMenu())
		return
	case preflight.ReasonPartiallyFunded:
		m.reply(ctx, chatID, msgSomeUnfunded, startVolumeMenu())
		return
	}

	switch res.Prompt {
	case preflight.PromptSpeed:
		m.reply(ctx, chatID, msgChooseSpeed, speedMenu(m.cycles.Policy()))
	case preflight.PromptBuyAmount:
		m.fire(s.UserID, session.TriggerPromptBuyAmount)
		m.reply(ctx, chatID, buyAmountPrompt(s.TradeNetwork), amountKeyboard())
	default:
		m.fire(s.UserID, session.TriggerPromptSlippage)
		m.reply(ctx, chatID, msgSlippagePrompt, slippageKeyboard())
	}
}

func (m *Machine) selectSpeed(ctx context.Context, chatID int64, s *session.Session, speed model.Speed) string {
	policy := m.cycles.Policy()
	if _, err := policy.Tier(speed); err != nil {
		return "Unknown speed."
	}
	var next preflight.Prompt
	m.update(s.UserID, func(s *session.Session) error {
		s.Speed = speed
		next = preflight.NextPrompt(s)
		return nil
	})
	label := policy.SpeedLabel(speed)
	m.reply(ctx, chatID, speedSelected(policy, speed), nil)

	switch next {
	case preflight.PromptBuyAmount:
		m.fire(s.UserID, session.TriggerPromptBuyAmount)
		m.reply(ctx, chatID, buyAmountPrompt(s.TradeNetwork), amountKeyboard())
	case preflight.PromptNone:
		var readyErr error
		m.update(s.UserID, func(s *session.Session) error {
			readyErr = s.MarkReady()
			return nil
		})
		if readyErr != nil {
			m.reply(ctx, chatID, msgSetupIncomplete, startVolumeMenu())
		} else {
			m.reply(ctx, chatID, "You can now Buy or Dump tokens.", buySellMenu())
		}
	default:
		m.fire(s.UserID, session.TriggerPromptSlippage)
		m.reply(ctx, chatID, msgSlippagePrompt, slippageKeyboard())
	}
	return label
}

// runCycle executes one buy or sell cycle for the trade network and returns
// the callback acknowledgement.
func (m *Machine) runCycle(ctx context.Context, chatID int64, s *session.Session, side model.Side) string {
	if !s.ExecutionReady || !s.Configured() {
		return ackStartFirst
	}
	network := s.TradeNetwork
	menu := menuForSide(side)
	m.update(s.UserID, func(s *session.Session) error {
		s.SetActive(network, true)
		return nil
	})

	cycle := scheduler.Cycle{
		UserID:       s.UserID,
		Network:      network,
		TokenAddress: s.TokenAddress,
		Side:         side,
		Speed:        s.Speed,
		Wallets:      s.TradeWallets(),
		Amount:       s.BuyAmount,
		Slippage:     s.SlippagePercent,
	}
	report, err := m.cycles.RunCycle(ctx, cycle, func(p scheduler.Progress) {
		m.reply(ctx, chatID, progressLine(p), menu)
	})
	if err != nil && report.ID == "" {
		m.log.Error().Err(err).Int64("user_id", s.UserID).Str("side", string(side)).Msg("cycle rejected")
		m.reply(ctx, chatID, cycleFailed(err), menu)
		return ackStartFirst
	}

	m.update(s.UserID, func(s *session.Session) error {
		s.RecordOperations(network, side, report.ID, report.Operations)
		if side == model.SideSell && !report.Interrupted {
			s.SetActive(network, false)
			s.ExecutionReady = false
		}
		return nil
	})
	if m.journal != nil {
		// The shutdown context may already be done; the report is still worth keeping.
		if err := m.journal.Save(context.WithoutCancel(ctx), report); err != nil {
			m.log.Warn().Err(err).Str("cycle", report.ID).Msg("journal save failed")
		}
	}

	switch {
	case report.Interrupted:
		m.reply(ctx, chatID, interruptedSummary(report), menu)
		return ackInterrupted
	case side == model.SideSell:
		m.reply(ctx, chatID, sellSummary(report), menu)
		return ackDumpComplete
	default:
		m.reply(ctx, chatID, msgBuyComplete, menu)
		return ackBuyComplete
	}
}

func (m *Machine) showOperations(ctx context.Context, chatID int64, s *session.Session, side model.Side) {
	m.reply(ctx, chatID, operationLog(s.TradeNetwork, side, s.Operations(s.TradeNetwork, side)), menuForSide(side))
}

func (m *Machine) showWallets(ctx context.Context, chatID int64, s *session.Session) {
	groups := make([]networkBalances, 0, len(id.Networks))
	for _, network := range id.Networks {
		wallets := s.Wallets[network]
		if len(wallets) == 0 {
			continue
		}
		groups = append(groups, networkBalances{Network: network, Balances: m.readBalances(ctx, network, wallets)})
	}
	if len(groups) == 0 {
		m.reply(ctx, chatID, msgNoWalletsYet, mainMenu())
		return
	}
	m.reply(ctx, chatID, walletsOverview(groups), mainMenu())
}

func (m *Machine) readBalances(ctx context.Context, network id.Network, wallets []model.Wallet) []model.WalletBalance {
	out := make([]model.WalletBalance, 0, len(wallets))
	for _, w := range wallets {
		bal, err := m.chain.Balance(ctx, network, w.PublicAddress)
		if err != nil {
			m.log.Warn().Err(err).Str("network", network.String()).Str("wallet", w.PublicAddress).Msg("balance lookup failed")
		}
		out = append(out, model.WalletBalance{Wallet: w.PublicAddress, Balance: bal, Err: err})
	}
	return out
}

// reply sends HTML and falls back to a plain notice with the same keyboard
// when the platform rejects the markup.
func (m *Machine) reply(ctx context.Context, chatID int64, text string, kb *Keyboard) {
	for _, part := range splitMessage(text, maxMessageLen) {
		err := m.transport.Send(ctx, chatID, Message{Text: part, HTML: true, Keyboard: kb})
		if err == nil {
			continue
		}
		if errors.Is(err, context.Canceled) {
			return
		}
		m.log.Warn().Err(err).Int64("chat_id", chatID).Msg("html reply rejected, sending plain fallback")
		if err := m.transport.Send(ctx, chatID, Message{Text: msgPlainFallback, Keyboard: kb}); err != nil {
			m.log.Error().Err(err).Int64("chat_id", chatID).Int("bytes", len(part)).Msg("reply dropped")
		}
	}
}
