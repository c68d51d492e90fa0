package session

import "fmt"

// Trigger is a conversational event that moves the session between steps.
type Trigger string

const (
	TriggerGenerateWallets     Trigger = "generate_wallets"
	TriggerEnterToken          Trigger = "enter_token"
	TriggerWalletCountAccepted Trigger = "wallet_count_accepted"
	TriggerWalletsGenerated    Trigger = "wallets_generated"
	TriggerTokenResolved       Trigger = "token_resolved"
	TriggerPromptSlippage      Trigger = "prompt_slippage"
	TriggerPromptBuyAmount     Trigger = "prompt_buy_amount"
	TriggerSlippageAccepted    Trigger = "slippage_accepted"
	TriggerBuyAmountAccepted   Trigger = "buy_amount_accepted"
	TriggerBackToMain          Trigger = "back_to_main"
	TriggerUnrecognized        Trigger = "unrecognized"
)

type rule struct {
	// from lists the steps the trigger is valid in; nil means any step.
	from           []Step
	to             Step
	recordPrevious bool
}

var transitions = map[Trigger]rule{
	TriggerGenerateWallets:     {to: StepAwaitingWalletCount, recordPrevious: true},
	TriggerEnterToken:          {to: StepAwaitingTokenAddress, recordPrevious: true},
	TriggerWalletCountAccepted: {from: []Step{StepAwaitingWalletCount}, to: StepAwaitingWalletNetwork, recordPrevious: true},
	TriggerWalletsGenerated:    {from: []Step{StepAwaitingWalletNetwork}, to: StepIdle, recordPrevious: true},
	TriggerTokenResolved:       {from: []Step{StepAwaitingTokenAddress}, to: StepIdle, recordPrevious: true},
	TriggerPromptSlippage:      {to: StepAwaitingSlippage},
	TriggerPromptBuyAmount:     {to: StepAwaitingBuyAmount},
	TriggerSlippageAccepted:    {from: []Step{StepAwaitingSlippage}, to: StepAwaitingBuyAmount},
	TriggerBuyAmountAccepted:   {from: []Step{StepAwaitingBuyAmount}, to: StepIdle},
	TriggerBackToMain:          {to: StepIdle, recordPrevious: true},
	TriggerUnrecognized:        {from: []Step{StepIdle}, to: StepIdle, recordPrevious: true},
}

// CanFire reports whether t is valid from the current step.
func (s *Session) CanFire(t Trigger) bool {
	r, ok := transitions[t]
	if !ok {
		return false
	}
	if r.from == nil {
		return true
	}
	for _, step := range r.from {
		if step == s.CurrentStep {
			return true
		}
	}
	return false
}

// Fire applies t. An invalid trigger leaves the session untouched.
func (s *Session) Fire(t Trigger) error {
	if !s.CanFire(t) {
		return fmt.Errorf("%w: %s from %s", ErrInvalidTransition, t, s.CurrentStep)
	}
	r := transitions[t]
	if r.recordPrevious {
		s.PreviousStep = s.CurrentStep
	}
	s.CurrentStep = r.to
	return nil
}

// GoBack restores the step saved by the last recording transition.
func (s *Session) GoBack() error {
	if s.PreviousStep == StepIdle {
		return ErrNoPreviousStep
	}
	s.CurrentStep = s.PreviousStep
	return nil
}

// Reset clears both steps, as on /start. Configuration is kept.
func (s *Session) Reset() {
	s.CurrentStep = StepIdle
	s.PreviousStep = StepIdle
}
