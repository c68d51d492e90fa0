package bot

import (
	"github.com/ggonzalez94/volume-bot/internal/id"
	"github.com/ggonzalez94/volume-bot/internal/model"
	"github.com/ggonzalez94/volume-bot/internal/scheduler"
)

// Reply keyboard labels. Incoming text is matched against them verbatim.
const (
	LabelGenerateWallet  = "🪪 Generate Wallet"
	LabelEnterToken      = "🔗 Enter Token Mint Address"
	LabelShowWallets     = "👛 Show Wallets"
	LabelStartVolume     = "🚀 Start Volume Bot"
	LabelBackToMain      = "Back to Main"
	LabelGoBack          = "Go Back"
	LabelDefaultSlippage = "Use Default (1%)"
	LabelDefaultAmount   = "Use Default (0.001)"
)

// Inline callback identifiers.
const (
	ActionBuy         = "buy_tokens"
	ActionDump        = "dump_tokens"
	ActionTrxBuy      = "trx_buy"
	ActionTrxSell     = "trx_sell"
	ActionShowWallets = "show_wallets_inline"
	ActionBackToMain  = "back_to_main_inline"

	actionSpeedPrefix = "speed_"
)

const (
	CommandStart      = "/start"
	CommandEnterToken = "/entertoken"
)

// Keyboard is either a reply keyboard or an inline menu.
type Keyboard struct {
	Reply  [][]string
	Inline [][]Button
}

type Button struct {
	Text string
	Data string
}

func replyKeyboard(rows ...[]string) *Keyboard {
	return &Keyboard{Reply: rows}
}

func inlineMenu(rows ...Button) *Keyboard {
	kb := &Keyboard{Inline: make([][]Button, 0, len(rows))}
	for _, b := range rows {
		kb.Inline = append(kb.Inline, []Button{b})
	}
	return kb
}

func mainMenu() *Keyboard {
	return replyKeyboard(
		[]string{LabelGenerateWallet},
		[]string{LabelEnterToken},
		[]string{LabelShowWallets},
		[]string{LabelBackToMain},
	)
}

func enterTokenMenu() *Keyboard {
	return replyKeyboard([]string{LabelEnterToken}, []string{LabelShowWallets}, []string{LabelBackToMain})
}

func startVolumeMenu() *Keyboard {
	return replyKeyboard([]string{LabelStartVolume}, []string{LabelShowWallets}, []string{LabelBackToMain})
}

func backOnlyKeyboard() *Keyboard {
	return replyKeyboard([]string{LabelBackToMain})
}

func slippageKeyboard() *Keyboard {
	return replyKeyboard([]string{LabelDefaultSlippage}, []string{LabelBackToMain})
}

func amountKeyboard() *Keyboard {
	return replyKeyboard([]string{LabelDefaultAmount}, []string{LabelBackToMain})
}

func networkKeyboard() *Keyboard {
	row := make([]string, 0, len(id.Networks))
	for _, n := range id.Networks {
		row = append(row, n.String())
	}
	return replyKeyboard(row, []string{LabelBackToMain})
}

func buySellMenu() *Keyboard {
	return inlineMenu(
		Button{Text: "Buy", Data: ActionBuy},
		Button{Text: "Dump It", Data: ActionDump},
		Button{Text: "TRX", Data: ActionTrxBuy},
		Button{Text: LabelShowWallets, Data: ActionShowWallets},
		Button{Text: LabelBackToMain, Data: ActionBackToMain},
	)
}

func trxSellMenu() *Keyboard {
	return inlineMenu(
		Button{Text: "TRX Sell", Data: ActionTrxSell},
		Button{Text: LabelShowWallets, Data: ActionShowWallets},
		Button{Text: LabelBackToMain, Data: ActionBackToMain},
	)
}

// speedMenu labels every tier from the policy so the menu never disagrees
// with the schedule that actually runs.
func speedMenu(policy scheduler.Policy) *Keyboard {
	buttons := make([]Button, 0, len(model.Speeds))
	for _, speed := range model.Speeds {
		buttons = append(buttons, Button{Text: policy.SpeedLabel(speed), Data: actionSpeedPrefix + string(speed)})
	}
	return inlineMenu(buttons...)
}

func menuForSide(side model.Side) *Keyboard {
	if side == model.SideSell {
		return trxSellMenu()
	}
	return buySellMenu()
}
