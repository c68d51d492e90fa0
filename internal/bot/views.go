package bot

import (
	"fmt"
	"html"
	"strings"

	"github.com/ggonzalez94/volume-bot/internal/id"
	"github.com/ggonzalez94/volume-bot/internal/model"
	"github.com/ggonzalez94/volume-bot/internal/scheduler"
	"github.com/shopspring/decimal"
)

const (
	msgWelcome = "👋 <b>Welcome to Volume Bot!</b>\nAutomate volume on <b>Solana</b>, <b>BSC</b>, and <b>Ethereum</b> tokens.\n\nStep 1: Generate wallets to begin."

	msgBackToMain       = "Back to main menu."
	msgReturning        = "Returning to previous step..."
	msgNotUnderstood    = "Sorry, I did not understand that. Please use the menu below."
	msgPlainFallback    = "⚠️ Sorry, there was a problem displaying the message. Please check your input or try again."
	msgEnterToken       = "Please enter the token mint address below and then press enter."
	msgSelectNetwork    = "Select the network for wallet generation:"
	msgInvalidNetwork   = "Please select a valid network."
	msgFundWallets      = "Please fund your wallets and enter the token mint address to start the volume bot."
	msgGenerateFailed   = "Wallet generation failed. Please try again."
	msgNetworkUndetect  = "Could not detect network from Dex Screener. Please check the address and try again."
	msgTokenFirst       = "Please enter a token mint address first."
	msgNoWalletsNetwork = "No wallets generated for this network. Please generate wallets first."
	msgNoWalletsYet     = "No wallets generated yet."
	msgPrimaryUnfunded  = "❌ <b>Insufficient funds in your wallet. Please fund your wallet before starting.</b>"
	msgAllUnfunded      = "❌ <b>All wallets have zero or insufficient balance. Please fund your wallets before starting volume bot.</b>"
	msgSomeUnfunded     = "❌ <b>Some wallets are not funded. Please fund your wallets before starting volume bot.</b>"
	msgChooseSpeed      = "Choose transaction speed:"
	msgSlippagePrompt   = "Enter slippage % (e.g. 0.5 for 0.5%, max 50, min 0.1, default 1):"
	msgInvalidSlippage  = "Please enter a valid slippage between 0.1 and 50."
	msgInvalidAmount    = "Please enter a valid amount between 0.0001 and 10.0."
	msgSetupIncomplete  = "Setup is incomplete. Please click <b>Start Volume Bot</b> again."
	msgBuyComplete      = "✅ <b>Buy operation complete!</b> You can now Dump tokens or check TRX."
	msgDumpComplete     = "✅ <b>Dump successful. Bot stopped.</b> See TRX Sell for details."

	ackStartFirst   = "Please start the volume bot first."
	ackBuyComplete  = "Buy complete!"
	ackDumpComplete = "Dump complete!"
	ackInterrupted  = "Cycle interrupted."
)

func walletCountPrompt(max int) string {
	return fmt.Sprintf("How many wallets do you want to generate? (Recommended: 5, Max: %d)", max)
}

func invalidWalletCount(max int) string {
	return fmt.Sprintf("Please enter a valid number between 1 and %d.", max)
}

func buyAmountPrompt(network id.Network) string {
	return fmt.Sprintf("How much %s do you want to use for each buy transaction? (Default: %s)", network.NativeSymbol(), DefaultBuyAmount)
}

func slippageAccepted(percent decimal.Decimal, network id.Network) string {
	return fmt.Sprintf("Slippage set to <b>%s%%</b>.\n%s", percent, buyAmountPrompt(network))
}

func buyAmountAccepted(amount decimal.Decimal, network id.Network) string {
	return fmt.Sprintf("Amount per buy transaction set to <b>%s</b> %s.\nYou can now Buy or Dump tokens.", amount, network.NativeSymbol())
}

func speedSelected(policy scheduler.Policy, speed model.Speed) string {
	return fmt.Sprintf("Speed set to <b>%s</b>.", html.EscapeString(policy.SpeedLabel(speed)))
}

func progressLine(p scheduler.Progress) string {
	return fmt.Sprintf("<b>%d/%d</b> %s transactions sent...", p.Sent, p.Total, p.Side)
}

// generatedWallets is the one view that discloses private keys, shown once
// right after generation so the user can back them up.
func generatedWallets(network id.Network, wallets []model.Wallet) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%d wallets generated on %s:</b>\n\n", len(wallets), network)
	for i, w := range wallets {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "Wallet #%d\nPublic: <code>%s</code>\nPrivate: <code>%s</code>", i+1, w.PublicAddress, w.PrivateKey)
	}
	return b.String()
}

type networkBalances struct {
	Network  id.Network
	Balances []model.WalletBalance
}

func walletsOverview(groups []networkBalances) string {
	var b strings.Builder
	b.WriteString("<b>Your wallets by network:</b>\n")
	for _, g := range groups {
		fmt.Fprintf(&b, "\n<b>%s:</b>\n", g.Network)
		for _, bal := range g.Balances {
			fmt.Fprintf(&b, "<code>%s</code>\nBalance: <b>%s</b>\n", bal.Wallet, bal.Display())
		}
	}
	return b.String()
}

// tokenSummary is shown once a token address resolves to a network.
func tokenSummary(address string, network id.Network, chainLabel string, info *model.TokenInfo, balances []model.WalletBalance) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>🎯 Token address set:</b> <code>%s</code>\n", html.EscapeString(address))
	fmt.Fprintf(&b, "<b>🌐 Detected network:</b> <b>%s</b> <i>(%s)</i>\n", network, html.EscapeString(chainLabel))
	if info != nil && (info.Name != "" || info.Symbol != "") {
		name := html.EscapeString(info.Name)
		if info.Symbol != "" {
			name += " (" + html.EscapeString(info.Symbol) + ")"
		}
		fmt.Fprintf(&b, "🔹 <b>Token:</b> <b>%s</b>\n", name)
	}
	if info != nil && info.HasMarketData() {
		fmt.Fprintf(&b, "💲 <b>Price:</b> <b>$%s</b>\n📊 <b>24h Volume:</b> <b>%s</b>\n", html.EscapeString(info.PriceUSD), html.EscapeString(info.Volume24h))
	} else {
		b.WriteString("<b>Price and volume not found on Dex Screener.</b>\n")
	}
	if len(balances) > 0 {
		fmt.Fprintf(&b, "\n<b>👛 Your %s wallets:</b>\n", network)
		for i, bal := range balances {
			fmt.Fprintf(&b, "#%d <code>%s</code>\n", i+1, bal.Wallet)
			fmt.Fprintf(&b, "   <b>Balance:</b> <code>%s</code>\n", bal.Display())
		}
	} else {
		fmt.Fprintf(&b, "\n<b>⚠️ No wallets found for %s. Please generate wallets first.</b>\n", network)
	}
	b.WriteString("\n<b>➡️ Next:</b> Click <b>Start Volume Bot</b> to begin.")
	return b.String()
}

func sellSummary(report model.CycleReport) string {
	msg := msgDumpComplete
	if len(report.Skipped) > 0 {
		msg += "\n\n<b>Skipped wallets (low balance):</b>\n"
		for _, w := range report.Skipped {
			msg += "<code>" + w + "</code>\n"
		}
	}
	return msg
}

func interruptedSummary(report model.CycleReport) string {
	return fmt.Sprintf("⚠️ <b>%s cycle interrupted.</b> %d/%d transactions were sent.", sideTitle(report.Side), report.Sent, report.TotalOperations)
}

func cycleFailed(err error) string {
	return "❌ Could not start the cycle: " + html.EscapeString(err.Error())
}

// operationLog renders the last cycle's entries for one side.
func operationLog(network id.Network, side model.Side, ops []model.Operation) string {
	if len(ops) == 0 {
		return fmt.Sprintf("No %s transactions recorded yet for %s.", side, network)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "<b>Last %s transactions on %s:</b>\n", side, network)
	for i, op := range ops {
		fmt.Fprintf(&b, "\n#%d %s", i+1, html.EscapeString(op.Display()))
	}
	return b.String()
}

func sideTitle(side model.Side) string {
	if side == model.SideSell {
		return "Sell"
	}
	return "Buy"
}

// splitMessage cuts text at line boundaries so that no part exceeds limit
// bytes. A single line longer than limit is cut hard.
func splitMessage(text string, limit int) []string {
	if limit <= 0 || len(text) <= limit {
		return []string{text}
	}
	var parts []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			parts = append(parts, strings.TrimRight(cur.String(), "\n"))
			cur.Reset()
		}
	}
	for _, line := range strings.SplitAfter(text, "\n") {
		for len(line) > limit {
			flush()
			parts = append(parts, line[:limit])
			line = line[limit:]
		}
		if cur.Len()+len(line) > limit {
			flush()
		}
		cur.WriteString(line)
	}
	flush()
	return parts
}
