package telegram

import (
	"context"

	"github.com/ggonzalez94/volume-bot/internal/bot"
)

// Sender is the outbound half of the Bot API.
type Sender interface {
	SendMessage(ctx context.Context, req SendMessageRequest) error
	AnswerCallbackQuery(ctx context.Context, callbackID, text string) error
}

// Transport delivers bot replies through the Bot API.
type Transport struct {
	api Sender
}

func NewTransport(api Sender) *Transport {
	return &Transport{api: api}
}

func (t *Transport) Send(ctx context.Context, chatID int64, msg bot.Message) error {
	req := SendMessageRequest{ChatID: chatID, Text: msg.Text, ReplyMarkup: markup(msg.Keyboard)}
	if msg.HTML {
		req.ParseMode = ParseModeHTML
	}
	return t.api.SendMessage(ctx, req)
}

func (t *Transport) Answer(ctx context.Context, callbackID, text string) error {
	return t.api.AnswerCallbackQuery(ctx, callbackID, text)
}

// markup returns nil for no keyboard so the field is omitted entirely.
func markup(kb *bot.Keyboard) any {
	switch {
	case kb == nil:
		return nil
	case len(kb.Inline) > 0:
		rows := make([][]InlineKeyboardButton, 0, len(kb.Inline))
		for _, row := range kb.Inline {
			buttons := make([]InlineKeyboardButton, 0, len(row))
			for _, b := range row {
				buttons = append(buttons, InlineKeyboardButton{Text: b.Text, CallbackData: b.Data})
			}
			rows = append(rows, buttons)
		}
		return InlineKeyboardMarkup{InlineKeyboard: rows}
	case len(kb.Reply) > 0:
		rows := make([][]KeyboardButton, 0, len(kb.Reply))
		for _, row := range kb.Reply {
			buttons := make([]KeyboardButton, 0, len(row))
			for _, label := range row {
				buttons = append(buttons, KeyboardButton{Text: label})
			}
			rows = append(rows, buttons)
		}
		return ReplyKeyboardMarkup{Keyboard: rows, ResizeKeyboard: true}
	}
	return nil
}
