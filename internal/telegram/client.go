// Package telegram speaks the subset of the Bot API the bot needs:
// long-polled updates, HTML messages with keyboards and callback answers.
package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	clierr "github.com/ggonzalez94/volume-bot/internal/errors"
	"github.com/ggonzalez94/volume-bot/internal/httpx"
	"github.com/ggonzalez94/volume-bot/internal/registry"
)

const ParseModeHTML = "HTML"

type Update struct {
	UpdateID      int64          `json:"update_id"`
	Message       *Message       `json:"message,omitempty"`
	CallbackQuery *CallbackQuery `json:"callback_query,omitempty"`
}

type Message struct {
	MessageID int64  `json:"message_id"`
	From      *User  `json:"from,omitempty"`
	Chat      Chat   `json:"chat"`
	Text      string `json:"text"`
}

type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username,omitempty"`
}

type Chat struct {
	ID int64 `json:"id"`
}

type CallbackQuery struct {
	ID      string   `json:"id"`
	From    User     `json:"from"`
	Message *Message `json:"message,omitempty"`
	Data    string   `json:"data"`
}

type KeyboardButton struct {
	Text string `json:"text"`
}

type ReplyKeyboardMarkup struct {
	Keyboard       [][]KeyboardButton `json:"keyboard"`
	ResizeKeyboard bool               `json:"resize_keyboard"`
}

type InlineKeyboardButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

type InlineKeyboardMarkup struct {
	InlineKeyboard [][]InlineKeyboardButton `json:"inline_keyboard"`
}

type SendMessageRequest struct {
	ChatID      int64  `json:"chat_id"`
	Text        string `json:"text"`
	ParseMode   string `json:"parse_mode,omitempty"`
	ReplyMarkup any    `json:"reply_markup,omitempty"`
}

type apiResponse[T any] struct {
	OK          bool   `json:"ok"`
	Result      T      `json:"result"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
}

type Client struct {
	http    *httpx.Client
	baseURL string
	token   string
}

func New(httpClient *httpx.Client, token string) *Client {
	return &Client{http: httpClient, baseURL: registry.TelegramAPIBaseURL, token: strings.TrimSpace(token)}
}

// WithBaseURL points the client at another Bot API server.
func (c *Client) WithBaseURL(base string) *Client {
	if strings.TrimSpace(base) != "" {
		c.baseURL = strings.TrimRight(base, "/")
	}
	return c
}

// GetUpdates long-polls for up to timeout and returns updates after offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	payload := map[string]any{
		"offset":          offset,
		"timeout":         int(timeout / time.Second),
		"allowed_updates": []string{"message", "callback_query"},
	}
	var out []Update
	if err := c.call(ctx, "getUpdates", payload, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) SendMessage(ctx context.Context, req SendMessageRequest) error {
	return c.call(ctx, "sendMessage", req, nil)
}

func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackID, text string) error {
	payload := map[string]any{"callback_query_id": callbackID}
	if text != "" {
		payload["text"] = text
	}
	return c.call(ctx, "answerCallbackQuery", payload, nil)
}

func (c *Client) call(ctx context.Context, method string, payload any, out any) error {
	if c.token == "" {
		return clierr.New(clierr.CodeAuth, "telegram token is not configured")
	}
	var resp apiResponse[json.RawMessage]
	_, err := httpx.PostJSON(ctx, c.http, c.baseURL+"/bot"+c.token+"/"+method, payload, nil, &resp)
	if err != nil {
		return c.redact(method, err)
	}
	if !resp.OK {
		msg := "telegram " + method + " failed"
		if resp.Description != "" {
			msg += ": " + resp.Description
		}
		return clierr.New(clierr.CodeUnavailable, msg)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return clierr.Wrap(clierr.CodeUnavailable, "decode telegram "+method, err)
	}
	return nil
}

// redact keeps the bot token out of error text; transport errors quote the
// request URL, which embeds it.
func (c *Client) redact(method string, err error) error {
	code := clierr.CodeUnavailable
	if cErr, ok := clierr.As(err); ok {
		code = cErr.Code
	}
	msg := strings.ReplaceAll(err.Error(), c.token, "<token>")
	cause := errors.New(msg)
	if errors.Is(err, context.Canceled) {
		cause = context.Canceled
	}
	return clierr.Wrap(code, "telegram "+method, cause)
}
