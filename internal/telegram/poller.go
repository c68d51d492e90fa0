package telegram

import (
	"context"
	"sync"
	"time"

	"github.com/ggonzalez94/volume-bot/internal/bot"
	"github.com/ggonzalez94/volume-bot/internal/observability"
	"github.com/ggonzalez94/volume-bot/internal/policy"
	"github.com/rs/zerolog"
)

const (
	msgNotAllowed    = "⛔ You are not allowed to use this bot."
	msgBusy          = "⏳ Still working on your earlier requests. Please try again in a moment."
	defaultQueueSize = 16
	maxPollBackoff   = 30 * time.Second
)

// API is the Bot API surface the poller uses.
type API interface {
	Sender
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error)
}

// Handler consumes decoded user input.
type Handler interface {
	HandleMessage(ctx context.Context, in bot.UserMessage)
	HandleAction(ctx context.Context, in bot.UserAction)
}

type PollerOptions struct {
	Timeout      time.Duration
	AllowedUsers []int64
	QueueSize    int
	Log          zerolog.Logger
	Metrics      *observability.Metrics
}

// Poller long-polls for updates and feeds each user's updates, in order, to
// that user's own worker. Different users are handled concurrently. An update
// for a user whose queue is full is dropped so one busy user never stalls the
// poll loop.
type Poller struct {
	api     API
	handler Handler
	opts    PollerOptions
	sleep   func(ctx context.Context, d time.Duration) error

	mu      sync.Mutex
	workers map[int64]chan Update
	wg      sync.WaitGroup
}

func NewPoller(api API, handler Handler, opts PollerOptions) *Poller {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	return &Poller{
		api:     api,
		handler: handler,
		opts:    opts,
		sleep:   sleepContext,
		workers: map[int64]chan Update{},
	}
}

// Run polls until ctx is done, then stops taking updates and waits for the
// workers to finish what they are handling.
func (p *Poller) Run(ctx context.Context) error {
	log := p.opts.Log
	log.Info().Dur("timeout", p.opts.Timeout).Int("allowed_users", len(p.opts.AllowedUsers)).Msg("polling started")
	defer p.drain()

	var offset int64
	failures := 0
	for ctx.Err() == nil {
		updates, err := p.api.GetUpdates(ctx, offset, p.opts.Timeout)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			failures++
			wait := backoff(failures)
			log.Warn().Err(err).Dur("retry_in", wait).Msg("get updates failed")
			if p.sleep(ctx, wait) != nil {
				break
			}
			continue
		}
		failures = 0
		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			p.dispatch(ctx, u)
		}
	}
	log.Info().Msg("polling stopped, draining workers")
	return nil
}

func (p *Poller) dispatch(ctx context.Context, u Update) {
	userID, ok := sender(u)
	if !ok {
		return
	}
	if err := policy.CheckUserAllowed(p.opts.AllowedUsers, userID); err != nil {
		p.opts.Log.Warn().Int64("user_id", userID).Msg("update from user outside allowlist")
		p.refuse(ctx, u, msgNotAllowed)
		return
	}
	select {
	case p.worker(ctx, userID) <- u:
	default:
		p.opts.Log.Warn().Int64("user_id", userID).Int64("update_id", u.UpdateID).Msg("queue full, update dropped")
		p.opts.Metrics.ObserveUpdate("dropped")
		p.refuse(ctx, u, msgBusy)
	}
}

func (p *Poller) worker(ctx context.Context, userID int64) chan Update {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ch, ok := p.workers[userID]; ok {
		return ch
	}
	ch := make(chan Update, p.opts.QueueSize)
	p.workers[userID] = ch
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for u := range ch {
			// Queued work is dropped once shutdown starts; in-flight work finishes.
			if ctx.Err() != nil {
				continue
			}
			p.handle(ctx, u)
		}
	}()
	return ch
}

func (p *Poller) handle(ctx context.Context, u Update) {
	switch {
	case u.Message != nil:
		in := bot.UserMessage{ChatID: u.Message.Chat.ID, Text: u.Message.Text}
		if u.Message.From != nil {
			in.UserID = u.Message.From.ID
		}
		p.handler.HandleMessage(ctx, in)
	case u.CallbackQuery != nil:
		in := bot.UserAction{UserID: u.CallbackQuery.From.ID, CallbackID: u.CallbackQuery.ID, Data: u.CallbackQuery.Data}
		if u.CallbackQuery.Message != nil {
			in.ChatID = u.CallbackQuery.Message.Chat.ID
		}
		p.handler.HandleAction(ctx, in)
	}
}

func (p *Poller) refuse(ctx context.Context, u Update, text string) {
	var err error
	switch {
	case u.Message != nil:
		err = p.api.SendMessage(ctx, SendMessageRequest{ChatID: u.Message.Chat.ID, Text: text})
	case u.CallbackQuery != nil:
		err = p.api.AnswerCallbackQuery(ctx, u.CallbackQuery.ID, text)
	}
	if err != nil {
		p.opts.Log.Warn().Err(err).Msg("refusal not delivered")
	}
}

func (p *Poller) drain() {
	p.mu.Lock()
	for userID, ch := range p.workers {
		close(ch)
		delete(p.workers, userID)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

// sender returns the user an update came from. Updates without one, such as
// channel posts, are ignored.
func sender(u Update) (int64, bool) {
	switch {
	case u.Message != nil && u.Message.From != nil:
		return u.Message.From.ID, true
	case u.CallbackQuery != nil:
		return u.CallbackQuery.From.ID, true
	}
	return 0, false
}

func backoff(failures int) time.Duration {
	d := time.Second << uint(min(failures-1, 5))
	if d > maxPollBackoff {
		d = maxPollBackoff
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
