package telegram

import (
	"context"
	"errors"
	"sync"
	"time"

	"codequiz-publisher/pkg/config"
	"codequiz-publisher/pkg/errutil"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// maxSendAttempts bounds retries of a single send on rate limits.
const maxSendAttempts = 3

// API is the slice of tgbotapi.BotAPI the publisher uses; tests substitute
// a fake.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	MakeRequest(endpoint string, params tgbotapi.Params) (*tgbotapi.APIResponse, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Publisher sends photos and quiz polls to Telegram chats. Posts to the
// same chat are strictly serialized; across chats parallelism is bounded
// by a global semaphore.
type Publisher struct {
	api API
	sem *semaphore.Weighted

	mu        sync.Mutex
	chatLocks map[int64]*sync.Mutex
}

type PublisherParams struct {
	fx.In
	Cfg *config.Config
}

func NewPublisher(p PublisherParams) (*Publisher, error) {
	api, err := tgbotapi.NewBotAPI(p.Cfg.Telegram.Token)
	if err != nil {
		return nil, err
	}
	zap.L().Info("telegram bot authorized", zap.String("username", api.Self.UserName))
	return NewPublisherWithAPI(api, p.Cfg.Telegram.MaxParallelSends), nil
}

// NewPublisherWithAPI wires an explicit API implementation; used by tests
// and by the setup path.
func NewPublisherWithAPI(api API, maxParallel int64) *Publisher {
	if maxParallel <= 0 {
		maxParallel = 4
	}
	return &Publisher{
		api:       api,
		sem:       semaphore.NewWeighted(maxParallel),
		chatLocks: make(map[int64]*sync.Mutex),
	}
}

func (p *Publisher) chatLock(chatID int64) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.chatLocks[chatID]
	if !ok {
		l = &sync.Mutex{}
		p.chatLocks[chatID] = l
	}
	return l
}

// SendPhoto posts the rendered image with a MarkdownV2-escaped caption and
// returns the message id.
func (p *Publisher) SendPhoto(ctx context.Context, chatID int64, imageURL, caption string) (int, error) {
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(imageURL))
	photo.Caption = EscapeMarkdownV2(caption)
	photo.ParseMode = tgbotapi.ModeMarkdownV2

	msg, err := p.send(ctx, chatID, photo)
	if err != nil {
		return 0, err
	}
	return msg.MessageID, nil
}

// SendQuizPoll posts the interactive quiz poll and returns the poll id.
func (p *Publisher) SendQuizPoll(ctx context.Context, chatID int64, question string, options []string, correctIndex int, explanation string) (string, error) {
	poll := tgbotapi.NewPoll(chatID, question, options...)
	poll.Type = "quiz"
	poll.CorrectOptionID = int64(correctIndex)
	poll.IsAnonymous = true
	if explanation != "" {
		poll.Explanation = EscapeMarkdownV2(explanation)
		poll.ExplanationParseMode = tgbotapi.ModeMarkdownV2
	}

	msg, err := p.send(ctx, chatID, poll)
	if err != nil {
		return "", err
	}
	if msg.Poll == nil {
		return "", errutil.Internal("sendPoll returned no poll object")
	}
	return msg.Poll.ID, nil
}

// send serializes on the chat lock, bounds global parallelism and retries
// rate-limited sends honoring the server's retry-after hint.
func (p *Publisher) send(ctx context.Context, chatID int64, c tgbotapi.Chattable) (tgbotapi.Message, error) {
	lock := p.chatLock(chatID)
	lock.Lock()
	defer lock.Unlock()

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return tgbotapi.Message{}, errutil.TransientNetwork("send cancelled", errutil.WithErr(err))
	}
	defer p.sem.Release(1)

	var lastErr error
	for attempt := 1; attempt <= maxSendAttempts; attempt++ {
		msg, err := p.api.Send(c)
		if err == nil {
			return msg, nil
		}
		lastErr = classify(err)

		if errutil.KindOf(lastErr) != errutil.KindRateLimit {
			return tgbotapi.Message{}, lastErr
		}

		wait := errutil.RetryAfterHint(lastErr)
		if wait == 0 {
			wait = time.Duration(attempt) * 3 * time.Second
		}
		zap.L().Warn("rate limited by Telegram, waiting",
			zap.Int64("chat_id", chatID),
			zap.Duration("wait", wait),
			zap.Int("attempt", attempt),
		)
		select {
		case <-ctx.Done():
			return tgbotapi.Message{}, errutil.TransientNetwork("send cancelled", errutil.WithErr(ctx.Err()))
		case <-time.After(wait):
		}
	}
	return tgbotapi.Message{}, lastErr
}

// classify maps a tgbotapi error to the pipeline's error kinds.
func classify(err error) error {
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return errutil.TransientNetwork("telegram request failed", errutil.WithErr(err))
	}
	switch {
	case apiErr.Code == 429:
		return errutil.RateLimit("telegram rate limit",
			errutil.WithErr(err),
			errutil.WithRetryAfter(time.Duration(apiErr.RetryAfter)*time.Second),
		)
	case apiErr.Code == 401 || apiErr.Code == 403:
		return errutil.AuthExpired("telegram auth rejected", errutil.WithErr(err))
	case apiErr.Code >= 500:
		return errutil.TransientNetwork("telegram server error", errutil.WithErr(err))
	case apiErr.Code == 400:
		return errutil.InvalidInput("telegram rejected request", errutil.WithErr(err))
	default:
		return errutil.TransientNetwork("telegram request failed", errutil.WithErr(err))
	}
}
