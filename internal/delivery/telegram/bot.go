package telegram

import (
	"context"
	"errors"
	"sync/atomic"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const notifyQueueSize = 32

var ErrNotifyQueueFull = errors.New("telegram notify queue full")

// Sender is the part of the bot API used to post messages.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Bot struct {
	api         *tgbotapi.BotAPI
	handlers    *Handlers
	pollTimeout int
}

func NewAPI(token string) (*tgbotapi.BotAPI, error) {
	return tgbotapi.NewBotAPI(token)
}

func NewBot(api *tgbotapi.BotAPI, handlers *Handlers, pollTimeout int) *Bot {
	return &Bot{api: api, handlers: handlers, pollTimeout: pollTimeout}
}

func (b *Bot) Start(ctx context.Context) error {
	config := tgbotapi.NewUpdate(0)
	config.Timeout = b.pollTimeout
	updates := b.api.GetUpdatesChan(config)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.handlers.HandleUpdate(ctx, update)
		}
	}
}

type outgoing struct {
	chatID int64
	text   string
}

// Notifier delivers alerts to a single chat. Notify only queues; Run does
// the sending so a slow Telegram API never stalls the caller.
type Notifier struct {
	sender Sender
	chatID atomic.Int64
	queue  chan outgoing
	logger *zap.Logger
}

func NewNotifier(sender Sender, chatID int64, logger *zap.Logger) *Notifier {
	n := &Notifier{sender: sender, queue: make(chan outgoing, notifyQueueSize), logger: logger}
	n.chatID.Store(chatID)
	return n
}

// Claim binds the notifier to chatID unless another chat already owns it.
func (n *Notifier) Claim(chatID int64) bool {
	return n.chatID.CompareAndSwap(0, chatID) || n.chatID.Load() == chatID
}

func (n *Notifier) ChatID() int64 {
	return n.chatID.Load()
}

func (n *Notifier) Notify(ctx context.Context, title, body string) error {
	chatID := n.chatID.Load()
	if chatID == 0 {
		n.logger.Debug("telegram notify skipped, no chat registered")
		return nil
	}
	select {
	case n.queue <- outgoing{chatID: chatID, text: title + "\n" + body}:
		return nil
	default:
		return ErrNotifyQueueFull
	}
}

func (n *Notifier) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-n.queue:
			n.logger.Info("telegram notify send", zap.Int64("chat_id", msg.chatID))
			if _, err := n.sender.Send(tgbotapi.NewMessage(msg.chatID, msg.text)); err != nil {
				n.logger.Warn("failed to notify", zap.Int64("chat_id", msg.chatID), zap.Error(err))
			}
		}
	}
}
