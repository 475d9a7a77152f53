package notificator

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
	tgModels "github.com/go-telegram/bot/models"

	"github.com/core-coin/solvere/pkg/logger"
)

// TelegramNotificator mirrors lifecycle events into an operator chat.
type TelegramNotificator struct {
	logger *logger.Logger
	bot    *bot.Bot

	chatID string
}

func NewTelegramNotificator(logger *logger.Logger, token, chatID string, opts ...bot.Option) (*TelegramNotificator, error) {
	provider := &TelegramNotificator{
		logger: logger,
		chatID: chatID,
	}
	opts = append([]bot.Option{
		bot.WithDefaultHandler(provider.handler),
		bot.WithSkipGetMe(),
	}, opts...)

	b, err := bot.New(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	provider.bot = b

	return provider, nil
}

// Start polls for bot updates until ctx is done.
func (t *TelegramNotificator) Start(ctx context.Context) {
	go t.bot.Start(ctx)
}

func (t *TelegramNotificator) SendNotification(ctx context.Context, message string) {
	if t.chatID == "" {
		return
	}
	params := &bot.SendMessageParams{
		ChatID: t.chatID,
		Text:   message,
	}
	_, err := t.bot.SendMessage(ctx, params)
	if err != nil {
		t.logger.Error("Failed to send telegram notification: ", err)
	}
}

// handler answers /start with the chat id, which is what TELEGRAM_OPS_CHAT_ID
// has to be set to.
func (t *TelegramNotificator) handler(ctx context.Context, b *bot.Bot, update *tgModels.Update) {
	if update.Message == nil {
		return
	}
	if update.Message.Text != "/start" {
		return
	}

	t.logger.Info("Telegram /start from chat ", update.Message.Chat.ID)
	_, err := b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: update.Message.Chat.ID,
		Text:   fmt.Sprintf("Solvere operator feed. Chat ID: %d", update.Message.Chat.ID),
	})
	if err != nil {
		t.logger.Error("Failed to answer /start: ", err)
	}
}
