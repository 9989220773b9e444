package telegram

import (
	"context"
	"fmt"
	"strings"

	"github.com/NasaVasa/coinwatch/internal/domain"
	"github.com/NasaVasa/coinwatch/internal/usecase"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const maxMessageLen = 3800

type Loop interface {
	Submit(ctx context.Context, cmd usecase.Command) error
	Current() domain.View
}

type Handlers struct {
	sender   Sender
	loop     Loop
	notifier *Notifier
	logger   *zap.Logger
}

func NewHandlers(sender Sender, loop Loop, notifier *Notifier, logger *zap.Logger) *Handlers {
	return &Handlers{sender: sender, loop: loop, notifier: notifier, logger: logger}
}

func (h *Handlers) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.Message == nil {
		return
	}
	if update.Message.From == nil {
		return
	}
	if update.Message.IsCommand() {
		h.handleCommand(ctx, update)
		return
	}
}

func (h *Handlers) handleCommand(ctx context.Context, update tgbotapi.Update) {
	command := update.Message.Command()
	args := update.Message.CommandArguments()
	chatID := update.Message.Chat.ID
	userID := update.Message.From.ID

	h.logger.Info(
		"telegram command received",
		zap.Int64("chat_id", chatID),
		zap.Int64("telegram_user_id", userID),
		zap.String("username", update.Message.From.UserName),
		zap.String("command", command),
		zap.String("args", args),
	)

	// The service has one owner chat; once bound, other chats are ignored.
	if owner := h.notifier.ChatID(); owner != 0 && owner != chatID {
		h.logger.Warn("command from foreign chat ignored", zap.Int64("chat_id", chatID), zap.Int64("owner_chat_id", owner))
		return
	}

	switch command {
	case "start":
		if !h.notifier.Claim(chatID) {
			h.logger.Warn("start from foreign chat ignored", zap.Int64("chat_id", chatID))
			return
		}
		h.logger.Info("alert chat registered", zap.Int64("chat_id", chatID))
		h.reply(chatID, "Welcome to coinwatch. Price alerts will be sent to this chat.\n\n"+HelpText)
	case "help":
		h.reply(chatID, HelpText)
	case "prices":
		h.reply(chatID, formatPrices(h.loop.Current()))
	case "currency":
		code, err := ParseCurrency(args)
		if err != nil {
			h.reply(chatID, "Usage: /currency <code>, e.g. /currency eur")
			return
		}
		h.submit(ctx, chatID, usecase.SetCurrency{Code: code}, "Currency set to "+strings.ToUpper(code)+".")
	case "coins":
		if strings.TrimSpace(args) == "" {
			h.reply(chatID, formatTracked(h.loop.Current()))
			return
		}
		ids, err := ParseCoinIDs(args)
		if err != nil {
			h.reply(chatID, "Usage: /coins <id> [id ...]")
			return
		}
		h.submit(ctx, chatID, usecase.SetTrackedCoins{CoinIDs: ids}, "Tracking "+strings.Join(ids, ", ")+".")
	case "fav":
		coinID, err := ParseCoinID(args)
		if err != nil {
			h.reply(chatID, "Usage: /fav <coin_id>")
			return
		}
		h.submit(ctx, chatID, usecase.ToggleFavorite{CoinID: coinID}, "Favorite toggled for "+coinID+".")
	case "alert":
		rule, err := ParseAlertArgs(args)
		if err != nil {
			h.logger.Warn("alert invalid args", zap.Int64("telegram_user_id", userID), zap.String("args", args))
			h.reply(chatID, "Usage: /alert <coin_id> <above|below> <price>")
			return
		}
		h.submit(ctx, chatID, usecase.UpsertAlert{Rule: rule},
			fmt.Sprintf("Alert set: %s %s %s.", rule.CoinID, rule.Condition, rule.Threshold))
	case "unalert":
		coinID, err := ParseCoinID(args)
		if err != nil {
			h.reply(chatID, "Usage: /unalert <coin_id>")
			return
		}
		h.submit(ctx, chatID, usecase.ClearAlert{CoinID: coinID}, "Alert removed for "+coinID+".")
	case "alerts":
		h.reply(chatID, formatAlerts(h.loop.Current()))
	case "theme":
		theme, err := ParseThemeArg(args)
		if err != nil {
			h.reply(chatID, "Usage: /theme <dark|light>")
			return
		}
		h.submit(ctx, chatID, usecase.SetTheme{Theme: theme}, "Theme set to "+string(theme)+".")
	case "lang":
		lang, err := ParseLanguage(args)
		if err != nil {
			h.reply(chatID, "Usage: /lang <code>, e.g. /lang de")
			return
		}
		h.submit(ctx, chatID, usecase.SetLanguage{Code: lang}, "Language set to "+lang+".")
	case "filter":
		filter, err := ParseFilterArg(args)
		if err != nil {
			h.reply(chatID, "Usage: /filter <all|favorites>")
			return
		}
		h.submit(ctx, chatID, usecase.SetFilter{Filter: filter}, "Showing "+string(filter)+".")
	case "refresh":
		h.submit(ctx, chatID, usecase.RefreshNow{}, "Refreshing.")
	default:
		h.logger.Warn("unknown command", zap.Int64("telegram_user_id", userID), zap.String("command", command))
		h.reply(chatID, "Unknown command.\n\n"+HelpText)
	}
}

func (h *Handlers) submit(ctx context.Context, chatID int64, cmd usecase.Command, ok string) {
	if err := h.loop.Submit(ctx, cmd); err != nil {
		h.logger.Warn("command not queued", zap.String("command", cmd.CommandName()), zap.Error(err))
		h.reply(chatID, "Busy right now. Please try again.")
		return
	}
	h.reply(chatID, ok)
}

func formatPrices(view domain.View) string {
	var builder strings.Builder
	switch {
	case view.Offline:
		builder.WriteString("Offline: showing the last saved prices.\n")
	case view.Error != "":
		builder.WriteString(view.Error + "\n")
	}
	if len(view.Rows) == 0 {
		builder.WriteString("No prices yet.")
		return builder.String()
	}
	for _, row := range view.Rows {
		star := ""
		if row.Favorite {
			star = "★ "
		}
		line := fmt.Sprintf("%s%s (%s): %s %s\n", star, row.Name, row.Symbol, row.PriceText, row.ChangeText)
		if builder.Len()+len(line) > maxMessageLen {
			break
		}
		builder.WriteString(line)
	}
	if !view.UpdatedAt.IsZero() {
		builder.WriteString("Updated " + view.UpdatedAt.UTC().Format("15:04:05 MST"))
	}
	return strings.TrimRight(builder.String(), "\n")
}

func formatTracked(view domain.View) string {
	if len(view.TrackedCoinIDs) == 0 {
		return "No coins tracked. Use /coins <id> [id ...] to track some."
	}
	return "Tracking: " + strings.Join(view.TrackedCoinIDs, ", ")
}

func formatAlerts(view domain.View) string {
	if len(view.Alerts) == 0 {
		return "No alerts yet. Use /alert to create one."
	}
	prices := make(map[string]string, len(view.Rows))
	for _, row := range view.Rows {
		prices[row.ID] = row.PriceText
	}
	var builder strings.Builder
	builder.WriteString("Active alerts:")
	for _, alert := range view.Alerts {
		builder.WriteString(fmt.Sprintf("\n%s %s %s", alert.CoinID, alert.Condition, alert.Threshold))
		if price, ok := prices[alert.CoinID]; ok {
			builder.WriteString(" (now " + price + ")")
		}
	}
	return builder.String()
}

func (h *Handlers) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := h.sender.Send(msg); err != nil {
		h.logger.Warn("failed to send message", zap.Error(err))
	}
}
