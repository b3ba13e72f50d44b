package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"berserk/internal/domain"
	"berserk/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// TelegramNotifier alerts studio manager chats.
type TelegramNotifier struct {
	bot    domain.TelegramSender
	chats  []int64
	logger *zerolog.Logger
}

func NewTelegramNotifier(bot domain.TelegramSender, chats []int64, logger *zerolog.Logger) *TelegramNotifier {
	return &TelegramNotifier{bot: bot, chats: chats, logger: logger}
}

// NewTelegramBot connects with a bot token.
func NewTelegramBot(token string, debug bool) (*tgbotapi.BotAPI, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	bot.Debug = debug
	return bot, nil
}

func (n *TelegramNotifier) NotifyNewBooking(ctx context.Context, b *models.Booking) error {
	var sb strings.Builder
	sb.WriteString("*New consultation booking*\n\n")
	fmt.Fprintf(&sb, "Customer: %s\n", escapeMarkdown(b.CustomerName()))
	fmt.Fprintf(&sb, "Email: %s\n", escapeMarkdown(b.Email))
	fmt.Fprintf(&sb, "Phone: %s\n", escapeMarkdown(b.Phone))
	fmt.Fprintf(&sb, "Artist: %s\n", escapeMarkdown(b.DisplayArtist()))
	fmt.Fprintf(&sb, "Date: %s at %s\n", escapeMarkdown(b.AppointmentDate), escapeMarkdown(b.AppointmentTime))
	if b.Placement != "" {
		fmt.Fprintf(&sb, "Placement: %s\n", escapeMarkdown(b.Placement))
	}
	if b.Size != "" {
		fmt.Fprintf(&sb, "Size: %s\n", escapeMarkdown(b.Size))
	}
	if b.Description != "" {
		fmt.Fprintf(&sb, "Description: %s\n", escapeMarkdown(b.Description))
	}
	fmt.Fprintf(&sb, "Deposit: %s\n", escapeMarkdown(b.Deposit.String()))
	fmt.Fprintf(&sb, "Booking ID: `%s`", b.ID)
	return n.broadcast(ctx, sb.String())
}

func (n *TelegramNotifier) NotifyPaymentFailed(ctx context.Context, b *models.Booking, f models.PaymentFailure) error {
	text := fmt.Sprintf("*Deposit payment failed*\n\nCustomer: %s\nDate: %s at %s\nBooking ID: `%s`",
		escapeMarkdown(b.CustomerName()), escapeMarkdown(b.AppointmentDate), escapeMarkdown(b.AppointmentTime), b.ID)
	if f.Reason != "" {
		text += "\nReason: " + escapeMarkdown(f.Reason)
	}
	return n.broadcast(ctx, text)
}

// broadcast sends to every chat; one chat failing does not skip the rest.
func (n *TelegramNotifier) broadcast(ctx context.Context, text string) error {
	if len(n.chats) == 0 {
		return errors.New("no manager chats configured")
	}
	var errs []error
	for _, chatID := range n.chats {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg := tgbotapi.NewMessage(chatID, text)
		msg.ParseMode = tgbotapi.ModeMarkdown
		if _, err := n.bot.Send(msg); err != nil {
			n.logger.Warn().Err(err).Int64("chat_id", chatID).Msg("Telegram send failed")
			errs = append(errs, fmt.Errorf("chat %d: %w", chatID, err))
		}
	}
	return errors.Join(errs...)
}

var markdownEscaper = strings.NewReplacer("_", "\\_", "*", "\\*", "`", "\\`", "[", "\\[")

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}
