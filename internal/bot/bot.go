package bot

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"slotline/internal/session"
)

// Sender is the outgoing half of the Telegram API.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Bot relays Telegram updates into the dialog flow and sends replies
// through a shared rate limiter so a burst of chats cannot trip the
// Telegram API limits.
type Bot struct {
	api      Sender
	flow     *Flow
	sessions session.Store
	limiter  *rate.Limiter
	logger   zerolog.Logger
}

// New wires the bot. The session TTL lives in the store, not here.
func New(api Sender, flow *Flow, sessions session.Store, logger zerolog.Logger) *Bot {
	return &Bot{
		api:      api,
		flow:     flow,
		sessions: sessions,
		// Telegram allows ~30 messages per second bot-wide.
		limiter: rate.NewLimiter(rate.Limit(25), 5),
		logger:  logger.With().Str("component", "bot").Logger(),
	}
}

// Run consumes the update channel until ctx is canceled.
func (b *Bot) Run(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil || update.Message.Text == "" {
				continue
			}
			b.handleMessage(ctx, update.Message)
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	sess, err := b.sessions.Get(ctx, chatID)
	if err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("load session")
	}
	if sess == nil {
		sess = &session.Session{ChatID: chatID, State: StateIdle}
	}

	text := msg.Text
	if msg.IsCommand() && msg.Command() == "start" {
		b.reply(ctx, chatID, "Welcome! Send /book to make an appointment or /mybookings to manage existing ones.")
		_ = b.sessions.Clear(ctx, chatID)
		return
	}

	reply, done, err := b.flow.HandleInput(ctx, sess, text)
	if err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Str("state", sess.State).Msg("dialog step")
		b.reply(ctx, chatID, "Something went wrong on our side. Please try again in a moment.")
		return
	}

	if done {
		if err := b.sessions.Clear(ctx, chatID); err != nil {
			b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("clear session")
		}
	} else {
		if err := b.sessions.Set(ctx, sess); err != nil {
			b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("save session")
		}
	}

	if reply != "" {
		b.reply(ctx, chatID, reply)
	}
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	if err := b.limiter.Wait(ctx); err != nil {
		return
	}
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("send message")
	}
}
