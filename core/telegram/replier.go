package telegram

import (
	"context"
	"fmt"
	"strconv"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/menubot/core/outbox"
	"github.com/m3rciful/menubot/core/session"
)

// Sender is the part of *tele.Bot used to deliver replies.
type Sender interface {
	Send(to tele.Recipient, what any, opts ...any) (*tele.Message, error)
}

// Replier delivers dialogue replies to a chat through the outbox.
type Replier struct {
	bot Sender
	out *outbox.Outbox
}

// NewReplier returns a Replier sending with bot on out's workers.
func NewReplier(bot Sender, out *outbox.Outbox) *Replier {
	return &Replier{bot: bot, out: out}
}

// Reply queues text for the chat identified by to. Delivery errors after queueing
// are reported by the outbox.
func (r *Replier) Reply(ctx context.Context, to session.SenderID, text string) error {
	chatID, err := strconv.ParseInt(string(to), 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: invalid chat id %q: %w", to, err)
	}
	return r.out.Enqueue(ctx, "send", func(context.Context) error {
		_, err := r.bot.Send(tele.ChatID(chatID), text)
		return err
	})
}
