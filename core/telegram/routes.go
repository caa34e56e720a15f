package telegram

import (
	"context"
	"log/slog"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/menubot/core/dialogue"
	"github.com/m3rciful/menubot/core/inbound"
	"github.com/m3rciful/menubot/core/logger"
	"github.com/m3rciful/menubot/core/session"
	tghelpers "github.com/m3rciful/menubot/core/telegram/helpers"
)

// MessageHandler consumes inbound messages. *inbound.Dispatcher satisfies it.
type MessageHandler interface {
	Handle(ctx context.Context, msg inbound.Message) (dialogue.Outcome, error)
}

// TextRoute feeds every text update into h.
func TextRoute(h MessageHandler) Route {
	return Route{Endpoint: tele.OnText, Handler: TextHandler(h)}
}

// TextHandler converts a text update into an inbound.Message and hands it to h.
// The logged duration counts from the logger middleware when it ran.
func TextHandler(h MessageHandler) tele.HandlerFunc {
	return func(c tele.Context) error {
		start := tghelpers.UpdateStart(c)
		ctx := tghelpers.WithHandler(c, "text")

		msg := inbound.Message{
			From:       session.SenderID(tghelpers.SenderID(c)),
			NotifyName: tghelpers.DisplayName(c),
			Body:       c.Text(),
			UpdateID:   c.Update().ID,
		}
		out, err := h.Handle(ctx, msg)

		status, outcome := "ok", "ok"
		switch {
		case err != nil:
			status, outcome = "fail", "fail"
		case out.Reply == "" && !out.End:
			outcome = "ignored"
		}
		attrs := []slog.Attr{
			slog.String("status", status),
			slog.String("outcome", outcome),
			slog.Duration("duration", time.Since(start)),
		}
		if err != nil {
			attrs = append(attrs, slog.String("err", logger.SanitizeLimit(err.Error(), 256)))
		}
		logger.LogEvent(ctx, logger.Component("tg"), slog.LevelInfo, "handler.handled", attrs...)
		return err
	}
}
