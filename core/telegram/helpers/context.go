// Package helpers carries per-update logging context through telebot handlers.
package helpers

import (
	"context"
	"strconv"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/menubot/core/logger"
)

const (
	contextKey     = "logger_ctx"
	updateStartKey = "update_start"
)

// MarkUpdateStart records when processing of the update began.
func MarkUpdateStart(c tele.Context, at time.Time) {
	c.Set(updateStartKey, at)
}

// UpdateStart returns the time stored by MarkUpdateStart, or now when none was stored.
func UpdateStart(c tele.Context) time.Time {
	if at, ok := c.Get(updateStartKey).(time.Time); ok && !at.IsZero() {
		return at
	}
	return time.Now()
}

// StoreContext attaches ctx to c for downstream handlers.
func StoreContext(c tele.Context, ctx context.Context) {
	if c == nil || ctx == nil {
		return
	}
	c.Set(contextKey, ctx)
}

// ContextFrom returns the context stored by StoreContext.
func ContextFrom(c tele.Context) (context.Context, bool) {
	if c == nil {
		return nil, false
	}
	if ctx, ok := c.Get(contextKey).(context.Context); ok {
		return ctx, true
	}
	return nil, false
}

// SenderID renders the chat an update belongs to as a session identity.
// Private chats share the user's id; the user id is used when no chat is attached.
func SenderID(c tele.Context) string {
	if chat := c.Chat(); chat != nil && chat.ID != 0 {
		return strconv.FormatInt(chat.ID, 10)
	}
	if user := c.Sender(); user != nil && user.ID != 0 {
		return strconv.FormatInt(user.ID, 10)
	}
	return ""
}

// DisplayName picks the sender's first name, falling back to the username.
func DisplayName(c tele.Context) string {
	user := c.Sender()
	if user == nil {
		return ""
	}
	if user.FirstName != "" {
		return user.FirstName
	}
	return user.Username
}

// BuildContext returns the update's logging context, building and caching it on first use.
func BuildContext(c tele.Context) context.Context {
	if cached, ok := ContextFrom(c); ok {
		return cached
	}

	upd := c.Update()
	sender := SenderID(c)

	rid, _ := c.Get("rid").(string)
	if rid == "" {
		rid = logger.BuildRID(upd.ID, sender)
	}

	ctx := context.Background()
	ctx = logger.WithRID(ctx, rid)
	ctx = logger.WithUpdateID(ctx, upd.ID)
	ctx = logger.WithSender(ctx, sender)
	ctx = logger.WithLogger(ctx, logger.Component("tg"))
	StoreContext(c, ctx)
	return ctx
}

// WithHandler adds the handler name to the stored context.
func WithHandler(c tele.Context, handler string) context.Context {
	ctx := BuildContext(c)
	if handler == "" {
		return ctx
	}
	ctx = logger.WithHandler(ctx, handler)
	StoreContext(c, ctx)
	return ctx
}
