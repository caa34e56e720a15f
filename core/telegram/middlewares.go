package telegram

import (
	"github.com/m3rciful/menubot/core/telegram/middleware"
)

// DefaultMiddlewares builds the bot-wide middleware chain: panic recovery, then update logging.
func DefaultMiddlewares() []Middleware {
	return []Middleware{
		{Name: "recover", Use: middleware.RecoverMiddleware},
		{Name: "logger", Use: middleware.LoggerMiddleware},
	}
}
