package logger

import (
	"log/slog"
	"strings"
	"time"
)

// RoundMS rounds d to whole milliseconds; negative durations become zero.
func RoundMS(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d.Round(time.Millisecond)
}

// ListAttrs describes values as <key>_total and a preview of at most limit items.
// <key>_truncated is set when the preview is shorter than the list.
func ListAttrs(key string, values []string, limit int) []slog.Attr {
	attrs := []slog.Attr{slog.Int(key+"_total", len(values))}
	if len(values) == 0 || limit <= 0 {
		return attrs
	}
	shown := values
	if len(shown) > limit {
		shown = shown[:limit]
		attrs = append(attrs, slog.Bool(key+"_truncated", true))
	}
	return append(attrs, slog.String(key+"_preview", strings.Join(shown, ", ")))
}
