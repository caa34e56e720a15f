package outbox

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"
)

// Error kinds reported in logs under error_kind.
const (
	KindTimeout   = "timeout"
	KindCancelled = "cancelled"
	KindDNS       = "dns"
	KindDial      = "dial"
	KindTLS       = "tls"
	KindFlood     = "flood"
	KindHTTP5xx   = "http_5xx"
	KindHTTP4xx   = "http_4xx"
	KindUnknown   = "unknown"
)

var transientKinds = map[string]bool{
	KindTimeout: true,
	KindDial:    true,
	KindDNS:     true,
}

var tokenRe = regexp.MustCompile(`bot[0-9]+:[A-Za-z0-9_-]+`)

// ShouldRetry reports whether err is a transient network failure.
// API rejections and cancellations are final.
func ShouldRetry(err error) bool {
	return transientKinds[ErrorKind(err)]
}

// ErrorKind classifies err for logs. It returns "" for a nil error.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	}

	if dnsErr := (*net.DNSError)(nil); errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return KindTimeout
		}
		return KindDNS
	}
	if netErr := net.Error(nil); errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	if opErr := (*net.OpError)(nil); errors.As(err, &opErr) && opErr.Op == "dial" {
		return KindDial
	}
	if alert := tls.AlertError(0); errors.As(err, &alert) {
		return KindTLS
	}

	switch code := statusCode(err); {
	case code == http.StatusTooManyRequests:
		return KindFlood
	case code >= 500:
		return KindHTTP5xx
	case code >= 400:
		return KindHTTP4xx
	}
	return KindUnknown
}

// Redact returns err's message with bot tokens masked.
func Redact(err error) string {
	if err == nil {
		return ""
	}
	return tokenRe.ReplaceAllString(err.Error(), "bot<redacted>")
}

// statusCode extracts the Bot API status from telebot errors or a trailing "(NNN)" in the message.
func statusCode(err error) int {
	if apiErr := (*tele.Error)(nil); errors.As(err, &apiErr) {
		return apiErr.Code
	}
	if flood := (tele.FloodError{}); errors.As(err, &flood) {
		return http.StatusTooManyRequests
	}

	msg := strings.TrimSpace(err.Error())
	open := strings.LastIndexByte(msg, '(')
	if open < 0 || !strings.HasSuffix(msg, ")") {
		return 0
	}
	code, convErr := strconv.Atoi(strings.TrimSpace(msg[open+1 : len(msg)-1]))
	if convErr != nil {
		return 0
	}
	return code
}
