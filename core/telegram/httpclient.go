package telegram

import (
	"log/slog"
	"net"
	"net/http"
	"path"
	"time"

	"github.com/m3rciful/menubot/core/logger"
	"github.com/m3rciful/menubot/core/outbox"
)

// BuildHTTPClient returns the client used for Bot API calls.
// Dial failures and timeouts are retried in the transport with a linear backoff.
// There is no response header timeout because long polling holds the request open.
func BuildHTTPClient() *http.Client {
	dialer := &net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}
	return &http.Client{
		Timeout: 30 * time.Second,
		Transport: &retryTransport{
			base: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				DialContext:           dialer.DialContext,
				ForceAttemptHTTP2:     true,
				MaxIdleConns:          20,
				MaxIdleConnsPerHost:   10,
				IdleConnTimeout:       30 * time.Second,
				TLSHandshakeTimeout:   5 * time.Second,
				ExpectContinueTimeout: time.Second,
			},
			maxRetries: 3,
			backoff:    2 * time.Second,
			retryable:  outbox.ShouldRetry,
		},
	}
}

// retryTransport replays a request after transient failures.
// Requests whose body cannot be rewound are sent once.
type retryTransport struct {
	base       http.RoundTripper
	maxRetries int
	backoff    time.Duration
	retryable  func(error) bool
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base, retryable := t.base, t.retryable
	if base == nil {
		base = http.DefaultTransport
	}
	if retryable == nil {
		retryable = outbox.ShouldRetry
	}
	replayable := req.Body == nil || req.Body == http.NoBody || req.GetBody != nil

	resp, err := base.RoundTrip(req)
	for attempt := 1; err != nil && attempt <= t.maxRetries && replayable && retryable(err); attempt++ {
		logger.Debug(req.Context(), "tg", "http.retry",
			slog.Int("attempt", attempt),
			slog.String("endpoint", path.Base(req.URL.Path)),
			slog.String("error_kind", outbox.ErrorKind(err)),
		)
		if waitErr := t.wait(req, attempt); waitErr != nil {
			return nil, waitErr
		}
		next, cloneErr := rewind(req)
		if cloneErr != nil {
			return nil, cloneErr
		}
		resp, err = base.RoundTrip(next)
	}
	return resp, err
}

func (t *retryTransport) wait(req *http.Request, attempt int) error {
	delay := t.backoff * time.Duration(attempt)
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-req.Context().Done():
		return req.Context().Err()
	case <-timer.C:
		return nil
	}
}

func rewind(req *http.Request) (*http.Request, error) {
	next := req.Clone(req.Context())
	if req.GetBody == nil {
		return next, nil
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	next.Body = body
	return next, nil
}
