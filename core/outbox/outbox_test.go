package outbox

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestEnqueueRunsJob(t *testing.T) {
	o := New(Options{Workers: 1})
	done := make(chan struct{})

	require.NoError(t, o.Enqueue(context.Background(), "send.text", func(context.Context) error {
		close(done)
		return nil
	}))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("job did not run")
	}
	o.Close()
	assert.Zero(t, o.Failures())
}

func TestRetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	var failed []string
	var mu sync.Mutex
	o := New(Options{
		Workers:      1,
		MaxRetries:   2,
		RetryBackoff: time.Millisecond,
		OnFailure: func(action string, err error) {
			mu.Lock()
			failed = append(failed, action)
			mu.Unlock()
		},
	})

	require.NoError(t, o.Enqueue(context.Background(), "flaky", func(context.Context) error {
		if calls.Add(1) < 3 {
			return &net.OpError{Op: "dial", Err: errors.New("refused")}
		}
		return nil
	}))
	o.Close()

	assert.Equal(t, int32(3), calls.Load())
	assert.Zero(t, o.Failures())
	assert.Empty(t, failed)
}

func TestPermanentErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	var failedAction string
	o := New(Options{
		Workers:      1,
		MaxRetries:   3,
		RetryBackoff: time.Millisecond,
		OnFailure:    func(action string, err error) { failedAction = action },
	})

	require.NoError(t, o.Enqueue(context.Background(), "send.text", func(context.Context) error {
		calls.Add(1)
		return errors.New("telegram: chat not found (400)")
	}))
	o.Close()

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, uint64(1), o.Failures())
	assert.Equal(t, "send.text", failedAction)
}

func TestEnqueueAfterClose(t *testing.T) {
	o := New(Options{Workers: 1})
	o.Close()
	o.Close()

	err := o.Enqueue(context.Background(), "late", func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestEnqueueQueueFull(t *testing.T) {
	block := make(chan struct{})
	o := New(Options{Workers: 1, QueueSize: 1})
	started := make(chan struct{})

	require.NoError(t, o.Enqueue(context.Background(), "busy", func(context.Context) error {
		close(started)
		<-block
		return nil
	}))
	<-started
	require.NoError(t, o.Enqueue(context.Background(), "queued", func(context.Context) error { return nil }))

	err := o.Enqueue(context.Background(), "overflow", func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrQueueFull)

	close(block)
	o.Close()
}

func TestShouldRetryAndErrorKind(t *testing.T) {
	assert.False(t, ShouldRetry(nil))
	assert.True(t, ShouldRetry(timeoutErr{}))
	assert.True(t, ShouldRetry(&net.OpError{Op: "dial", Err: errors.New("refused")}))
	assert.False(t, ShouldRetry(errors.New("bad request")))

	assert.Equal(t, "timeout", ErrorKind(context.DeadlineExceeded))
	assert.Equal(t, "dial", ErrorKind(&net.OpError{Op: "dial", Err: errors.New("refused")}))
	assert.Equal(t, "http_4xx", ErrorKind(errors.New("telegram: chat not found (400)")))
	assert.Equal(t, "http_5xx", ErrorKind(errors.New("telegram: internal (502)")))
	assert.Equal(t, "unknown", ErrorKind(errors.New("boom")))
}

func TestRedact(t *testing.T) {
	err := errors.New(`Post "https://api.telegram.org/bot123456:AAbb-cc_DD/sendMessage": timeout`)
	assert.Equal(t, `Post "https://api.telegram.org/bot<redacted>/sendMessage": timeout`, Redact(err))
	assert.Empty(t, Redact(nil))
}
