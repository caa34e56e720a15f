package logger

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
)

type blockingWriter struct {
	release chan struct{}
	mu      sync.Mutex
	buf     bytes.Buffer
}

func (b *blockingWriter) Write(p []byte) (int, error) {
	<-b.release
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestAsyncWriterFansOut(t *testing.T) {
	var a, b bytes.Buffer
	w := newAsyncWriter([]io.Writer{&a, nil, &b}, 16)

	for _, line := range []string{"one\n", "two\n"} {
		if err := w.Write([]byte(line)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if a.String() != "one\ntwo\n" || b.String() != "one\ntwo\n" {
		t.Fatalf("unexpected sinks: %q %q", a.String(), b.String())
	}
	if err := w.Write([]byte("late\n")); err == nil {
		t.Fatal("expected error after close")
	}
}

func TestAsyncWriterDropsWhenFull(t *testing.T) {
	sink := &blockingWriter{release: make(chan struct{})}
	w := newAsyncWriterQueue([]io.Writer{sink}, 16, 1)

	// The first line is taken by the loop and blocks in the sink; the next fills the queue.
	for i := 0; i < 10; i++ {
		if err := w.Write([]byte("line\n")); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if w.Dropped() == 0 {
		t.Fatal("expected dropped lines")
	}
	close(sink.release)
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	out := sink.buf.String()
	if !strings.Contains(out, "event=log.dropped") {
		t.Fatalf("missing drop notice in %q", out)
	}
}

func TestAsyncWriterReportsSinkError(t *testing.T) {
	w := newAsyncWriter([]io.Writer{failingWriter{}}, 16)
	_ = w.Write([]byte("x\n"))
	if err := w.Close(); err == nil {
		t.Fatal("expected sink error")
	}
}

func TestRatioSampler(t *testing.T) {
	s := newRatioSampler(2, 5)
	allowed := 0
	for i := 0; i < 20; i++ {
		if s.Allow() {
			allowed++
		}
	}
	if allowed != 8 {
		t.Fatalf("allowed = %d, want 8", allowed)
	}

	s.Set(0, 0)
	for i := 0; i < 3; i++ {
		if !s.Allow() {
			t.Fatal("disabled sampler must allow everything")
		}
	}
}

func TestParseRatio(t *testing.T) {
	cases := map[string][2]int{
		"1/50": {1, 50},
		" 3/4": {3, 4},
		"20":   {1, 20},
		"off":  {0, 0},
		"":     {0, 0},
		"x/y":  {0, 0},
		"-5":   {0, 0},
	}
	for raw, want := range cases {
		n, d := parseRatio(raw)
		if n != want[0] || d != want[1] {
			t.Errorf("parseRatio(%q) = %d/%d, want %d/%d", raw, n, d, want[0], want[1])
		}
	}
}
