package logger

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
)

const defaultQueueLen = 1024

// asyncWriter fans log lines out to sinks on a background goroutine.
// Write never blocks: when the queue is full the line is dropped and counted,
// and the count is reported in a notice line once the queue drains.
type asyncWriter struct {
	queue    chan []byte
	flushReq chan chan error
	done     chan struct{}

	closeOnce sync.Once
	closeMu   sync.RWMutex
	closed    bool

	dropped    atomic.Uint64
	jsonNotice atomic.Bool

	sinkMu   sync.Mutex
	sinks    []*bufio.Writer
	writeErr error
}

func newAsyncWriter(writers []io.Writer, bufSize int) *asyncWriter {
	return newAsyncWriterQueue(writers, bufSize, defaultQueueLen)
}

func newAsyncWriterQueue(writers []io.Writer, bufSize, queueLen int) *asyncWriter {
	if bufSize <= 0 {
		bufSize = 64 * 1024
	}
	if queueLen <= 0 {
		queueLen = defaultQueueLen
	}
	sinks := make([]*bufio.Writer, 0, len(writers))
	for _, w := range writers {
		if w != nil {
			sinks = append(sinks, bufio.NewWriterSize(w, bufSize))
		}
	}
	aw := &asyncWriter{
		queue:    make(chan []byte, queueLen),
		flushReq: make(chan chan error),
		done:     make(chan struct{}),
		sinks:    sinks,
	}
	go aw.loop()
	return aw
}

func (w *asyncWriter) loop() {
	defer close(w.done)
	var reported uint64
	for {
		select {
		case data, ok := <-w.queue:
			if !ok {
				w.reportDropped(&reported)
				w.setErr(w.flushAll())
				return
			}
			w.setErr(w.writeAll(data))
			if len(w.queue) == 0 {
				w.reportDropped(&reported)
			}
		case ack := <-w.flushReq:
			ack <- w.flushAll()
		}
	}
}

func (w *asyncWriter) reportDropped(reported *uint64) {
	total := w.dropped.Load()
	if total == *reported {
		return
	}
	line := fmt.Sprintf("level=WARN component=app event=log.dropped dropped=%d dropped_total=%d\n", total-*reported, total)
	if w.jsonNotice.Load() {
		line = fmt.Sprintf(`{"level":"WARN","component":"app","event":"log.dropped","dropped":%d,"dropped_total":%d}`+"\n", total-*reported, total)
	}
	*reported = total
	w.setErr(w.writeAll([]byte(line)))
}

// Write copies p onto the queue. It returns an error only after a sink failed or the writer closed.
func (w *asyncWriter) Write(p []byte) error {
	if err := w.getErr(); err != nil {
		return err
	}
	if len(p) == 0 {
		return nil
	}

	w.closeMu.RLock()
	defer w.closeMu.RUnlock()
	if w.closed {
		return errors.New("logger: writer closed")
	}
	data := append([]byte(nil), p...)
	select {
	case w.queue <- data:
	default:
		w.dropped.Add(1)
	}
	return nil
}

// Dropped returns how many lines were discarded because the queue was full.
func (w *asyncWriter) Dropped() uint64 {
	return w.dropped.Load()
}

// Flush waits until every sink has flushed its buffer. Queued lines may still be pending.
func (w *asyncWriter) Flush() error {
	ack := make(chan error, 1)
	select {
	case w.flushReq <- ack:
	case <-w.done:
		return w.getErr()
	}
	if err := <-ack; err != nil {
		return err
	}
	return w.getErr()
}

// Close drains the queue, flushes the sinks and reports the first write error.
func (w *asyncWriter) Close() error {
	w.closeOnce.Do(func() {
		w.closeMu.Lock()
		w.closed = true
		close(w.queue)
		w.closeMu.Unlock()
	})
	<-w.done
	return w.getErr()
}

func (w *asyncWriter) writeAll(p []byte) error {
	w.sinkMu.Lock()
	defer w.sinkMu.Unlock()
	for _, sink := range w.sinks {
		if _, err := sink.Write(p); err != nil {
			return err
		}
		if err := sink.Flush(); err != nil {
			return err
		}
	}
	return nil
}

func (w *asyncWriter) flushAll() error {
	w.sinkMu.Lock()
	defer w.sinkMu.Unlock()
	var errs []error
	for _, sink := range w.sinks {
		if err := sink.Flush(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (w *asyncWriter) getErr() error {
	w.sinkMu.Lock()
	defer w.sinkMu.Unlock()
	return w.writeErr
}

func (w *asyncWriter) setErr(err error) {
	if err == nil {
		return
	}
	w.sinkMu.Lock()
	defer w.sinkMu.Unlock()
	if w.writeErr == nil {
		w.writeErr = err
	}
}
