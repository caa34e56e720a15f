package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

type logFormat string

const (
	formatJSON logFormat = "json"
	formatKV   logFormat = "kv"

	timeFormatMillis = "2006-01-02T15:04:05.000Z07:00"
)

type handlerConfig struct {
	level    slog.Leveler
	writer   *asyncWriter
	format   logFormat
	keyOrder []string
}

// structuredHandler renders records as one kv or JSON line with a fixed leading key order.
type structuredHandler struct {
	cfg    handlerConfig
	rank   map[string]int
	attrs  []slog.Attr
	groups []string
}

var linePool = sync.Pool{New: func() any { return new(bytes.Buffer) }}

func newStructuredHandler(cfg handlerConfig) *structuredHandler {
	if cfg.level == nil {
		cfg.level = slog.LevelInfo
	}
	if cfg.keyOrder == nil {
		cfg.keyOrder = defaultKeyOrder
	}
	rank := make(map[string]int, len(cfg.keyOrder))
	for i, k := range cfg.keyOrder {
		if _, dup := rank[k]; !dup {
			rank[k] = i
		}
	}
	return &structuredHandler{cfg: cfg, rank: rank}
}

// Enabled reports whether level passes the configured minimum.
func (h *structuredHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.cfg.level.Level()
}

// Handle renders r and queues the line on the writer.
func (h *structuredHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.cfg.writer == nil {
		return errors.New("logger: writer not initialized")
	}

	e := newEntry(16)
	ts := r.Time.UTC()
	e.set("ts", ts.Truncate(time.Millisecond).Format(timeFormatMillis))
	e.set("level", normalizeLevel(r.Level.String()))
	if h.cfg.format == formatJSON {
		e.set("ts_unix_nano", ts.UnixNano())
	}

	prefix := strings.Join(h.groups, ".")
	for _, a := range h.attrs {
		e.addAttr(prefix, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		e.addAttr(prefix, a)
		return true
	})
	e.addContext(ctx)
	e.finish(r.Message, h.cfg.format == formatJSON)

	buf := linePool.Get().(*bytes.Buffer)
	buf.Reset()
	defer linePool.Put(buf)

	fields := e.sorted(h.rank)
	if h.cfg.format == formatJSON {
		if err := encodeJSON(buf, fields); err != nil {
			return err
		}
	} else {
		encodeKV(buf, fields)
	}
	buf.WriteByte('\n')
	return h.cfg.writer.Write(buf.Bytes())
}

// WithAttrs returns a copy of the handler carrying attrs on every record.
func (h *structuredHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &clone
}

// WithGroup returns a copy of the handler that prefixes keys with name.
func (h *structuredHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.groups = append(append([]string(nil), h.groups...), name)
	return &clone
}

type field struct {
	key string
	val any
}

// entry is an insertion-ordered set of fields; a later set on the same key overwrites.
type entry struct {
	fields []field
	index  map[string]int
}

func newEntry(capacity int) *entry {
	return &entry{fields: make([]field, 0, capacity), index: make(map[string]int, capacity)}
}

func (e *entry) set(key string, val any) {
	if i, ok := e.index[key]; ok {
		e.fields[i].val = val
		return
	}
	e.index[key] = len(e.fields)
	e.fields = append(e.fields, field{key: key, val: val})
}

func (e *entry) setIfAbsent(key string, val any) {
	if _, ok := e.index[key]; !ok {
		e.set(key, val)
	}
}

func (e *entry) str(key string) string {
	i, ok := e.index[key]
	if !ok {
		return ""
	}
	switch v := e.fields[i].val.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

func (e *entry) addAttr(prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	key := a.Key
	if prefix != "" && key != "" {
		key = prefix + "." + key
	} else if key == "" {
		key = prefix
	}
	if a.Value.Kind() == slog.KindGroup {
		for _, child := range a.Value.Group() {
			e.addAttr(key, child)
		}
		return
	}
	if key == "" {
		return
	}
	if k, v, ok := normalizeAttr(key, a.Value); ok {
		e.set(k, v)
	}
}

func (e *entry) addContext(ctx context.Context) {
	if ctx == nil {
		return
	}
	if rid := RIDFrom(ctx); rid != "" {
		e.setIfAbsent("rid", rid)
	}
	if sender := SenderFrom(ctx); sender != "" {
		e.setIfAbsent("sender", sender)
	}
	if id := UpdateIDFrom(ctx); id != 0 {
		e.setIfAbsent("update_id", id)
	}
	if handler := HandlerFrom(ctx); handler != "" {
		e.setIfAbsent("handler", handler)
	}
}

// finish fills defaults, compacts the rid and normalises enumerated values.
func (e *entry) finish(message string, keepFullRID bool) {
	if rid := e.str("rid"); rid != "" {
		if compact := CompactRID(rid); compact != rid {
			if keepFullRID {
				e.setIfAbsent("rid_full", rid)
			}
			e.set("rid", compact)
		}
	}
	if e.str("event") == "" {
		if message == "" {
			message = "unknown"
		}
		e.set("event", message)
	}
	if e.str("component") == "" {
		e.set("component", "app")
	}
	e.set("level", normalizeLevel(e.str("level")))
	if s := e.str("status"); s != "" {
		normalized, _ := normalizeEnum(allowedStatus, s)
		e.set("status", normalized)
	}
	if o := e.str("outcome"); o != "" {
		if normalized, ok := normalizeEnum(allowedOutcome, o); ok {
			e.set("outcome", normalized)
		} else {
			e.set("outcome", nil)
		}
	}
}

// sorted returns non-empty fields, ranked keys first and the rest alphabetically.
func (e *entry) sorted(rank map[string]int) []field {
	out := make([]field, 0, len(e.fields))
	for _, f := range e.fields {
		switch v := f.val.(type) {
		case nil:
			continue
		case string:
			if v == "" {
				continue
			}
		}
		out = append(out, f)
	}
	sort.SliceStable(out, func(i, j int) bool {
		ri, iok := rank[out[i].key]
		rj, jok := rank[out[j].key]
		switch {
		case iok && jok:
			return ri < rj
		case iok != jok:
			return iok
		default:
			return out[i].key < out[j].key
		}
	})
	return out
}

func normalizeAttr(key string, val slog.Value) (string, any, bool) {
	switch val.Kind() {
	case slog.KindString:
		return key, strings.TrimSpace(val.String()), true
	case slog.KindBool:
		return key, val.Bool(), true
	case slog.KindInt64:
		return key, val.Int64(), true
	case slog.KindUint64:
		if u := val.Uint64(); u <= math.MaxInt64 {
			return key, int64(u), true
		}
		return key, val.Uint64(), true
	case slog.KindFloat64:
		return key, val.Float64(), true
	case slog.KindDuration:
		return durationField(key, val.Duration())
	case slog.KindTime:
		return key, val.Time().UTC().Format(time.RFC3339Nano), true
	}

	switch x := val.Any().(type) {
	case nil:
		return key, nil, false
	case error:
		return key, x.Error(), true
	case string:
		return key, strings.TrimSpace(x), true
	case time.Duration:
		return durationField(key, x)
	case fmt.Stringer:
		return key, x.String(), true
	default:
		return key, fmt.Sprint(x), true
	}
}

// durationField renames duration attributes to a *_ms key carrying whole milliseconds.
func durationField(key string, d time.Duration) (string, any, bool) {
	switch {
	case key == "duration":
		key = "duration_ms"
	case !strings.HasSuffix(key, "_ms"):
		key += "_ms"
	}
	return key, RoundMS(d).Milliseconds(), true
}

func encodeJSON(buf *bytes.Buffer, fields []field) error {
	buf.WriteByte('{')
	for i, f := range fields {
		data, err := json.Marshal(f.val)
		if err != nil {
			return fmt.Errorf("logger: encode %s: %w", f.key, err)
		}
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(strconv.Quote(f.key))
		buf.WriteByte(':')
		buf.Write(data)
	}
	buf.WriteByte('}')
	return nil
}

func encodeKV(buf *bytes.Buffer, fields []field) {
	for i, f := range fields {
		if i > 0 {
			buf.WriteByte(' ')
		}
		buf.WriteString(f.key)
		buf.WriteByte('=')
		buf.WriteString(kvValue(f.val))
	}
}

func kvValue(val any) string {
	var s string
	switch v := val.(type) {
	case string:
		s = v
	case bool:
		return strconv.FormatBool(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	default:
		s = fmt.Sprint(v)
	}
	if strings.IndexFunc(s, needsQuote) >= 0 {
		return strconv.Quote(s)
	}
	return s
}

func needsQuote(r rune) bool {
	return r <= ' ' || r == '=' || r == '"'
}
