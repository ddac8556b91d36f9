package logbuf

import (
	"context"
	"log/slog"
	"strings"
)

// Handler tees records into a Buffer and forwards them to an inner
// handler. The buffer sees every level; the inner handler keeps its own
// level filter.
type Handler struct {
	inner  slog.Handler
	buf    *Buffer
	attrs  []slog.Attr
	prefix string
}

// NewHandler wraps inner.
func NewHandler(inner slog.Handler, buf *Buffer) *Handler {
	return &Handler{inner: inner, buf: buf}
}

func (h *Handler) Enabled(context.Context, slog.Level) bool { return true }

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	e := Entry{
		Time:    r.Time,
		Level:   r.Level.String(),
		Message: r.Message,
	}
	attrs := make(map[string]any, len(h.attrs)+r.NumAttrs())
	add := func(prefix string, a slog.Attr) {
		if a.Key == ConversationKey {
			e.ConversationID = a.Value.Resolve().String()
			return
		}
		flatten(attrs, prefix, a)
	}
	// Bound attrs were prefixed when they were bound.
	for _, a := range h.attrs {
		add("", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		add(h.prefix, a)
		return true
	})
	if len(attrs) > 0 {
		e.Attrs = attrs
	}
	h.buf.Write(e)

	if h.inner.Enabled(ctx, r.Level) {
		return h.inner.Handle(ctx, r)
	}
	return nil
}

// flatten writes a into dst, expanding groups into dotted keys.
func flatten(dst map[string]any, prefix string, a slog.Attr) {
	v := a.Value.Resolve()
	key := a.Key
	if prefix != "" {
		key = prefix + "." + key
	}
	if v.Kind() == slog.KindGroup {
		for _, ga := range v.Group() {
			flatten(dst, key, ga)
		}
		return
	}
	switch raw := v.Any().(type) {
	case error:
		dst[key] = raw.Error()
	default:
		dst[key] = raw
	}
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nh := *h
	nh.inner = h.inner.WithAttrs(attrs)
	nh.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	nh.attrs = append(nh.attrs, h.attrs...)
	for _, a := range attrs {
		if h.prefix != "" && a.Key != ConversationKey {
			a.Key = h.prefix + "." + a.Key
		}
		nh.attrs = append(nh.attrs, a)
	}
	return &nh
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	nh := *h
	nh.inner = h.inner.WithGroup(name)
	nh.prefix = strings.TrimPrefix(h.prefix+"."+name, ".")
	return &nh
}
