// Package testlog provides a slog.Handler that records log lines without
// timestamps, so tests can assert on what was logged.
package testlog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// Handler renders each record as "LEVEL: message k=v, k=v" and keeps it.
// Handlers derived with WithAttrs and WithGroup share the same record list.
type Handler struct {
	lines       *lines
	attrs       []slog.Attr
	groups      []string
	ignoreDebug bool
}

type lines struct {
	mu  sync.Mutex
	all []string
}

type Option func(*Handler)

// WithIgnoreDebug drops DEBUG records.
func WithIgnoreDebug() Option {
	return func(h *Handler) {
		h.ignoreDebug = true
	}
}

func New(opts ...Option) *Handler {
	h := &Handler{lines: &lines{}}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Lines returns every line recorded so far.
func (h *Handler) Lines() []string {
	h.lines.mu.Lock()
	defer h.lines.mu.Unlock()
	return append([]string(nil), h.lines.all...)
}

// Contains reports whether any recorded line contains substr.
func (h *Handler) Contains(substr string) bool {
	for _, l := range h.Lines() {
		if strings.Contains(l, substr) {
			return true
		}
	}
	return false
}

//nolint:gocritic
func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	if r.Level == slog.LevelDebug && h.ignoreDebug {
		return nil
	}

	line := fmt.Sprintf("%s: %s", r.Level, r.Message)
	if attrs := h.attrsToString(&r); attrs != "" {
		line += " " + attrs
	}

	h.lines.mu.Lock()
	h.lines.all = append(h.lines.all, line)
	h.lines.mu.Unlock()
	return nil
}

func (h *Handler) attrsToString(r *slog.Record) string {
	var parts []string
	for _, attr := range h.attrs {
		parts = append(parts, formatAttr(attr, ""))
	}

	prefix := ""
	if len(h.groups) > 0 {
		prefix = strings.Join(h.groups, ".") + "."
	}
	r.Attrs(func(a slog.Attr) bool {
		parts = append(parts, formatAttr(a, prefix))
		return true
	})

	return strings.Join(parts, ", ")
}

func formatAttr(a slog.Attr, prefix string) string {
	if a.Value.Kind() == slog.KindGroup {
		var parts []string
		for _, ga := range a.Value.Group() {
			parts = append(parts, formatAttr(ga, prefix+a.Key+"."))
		}
		return strings.Join(parts, ", ")
	}
	return fmt.Sprintf("%s%s=%v", prefix, a.Key, a.Value)
}

func (h *Handler) Enabled(context.Context, slog.Level) bool {
	return true
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	prefix := ""
	if len(h.groups) > 0 {
		prefix = strings.Join(h.groups, ".") + "."
	}

	newAttrs := make([]slog.Attr, 0, len(attrs))
	for _, attr := range attrs {
		attr.Key = prefix + attr.Key
		newAttrs = append(newAttrs, attr)
	}

	return &Handler{
		lines:       h.lines,
		attrs:       append(h.attrs[:len(h.attrs):len(h.attrs)], newAttrs...),
		groups:      h.groups,
		ignoreDebug: h.ignoreDebug,
	}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &Handler{
		lines:       h.lines,
		attrs:       h.attrs,
		groups:      append(h.groups[:len(h.groups):len(h.groups)], name),
		ignoreDebug: h.ignoreDebug,
	}
}
