package logbuf

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
)

const mask = "***masked***"

// slackTokenRe matches Slack bot, user, app and refresh tokens.
var slackTokenRe = regexp.MustCompile(`\bxox[abposr]-[A-Za-z0-9-]{10,}`)

// MaskingHandler redacts Slack tokens and configured secrets from the
// message and string or error attributes before delegating.
type MaskingHandler struct {
	inner   slog.Handler
	secrets []string
}

// NewMaskingHandler wraps inner. Empty secrets are ignored.
func NewMaskingHandler(inner slog.Handler, secrets ...string) *MaskingHandler {
	var keep []string
	for _, s := range secrets {
		if s != "" {
			keep = append(keep, s)
		}
	}
	return &MaskingHandler{inner: inner, secrets: keep}
}

func (h *MaskingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *MaskingHandler) Handle(ctx context.Context, record slog.Record) error {
	// Build a new record; slog may reuse the incoming one.
	r := slog.NewRecord(record.Time, record.Level, h.Mask(record.Message), record.PC)
	record.Attrs(func(a slog.Attr) bool {
		r.AddAttrs(h.maskAttr(a))
		return true
	})
	return h.inner.Handle(ctx, r)
}

func (h *MaskingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	masked := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		masked[i] = h.maskAttr(a)
	}
	return &MaskingHandler{inner: h.inner.WithAttrs(masked), secrets: h.secrets}
}

func (h *MaskingHandler) WithGroup(name string) slog.Handler {
	return &MaskingHandler{inner: h.inner.WithGroup(name), secrets: h.secrets}
}

// Mask redacts every known secret in s.
func (h *MaskingHandler) Mask(s string) string {
	s = slackTokenRe.ReplaceAllString(s, mask)
	for _, secret := range h.secrets {
		s = strings.ReplaceAll(s, secret, mask)
	}
	return s
}

func (h *MaskingHandler) maskAttr(a slog.Attr) slog.Attr {
	return slog.Attr{Key: a.Key, Value: h.maskValue(a.Value)}
}

func (h *MaskingHandler) maskValue(v slog.Value) slog.Value {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindString:
		return slog.StringValue(h.Mask(v.String()))
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return slog.StringValue(h.Mask(err.Error()))
		}
		return v
	case slog.KindGroup:
		group := v.Group()
		masked := make([]slog.Attr, len(group))
		for i, a := range group {
			masked[i] = h.maskAttr(a)
		}
		return slog.GroupValue(masked...)
	default:
		return v
	}
}
