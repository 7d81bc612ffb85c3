package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// EffectType names a Notifier call.
type EffectType string

const (
	EffectNotify       EffectType = "notify"
	EffectNavigate     EffectType = "navigate"
	EffectGoBack       EffectType = "goBack"
	EffectReload       EffectType = "reload"
	EffectCloseOverlay EffectType = "closeOverlay"
)

// Effect is one recorded UI-facing request.
type Effect struct {
	Type    EffectType     `json:"type"`
	Kind    NotifyKind     `json:"kind,omitempty"`
	Message string         `json:"message,omitempty"`
	Target  string         `json:"target,omitempty"`
	Params  map[string]any `json:"params,omitempty"`
	Mode    NavigateMode   `json:"mode,omitempty"`
	Refresh bool           `json:"refresh,omitempty"`
}

// RecordingNotifier keeps every effect in call order. It backs headless
// runs such as the HTTP API and tests.
type RecordingNotifier struct {
	mu      sync.Mutex
	effects []Effect
}

var _ Notifier = &RecordingNotifier{}

func NewRecordingNotifier() *RecordingNotifier {
	return &RecordingNotifier{}
}

func (n *RecordingNotifier) add(e Effect) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.effects = append(n.effects, e)
	return nil
}

// Effects returns a copy of the recorded effects.
func (n *RecordingNotifier) Effects() []Effect {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Effect, len(n.effects))
	copy(out, n.effects)
	return out
}

// Reset forgets the recorded effects.
func (n *RecordingNotifier) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.effects = nil
}

func (n *RecordingNotifier) Notify(_ context.Context, kind NotifyKind, message string) error {
	return n.add(Effect{Type: EffectNotify, Kind: kind, Message: message})
}

func (n *RecordingNotifier) Navigate(_ context.Context, targetID string, params map[string]any, mode NavigateMode) error {
	return n.add(Effect{Type: EffectNavigate, Target: targetID, Params: params, Mode: mode})
}

func (n *RecordingNotifier) GoBack(_ context.Context, refresh bool) error {
	return n.add(Effect{Type: EffectGoBack, Refresh: refresh})
}

func (n *RecordingNotifier) Reload(_ context.Context, message string) error {
	return n.add(Effect{Type: EffectReload, Message: message})
}

func (n *RecordingNotifier) CloseOverlay(_ context.Context, refreshParent bool) error {
	return n.add(Effect{Type: EffectCloseOverlay, Refresh: refreshParent})
}

// LogNotifier writes effects to a logger. It is the default when no
// notifier is supplied.
type LogNotifier struct {
	l *slog.Logger
}

var _ Notifier = &LogNotifier{}

func NewLogNotifier(l *slog.Logger) *LogNotifier {
	if l == nil {
		l = slog.Default()
	}
	return &LogNotifier{l: l}
}

func (n *LogNotifier) Notify(ctx context.Context, kind NotifyKind, message string) error {
	level := slog.LevelInfo
	switch kind {
	case NotifyWarning:
		level = slog.LevelWarn
	case NotifyError:
		level = slog.LevelError
	}
	n.l.Log(ctx, level, fmt.Sprintf("Notify [%s]: %s", kind, message))
	return nil
}

func (n *LogNotifier) Navigate(ctx context.Context, targetID string, params map[string]any, mode NavigateMode) error {
	n.l.InfoContext(ctx, fmt.Sprintf("Navigate to %s (%s)", targetID, mode), "params", params)
	return nil
}

func (n *LogNotifier) GoBack(ctx context.Context, refresh bool) error {
	n.l.InfoContext(ctx, "Go back", "refresh", refresh)
	return nil
}

func (n *LogNotifier) Reload(ctx context.Context, message string) error {
	n.l.InfoContext(ctx, "Reload", "message", message)
	return nil
}

func (n *LogNotifier) CloseOverlay(ctx context.Context, refreshParent bool) error {
	n.l.InfoContext(ctx, "Close overlay", "refresh_parent", refreshParent)
	return nil
}
