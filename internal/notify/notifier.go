// Package notify delivers best-effort alerts about new leads. Senders are
// fire-and-forget: a failed delivery is logged and never surfaced to the
// caller, because notification failure must not fail the lead submission.
package notify

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Sender is one delivery channel (webhook, Telegram, ...).
type Sender interface {
	Send(ctx context.Context, subject string, payload map[string]any) error
	Name() string
}

type Notifier struct {
	senders []Sender
	logger  *zap.Logger
}

func New(senders []Sender, logger *zap.Logger) *Notifier {
	return &Notifier{senders: senders, logger: logger}
}

// Notify dispatches to every sender. Individual failures are collected into
// one combined error so a single broken channel does not block the rest;
// callers on the lead path ignore the error entirely.
func (n *Notifier) Notify(ctx context.Context, subject string, payload map[string]any) error {
	if n == nil || len(n.senders) == 0 {
		return nil
	}
	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, subject, payload); err != nil {
			if n.logger != nil {
				n.logger.Warn("notification sender failed",
					zap.String("sender", s.Name()),
					zap.String("subject", subject),
					zap.Error(err))
			}
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
