package email

import (
	"context"

	"go.uber.org/zap"
)

// NoopSender logs messages instead of delivering them.
// Used when SMTP is not configured.
type NoopSender struct {
	logger *zap.Logger
}

// NewNoopSender creates a NoopSender backed by logger.
func NewNoopSender(logger *zap.Logger) *NoopSender {
	return &NoopSender{logger: logger}
}

// Send logs msg and returns nil.
func (n *NoopSender) Send(_ context.Context, msg Message) error {
	if msg.To == "" {
		return ErrNoRecipient
	}
	n.logger.Info("email not sent (noop sender)",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
	)
	return nil
}
