package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/intake-desk/internal/domain"
	"github.com/spec-kit/intake-desk/internal/observability"
)

// Messenger hands replies to the channel and records the outcome in the
// conversation log. Failures are logged and never returned.
type Messenger struct {
	notifier Notifier
	store    *ConversationStore
	metrics  *observability.Metrics
	logger   *zap.Logger
	now      Clock
}

// NewMessenger constructs a messenger.
func NewMessenger(notifier Notifier, store *ConversationStore, metrics *observability.Metrics, logger *zap.Logger, clock Clock) *Messenger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Messenger{
		notifier: notifier,
		store:    store,
		metrics:  metrics,
		logger:   logger,
		now:      clockOrDefault(clock),
	}
}

// Deliver sends a reply that is already logged as queued and settles its log entry.
func (m *Messenger) Deliver(ctx context.Context, identity, text string) {
	externalID, err := m.notifier.Send(ctx, identity, text)
	if err != nil {
		m.metrics.Inc(observability.CounterNotifyFailures)
		m.logger.Warn("outbound message failed", zap.String("identity", identity), zap.Error(err))
		externalID = ""
	}
	_, err = m.store.Update(ctx, identity, func(conv *domain.Conversation) error {
		if !conv.SettleOutbound(text, externalID) {
			return errSkipSave
		}
		conv.UpdatedAt = m.now()
		return nil
	})
	if err != nil {
		m.logger.Warn("record outbound delivery failed", zap.String("identity", identity), zap.Error(err))
	}
}

// SendAndLog logs a new reply as queued, then delivers it.
func (m *Messenger) SendAndLog(ctx context.Context, identity, text string) {
	_, err := m.store.Update(ctx, identity, func(conv *domain.Conversation) error {
		now := m.now()
		conv.QueueOutbound(text, now)
		conv.UpdatedAt = now
		return nil
	})
	if err != nil {
		m.logger.Warn("log outbound message failed", zap.String("identity", identity), zap.Error(err))
	}
	m.Deliver(ctx, identity, text)
}
