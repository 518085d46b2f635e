package whatsapp

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LogNotifier stands in for the Cloud API when no credentials are configured.
// Messages are written to the log and get a local id.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier builds the notifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(_ context.Context, identity, text string) (string, error) {
	id := "local." + uuid.NewString()
	n.logger.Info("outbound message (not delivered)",
		zap.String("identity", identity),
		zap.String("message_id", id),
		zap.String("text", text))
	return id, nil
}

func (n *LogNotifier) MarkRead(_ context.Context, messageID string) error {
	n.logger.Debug("mark read (not delivered)", zap.String("message_id", messageID))
	return nil
}
