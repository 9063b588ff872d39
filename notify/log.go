package notify

import (
	"context"
	"log/slog"

	"github.com/warp/split-engine/group"
	"github.com/warp/split-engine/ledger"
)

// LogNotifier writes notifications to the log instead of a broker.
// Used in development and tests when no AMQP URL is configured.
type LogNotifier struct{}

var _ group.Notifier = LogNotifier{}

func (LogNotifier) Notify(ctx context.Context, recipientID ledger.UserID, notificationType, message string) error {
	slog.InfoContext(ctx, "notification", "recipient", recipientID,
		"type", notificationType, "body", message)
	return nil
}
