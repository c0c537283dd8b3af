package notification

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
)

// Event kinds announced to the external dispatcher.
const (
	KindDepositConfirmed    = "deposit_confirmed"
	KindPoolCreated         = "pool_created"
	KindPoolCancelled       = "pool_cancelled"
	KindRewardDistributed   = "reward_distributed"
	KindWithdrawalRequested = "withdrawal_requested"
	KindWithdrawalApproved  = "withdrawal_approved"
	KindWithdrawalRejected  = "withdrawal_rejected"
	KindWithdrawalCompleted = "withdrawal_completed"
	KindWithdrawalFailed    = "withdrawal_failed"
)

// TaskTypeDispatch is the asynq task type carrying one notification message.
const TaskTypeDispatch = "notification:dispatch"

// Message describes a notification payload.
type Message struct {
	Kind        string `json:"kind"`
	Destination string `json:"destination"`
	Body        string `json:"body"`
}

// Notifier delivers notifications to downstream systems. Delivery is
// fire-and-forget: a failed Send must never affect the ledger state that
// triggered it.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes notifications to the structured logger. Used in dev
// mode and tests.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification", "kind", message.Kind, "destination", message.Destination, "body", message.Body)
	return nil
}

// AsynqNotifier enqueues notifications onto the dispatch queue consumed by the
// worker process. Enqueue failures are logged and swallowed.
type AsynqNotifier struct {
	client *asynq.Client
	logger *slog.Logger
}

// NewAsynqNotifier constructs a queue-backed notifier.
func NewAsynqNotifier(client *asynq.Client, logger *slog.Logger) *AsynqNotifier {
	return &AsynqNotifier{client: client, logger: logger}
}

// Send enqueues the message for asynchronous delivery.
func (n *AsynqNotifier) Send(ctx context.Context, message Message) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return err
	}
	task := asynq.NewTask(TaskTypeDispatch, payload)
	if _, err := n.client.EnqueueContext(ctx, task, asynq.Queue("notifications")); err != nil {
		if n.logger != nil {
			n.logger.Warn("enqueue notification", "kind", message.Kind, "error", err)
		}
		return nil
	}
	return nil
}
