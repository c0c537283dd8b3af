package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/reward-rail/reward_rail/internal/notification"
)

// Server consumes background tasks enqueued by the API process.
type Server struct {
	srv    *asynq.Server
	mux    *asynq.ServeMux
	logger *slog.Logger
}

// NewServer builds the asynq consumer. The notifications queue is weighted
// below default so ledger-adjacent tasks are never starved by fan-out.
func NewServer(redisOpt asynq.RedisConnOpt, concurrency int, logger *slog.Logger) *Server {
	if concurrency <= 0 {
		concurrency = 10
	}
	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			"default":       6,
			"notifications": 3,
		},
	})

	s := &Server{srv: srv, mux: asynq.NewServeMux(), logger: logger}
	s.mux.HandleFunc(notification.TaskTypeDispatch, s.handleDispatch)
	return s
}

// Run blocks until the server stops.
func (s *Server) Run() error {
	return s.srv.Run(s.mux)
}

// Shutdown drains in-flight tasks and stops the server.
func (s *Server) Shutdown() {
	s.srv.Shutdown()
}

func (s *Server) handleDispatch(_ context.Context, t *asynq.Task) error {
	var msg notification.Message
	if err := json.Unmarshal(t.Payload(), &msg); err != nil {
		return fmt.Errorf("decode notification payload: %v: %w", err, asynq.SkipRetry)
	}

	// Delivery channels (email, push) are out of scope; the dispatcher
	// records the notification so a channel adapter can be slotted in later.
	s.logger.Info("notification dispatched",
		slog.String("kind", msg.Kind),
		slog.String("destination", msg.Destination),
		slog.String("body", msg.Body),
	)
	return nil
}
