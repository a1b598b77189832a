package notifier

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/meterkit/pkg/logger"
	"github.com/dmitrymomot/meterkit/pkg/subscription"
)

// Notification is the message handed to the transport once a threshold is
// crossed and its ledger key is reserved.
type Notification struct {
	UserID   uuid.UUID
	PlanID   string
	Label    string
	Deadline time.Time
	Status   subscription.Status
}

// Transport delivers notifications to the user. Implementations wrap
// email, push, webhooks. A returned error marks the ledger entry failed
// and schedules a retry.
type Transport interface {
	Send(ctx context.Context, n Notification) error
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, n Notification) error

func (f TransportFunc) Send(ctx context.Context, n Notification) error {
	return f(ctx, n)
}

type logTransport struct {
	log *slog.Logger
}

// NewLogTransport returns a Transport that only logs. Useful as a default
// until a real delivery channel is wired.
func NewLogTransport(log *slog.Logger) Transport {
	if log == nil {
		log = slog.Default()
	}
	return &logTransport{log: log}
}

func (t *logTransport) Send(ctx context.Context, n Notification) error {
	t.log.LogAttrs(ctx, slog.LevelInfo, "subscription notification",
		logger.UserID(n.UserID),
		logger.Threshold(n.Label),
		slog.String("plan_id", n.PlanID),
		slog.Time("deadline", n.Deadline),
		slog.String("status", string(n.Status)),
	)
	return nil
}
