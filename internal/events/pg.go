package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"studio/internal/infra"
	"studio/internal/sqlinline"
)

// Channel is the Postgres NOTIFY channel carrying request events.
const Channel = "request_events"

// NewOrigin returns an identifier for this process's events.
func NewOrigin(service string) string {
	return service + "-" + uuid.NewString()[:8]
}

// Notifier publishes events through pg_notify so other processes see them.
type Notifier struct {
	sql    infra.SQLExecutor
	origin string
}

func NewNotifier(sql infra.SQLExecutor, origin string) *Notifier {
	return &Notifier{sql: sql, origin: origin}
}

func (n *Notifier) Publish(ctx context.Context, ev Event) error {
	if ev.Origin == "" {
		ev.Origin = n.origin
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := n.sql.Exec(ctx, sqlinline.QNotifyRequestEvent, string(payload)); err != nil {
		return fmt.Errorf("notify request event: %w", err)
	}
	return nil
}

// Listener relays NOTIFY payloads from other processes into a local publisher.
type Listener struct {
	dsn    string
	origin string
	target Publisher
	logger infra.Logger
}

func NewListener(dsn, origin string, target Publisher, logger infra.Logger) *Listener {
	return &Listener{dsn: dsn, origin: origin, target: target, logger: logger}
}

// Run listens until ctx is cancelled.
func (l *Listener) Run(ctx context.Context) error {
	listener := pq.NewListener(l.dsn, time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			l.logger.Warn().Err(err).Int("event", int(ev)).Msg("request event listener")
		}
	})
	defer listener.Close()

	if err := listener.Listen(Channel); err != nil {
		return fmt.Errorf("listen %s: %w", Channel, err)
	}
	l.logger.Info().Str("channel", Channel).Msg("listening for request events")

	ping := time.NewTicker(90 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-listener.Notify:
			// nil after a reconnect
			if n == nil {
				continue
			}
			l.relay(ctx, n.Extra)
		case <-ping.C:
			if err := listener.Ping(); err != nil {
				l.logger.Warn().Err(err).Msg("request event listener ping")
			}
		}
	}
}

func (l *Listener) relay(ctx context.Context, payload string) {
	ev, ok := decode(payload)
	if !ok {
		l.logger.Warn().Str("payload", payload).Msg("discarding malformed request event")
		return
	}
	if ev.Origin != "" && ev.Origin == l.origin {
		return
	}
	if err := l.target.Publish(ctx, ev); err != nil {
		l.logger.Warn().Err(err).Str("request_id", ev.RequestID).Msg("relay request event")
	}
}

func decode(payload string) (Event, bool) {
	var ev Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return Event{}, false
	}
	if ev.UserID == "" || ev.RequestID == "" {
		return Event{}, false
	}
	return ev, true
}
