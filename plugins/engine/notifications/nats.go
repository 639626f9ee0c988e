package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

const (
	SubjectSamplesCollected = "labflow.samples.collected"
	SubjectReportsReady     = "labflow.reports.ready"
	SubjectSamplesRedraw    = "labflow.samples.redraw"
)

// Publisher is the subset of *nats.Conn the channel needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

var (
	_ Publisher           = (*nats.Conn)(nil)
	_ NotificationChannel = (*NATSChannel)(nil)
)

// NATSChannel publishes notifications as JSON on per-type subjects.
type NATSChannel struct {
	publisher Publisher
	log       zerolog.Logger
}

func NewNATSChannel(publisher Publisher, log zerolog.Logger) *NATSChannel {
	return &NATSChannel{publisher: publisher, log: log}
}

// Connect dials the NATS server and returns a channel over the connection.
func Connect(url string, log zerolog.Logger, opts ...nats.Option) (*NATSChannel, *nats.Conn, error) {
	opts = append([]nats.Option{
		nats.Name("labflow"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(conn *nats.Conn) {
			log.Info().Str("url", conn.ConnectedUrl()).Msg("nats reconnected")
		}),
	}, opts...)

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("connect nats: %w", err)
	}

	return NewNATSChannel(conn, log), conn, nil
}

func (c *NATSChannel) Send(_ context.Context, notification Notification) error {
	subject := SubjectFor(notification.Type)

	data, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	if err := c.publisher.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}

	c.log.Debug().
		Str("subject", subject).
		Int64("item_id", notification.ItemID).
		Msg("notification published")

	return nil
}

func SubjectFor(notificationType NotificationType) string {
	switch notificationType {
	case NotificationTypeSampleCollected:
		return SubjectSamplesCollected
	case NotificationTypeItemReportable:
		return SubjectReportsReady
	case NotificationTypeStateRejected:
		return SubjectSamplesRedraw
	default:
		return "labflow.events." + string(notificationType)
	}
}
