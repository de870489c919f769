package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
)

const (
	AttendanceStreamName  = "ATTENDANCE"
	AttendanceSubjectBase = "attendance"
)

// AttendancePublisher announces authorized attendance events.
type AttendancePublisher interface {
	PublishAttendance(ctx context.Context, event domain.AttendanceEvent) error
}

// jetStreamPublisher is the part of jetstream.JetStream the producer needs.
type jetStreamPublisher interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
	CreateOrUpdateStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error)
}

// Producer publishes attendance events to NATS JetStream on
// attendance.<kind>.
type Producer struct {
	nc *nats.Conn
	js jetStreamPublisher
}

func NewProducer(natsURL string) (*Producer, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("facegate"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	return &Producer{nc: nc, js: js}, nil
}

// EnsureStream creates the attendance stream if it doesn't exist.
// Retries up to 10 times (1s apart) to ride out NATS startup.
func (p *Producer) EnsureStream(ctx context.Context) error {
	cfg := jetstream.StreamConfig{
		Name:        AttendanceStreamName,
		Subjects:    []string{AttendanceSubjectBase + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      7 * 24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Duplicates:  2 * time.Minute,
		Description: "Attendance events authorized by face verification",
	}

	const maxAttempts = 10
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		_, err := p.js.CreateOrUpdateStream(opCtx, cfg)
		cancel()
		if err == nil {
			slog.Info("ensured NATS stream", "name", cfg.Name)
			return nil
		}
		if attempt == maxAttempts {
			return fmt.Errorf("create stream %s: %w (after %d attempts)", cfg.Name, err, maxAttempts)
		}
		slog.Warn("ensure NATS stream (retrying...)", "name", cfg.Name, "attempt", attempt, "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
	return nil
}

// PublishAttendance publishes event with its ID as the JetStream message
// ID, so a retried publish is deduplicated.
func (p *Producer) PublishAttendance(ctx context.Context, event domain.AttendanceEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal attendance event: %w", err)
	}

	_, err = p.js.Publish(ctx, Subject(event.Kind), payload, jetstream.WithMsgID(event.ID.String()))
	if err != nil {
		return fmt.Errorf("publish attendance event: %w", err)
	}
	return nil
}

func (p *Producer) Ping() error {
	if p.nc == nil || !p.nc.IsConnected() {
		return fmt.Errorf("nats not connected")
	}
	return nil
}

func (p *Producer) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}

// Subject returns the subject an attendance event of kind is published on.
func Subject(kind domain.AttendanceKind) string {
	return AttendanceSubjectBase + "." + string(kind)
}

// Discard drops attendance events. It is used when NATS_URL is unset.
type Discard struct {
	Logger *slog.Logger
}

func (d Discard) PublishAttendance(ctx context.Context, event domain.AttendanceEvent) error {
	if d.Logger != nil {
		d.Logger.Debug("attendance event not published, no broker configured",
			slog.String("event_id", event.ID.String()),
			slog.String("user_id", event.UserID),
			slog.String("kind", string(event.Kind)),
		)
	}
	return nil
}

var (
	_ AttendancePublisher = (*Producer)(nil)
	_ AttendancePublisher = Discard{}
)
