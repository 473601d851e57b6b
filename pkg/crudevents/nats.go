package crudevents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/bitechdev/autoquery/pkg/config"
	"github.com/bitechdev/autoquery/pkg/crud"
	"github.com/bitechdev/autoquery/pkg/logger"
)

// NATSPublisher publishes committed events to JetStream.
// Subject format: {prefix}.{model}.{event_type}
type NATSPublisher struct {
	nc            *nats.Conn
	js            jetstream.JetStream
	subjectPrefix string
}

// NewNATSPublisher connects to url and makes sure a stream captures the
// prefix's subjects.
func NewNATSPublisher(ctx context.Context, cfg config.NATSConfig) (*NATSPublisher, error) {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = "autoquery.crud"
	}

	nc, err := nats.Connect(cfg.URL,
		nats.Name("autoquery-crud-events"),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	p := &NATSPublisher{nc: nc, js: js, subjectPrefix: cfg.SubjectPrefix}
	streamCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := p.ensureStream(streamCtx); err != nil {
		nc.Close()
		return nil, err
	}

	logger.Info("NATS publisher initialized (subject: %s.>, url: %s)", cfg.SubjectPrefix, cfg.URL)
	return p, nil
}

func (p *NATSPublisher) ensureStream(ctx context.Context) error {
	streamConfig := jetstream.StreamConfig{
		Name:      streamName(p.subjectPrefix),
		Subjects:  []string{p.subjectPrefix + ".>"},
		MaxAge:    7 * 24 * time.Hour,
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		Discard:   jetstream.DiscardOld,
	}
	if _, err := p.js.CreateStream(ctx, streamConfig); err != nil {
		if _, err = p.js.UpdateStream(ctx, streamConfig); err != nil {
			return fmt.Errorf("failed to create/update stream: %w", err)
		}
	}
	return nil
}

// Publish implements crud.Publisher.
func (p *NATSPublisher) Publish(ctx context.Context, ev *crud.Event) error {
	msg, err := buildMsg(p.subjectPrefix, ev)
	if err != nil {
		return err
	}
	if _, err := p.js.PublishMsg(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Close closes the connection.
func (p *NATSPublisher) Close() error {
	p.nc.Close()
	return nil
}

func buildMsg(prefix string, ev *crud.Event) (*nats.Msg, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return &nats.Msg{
		Subject: subject(prefix, ev),
		Data:    data,
		Header: nats.Header{
			"Event-ID":     []string{ev.ID},
			"Event-Type":   []string{string(ev.EventType)},
			"Request-Type": []string{ev.RequestType},
			"Ref-ID":       []string{ev.RefID},
		},
	}, nil
}

func subject(prefix string, ev *crud.Event) string {
	return fmt.Sprintf("%s.%s.%s", prefix, token(ev.Model), token(string(ev.EventType)))
}

// token makes s usable as a single subject token.
func token(s string) string {
	if s == "" {
		return "_"
	}
	return strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_").Replace(s)
}

func streamName(prefix string) string {
	return strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(prefix))
}
