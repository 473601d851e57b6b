package crudevents

import (
	"context"
	"fmt"
	"io"

	"github.com/bitechdev/autoquery/pkg/common"
	"github.com/bitechdev/autoquery/pkg/config"
	"github.com/bitechdev/autoquery/pkg/crud"
)

// Setup is what FromConfig built: the executor options to apply and the
// resources to close on shutdown.
type Setup struct {
	Options []crud.Option
	Sink    crud.EventSink
	closers []io.Closer
}

// Close releases the publishers opened by FromConfig.
func (s *Setup) Close() error {
	var first error
	for _, c := range s.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// FromConfig builds the sink and publisher named by cfg. db is used to create
// the event table of a database sink and may be nil for other sinks.
func FromConfig(ctx context.Context, cfg config.EventsConfig, db common.Database) (*Setup, error) {
	setup := &Setup{}
	if !cfg.Enabled {
		return setup, nil
	}

	switch cfg.Sink {
	case "", "database":
		sink := NewDatabaseSink(cfg.TableName)
		if db != nil {
			if err := sink.EnsureTable(ctx, db); err != nil {
				return nil, err
			}
		}
		setup.Sink = sink
	case "memory":
		setup.Sink = NewMemorySink(10000)
	default:
		return nil, fmt.Errorf("unknown events sink %q", cfg.Sink)
	}
	setup.Options = append(setup.Options, crud.WithEventSink(setup.Sink))

	switch cfg.Publisher {
	case "", "none":
	case "redis":
		p, err := NewRedisPublisherFromConfig(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		setup.Options = append(setup.Options, crud.WithPublisher(p))
		setup.closers = append(setup.closers, p)
	case "nats":
		p, err := NewNATSPublisher(ctx, cfg.NATS)
		if err != nil {
			return nil, err
		}
		setup.Options = append(setup.Options, crud.WithPublisher(p))
		setup.closers = append(setup.closers, p)
	default:
		return nil, fmt.Errorf("unknown events publisher %q", cfg.Publisher)
	}
	return setup, nil
}
