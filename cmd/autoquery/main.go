// Command autoquery runs a small customer workload against the configured
// database: it creates, patches and deletes rows through the crud executor,
// queries them by naming convention, and optionally replays the recorded
// events into a fresh database.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/bitechdev/autoquery/pkg/autoquery"
	"github.com/bitechdev/autoquery/pkg/cache"
	"github.com/bitechdev/autoquery/pkg/common"
	"github.com/bitechdev/autoquery/pkg/config"
	"github.com/bitechdev/autoquery/pkg/crud"
	"github.com/bitechdev/autoquery/pkg/crudevents"
	"github.com/bitechdev/autoquery/pkg/dbmanager"
	"github.com/bitechdev/autoquery/pkg/errortracking"
	"github.com/bitechdev/autoquery/pkg/logger"
	"github.com/bitechdev/autoquery/pkg/metrics"
	"github.com/bitechdev/autoquery/pkg/script"
	"github.com/bitechdev/autoquery/pkg/tracing"
)

func main() {
	var configFile string
	var replay bool

	rootCmd := &cobra.Command{
		Use:   "autoquery",
		Short: "Run the customer demo workload through the query and crud engines",
		Long: `autoquery creates, patches and deletes customers through the crud executor,
queries them by naming convention and prints every response as JSON.
With --replay the recorded events are re-executed against a fresh database.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := []config.Option{}
			if configFile != "" {
				opts = append(opts, config.WithConfigFile(configFile))
			}
			cfgMgr := config.NewManagerWithOptions(opts...)
			if err := cfgMgr.Load(); err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			cfg, err := cfgMgr.GetConfig()
			if err != nil {
				return fmt.Errorf("read configuration: %w", err)
			}

			logger.Init(cfg.Logger.Dev)
			if cfg.Logger.Path != "" {
				logger.UpdateLoggerPath(cfg.Logger.Path, cfg.Logger.Dev)
			}
			if err := run(cmd.Context(), cfg, replay); err != nil {
				logger.Error("autoquery failed: %v", err)
				return err
			}
			return nil
		},
	}
	rootCmd.Flags().StringVarP(&configFile, "config", "c", "", "path to a config file (yaml, json or toml)")
	rootCmd.Flags().BoolVar(&replay, "replay", false, "replay the recorded events into a fresh in-memory database")

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, replay bool) error {
	tracker, err := errortracking.NewProviderFromConfig(cfg.ErrorTracking)
	if err != nil {
		return fmt.Errorf("error tracking: %w", err)
	}
	logger.InitErrorTracking(tracker)
	defer logger.CloseErrorTracking()

	shutdown, err := tracing.InitTracer(tracing.FromConfig(cfg.Tracing))
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	if cfg.Metrics.Enabled {
		metrics.SetProvider(metrics.NewProvider(metrics.FromConfig(cfg.Metrics)))
	}

	if len(cfg.DBManager.Connections) == 0 {
		cfg.DBManager.Connections = map[string]config.DBConnectionConfig{
			"demo": {Type: "sqlite", FilePath: "file:autoquery-demo?mode=memory&cache=shared"},
		}
	}
	mgr, err := dbmanager.NewManager(cfg.DBManager)
	if err != nil {
		return err
	}
	defer mgr.Close()
	mgr.StartHealthChecks(time.Minute)

	db, err := mgr.Database(ctx, "")
	if err != nil {
		return err
	}
	if err := createSchema(ctx, db); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	events, err := crudevents.FromConfig(ctx, cfg.Events, db)
	if err != nil {
		return err
	}
	defer events.Close()

	aggregates, err := cache.FromConfig(ctx, cfg.Cache)
	if err != nil {
		return err
	}
	if aggregates != nil {
		defer aggregates.Close()
	}

	opts := autoquery.OptionsFromConfig(cfg.AutoQuery)
	opts.Connections = mgr
	opts.AggregateCache = aggregates
	engine := autoquery.NewEngine(db, opts)
	registerRequests(engine)
	exec := crud.NewExecutor(engine, events.Options...)

	ctx = script.WithRequestContext(ctx, &script.RequestContext{UserAuthID: "1", UserAuthName: "demo"})
	if err := workload(ctx, exec); err != nil {
		return err
	}

	resp, err := autoquery.Execute[Customer](ctx, engine, &QueryCustomers{
		QueryBase: autoquery.QueryBase{OrderBy: "Name", Include: "Total, Sum(Credit)"},
	}, map[string]string{"CityStartsWith": "Ber"})
	if err != nil {
		return err
	}
	if err := printJSON("customers in Ber*", resp); err != nil {
		return err
	}

	if replay {
		sink, ok := events.Sink.(*crudevents.DatabaseSink)
		if !ok {
			return fmt.Errorf("replay needs the database events sink")
		}
		return replayInto(ctx, db, sink)
	}
	return nil
}

func workload(ctx context.Context, exec *crud.Executor) error {
	for _, c := range []CreateCustomer{
		{Name: "Ada", City: "Berlin", Credit: 120},
		{Name: "Grace", City: "Bern", Credit: 80},
		{Name: "Linus", City: "Helsinki", Credit: 50},
	} {
		res, err := crud.Create[Customer](ctx, exec, &c)
		if err != nil {
			return err
		}
		logger.Info("Created customer %v", res.ID)
	}

	credit := 200.0
	if _, err := crud.Patch[Customer](ctx, exec, &PatchCustomer{Id: 1, Credit: &credit, Version: 1}); err != nil {
		return err
	}
	// A stale version is rejected
	if _, err := crud.Patch[Customer](ctx, exec, &PatchCustomer{Id: 1, Credit: &credit, Version: 1}); err != nil {
		logger.Info("Stale patch rejected: %v", err)
	}
	_, err := crud.Delete[Customer](ctx, exec, &DeleteCustomer{Id: 3})
	return err
}

func replayInto(ctx context.Context, source common.Database, sink *crudevents.DatabaseSink) error {
	recorded, err := sink.List(ctx, source, crudevents.Filter{})
	if err != nil {
		return err
	}

	target, err := dbmanager.NewManager(config.DBManagerConfig{Connections: map[string]config.DBConnectionConfig{
		"replay": {Type: "sqlite", FilePath: "file:autoquery-replay?mode=memory&cache=shared"},
	}})
	if err != nil {
		return err
	}
	defer target.Close()
	db, err := target.Database(ctx, "replay")
	if err != nil {
		return err
	}
	if err := createSchema(ctx, db); err != nil {
		return err
	}

	engine := autoquery.NewEngine(db, autoquery.DefaultOptions())
	registerRequests(engine)
	exec := crud.NewExecutor(engine)
	registry, err := replayRegistry()
	if err != nil {
		return err
	}
	for _, ev := range recorded {
		if _, err := crud.Replay(ctx, exec, registry, ev); err != nil {
			return fmt.Errorf("replay %s: %w", ev.ID, err)
		}
	}

	resp, err := autoquery.Execute[Customer](ctx, engine, &QueryCustomers{}, nil)
	if err != nil {
		return err
	}
	return printJSON(fmt.Sprintf("replayed %d events", len(recorded)), resp)
}

func printJSON(title string, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Printf("%s:\n%s\n", title, out)
	return nil
}
