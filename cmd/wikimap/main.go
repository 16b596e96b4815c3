package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wikimap/internal/api"
	"wikimap/pkg/config"
	"wikimap/pkg/db"
	"wikimap/pkg/db/maintenance"
	"wikimap/pkg/features"
	"wikimap/pkg/logging"
	"wikimap/pkg/probe"
	"wikimap/pkg/request"
	"wikimap/pkg/store"
	"wikimap/pkg/tracker"
	"wikimap/pkg/version"
	"wikimap/pkg/wikipedia"
)

// Probe location for the startup geosearch check (the Bund).
const probeLat, probeLon = 31.2400, 121.4903

var (
	configPath = flag.String("config", "configs/wikimap.yaml", "Path to the config file")
	initConfig = flag.Bool("init-config", false, "Generate default config file and exit")
)

func main() {
	flag.Parse()

	// Handle --init-config flag
	if *initConfig {
		if err := config.GenerateDefault(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate config: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Config file generated:", *configPath)
		return
	}

	if err := run(context.Background(), *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL ERROR: Application failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	appCfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cleanupLogs, err := logging.Init(&appCfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer cleanupLogs()

	slog.Info("Wikimap Started", "version", version.Version)

	dbConn, st, err := initDB(appCfg)
	if err != nil {
		return err
	}
	defer st.Close()

	pruner, err := maintenance.Start(ctx, dbConn, appCfg.DB.PruneAt, appCfg.DB.CacheTTL.Std())
	if err != nil {
		return fmt.Errorf("failed to schedule cache pruning: %w", err)
	}
	defer pruner.Stop()

	tr := tracker.New()
	reqClient := request.New(st, tr, request.OptionsFromConfig(&appCfg.Request))
	wpClient := wikipedia.NewClient(reqClient, appCfg.Wikipedia.Lang, appCfg.Wikipedia.ThumbWidth)

	// Startup Probes
	results := probe.Run(ctx, []probe.Probe{
		{Name: "Cache Database", Check: probe.Database(dbConn), Critical: true},
		{Name: "Wikipedia GeoSearch", Check: probe.GeoSearch(wpClient, probeLat, probeLon), Timeout: 10 * time.Second},
	})
	if err := probe.AnalyzeResults(results); err != nil {
		return fmt.Errorf("startup checks failed: %w", err)
	}

	maps := api.NewMapHandler(ctx, appCfg, wpClient, st)
	go func() {
		if err := config.Watch(ctx, configPath, maps.SetConfig); err != nil {
			slog.Warn("Config watcher stopped", "error", err)
		}
	}()

	// One-off searches share the geodata cache with the map sessions
	searcher := features.NewFetcher(wpClient, st, appCfg.Fetch, appCfg.Wikipedia.Lang, appCfg.Wikipedia.Limit)

	return runServer(ctx, appCfg, searcher, st, tr, maps)
}

func initDB(appCfg *config.Config) (*db.DB, store.Store, error) {
	dbConn, err := db.Init(appCfg.DB.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return dbConn, store.NewSQLiteStore(dbConn), nil
}

func runServer(ctx context.Context, cfg *config.Config, searcher api.Searcher, st store.GeodataStore, tr *tracker.Tracker, maps *api.MapHandler) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(quit)
	shutdownFunc := func() {
		select {
		case quit <- syscall.SIGTERM:
		default:
		}
	}

	srv := api.NewServer(cfg.Server.Address,
		api.NewFeaturesHandler(searcher, cfg.Fetch),
		api.NewCacheHandler(st),
		api.NewStatsHandler(tr, maps),
		maps,
		shutdownFunc,
	)
	return runServerLifecycle(ctx, srv, quit)
}

func runServerLifecycle(ctx context.Context, srv *http.Server, quit chan os.Signal) error {
	slog.Info("Starting server", "addr", srv.Addr)
	serverErrors := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()
	select {
	case <-quit:
		slog.Info("Shutting down server...")
	case <-ctx.Done():
		slog.Info("Context cancelled, shutting down...")
	case err := <-serverErrors:
		return fmt.Errorf("server failed: %w", err)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
