package main

import (
    "context"
    "errors"
    "log"
    "net/http"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/prometheus/client_golang/prometheus/promhttp"
    redis "github.com/redis/go-redis/v9"
    "go.uber.org/zap"
    "golang.org/x/sync/errgroup"

    "pickupmtaani/internal/api"
    "pickupmtaani/internal/buildinfo"
    "pickupmtaani/internal/carrier"
    "pickupmtaani/internal/config"
    "pickupmtaani/internal/destinations"
    "pickupmtaani/internal/lease"
    "pickupmtaani/internal/logging"
    "pickupmtaani/internal/metrics"
    "pickupmtaani/internal/scheduler"
    "pickupmtaani/internal/shipping"
    "pickupmtaani/internal/store"
    "pickupmtaani/internal/tracking"
)

func main() {
    cfg, err := config.Load()
    if err != nil {
        log.Fatalf("config: %v", err)
    }
    logger, err := logging.New(cfg.Carrier.Verbose)
    if err != nil {
        log.Fatalf("logger: %v", err)
    }
    defer logger.Sync()

    if err := run(cfg, logger); err != nil {
        logger.Fatal("server error", zap.Error(err))
    }
}

func run(cfg config.Config, logger *zap.Logger) error {
    ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
    defer stop()

    metrics.RegisterDefault()

    // Store: Postgres when DATABASE_URL is set, otherwise in-memory.
    var st store.Store
    if cfg.Store.DatabaseURL == "" {
        st = store.NewMemory()
        logger.Info("using in-memory order store")
    } else {
        pg, err := store.NewPostgres(cfg.Store.DatabaseURL)
        if err != nil { return err }
        defer pg.Close()
        if cfg.Store.Migrate {
            if err := pg.Migrate(ctx); err != nil { return err }
        }
        st = pg
    }

    // Lease and destinations cache: Redis when REDIS_URL is set.
    var locker lease.Locker
    var cache destinations.Cache
    if cfg.Redis.URL != "" {
        opt, err := redis.ParseURL(cfg.Redis.URL)
        if err != nil { return err }
        rdb := redis.NewClient(opt)
        defer rdb.Close()
        locker = lease.NewRedis(rdb)
        cache = destinations.NewRedisCache(rdb, "")
        logger.Info("using redis for lease and destinations")
    } else {
        locker = lease.NewMemory()
        cache = destinations.NewMemoryCache()
    }

    client := carrier.NewClient(carrier.Config{
        APIKey:     cfg.Carrier.APIKey,
        BaseURL:    cfg.Carrier.BaseURL,
        Timeout:    cfg.Carrier.Timeout,
        RatePerSec: cfg.Carrier.RatePerSec,
        Burst:      cfg.Carrier.Burst,
        Verbose:    cfg.Carrier.Verbose,
    }, logger)
    if !client.Configured() {
        logger.Warn("carrier API key or base URL missing; carrier calls will be skipped")
    }

    rec := tracking.NewReconciler(st, client, logger)
    rec.AllowRegression = cfg.Sync.AllowRegression
    syncer := tracking.NewSyncer(st, rec, cfg.Sync.PageSize, logger)
    refresher := destinations.NewRefresher(client, cache, cfg.Sync.DestinationsTTL, logger)

    runner := scheduler.NewRunner(locker, refresher, syncer, logger)
    runner.Interval = cfg.Sync.Interval
    runner.LockTTL = cfg.Sync.LockTTL
    runner.FirstRunDelay = cfg.Sync.FirstRunDelay
    runner.RunTimeout = cfg.Sync.RunTimeout

    quoter := shipping.NewQuoter(client, cache, cfg.Carrier.SenderAgentID, cfg.Rates.Title, logger)
    quoter.Enabled = cfg.Rates.Enabled
    quoter.TTL = cfg.Rates.CacheTTL

    srvDeps := api.NewServer(st, logger)
    srvDeps.Reconciler = rec
    srvDeps.Runner = runner
    srvDeps.Shipper = shipping.NewShipper(st, client, cfg.Carrier.BusinessID, logger)
    srvDeps.Quoter = quoter
    srvDeps.Destinations = cache
    srvDeps.Agents = client
    srvDeps.AdminToken = cfg.HTTP.AdminToken
    srvDeps.StallAfter = cfg.Sync.StallAfter
    srvDeps.Config = &cfg

    srv := &http.Server{
        Addr:              cfg.HTTP.Addr,
        Handler:           srvDeps.Routes(promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})),
        ReadHeaderTimeout: 5 * time.Second,
    }

    g, gctx := errgroup.WithContext(ctx)
    g.Go(func() error {
        logger.Info("API listening", zap.String("addr", cfg.HTTP.Addr), zap.Any("build", buildinfo.Info()))
        if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
            return err
        }
        return nil
    })
    g.Go(func() error {
        runner.Enable(gctx)
        <-gctx.Done()
        sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
        defer cancel()
        if err := runner.Disable(sctx); err != nil {
            logger.Warn("clear sync lease", zap.Error(err))
        }
        return srv.Shutdown(sctx)
    })
    return g.Wait()
}
