package app

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/shopspring/decimal"

	msql "toggl-earnings/internal/adapter/mysql"
	"toggl-earnings/internal/adapter/resilient"
	tg "toggl-earnings/internal/adapter/toggl"
	"toggl-earnings/internal/broadcast"
	"toggl-earnings/internal/config"
	"toggl-earnings/internal/metrics"
	"toggl-earnings/internal/migrate"
	"toggl-earnings/internal/usecase"
)

// App wires adapters and use cases.
type App struct {
	log      *slog.Logger
	cfg      config.Config
	registry *prometheus.Registry
	earnings *usecase.EarningsUseCase
	poller   *usecase.Poller
	sink     *msql.Client
}

// New builds the application. version ends up in the outbound User-Agent.
func New(ctx context.Context, log *slog.Logger, cfg config.Config, version string) (*App, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	httpClient := resilient.NewClient(log,
		resilient.WithRateLimit(cfg.Toggl.RateLimitCalls, cfg.Toggl.RateLimitEvery),
		resilient.WithTimeout(cfg.Toggl.RequestTimeout),
		resilient.WithUserAgent("toggl-earnings v"+version),
		resilient.WithMetrics(m),
	)
	user, password := cfg.Credential()
	togglClient := tg.NewClient(cfg.Toggl.BaseURL, tg.BasicCredential(user, password), httpClient, log,
		tg.WithTimeout(cfg.Toggl.RequestTimeout),
		tg.WithCache(cfg.Toggl.CacheSize, cfg.Toggl.CacheTTL),
	)

	earnings := &usecase.EarningsUseCase{Log: log, Toggl: togglClient, Location: loc}
	poller := &usecase.Poller{
		Log:           log,
		Earnings:      earnings,
		Hub:           broadcast.New(log, m, 5*time.Second),
		Metrics:       m,
		Location:      loc,
		Interval:      cfg.Poll.Interval,
		MaxErrorDelay: cfg.Poll.MaxErrorDelay,
	}

	a := &App{log: log, cfg: cfg, registry: registry, earnings: earnings, poller: poller}

	if cfg.MySQL.DSN != "" {
		sink, err := msql.NewClient(ctx, cfg.MySQL.DSN, log)
		if err != nil {
			return nil, err
		}
		if err := migrate.Run(ctx, sink.DB(), log); err != nil {
			sink.Close()
			return nil, err
		}
		a.sink = sink
		poller.Sink = sink
		log.Info("snapshot sink enabled")
	}
	return a, nil
}

// ComputeOnce returns the current month's total without starting the poller.
func (a *App) ComputeOnce(ctx context.Context) (decimal.Decimal, error) {
	return a.earnings.ComputeMonthlyEarnings(ctx, time.Now())
}

// Run serves subscribers and polls until ctx is done or the listener fails.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	srv := a.HTTPServer(a.cfg.Addr())
	// Request contexts derive from ctx so websocket handlers end on shutdown.
	srv.BaseContext = func(net.Listener) context.Context { return ctx }

	serveErr := make(chan error, 1)
	go func() {
		a.log.Info("http server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	pollDone := make(chan struct{})
	go func() {
		defer close(pollDone)
		_ = a.poller.Run(ctx)
	}()

	var err error
	select {
	case <-ctx.Done():
		a.log.Info("shutting down")
	case err = <-serveErr:
		a.log.Error("http server failed", slog.String("error", err.Error()))
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		a.log.Error("http server shutdown", slog.String("error", serr.Error()))
	}
	<-pollDone
	return err
}

// Close releases the snapshot sink if one is open.
func (a *App) Close() error {
	if a.sink != nil {
		return a.sink.Close()
	}
	return nil
}
