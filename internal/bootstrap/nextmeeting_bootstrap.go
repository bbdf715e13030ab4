// Package bootstrap wires configuration into the running daemon.
package bootstrap

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"nextmeeting_server/adapter/in/socket"
	"nextmeeting_server/adapter/in/worker"
	"nextmeeting_server/adapter/out/notify"
	"nextmeeting_server/adapter/out/provider/caldav"
	"nextmeeting_server/adapter/out/provider/google"
	"nextmeeting_server/config"
	"nextmeeting_server/core/port/out"
	"nextmeeting_server/core/service/notification"
	"nextmeeting_server/core/service/state"
	syncservice "nextmeeting_server/core/service/sync"
	"nextmeeting_server/infra/supervision"
	"nextmeeting_server/pkg/cache"
)

// appName labels desktop notifications and logs.
const appName = "nextmeeting"

// Daemon is the assembled server.
type Daemon struct {
	cfg      *config.Config
	log      zerolog.Logger
	state    *state.ServerState
	engine   *notification.Engine
	syncSvc  *syncservice.Service
	sched    *worker.Scheduler
	server   *socket.Server
	pidFile  *supervision.PidFile
	signals  *supervision.SignalWatcher
	shutdown context.CancelFunc
	ctx      context.Context
}

// NewDaemon builds the daemon: the PID file first, then state, the
// notification engine, providers, the sync service, the scheduler, the socket
// server, and last the signal watcher.
func NewDaemon(cfg *config.Config, log zerolog.Logger) (*Daemon, error) {
	pidFile, err := supervision.CreatePidFile(cfg.PidFilePath, log)
	if err != nil {
		return nil, err
	}

	location := time.Local
	if cfg.Timezone != "" {
		if loc, err := time.LoadLocation(cfg.Timezone); err == nil {
			location = loc
		} else {
			log.Warn().Str("timezone", cfg.Timezone).Msg("unknown timezone, using system local")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())

	serverState := state.New()

	notifier := notify.NewDesktopNotifier(appName, "", log)
	engine := notification.NewEngine(notification.Config{
		LeadMinutes:   cfg.NotifyMinutes,
		Timeout:       10 * time.Second,
		Enabled:       cfg.NotifyEnabled,
		MaxSentHashes: 1000,
	}, notifier, log)
	serverState.SetSnoozeView(engine)

	providers := buildProviders(cfg, log)
	if len(providers) == 0 {
		log.Warn().Msg("no calendar providers configured; daemon will serve empty data")
	}

	eventCache := cache.New(cfg.CacheTTL)
	syncSvc := syncservice.NewService(syncservice.Config{
		WindowPast:      cfg.WindowPast,
		WindowFuture:    cfg.WindowFuture,
		MaxResults:      cfg.MaxResults,
		ExpandRecurring: cfg.ExpandRecurring,
	}, providers, eventCache, serverState, engine, location, log)

	sched := worker.NewScheduler(worker.Config{
		SyncInterval:           cfg.SyncInterval,
		JitterFraction:         cfg.JitterFraction,
		RefreshCooldown:        cfg.RefreshCooldown,
		InitialBackoff:         cfg.InitialBackoff,
		MaxBackoff:             cfg.MaxBackoff,
		BackoffMultiplier:      cfg.BackoffMultiplier,
		MaxConsecutiveFailures: cfg.MaxConsecutiveFailures,
	}, log)
	serverState.SetSchedulerHandle(sched.Handle())

	handler := socket.NewRequestHandler(serverState, engine, syncSvc.Mutate, cancel, log)
	server, err := socket.NewServer(socket.Config{
		Path:           cfg.SocketPath,
		MaxConnections: cfg.MaxConnections,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
	}, handler, log)
	if err != nil {
		cancel()
		pidFile.Remove()
		return nil, err
	}

	return &Daemon{
		cfg:      cfg,
		log:      log,
		state:    serverState,
		engine:   engine,
		syncSvc:  syncSvc,
		sched:    sched,
		server:   server,
		pidFile:  pidFile,
		signals:  supervision.NewSignalWatcher(log),
		shutdown: cancel,
		ctx:      ctx,
	}, nil
}

func buildProviders(cfg *config.Config, log zerolog.Logger) []out.CalendarProvider {
	var providers []out.CalendarProvider

	if cfg.HasGoogle() {
		oauthConfig := google.OAuthConfig(google.OAuthCredentials{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
		})
		store := google.NewTokenStore(google.TokenFilePath(cfg.GoogleAccount), oauthConfig, log)
		providers = append(providers, google.NewProvider(cfg.GoogleAccount, store, log))
	}

	if cfg.HasCalDAV() {
		provider, err := caldav.NewProvider(caldav.Config{
			URL:           cfg.CalDAVURL,
			Username:      cfg.CalDAVUsername,
			Password:      cfg.CalDAVPassword,
			UserEmail:     cfg.CalDAVUserEmail,
			CalendarPaths: cfg.CalDAVCalendars,
		}, log)
		if err != nil {
			log.Error().Err(err).Msg("caldav provider misconfigured, skipping")
		} else {
			providers = append(providers, provider)
		}
	}

	return providers
}

// Run serves until a termination signal, a client shutdown request, or a
// fatal server error. Shutdown unwinds in reverse construction order.
func (d *Daemon) Run() error {
	defer d.cleanup()

	go d.sched.Run(d.ctx, d.syncSvc.Sync)

	serverDone := make(chan error, 1)
	go func() { serverDone <- d.server.Run(d.ctx) }()

	d.log.Info().Str("socket", d.server.Path()).Msg("daemon running")

	shutdownCh := d.signals.Shutdown()
	for {
		select {
		case <-shutdownCh:
			shutdownCh = nil // closed channel; observe the edge only once
			d.log.Info().Msg("shutting down on signal")
			d.shutdown()
		case <-d.signals.Reload():
			// Reload refreshes provider credentials and forces a sync; the
			// environment-derived config itself is immutable per process.
			d.log.Info().Msg("reload: refreshing provider auth and syncing")
			d.syncSvc.RefreshAuth(d.ctx)
			if err := d.sched.Handle().Refresh(true); err != nil {
				d.log.Warn().Err(err).Msg("reload refresh failed")
			}
		case err := <-serverDone:
			d.shutdown()
			return err
		case <-d.ctx.Done():
			return <-serverDone
		}
	}
}

func (d *Daemon) cleanup() {
	d.shutdown()
	d.signals.Stop()
	d.pidFile.Remove()
	d.log.Info().Msg("daemon stopped")
}
