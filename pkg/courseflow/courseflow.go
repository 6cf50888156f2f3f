package courseflow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/redis/go-redis/v9"

	"github.com/RealZimboGuy/courseflow/internal/channels"
	"github.com/RealZimboGuy/courseflow/internal/config"
	"github.com/RealZimboGuy/courseflow/internal/controllers"
	"github.com/RealZimboGuy/courseflow/internal/domain"
	"github.com/RealZimboGuy/courseflow/internal/engine"
	"github.com/RealZimboGuy/courseflow/internal/events"
	"github.com/RealZimboGuy/courseflow/internal/migrations"
	"github.com/RealZimboGuy/courseflow/internal/repository"
	"github.com/RealZimboGuy/courseflow/internal/web"
	"github.com/RealZimboGuy/courseflow/pkg/courseflow/core"
)

// App holds every wired component of one courseflow process.
type App struct {
	DB         *sql.DB
	Repos      engine.Repositories
	Bus        *events.Bus
	Dispatcher *channels.Dispatcher
	Planner    *engine.Planner
	Control    *engine.Control
	Scheduler  *engine.Scheduler
	Clock      core.Clock

	closers []func() error
}

// DatabaseSettings returns the configured database type, the URL migrations
// run against and the embedded migration folder for that dialect.
func DatabaseSettings() (databaseType, dbURL, dialect string, err error) {
	databaseType = config.GetSystemSettingString(config.DATABASE_TYPE)
	switch databaseType {
	case config.DATABASE_TYPE_POSTGRES:
		dbURL = config.GetSystemSettingString(config.DATABASE_URL)
		if dbURL == "" {
			return "", "", "", errors.New(config.DATABASE_URL + " must be set when using the POSTGRES database type")
		}
		return databaseType, dbURL, "postgres", nil
	case config.DATABASE_TYPE_MYSQL:
		dbURL = config.GetSystemSettingString(config.DATABASE_URL)
		if !strings.HasPrefix(dbURL, "mysql://") {
			return "", "", "", errors.New(config.DATABASE_URL + " must start with 'mysql://' for MySQL")
		}
		if !strings.Contains(dbURL, "parseTime=true") {
			return "", "", "", errors.New(config.DATABASE_URL + " must contain 'parseTime=true' for MySQL")
		}
		return databaseType, dbURL, "mysql", nil
	case config.DATABASE_TYPE_SQLLITE:
		fileName := config.GetSystemSettingString(config.DATABASE_SQLLITE_FILE_NAME)
		if fileName == "" {
			return "", "", "", errors.New(config.DATABASE_SQLLITE_FILE_NAME + " must be set")
		}
		return databaseType, "sqlite3://" + fileName, "sqlite3", nil
	}
	return "", "", "", fmt.Errorf("%s must be set to one of POSTGRES, MYSQL, SQLLITE, got %q", config.DATABASE_TYPE, databaseType)
}

// Migrate applies (up) or rolls back (down) the embedded schema.
func Migrate(up bool) error {
	_, dbURL, dialect, err := DatabaseSettings()
	if err != nil {
		return err
	}
	if up {
		return migrations.Up(dialect, dbURL)
	}
	return migrations.Down(dialect, dbURL)
}

// New migrates and opens the database and wires the engine. The caller owns
// the returned App and must Close it.
func New(ctx context.Context) (*App, error) {
	databaseType, dbURL, dialect, err := DatabaseSettings()
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "Running migrations", "database_type", databaseType)
	if err := migrations.Up(dialect, dbURL); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	db, err := repository.Open(databaseType, dbURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	app := &App{DB: db, Clock: core.NewRealClock()}
	app.closers = append(app.closers, db.Close)

	app.Repos = engine.Repositories{
		Actions:       repository.NewFlowActionRepository(db),
		Executions:    repository.NewExecutionRepository(db),
		Subjects:      repository.NewSubjectRepository(db),
		Organizations: repository.NewOrganizationRepository(db),
		Events:        repository.NewExecutionEventRepository(db),
		Workers:       repository.NewWorkerRepository(db),
	}

	marker, err := app.newMarker(ctx)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Dispatcher = NewDispatcher(marker, app.Clock, slog.Default())

	if err := app.newBus(); err != nil {
		app.Close()
		return nil, err
	}

	zone, err := time.LoadLocation(config.GetSystemSettingString(config.DEFAULT_TIMEZONE))
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("%s: %w", config.DEFAULT_TIMEZONE, err)
	}
	alerter := engine.NewAlerter(app.Bus, slog.Default())
	retry := engine.NewRetryManager(app.Repos.Executions, app.Repos.Events, alerter, engine.BackoffFromSettings(), app.Clock)
	app.Planner = engine.NewPlanner(app.Repos, app.Clock, zone, slog.Default())
	app.Control = engine.NewControl(app.Repos, app.Planner, app.Clock, slog.Default())
	app.Scheduler = engine.NewScheduler(app.Repos, app.Dispatcher, retry, app.Clock, engine.SchedulerConfigFromSettings(), slog.Default())
	app.Planner.OnDue(app.Scheduler.Wakeup)
	return app, nil
}

func (a *App) newMarker(ctx context.Context) (channels.Marker, error) {
	redisURL := config.GetSystemSettingString(config.REDIS_URL)
	if redisURL == "" {
		slog.InfoContext(ctx, "Using the database as idempotency marker store")
		return repository.NewMarkerRepository(a.DB, a.Clock), nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", config.REDIS_URL, err)
	}
	client := redis.NewClient(opts)
	a.closers = append(a.closers, client.Close)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	slog.InfoContext(ctx, "Using redis as idempotency marker store", "addr", opts.Addr)
	return channels.NewRedisMarker(client, config.GetSystemSettingDuration(config.IDEMPOTENCY_TTL)), nil
}

func (a *App) newBus() error {
	brokers := config.GetSystemSettingList(config.KAFKA_BROKERS)
	if len(brokers) == 0 {
		a.Bus = events.NewGoChannelBus(slog.Default())
	} else {
		bus, err := events.NewKafkaBus(brokers, config.GetSystemSettingString(config.KAFKA_CONSUMER_GROUP), slog.Default())
		if err != nil {
			return err
		}
		a.Bus = bus
	}
	a.closers = append(a.closers, a.Bus.Close)
	return nil
}

// NewDispatcher registers an adapter for every channel against the configured
// delivery, document and service endpoints.
func NewDispatcher(marker channels.Marker, clock core.Clock, logger *slog.Logger) *channels.Dispatcher {
	client := channels.NewServiceClient(&http.Client{},
		channels.WithDeliveryURL(config.GetSystemSettingString(config.DELIVERY_URL)),
		channels.WithDocumentURL(config.GetSystemSettingString(config.DOCUMENT_URL)),
		channels.WithServiceURL(config.GetSystemSettingString(config.SERVICE_URL)),
		channels.WithAPIKey(config.GetSystemSettingString(config.SERVICE_API_KEY)),
	)
	channelTimeout := config.GetSystemSettingDuration(config.CHANNEL_TIMEOUT)

	d := channels.NewDispatcher(marker, logger)
	messages := channels.NewMessageAdapter(client)
	for _, ch := range []domain.ChannelType{
		domain.ChannelEmail, domain.ChannelNotification, domain.ChannelAssignment, domain.ChannelReminder,
		domain.ChannelFeedback, domain.ChannelMeeting, domain.ChannelResource,
	} {
		d.Register(ch, messages, channelTimeout)
	}

	signer := channels.NewSigner(config.GetSystemSettingString(config.WEBHOOK_SECRET))
	d.Register(domain.ChannelWebhook, channels.NewWebhookAdapter(nil, signer, clock), config.GetSystemSettingDuration(config.WEBHOOK_TIMEOUT))

	documents := channels.NewDocumentAdapter(client)
	documentTimeout := config.GetSystemSettingDuration(config.DOCUMENT_TIMEOUT)
	d.Register(domain.ChannelDocument, documents, documentTimeout)
	d.Register(domain.ChannelCertificate, documents, documentTimeout)

	services := channels.NewServiceAdapter(client)
	for _, ch := range []domain.ChannelType{domain.ChannelPayment, domain.ChannelEnrollment, domain.ChannelCompletion} {
		d.Register(ch, services, channelTimeout)
	}
	return d
}

// Handler returns the HTTP API and the operator dashboard.
func (a *App) Handler() http.Handler {
	apiKey := config.GetSystemSettingString(config.API_KEY)
	mux := controllers.NewRouter(a.Control, a.Control, a.Control, a.Control, a.Bus, controllers.NewAuthController(apiKey))
	sessionTTL := time.Duration(config.GetSystemSettingInteger(config.WEB_SESSION_EXPIRY_HOURS)) * time.Hour
	web.NewWebController(a.Control, web.NewSessionAuth(apiKey, sessionTTL)).RegisterRoutes(mux)
	return mux
}

// Serve runs the event listener, the pending sweep, the scheduler and the
// HTTP server until ctx is cancelled, then shuts the server down.
func (a *App) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if config.GetSystemSettingString(config.API_KEY) == "" {
		slog.WarnContext(ctx, config.API_KEY+" is not set, the HTTP API is unauthenticated")
	}
	if _, err := engine.StartResolveSweep(ctx, a.Planner, config.GetSystemSettingString(config.ENGINE_RESOLVE_SCHEDULE), slog.Default()); err != nil {
		return fmt.Errorf("resolve sweep: %w", err)
	}
	go func() {
		if err := a.Bus.Listen(ctx, a.Planner.HandleEvent); err != nil {
			slog.ErrorContext(ctx, "Lifecycle listener stopped", "error", err)
			cancel()
		}
	}()
	schedulerDone := make(chan struct{})
	go func() {
		defer close(schedulerDone)
		a.Scheduler.Run(ctx)
	}()

	srv := &http.Server{
		Addr:              ":" + config.GetSystemSettingString(config.ENGINE_SERVER_WEB_PORT),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.InfoContext(ctx, "Starting HTTP server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
		slog.ErrorContext(ctx, "HTTP server failed", "error", serveErr)
		cancel()
	}
	shutdownCtx, stop := context.WithTimeout(context.Background(), 15*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil && serveErr == nil {
		serveErr = err
	}
	<-schedulerDone
	slog.Info("Courseflow stopped")
	return serveErr
}

// TickResult reports what one Tick did.
type TickResult struct {
	Repaired int
	Resolved int
	Claimed  int
}

// Tick runs one maintenance and dispatch pass without the background loops.
func (a *App) Tick(ctx context.Context) (TickResult, error) {
	var res TickResult
	var err error
	if res.Repaired, err = a.Scheduler.RepairStale(ctx); err != nil {
		return res, fmt.Errorf("repair: %w", err)
	}
	if res.Resolved, err = a.Planner.ResolvePending(ctx); err != nil {
		return res, fmt.Errorf("resolve pending: %w", err)
	}
	for {
		n, err := a.Scheduler.RunOnce(ctx)
		if err != nil {
			return res, fmt.Errorf("dispatch: %w", err)
		}
		if n == 0 {
			return res, nil
		}
		res.Claimed += n
	}
}

// Close releases everything New opened, newest first.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// SetupLogger installs a tint handler as the default slog logger.
func SetupLogger(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:      lvl,
			TimeFormat: time.RFC3339Nano,
		}),
	))
}
