package bootstrap

import (
	"net/http"

	"github.com/go-authgate/oauth2core/internal/config"
	"github.com/go-authgate/oauth2core/internal/metrics"
	"github.com/go-authgate/oauth2core/internal/services"
	"github.com/go-authgate/oauth2core/internal/store"
	"github.com/go-authgate/oauth2core/internal/token"

	"github.com/appleboy/graceful"
	"github.com/gin-gonic/gin"
)

// Application holds every initialized component of a running
// oauth2core process. Run builds one, wires it together, and blocks
// until graceful shutdown completes.
type Application struct {
	Config *config.Config

	DB                 *store.Store
	Keys               *cryptoKeys
	Minter             token.Minter
	RefreshVerifier    token.RefreshVerifier
	MetricsRecorder    metrics.Recorder
	MetricsCacheWrap   *metrics.CacheWrapper
	MetricsCacheCloser func() error
	AuditService       *services.AuditService
	TokenRateLimit     gin.HandlerFunc

	Handlers handlerSet
	Router   *gin.Engine
	Server   *http.Server
}

// Run initializes every component named in spec.md and serves HTTP
// until the process receives a shutdown signal.
func Run(cfg *config.Config) error {
	validateAllConfiguration(cfg)

	app := &Application{Config: cfg}

	if err := app.initializeInfrastructure(); err != nil {
		return err
	}
	if err := app.initializeCore(); err != nil {
		return err
	}
	app.initializeHTTPLayer()
	app.startWithGracefulShutdown()

	return nil
}

// initializeInfrastructure wires the database, crypto keys, and
// metrics recorder/cache — the components every other phase depends
// on but which depend on nothing beyond config.
func (app *Application) initializeInfrastructure() error {
	db, err := initializeDatabase(app.Config)
	if err != nil {
		return err
	}
	app.DB = db

	keys, err := initializeCrypto(app.Config)
	if err != nil {
		return err
	}
	app.Keys = keys

	app.MetricsRecorder = initializeMetrics(app.Config)

	metricsCache, closer, err := initializeMetricsCache(app.Config)
	if err != nil {
		return err
	}
	app.MetricsCacheCloser = closer
	app.MetricsCacheWrap = metrics.NewCacheWrapper(app.DB, metricsCache)

	return nil
}

// initializeCore wires the token minter (C6), audit service, and rate
// limiter — the OAuth-domain collaborators of the HTTP handlers.
func (app *Application) initializeCore() error {
	minter, verifier, err := initializeMinter(app.Config, app.DB)
	if err != nil {
		return err
	}
	app.Minter = minter
	app.RefreshVerifier = verifier

	app.AuditService = services.NewAuditService(app.DB, app.Config.EnableAuditLogging, app.Config.AuditBufferSize)

	rateLimit, err := initializeRateLimiter(app.Config)
	if err != nil {
		return err
	}
	app.TokenRateLimit = rateLimit

	return nil
}

// initializeHTTPLayer wires the authorize/token handlers (C4, C5) into
// the router and builds the HTTP server that serves them.
func (app *Application) initializeHTTPLayer() {
	app.Handlers = initializeHandlers(
		app.Config,
		app.DB,
		app.Keys,
		app.Minter,
		app.RefreshVerifier,
		app.AuditService,
		app.MetricsRecorder,
	)

	app.Router = setupRouter(app.Config, app.DB, app.Handlers, app.MetricsRecorder, app.TokenRateLimit)
	app.Server = createHTTPServer(app.Config, app.Router)
}

// startWithGracefulShutdown registers every running/shutdown job and
// blocks until the graceful manager reports completion.
func (app *Application) startWithGracefulShutdown() {
	m := graceful.NewManager()

	addServerRunningJob(m, app.Server)
	addServerShutdownJob(m, app.Server)
	addGrantSweepJob(m, app.Config, app.DB)
	addMetricsGaugeUpdateJob(m, app.Config, app.DB, app.MetricsRecorder, app.MetricsCacheWrap)
	addAuditLogCleanupJob(m, app.Config, app.AuditService)
	addAuditServiceShutdownJob(m, app.AuditService)
	addCacheCleanupJob(m, app.MetricsCacheCloser)

	<-m.Done()
}
