package main

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/qubird/crudo/api"
	"github.com/qubird/crudo/config"
	"github.com/qubird/crudo/pkg/logger"
	"github.com/qubird/crudo/schema"
	"github.com/qubird/crudo/storage/postgres"
)

func main() {
	cfg := config.Load()

	loggerLevel := logger.LevelDebug

	switch cfg.Environment {
	case config.DebugMode:
		loggerLevel = logger.LevelDebug
		gin.SetMode(gin.DebugMode)
	case config.TestMode:
		loggerLevel = logger.LevelDebug
		gin.SetMode(gin.TestMode)
	default:
		loggerLevel = logger.LevelInfo
		gin.SetMode(gin.ReleaseMode)
	}

	log := logger.NewLogger(cfg.ServiceName, loggerLevel)
	defer logger.Cleanup(log)
	log.Info("Service env", logger.String("service", cfg.ServiceName), logger.String("environment", cfg.Environment))

	pgStore, err := postgres.NewPostgres(context.Background(), cfg, log)
	if err != nil {
		log.Panic("postgres.NewPostgres", logger.Error(err))
	}
	defer pgStore.CloseDB()

	// schema reflection runs exactly once; tables created later need a restart
	introspector := schema.NewIntrospector(pgStore.DB(), cfg.PostgresSchema, cfg.IncludeTables, cfg.ExcludeTables, log)

	registry, err := introspector.Introspect(context.Background())
	if err != nil {
		log.Panic("schema.Introspect", logger.Error(err))
	}
	log.Info("schema reflected", logger.Int("models", len(registry.Models())))

	registerActions(registry, log)

	router := api.SetUpRouter(log, registry, pgStore, api.BasicAuthResolver(cfg))

	log.Info("HTTP: Server being started...", logger.String("port", cfg.HTTPPort))

	if err := router.Run(cfg.HTTPPort); err != nil {
		log.Panic("router.Run", logger.Error(err))
	}
}

// registerActions attaches host-supplied actions to reflected models,
// e.g. registry.RegisterAction("users", &models.ActionDescriptor{...}).
// The standalone binary ships without any.
func registerActions(_ *schema.Registry, _ logger.LoggerI) {
}
