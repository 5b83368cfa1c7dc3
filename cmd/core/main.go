package main

import (
	"log"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"integrity-core/internal/aggregate"
	"integrity-core/internal/allocator"
	"integrity-core/internal/domain"
	"integrity-core/internal/eventwindow"
	"integrity-core/internal/operator"
	"integrity-core/internal/revenue"
	"integrity-core/internal/unitbuilder"
	"integrity-core/pkg/archive"
	"integrity-core/pkg/config"
	"integrity-core/pkg/db"
	"integrity-core/pkg/featureflags"
	"integrity-core/pkg/hashistack/secretmanager"
	"integrity-core/pkg/hashistack/servicediscover"
	"integrity-core/pkg/health"
	"integrity-core/pkg/idgen"
	"integrity-core/pkg/lock"
	"integrity-core/pkg/logger"
	"integrity-core/pkg/middleware"
	"integrity-core/pkg/minio"
	"integrity-core/pkg/profiling"
	"integrity-core/pkg/redis"
	"integrity-core/pkg/sequence"
	"integrity-core/pkg/server"
)

// main wires the integrity core's synchronous API process: the gin HTTP
// surface for the three operator entrypoints, backed by Postgres, Redis,
// Vault, Consul, MinIO, and the domain packages under internal/.
func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		idgen.Module,
		sequence.Module,
		lock.Module,
		secretmanager.Module,
		servicediscover.Module,
		featureflags.Module,
		profiling.Module,
		middleware.Module,
		minio.Client,
		archive.Module,
		health.Module,

		fx.Provide(
			eventwindow.NewReader,
			aggregate.NewWriter,
			unitbuilder.NewBuilder,
			allocator.NewLedger,
			revenue.NewFinalizer,
		),

		operator.Module,

		fx.Invoke(
			registerHealthRoutes,
			autoMigrate,
			provideTracerProvider,
			provideMeterProvider,
		),

		server.ProvideHTTPServer,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)
	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, l *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})

func provideTracerProvider() trace.TracerProvider {
	return otel.GetTracerProvider()
}

func provideMeterProvider() metric.MeterProvider {
	return otel.GetMeterProvider()
}

func registerHealthRoutes(router *gin.Engine, svc health.HealthService) {
	router.GET("/health/liveness", svc.Liveness)
	router.GET("/health/readiness", svc.Readiness)
}

func autoMigrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&domain.User{},
		&domain.Video{},
		&domain.Event{},
		&domain.VideoAggregate{},
		&domain.RevenueWindow{},
		&domain.VideoRevShare{},
		&domain.Transaction{},
	)
}
