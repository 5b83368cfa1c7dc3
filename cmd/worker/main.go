package main

import (
	"context"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/hibiken/asynq"

	"integrity-core/internal/aggregate"
	"integrity-core/internal/allocator"
	"integrity-core/internal/eventwindow"
	"integrity-core/internal/revenue"
	"integrity-core/internal/tasks"
	"integrity-core/internal/unitbuilder"
	"integrity-core/pkg/archive"
	"integrity-core/pkg/config"
	"integrity-core/pkg/db"
	"integrity-core/pkg/idgen"
	"integrity-core/pkg/lock"
	"integrity-core/pkg/logger"
	"integrity-core/pkg/redis"
	"integrity-core/pkg/sequence"
	"integrity-core/pkg/task"
	pkgworkflow "integrity-core/pkg/workflow"
)

// main wires the asynq worker process: it drains the revenue:window:finalize
// queue a scheduler (or an operator retrying a failed HTTP call) enqueues
// into, running the same Finalizer the HTTP API uses so the two paths never
// diverge in behavior.
func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		idgen.Module,
		sequence.Module,
		lock.Module,
		archive.Module,
		task.Server,
		pkgworkflow.ProvideClient,

		fx.Provide(
			eventwindow.NewReader,
			aggregate.NewWriter,
			unitbuilder.NewBuilder,
			allocator.NewLedger,
			revenue.NewFinalizer,
			revenue.NewActivities,
			tasks.NewHandler,
		),

		fx.Invoke(registerHandlers, registerTemporalWorker),

		fxLogger,
	)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, l *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})

func registerHandlers(mux *asynq.ServeMux, h *tasks.Handler) {
	mux.HandleFunc(tasks.TypeFinalizeRevenueWindow, h.HandleFinalizeRevenueWindow)
}

// registerTemporalWorker starts the Temporal worker that runs
// FinalizeRevenueWindowWorkflow and its activities — the durable saga path
// for finalize_revenue_window, alongside the synchronous asynq/HTTP paths
// registerHandlers wires above.
func registerTemporalWorker(lc fx.Lifecycle, c client.Client, activities *revenue.Activities) {
	w := worker.New(c, pkgworkflow.TaskQueue, worker.Options{})
	w.RegisterWorkflow(revenue.FinalizeRevenueWindowWorkflow)
	w.RegisterActivity(activities)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := w.Start(); err != nil {
				return err
			}
			zap.L().Info("temporal worker started", zap.String("task_queue", pkgworkflow.TaskQueue))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			w.Stop()
			return nil
		},
	})
}
