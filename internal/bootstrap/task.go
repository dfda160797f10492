package bootstrap

import (
	"context"

	"tourguide/internal/usecase"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Task is one CLI action run against the started application.
type Task func(ctx context.Context, svc *usecase.Service) error

// Run starts the application, runs task and shuts down when it returns. An interrupt
// cancels the task's context.
func Run(task Task) error {
	errCh := make(chan error, 1)

	app := NewApp(fx.Invoke(func(lc fx.Lifecycle, sd fx.Shutdowner, svc *usecase.Service, logger *zap.Logger) {
		ctx, cancel := context.WithCancel(context.Background())

		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				go func() {
					err := task(ctx, svc)
					if err != nil {
						logger.Error("Task failed", zap.Error(err))
					}

					errCh <- err

					if err := sd.Shutdown(); err != nil {
						logger.Warn("Shutdown failed", zap.Error(err))
					}
				}()

				return nil
			},
			OnStop: func(context.Context) error {
				cancel()

				return nil
			},
		})
	}))

	app.Run()

	if err := app.Err(); err != nil {
		return err
	}

	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}
