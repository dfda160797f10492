package bootstrap

import (
	"context"

	"tourguide/internal/console"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// RunConsole starts the interactive console and blocks until it exits.
func RunConsole() error {
	app := NewApp(fx.Invoke(runConsole))
	app.Run()

	return app.Err()
}

func runConsole(lc fx.Lifecycle, sd fx.Shutdowner, consoleInterface *console.Interface, logger *zap.Logger) {
	ctx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			logger.Info("Starting tour console...")

			go func() {
				if err := consoleInterface.Start(ctx); err != nil {
					logger.Error("Console interface error", zap.Error(err))
				}

				if err := sd.Shutdown(); err != nil {
					logger.Warn("Shutdown failed", zap.Error(err))
				}
			}()

			return nil
		},
		OnStop: func(context.Context) error {
			logger.Info("Shutting down tour console...")

			consoleInterface.Stop()
			cancel()

			return nil
		},
	})
}
