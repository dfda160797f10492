package bootstrap

import (
	"context"

	"tourguide/internal/config"
	"tourguide/internal/ports"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// runBrowser launches the browser before any command starts and opens the editor when
// EDITOR_URL is set.
func runBrowser(lc fx.Lifecycle, conf *config.Config, browser ports.Browser, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("Launching browser...")

			if err := browser.Launch(ctx); err != nil {
				logger.Error("Failed to launch browser", zap.Error(err))

				return err
			}

			logger.Info("Browser launched successfully")

			if url := conf.BrowserConfig.EditorURL; url != "" {
				if err := browser.Navigate(ctx, url); err != nil {
					logger.Error("Failed to open editor", zap.String("url", url), zap.Error(err))

					return err
				}
			}

			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := browser.Close(ctx); err != nil {
				logger.Error("Failed to close browser", zap.Error(err))
			}

			return nil
		},
	})
}
