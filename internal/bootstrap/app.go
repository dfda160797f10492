package bootstrap

import (
	"time"

	"tourguide/internal/browser"
	"tourguide/internal/config"
	"tourguide/internal/console"
	"tourguide/internal/locator"
	"tourguide/internal/ports"
	"tourguide/internal/resolver"
	"tourguide/internal/store"
	"tourguide/internal/usecase"
	"tourguide/internal/watcher"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

// NewApp wires the application. opts add the invokes of the command being run.
func NewApp(opts ...fx.Option) *fx.App {
	return fx.New(
		fx.Provide(
			config.GetConfig,
			newLogger,
			newTraceProvider,

			fx.Annotate(browser.NewManager, fx.As(new(ports.Browser))),
			newDataStore,
			fx.Annotate(store.NewBlockEditor, fx.As(new(ports.BlockEditor))),

			locator.NewCapturer,
			resolver.NewResolver,
			watcher.NewWatcher,

			usecase.NewUsecase,

			console.NewInterface,
		),

		fx.Invoke(
			func(*sdktrace.TracerProvider) {},
			runBrowser,
		),

		fx.Options(opts...),

		fx.StartTimeout(2*time.Minute),
	)
}

func newDataStore(b ports.Browser) ports.DataStore {
	return b.Store()
}
