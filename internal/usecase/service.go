package usecase

import (
	"tourguide/internal/config"
	"tourguide/internal/locator"
	"tourguide/internal/ports"
	"tourguide/internal/resolver"
	"tourguide/internal/usecase/adapters"
	"tourguide/internal/watcher"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Service struct {
	Authoring adapters.AuthoringService
	Playback  adapters.PlaybackService
	Browser   adapters.BrowserService
}

type Params struct {
	fx.In

	Logger   *zap.Logger
	Config   *config.Config
	Browser  ports.Browser
	Capturer *locator.Capturer
	Resolver *resolver.Resolver
	Watcher  *watcher.Watcher
}

func NewUsecase(params Params) *Service {
	factory := newServiceFactory(params)

	return &Service{
		Authoring: factory.CreateAuthoringService(),
		Playback:  factory.CreatePlaybackService(),
		Browser:   factory.CreateBrowserService(),
	}
}
