package usecase

import (
	"tourguide/internal/usecase/adapters"
)

type serviceFactory struct {
	deps Params
}

func newServiceFactory(deps Params) *serviceFactory {
	return &serviceFactory{
		deps: deps,
	}
}

func (f *serviceFactory) CreateAuthoringService() adapters.AuthoringService {
	return NewAuthoringService(AuthoringServiceParams{
		Config:   f.deps.Config,
		Logger:   f.deps.Logger,
		Browser:  f.deps.Browser,
		Capturer: f.deps.Capturer,
		Resolver: f.deps.Resolver,
	})
}

func (f *serviceFactory) CreatePlaybackService() adapters.PlaybackService {
	return NewPlaybackService(PlaybackServiceParams{
		Config:   f.deps.Config,
		Logger:   f.deps.Logger,
		Browser:  f.deps.Browser,
		Resolver: f.deps.Resolver,
		Watcher:  f.deps.Watcher,
	})
}

func (f *serviceFactory) CreateBrowserService() adapters.BrowserService {
	return f.deps.Browser
}
