package adapters

import (
	"context"

	"tourguide/internal/entity"
)

type BrowserService interface {
	Launch(ctx context.Context) error
	Close(ctx context.Context) error
	Navigate(ctx context.Context, url string) error
	IsReady() bool
}

type AuthoringService interface {
	Capture(ctx context.Context, selector string, inEditorFrame bool) (*entity.CaptureResult, error)
	TestTarget(ctx context.Context, target entity.Target) (*entity.TargetTestReport, error)
}

type PlaybackService interface {
	Play(ctx context.Context, tour *entity.Tour, hooks entity.PlaybackHooks) (*entity.PlaybackReport, error)
	Confirm() bool
	Stop()
}
