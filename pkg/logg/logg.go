package logg

const (
	Layer      = "layer"
	Operation  = "operation"
	URL        = "url"
	Selector   = "selector"
	Locator    = "locator"
	StepID     = "step_id"
	TourID     = "tour_id"
	SessionID  = "session_id"
	Completion = "completion"
	WatcherID  = "watcher_id"
	Frame      = "frame"
)
