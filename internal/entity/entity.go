package entity

import (
	"github.com/google/uuid"
)

type LocatorKind string

const (
	LocatorCSS           LocatorKind = "css"
	LocatorRole          LocatorKind = "role"
	LocatorTestID        LocatorKind = "testId"
	LocatorDataAttribute LocatorKind = "dataAttribute"
	LocatorAriaLabel     LocatorKind = "ariaLabel"
	LocatorContextual    LocatorKind = "contextual"
	LocatorWPBlock       LocatorKind = "wpBlock"
)

// Locator is one candidate strategy for finding an element.
type Locator struct {
	Kind       LocatorKind `json:"type"`
	Value      string      `json:"value"`
	Weight     int         `json:"weight"`
	IsFallback bool        `json:"isFallback,omitempty"`
}

// Constraints narrow the candidates a locator produced.
type Constraints struct {
	// RequireVisible defaults to true when unset.
	RequireVisible          *bool  `json:"requireVisible,omitempty"`
	WithinContainerSelector string `json:"withinContainerSelector,omitempty"`
	ScopeToSelectedBlock    bool   `json:"scopeToSelectedBlock,omitempty"`
	MatchIndex              *int   `json:"matchIndex,omitempty"`
	SearchInEditorFrame     bool   `json:"searchInEditorFrame,omitempty"`
}

func (c Constraints) VisibleOnly() bool {
	return c.RequireVisible == nil || *c.RequireVisible
}

// Target is the locator bundle captured for one step.
type Target struct {
	Locators    []Locator   `json:"locators"`
	Constraints Constraints `json:"constraints"`
}

type AncestorSummary struct {
	Tag     string   `json:"tag"`
	Role    string   `json:"role,omitempty"`
	ID      string   `json:"id,omitempty"`
	Classes []string `json:"classes,omitempty"`
}

// ElementContext is a minimized snapshot of a picked element for drafting step copy.
type ElementContext struct {
	TagName        string            `json:"tagName"`
	Role           string            `json:"role,omitempty"`
	ID             string            `json:"id,omitempty"`
	Classes        []string          `json:"classes,omitempty"`
	TextContent    string            `json:"textContent,omitempty"`
	Placeholder    string            `json:"placeholder,omitempty"`
	Label          string            `json:"label,omitempty"`
	DataAttributes map[string]string `json:"dataAttributes,omitempty"`
	Ancestors      []AncestorSummary `json:"ancestors,omitempty"`
}

type CompletionType string

const (
	CompletionClickTarget      CompletionType = "clickTarget"
	CompletionDOMValueChanged  CompletionType = "domValueChanged"
	CompletionWPData           CompletionType = "wpData"
	CompletionManual           CompletionType = "manual"
	CompletionElementAppear    CompletionType = "elementAppear"
	CompletionElementDisappear CompletionType = "elementDisappear"
	CompletionCustomEvent      CompletionType = "customEvent"
)

// Completion describes when a step counts as done.
type Completion struct {
	Type      CompletionType `json:"type"`
	Params    map[string]any `json:"params,omitempty"`
	TimeoutMs int            `json:"timeoutMs,omitempty"`
}

// StringParam returns a string parameter, or "" when missing or not a string.
func (c Completion) StringParam(name string) string {
	if c.Params == nil {
		return ""
	}

	s, _ := c.Params[name].(string)

	return s
}

// Param returns a raw parameter and whether it was present.
func (c Completion) Param(name string) (any, bool) {
	if c.Params == nil {
		return nil, false
	}

	v, ok := c.Params[name]

	return v, ok
}

type CompletionResult struct {
	Success  bool   `json:"success"`
	TimedOut bool   `json:"timedOut,omitempty"`
	Event    string `json:"event,omitempty"`
	Detail   any    `json:"detail,omitempty"`
	Error    string `json:"error,omitempty"`
}

type Step struct {
	ID             uuid.UUID       `json:"id"`
	Title          string          `json:"title"`
	Content        string          `json:"content"`
	Target         Target          `json:"target"`
	ElementContext *ElementContext `json:"elementContext,omitempty"`
	Completion     Completion      `json:"completion"`
	Order          int             `json:"order"`
}

type Tour struct {
	ID    uuid.UUID `json:"id"`
	Title string    `json:"title"`
	Steps []Step    `json:"steps"`
}

// Block is one top-level entry of the block editor's block list.
type Block struct {
	ClientID string
	Name     string
}

type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type ElementInfo struct {
	TagName            string `json:"tagName"`
	ID                 string `json:"id,omitempty"`
	ClassName          string `json:"className,omitempty"`
	TextContentPreview string `json:"textContentPreview,omitempty"`
	BoundingRect       *Rect  `json:"boundingRect,omitempty"`
}

// TargetTestReport is the diagnostic outcome of testing a target without playback.
type TargetTestReport struct {
	Success     bool         `json:"success"`
	UsedLocator *Locator     `json:"usedLocator,omitempty"`
	Error       string       `json:"error,omitempty"`
	ElementInfo *ElementInfo `json:"elementInfo,omitempty"`
}

// CaptureResult is what a pick produces.
type CaptureResult struct {
	Target         Target         `json:"target"`
	ElementContext ElementContext `json:"elementContext"`
}

// StepDecision is the user's answer to a failed step.
type StepDecision string

const (
	DecisionRetry StepDecision = "retry"
	DecisionSkip  StepDecision = "skip"
	DecisionStop  StepDecision = "stop"
)

// StepFailure describes why a step could not be shown or completed. Kind is set for
// resolution failures only.
type StepFailure struct {
	Reason            string `json:"reason"`
	Kind              string `json:"kind,omitempty"`
	TimedOut          bool   `json:"timedOut,omitempty"`
	RecoveryAttempted bool   `json:"recoveryAttempted,omitempty"`
}

// PlaybackHooks report playback progress. Every hook is optional; a missing OnStepFailed
// skips the step.
type PlaybackHooks struct {
	OnStepStart     func(step Step, index, total int)
	OnAwaiting      func(step Step, target *ElementInfo)
	OnStepCompleted func(step Step, res CompletionResult)
	OnStepFailed    func(step Step, failure StepFailure) StepDecision
}

type PlaybackReport struct {
	TourID    uuid.UUID   `json:"tourId"`
	Completed []uuid.UUID `json:"completed"`
	Skipped   []uuid.UUID `json:"skipped"`
	Stopped   bool        `json:"stopped,omitempty"`
}
