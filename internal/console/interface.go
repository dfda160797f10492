package console

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"tourguide/internal/config"
	"tourguide/internal/entity"
	"tourguide/internal/tourfile"
	"tourguide/internal/usecase"
	"tourguide/pkg/logg"

	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var errExit = errors.New("exit")

type Interface struct {
	config  *config.Config
	logger  *zap.Logger
	usecase *usecase.Service
	in      io.Reader
	out     io.Writer
	outMu   sync.Mutex

	mu       sync.Mutex
	tour     *entity.Tour
	tourPath string
	playing  bool
	playDone chan struct{}
	pending  chan entity.StepDecision
	stopping bool
}

type Params struct {
	fx.In

	Config  *config.Config
	Logger  *zap.Logger
	Usecase *usecase.Service
}

func NewInterface(params Params) *Interface {
	return newInterface(params, os.Stdin, os.Stdout)
}

func newInterface(params Params, in io.Reader, out io.Writer) *Interface {
	return &Interface{
		config:  params.Config,
		logger:  params.Logger.With(zap.String(logg.Layer, "Console")),
		usecase: params.Usecase,
		in:      in,
		out:     out,
	}
}

// Start reads commands until quit, end of input or ctx ends.
func (i *Interface) Start(ctx context.Context) error {
	i.printBanner()
	i.printHelp()

	scanner := bufio.NewScanner(i.in)

	for {
		if i.isStopping() || ctx.Err() != nil {
			break
		}

		i.printf("\n> ")

		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		if err := i.handleCommand(ctx, input); err != nil {
			if errors.Is(err, errExit) {
				break
			}

			i.logger.Error("Command error", zap.Error(err))
			i.printf("Error: %v\n", err)
		}
	}

	i.Stop()

	return scanner.Err()
}

// Stop ends playback and waits for it to unwind. It is safe to call more than once.
func (i *Interface) Stop() {
	i.mu.Lock()
	if i.stopping {
		i.mu.Unlock()

		return
	}
	i.stopping = true
	done := i.playDone
	i.mu.Unlock()

	i.logger.Info("Stopping console interface...")

	if done != nil {
		i.answer(entity.DecisionStop)
		i.usecase.Playback.Stop()
		<-done
	}
}

func (i *Interface) isStopping() bool {
	i.mu.Lock()
	defer i.mu.Unlock()

	return i.stopping
}

func (i *Interface) handleCommand(ctx context.Context, input string) error {
	cmd, rest, _ := strings.Cut(input, " ")
	rest = strings.TrimSpace(rest)

	switch cmd {
	case "help", "h":
		i.printHelp()

		return nil
	case "exit", "quit", "q":
		i.printf("Shutting down...\n")

		return errExit
	case "open":
		return i.open(ctx, rest)
	case "new":
		return i.newTour(rest)
	case "load":
		return i.load(rest)
	case "save":
		return i.save(rest)
	case "steps":
		return i.listSteps()
	case "capture":
		return i.capture(ctx, rest)
	case "test":
		return i.test(ctx, rest)
	case "play":
		return i.play(ctx)
	case "continue", "c":
		if !i.usecase.Playback.Confirm() {
			i.printf("No step is waiting for confirmation.\n")
		}

		return nil
	case "retry":
		return i.decide(entity.DecisionRetry)
	case "skip":
		return i.decide(entity.DecisionSkip)
	case "stop":
		if i.answer(entity.DecisionStop) {
			return nil
		}

		i.usecase.Playback.Stop()

		return nil
	default:
		return fmt.Errorf("unknown command %q, type help", cmd)
	}
}

func (i *Interface) open(ctx context.Context, url string) error {
	if url == "" {
		url = i.config.BrowserConfig.EditorURL
	}

	if url == "" {
		return errors.New("usage: open <url>")
	}

	if err := i.usecase.Browser.Navigate(ctx, url); err != nil {
		return err
	}

	i.printf("Opened %s\n", url)

	return nil
}

func (i *Interface) newTour(title string) error {
	i.mu.Lock()
	i.tour = &entity.Tour{ID: uuid.New(), Title: title}
	i.tourPath = ""
	i.mu.Unlock()

	i.printf("New tour %q\n", title)

	return nil
}

func (i *Interface) load(path string) error {
	if path == "" {
		return errors.New("usage: load <file>")
	}

	tour, err := tourfile.Load(path)
	if err != nil {
		return err
	}

	i.mu.Lock()
	i.tour = tour
	i.tourPath = path
	i.mu.Unlock()

	i.printf("Loaded %q with %d steps\n", tour.Title, len(tour.Steps))

	return nil
}

func (i *Interface) save(path string) error {
	i.mu.Lock()
	tour := i.tour
	if path == "" {
		path = i.tourPath
	}
	i.mu.Unlock()

	if tour == nil {
		return errors.New("no tour loaded")
	}

	if path == "" {
		return errors.New("usage: save <file>")
	}

	if err := tourfile.Save(path, tour); err != nil {
		return err
	}

	i.mu.Lock()
	i.tourPath = path
	i.mu.Unlock()

	i.printf("Saved %d steps to %s\n", len(tour.Steps), path)

	return nil
}

func (i *Interface) listSteps() error {
	tour := i.currentTour()
	if tour == nil {
		return errors.New("no tour loaded")
	}

	for n, st := range tour.Steps {
		i.printf("%2d. %-30s %-16s %s\n", n+1, st.Title, st.Completion.Type, st.ID)
	}

	return nil
}

// capture adds a manual step for the element matching the selector. --frame searches the
// editor canvas.
func (i *Interface) capture(ctx context.Context, args string) error {
	inFrame := false
	if after, ok := strings.CutPrefix(args, "--frame"); ok {
		inFrame = true
		args = strings.TrimSpace(after)
	}

	if args == "" {
		return errors.New("usage: capture [--frame] <selector>")
	}

	res, err := i.usecase.Authoring.Capture(ctx, args, inFrame)
	if err != nil {
		return err
	}

	for _, loc := range res.Target.Locators {
		fallback := ""
		if loc.IsFallback {
			fallback = " (fallback)"
		}
		i.printf("  %-14s %3d  %s%s\n", loc.Kind, loc.Weight, loc.Value, fallback)
	}

	i.mu.Lock()
	if i.tour == nil {
		i.tour = &entity.Tour{ID: uuid.New()}
	}

	elementContext := res.ElementContext
	st := tourfile.AppendStep(i.tour, entity.Step{
		Title:          stepTitle(res.ElementContext),
		Target:         res.Target,
		ElementContext: &elementContext,
		Completion:     entity.Completion{Type: entity.CompletionManual},
	})
	i.mu.Unlock()

	i.printf("Added step %d (%s)\n", st.Order, st.ID)

	return nil
}

func stepTitle(ec entity.ElementContext) string {
	for _, s := range []string{ec.Label, ec.TextContent, ec.Placeholder, ec.ID} {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}

	return ec.TagName
}

func (i *Interface) test(ctx context.Context, ref string) error {
	st, err := i.findStep(ref)
	if err != nil {
		return err
	}

	report, err := i.usecase.Authoring.TestTarget(ctx, st.Target)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}

	i.printf("%s\n", out)

	return nil
}

// findStep accepts a 1-based position or a step id.
func (i *Interface) findStep(ref string) (*entity.Step, error) {
	tour := i.currentTour()
	if tour == nil {
		return nil, errors.New("no tour loaded")
	}

	if n, err := strconv.Atoi(ref); err == nil {
		if n < 1 || n > len(tour.Steps) {
			return nil, fmt.Errorf("step %d out of range", n)
		}

		return &tour.Steps[n-1], nil
	}

	return tourfile.FindStep(tour, ref)
}

func (i *Interface) play(ctx context.Context) error {
	i.mu.Lock()
	if i.playing {
		i.mu.Unlock()

		return errors.New("a tour is already playing")
	}

	tour := i.tour
	if tour == nil || len(tour.Steps) == 0 {
		i.mu.Unlock()

		return errors.New("no steps to play")
	}

	done := make(chan struct{})
	i.playing = true
	i.playDone = done
	i.mu.Unlock()

	go func() {
		defer func() {
			i.mu.Lock()
			i.playing = false
			i.playDone = nil
			i.mu.Unlock()
			close(done)
		}()

		report, err := i.usecase.Playback.Play(ctx, tour, i.hooks(ctx))
		if err != nil {
			i.printf("\nPlayback failed: %v\n", err)

			return
		}

		i.printf("\nTour finished: %d completed, %d skipped", len(report.Completed), len(report.Skipped))
		if report.Stopped {
			i.printf(" (stopped)")
		}
		i.printf("\n")
	}()

	return nil
}

func (i *Interface) hooks(ctx context.Context) entity.PlaybackHooks {
	return entity.PlaybackHooks{
		OnStepStart: func(st entity.Step, index, total int) {
			i.printf("\nStep %d/%d: %s\n", index+1, total, st.Title)
			if st.Content != "" {
				i.printf("  %s\n", st.Content)
			}
		},
		OnAwaiting: func(st entity.Step, target *entity.ElementInfo) {
			if target != nil {
				i.printf("  target: <%s> %s\n", target.TagName, target.TextContentPreview)
			}

			if st.Completion.Type == entity.CompletionManual {
				i.printf("  type 'continue' when done\n")
			} else {
				i.printf("  waiting for %s...\n", st.Completion.Type)
			}
		},
		OnStepCompleted: func(st entity.Step, _ entity.CompletionResult) {
			i.printf("  done: %s\n", st.Title)
		},
		OnStepFailed: func(st entity.Step, failure entity.StepFailure) entity.StepDecision {
			ch := make(chan entity.StepDecision, 1)

			i.mu.Lock()
			i.pending = ch
			i.mu.Unlock()

			i.printf("  step failed: %s\n  retry / skip / stop?\n", failure.Reason)

			defer func() {
				i.mu.Lock()
				i.pending = nil
				i.mu.Unlock()
			}()

			select {
			case d := <-ch:
				return d
			case <-ctx.Done():
				return entity.DecisionStop
			}
		},
	}
}

func (i *Interface) decide(d entity.StepDecision) error {
	if !i.answer(d) {
		i.printf("No failed step is waiting for a decision.\n")
	}

	return nil
}

func (i *Interface) answer(d entity.StepDecision) bool {
	i.mu.Lock()
	ch := i.pending
	i.pending = nil
	i.mu.Unlock()

	if ch == nil {
		return false
	}

	ch <- d

	return true
}

func (i *Interface) currentTour() *entity.Tour {
	i.mu.Lock()
	defer i.mu.Unlock()

	return i.tour
}

func (i *Interface) printf(format string, args ...any) {
	i.outMu.Lock()
	defer i.outMu.Unlock()

	fmt.Fprintf(i.out, format, args...)
}

func (i *Interface) printBanner() {
	i.printf(`
  Tour Guide
  Author and play guided tours of the block editor.
`)
}

func (i *Interface) printHelp() {
	i.printf(`
Available commands:
  open [url]                  - Open the editor (defaults to EDITOR_URL)
  new <title>                 - Start a new tour
  load <file> / save [file]   - Read or write a tour file
  steps                       - List the tour's steps
  capture [--frame] <sel>     - Add a step for the element matching a CSS selector
  test <n|id>                 - Check that a step's target resolves on the current page
  play                        - Play the tour
  continue, c                 - Confirm the current manual step
  retry / skip                - Answer a failed step
  stop                        - Stop playback
  help, h                     - Show this help message
  exit, quit, q               - Exit the application
`)
}
