// Package browser drives the host editor page through playwright and keeps a dom.Window mirror
// of its documents.
package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"tourguide/internal/config"
	"tourguide/internal/dom"
	"tourguide/internal/ports"
	"tourguide/pkg/apperr"
	"tourguide/pkg/logg"
	"tourguide/pkg/tracing"

	"github.com/playwright-community/playwright-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	browserManagerName = "BrowserManager"
	browserTracer      = "browser.manager"
	navigationSettle   = 500 * time.Millisecond
	highlightTimeout   = 5000
)

var ErrNotReady = errors.New("browser is not ready")

type Manager struct {
	config         *config.Config
	logger         *zap.Logger
	tracer         trace.Tracer
	playwright     *playwright.Playwright
	browser        playwright.Browser
	browserContext playwright.BrowserContext
	page           playwright.Page
	mirror         *Mirror
	store          *PageStore
	ready          bool
}

type Params struct {
	fx.In

	Config *config.Config
	Logger *zap.Logger
}

var _ ports.Browser = (*Manager)(nil)

func NewManager(params Params) *Manager {
	m := &Manager{
		config: params.Config,
		logger: params.Logger.With(zap.String(logg.Layer, browserManagerName)),
		tracer: otel.Tracer(browserTracer),
		mirror: NewMirror(params.Logger),
		ready:  false,
	}
	m.store = newPageStore(params.Logger, m.mainFrame)

	return m
}

func (m *Manager) Launch(ctx context.Context) (err error) {
	const op = "Launch"
	logger := m.logger.With(zap.String(logg.Operation, op))

	ctx, step := tracing.StartSpan(ctx, m.tracer, logger, op)
	defer func() {
		step.End(err)
	}()

	logger.Info("Launching browser...")
	step.AddEvent("installing playwright")

	err = playwright.Install(&playwright.RunOptions{Browsers: []string{"chromium"}})
	if err != nil {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "playwright_install_failed",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}

	step.AddEvent("starting playwright")

	pw, err := playwright.Run()
	if err != nil {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "playwright_start_failed",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}
	m.playwright = pw

	if m.config.BrowserConfig.UserDataDir != "" {
		err = m.launchPersistent(ctx)
	} else {
		err = m.launchNew(ctx)
	}

	if err != nil {
		return err
	}

	return m.installHooks(ctx)
}

func (m *Manager) launchPersistent(ctx context.Context) (err error) {
	const op = "launchPersistent"
	logger := m.logger.With(zap.String(logg.Operation, op))

	_, step := tracing.StartSpan(ctx, m.tracer, logger, op)
	defer func() {
		step.End(err)
	}()

	logger.Info("Launching persistent browser context")

	userDataDir := m.config.BrowserConfig.UserDataDir

	if err := os.MkdirAll(userDataDir, 0755); err != nil {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "mkdir_failed",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}

	options := playwright.BrowserTypeLaunchPersistentContextOptions{
		Headless:          playwright.Bool(m.config.BrowserConfig.Headless),
		SlowMo:            playwright.Float(float64(m.config.BrowserConfig.SlowMo)),
		Viewport:          &playwright.Size{Width: 1440, Height: 900},
		JavaScriptEnabled: playwright.Bool(true),
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--window-size=1440,900",
		},
		IgnoreHttpsErrors: playwright.Bool(true),
	}

	browserContext, err := m.playwright.Chromium.LaunchPersistentContext(userDataDir, options)
	if err != nil {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "launch_persistent_failed",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}

	m.browserContext = browserContext

	pages := browserContext.Pages()

	if len(pages) > 0 {
		m.page = pages[0]
		logger.Info("Using existing page")
	} else {
		page, err := browserContext.NewPage()
		if err != nil {
			return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
				apperr.MetaReason: "new_page_failed",
				apperr.MetaStage:  apperr.StageBrowser,
			})
		}
		m.page = page
		logger.Info("Created new page")
	}

	m.ready = true
	logger.Info("Browser launched successfully")

	return nil
}

func (m *Manager) launchNew(ctx context.Context) (err error) {
	const op = "launchNew"
	logger := m.logger.With(zap.String(logg.Operation, op))

	_, step := tracing.StartSpan(ctx, m.tracer, logger, op)
	defer func() {
		step.End(err)
	}()

	logger.Info("Launching new browser")

	browser, err := m.playwright.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(m.config.BrowserConfig.Headless),
		SlowMo:   playwright.Float(float64(m.config.BrowserConfig.SlowMo)),
		Args: []string{
			"--disable-blink-features=AutomationControlled",
		},
	})
	if err != nil {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "browser_launch_failed",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}
	m.browser = browser

	browserContext, err := browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  1280,
			Height: 800,
		},
		JavaScriptEnabled: playwright.Bool(true),
	})
	if err != nil {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "context_create_failed",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}

	m.browserContext = browserContext

	page, err := browserContext.NewPage()
	if err != nil {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "page_create_failed",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}
	m.page = page

	m.ready = true
	logger.Info("Browser launched successfully")

	return nil
}

// installHooks exposes the report bindings and registers the init script for every frame
// navigated from now on.
func (m *Manager) installHooks(ctx context.Context) (err error) {
	const op = "installHooks"
	logger := m.logger.With(zap.String(logg.Operation, op))

	_, step := tracing.StartSpan(ctx, m.tracer, logger, op)
	defer func() {
		step.End(err)
	}()

	if err := m.browserContext.ExposeBinding(reportBinding, m.onReport); err != nil {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "expose_binding_failed",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}

	if err := m.browserContext.ExposeBinding(storeChangedBinding, m.onStoreChanged); err != nil {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "expose_binding_failed",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}

	if err := m.browserContext.AddInitScript(playwright.Script{Content: playwright.String(initScript)}); err != nil {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "init_script_failed",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}

	logger.Debug("Page hooks installed")

	return nil
}

func (m *Manager) onReport(_ *playwright.BindingSource, args ...interface{}) interface{} {
	if len(args) == 0 {
		return nil
	}

	d, err := DecodeDelta(args[0])
	if err != nil {
		m.logger.Debug("Dropping malformed delta", zap.Error(err))

		return nil
	}

	if err := m.mirror.Apply(d); err != nil && !errors.Is(err, ErrUnknownFrame) {
		m.logger.Debug("Delta not applied",
			zap.String(logg.Frame, d.Frame),
			zap.String("kind", d.Kind),
			zap.Error(err))
	}

	return nil
}

func (m *Manager) onStoreChanged(_ *playwright.BindingSource, _ ...interface{}) interface{} {
	go m.store.notify()

	return nil
}

func (m *Manager) Close(ctx context.Context) (err error) {
	const op = "Close"
	logger := m.logger.With(zap.String(logg.Operation, op))

	_, step := tracing.StartSpan(ctx, m.tracer, logger, op)
	defer func() {
		step.End(err)
	}()

	logger.Info("Closing connection to browser...")

	if m.config.BrowserConfig.UserDataDir != "" {
		logger.Info("Persistent browser - keeping it open")
		m.ready = false
		logger.Info("Connection closed, browser still running")

		return nil
	}

	logger.Info("Non-persistent browser - closing completely")

	if m.browserContext != nil {
		if err := m.browserContext.Close(); err != nil {
			logger.Warn("Failed to close context", zap.Error(err))
		}
	}

	if m.browser != nil {
		if err := m.browser.Close(); err != nil {
			logger.Warn("Failed to close browser", zap.Error(err))
		}
	}

	if m.playwright != nil {
		if err := m.playwright.Stop(); err != nil {
			return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
				apperr.MetaReason: "playwright_stop_failed",
			})
		}
	}

	m.ready = false
	logger.Info("Browser closed")

	return nil
}

func (m *Manager) ensurePageActive() error {
	if m.browserContext == nil {
		return fmt.Errorf("browser context is nil")
	}

	if m.page != nil && !m.page.IsClosed() {
		return nil
	}

	m.logger.Info("Page closed, reconnecting to active page...")

	for _, p := range m.browserContext.Pages() {
		if !p.IsClosed() {
			m.page = p
			m.logger.Info("Reconnected to existing page")

			return nil
		}
	}

	m.logger.Info("No active pages found, creating new page...")

	page, err := m.browserContext.NewPage()
	if err != nil {
		return fmt.Errorf("failed to create new page: %w", err)
	}

	m.page = page
	m.logger.Info("Created new page")

	return nil
}

func (m *Manager) mainFrame() (frameEvaluator, error) {
	if !m.ready {
		return nil, ErrNotReady
	}

	if err := m.ensurePageActive(); err != nil {
		return nil, err
	}

	return m.page.MainFrame(), nil
}

func (m *Manager) Navigate(ctx context.Context, url string) (err error) {
	const op = "Navigate"
	logger := m.logger.With(zap.String(logg.Operation, op), zap.String(logg.URL, url))

	ctx, step := tracing.StartSpan(ctx, m.tracer, logger, op, attribute.String("url", url))
	defer func() {
		step.End(err)
	}()

	if !m.ready {
		return apperr.WrapErrorWithReason(op, apperr.CodeBrowserNotReady, "browser_not_ready")
	}

	if err := m.ensurePageActive(); err != nil {
		return apperr.Wrap(op, apperr.CodeBrowserNotReady, err, map[string]any{
			apperr.MetaReason: "page_not_active",
		})
	}

	step.AddEvent("navigating to URL")

	_, err = m.page.Goto(url, playwright.PageGotoOptions{
		Timeout:   playwright.Float(float64(m.config.BrowserConfig.Timeout)),
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	})
	if err != nil {
		return apperr.Wrap(op, apperr.CodeActionFailed, err, map[string]any{
			apperr.MetaReason: "goto_failed",
			apperr.MetaStage:  apperr.StageNavigation,
			apperr.MetaURL:    url,
		})
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(navigationSettle):
	}

	step.AddEvent("navigation completed")

	_, err = m.Snapshot(ctx)

	return err
}

// Snapshot re-reads the top frame and the editor canvas into the mirror. A missing canvas
// frame is dropped from the mirror.
func (m *Manager) Snapshot(ctx context.Context) (win *dom.Window, err error) {
	const op = "Snapshot"
	logger := m.logger.With(zap.String(logg.Operation, op))

	ctx, step := tracing.StartSpan(ctx, m.tracer, logger, op)
	defer func() {
		step.End(err)
	}()

	if !m.ready {
		return nil, apperr.WrapErrorWithReason(op, apperr.CodeBrowserNotReady, "browser_not_ready")
	}

	if err := m.ensurePageActive(); err != nil {
		return nil, apperr.Wrap(op, apperr.CodeBrowserNotReady, err, map[string]any{
			apperr.MetaReason: "page_not_active",
		})
	}

	if err := m.snapshotFrame(ctx, "", m.page.MainFrame()); err != nil {
		return nil, err
	}

	canvasName := m.config.Tour().CanvasFrameName
	canvas := m.page.Frame(playwright.PageFrameOptions{Name: playwright.String(canvasName)})

	if canvas == nil {
		m.mirror.Drop(canvasName)
		step.AddEvent("canvas frame absent")
	} else if err := m.snapshotFrame(ctx, canvasName, canvas); err != nil {
		logger.Warn("Canvas snapshot failed", zap.Error(err))
		m.mirror.Drop(canvasName)
	}

	return m.mirror.Window(), nil
}

func (m *Manager) snapshotFrame(ctx context.Context, name string, frame playwright.Frame) error {
	const op = "snapshotFrame"

	if err := ctx.Err(); err != nil {
		return err
	}

	raw, err := frame.Evaluate(snapshotScript)
	if err != nil {
		return apperr.Wrap(op, apperr.CodeActionFailed, err, map[string]any{
			apperr.MetaReason: "snapshot_script_failed",
			apperr.MetaStage:  apperr.StageSnapshot,
			apperr.MetaFrame:  name,
		})
	}

	src, _ := raw.(string)
	if src == "" {
		return apperr.WrapErrorWithReason(op, apperr.CodeUnavailable, "empty_document")
	}

	if err := m.mirror.Load(name, src); err != nil {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "mirror_load_failed",
			apperr.MetaStage:  apperr.StageSnapshot,
			apperr.MetaFrame:  name,
		})
	}

	return nil
}

func (m *Manager) Window() *dom.Window {
	return m.mirror.Window()
}

// Highlight scrolls the live counterpart of el into view and outlines it.
func (m *Manager) Highlight(ctx context.Context, el *dom.Element) (err error) {
	const op = "Highlight"

	if el == nil {
		return apperr.WrapErrorWithReason(op, apperr.CodeInvalidArgument, "nil_element")
	}

	frameName := el.Document().FrameName()
	selector := pathSelector(el.Path())
	logger := m.logger.With(
		zap.String(logg.Operation, op),
		zap.String(logg.Frame, frameName),
		zap.String(logg.Selector, selector))

	_, step := tracing.StartSpan(ctx, m.tracer, logger, op, attribute.String("selector", selector))
	defer func() {
		step.End(err)
	}()

	if !m.ready {
		return apperr.WrapErrorWithReason(op, apperr.CodeBrowserNotReady, "browser_not_ready")
	}

	if err := m.ensurePageActive(); err != nil {
		return apperr.Wrap(op, apperr.CodeBrowserNotReady, err, map[string]any{
			apperr.MetaReason: "page_not_active",
		})
	}

	frame := m.page.MainFrame()
	if frameName != "" {
		frame = m.page.Frame(playwright.PageFrameOptions{Name: playwright.String(frameName)})
		if frame == nil {
			return apperr.Wrap(op, apperr.CodeUnavailable, ErrUnknownFrame, map[string]any{
				apperr.MetaReason: "frame_missing",
				apperr.MetaFrame:  frameName,
			})
		}
	}

	loc := frame.Locator(selector)

	if err := loc.ScrollIntoViewIfNeeded(playwright.LocatorScrollIntoViewIfNeededOptions{
		Timeout: playwright.Float(highlightTimeout),
	}); err != nil {
		return apperr.Wrap(op, apperr.CodeActionFailed, err, map[string]any{
			apperr.MetaReason:   "scroll_failed",
			apperr.MetaSelector: selector,
		})
	}

	if err := loc.Highlight(); err != nil {
		return apperr.Wrap(op, apperr.CodeActionFailed, err, map[string]any{
			apperr.MetaReason:   "highlight_failed",
			apperr.MetaSelector: selector,
		})
	}

	return nil
}

// pathSelector addresses an element-child index path from the document element.
func pathSelector(path []int) string {
	var b strings.Builder
	b.WriteString(":root")

	for _, idx := range path {
		b.WriteString(" > :nth-child(")
		b.WriteString(strconv.Itoa(idx + 1))
		b.WriteString(")")
	}

	return b.String()
}

func (m *Manager) Store() ports.DataStore {
	return m.store
}

func (m *Manager) IsReady() bool {
	return m.ready
}
