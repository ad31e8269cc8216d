// Package browser owns the single shared headless-browser session.
package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/oemtools/vid-lookup/internal/metrics"
)

// Config fixes the launch parameters for the shared session.
type Config struct {
	Headless  bool
	NoSandbox bool
	UserAgent string
}

// launcher establishes a browser session and returns its context plus a
// cancel func tearing the whole session down. Injected so tests can run the
// manager's state machine without Chrome.
type launcher func() (context.Context, context.CancelFunc, error)

// Manager is the two-state (disconnected/connected) owner of the one live
// browser session. All navigation and extraction runs through Do, which also
// serializes callers: the browser renders one page at a time, so two
// concurrent resolutions must never interleave their navigations.
type Manager struct {
	launch launcher
	logger *zap.Logger

	mu         sync.Mutex
	browserCtx context.Context
	cancel     context.CancelFunc
}

// NewManager creates a Manager that launches headless Chrome on first use.
func NewManager(cfg Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		launch: chromedpLauncher(cfg),
		logger: logger,
	}
}

// Do runs fn against the live browser context while holding the session
// lock, launching a session first if none is live. When fn fails with a
// connection-class error the held session is dropped so the next call
// relaunches instead of failing against a dead browser.
func (m *Manager) Do(ctx context.Context, fn func(browserCtx context.Context) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("session wait canceled: %w", err)
	}
	browserCtx, err := m.acquireLocked()
	if err != nil {
		return fmt.Errorf("acquire browser session: %w", err)
	}
	if err := fn(browserCtx); err != nil {
		if IsConnectionError(err) {
			m.logger.Warn("browser session lost, dropping handle", zap.Error(err))
			m.dropLocked()
		}
		return err
	}
	return nil
}

// Close tears down the session if one is live. Safe to call repeatedly.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.browserCtx != nil {
		m.logger.Info("browser session closed")
	}
	m.dropLocked()
}

func (m *Manager) acquireLocked() (context.Context, error) {
	if m.browserCtx != nil && m.browserCtx.Err() == nil {
		return m.browserCtx, nil
	}
	// A canceled context means the session died behind our back.
	m.dropLocked()

	browserCtx, cancel, err := m.launch()
	if err != nil {
		return nil, err
	}
	m.browserCtx = browserCtx
	m.cancel = cancel
	m.logger.Info("browser session started")
	metrics.ObserveBrowserStart()
	return m.browserCtx, nil
}

func (m *Manager) dropLocked() {
	if m.cancel != nil {
		m.cancel()
	}
	m.browserCtx = nil
	m.cancel = nil
}

// chromedpLauncher builds the fixed-configuration Chrome launcher. The
// session is rooted in context.Background because it outlives any single
// request.
func chromedpLauncher(cfg Config) launcher {
	return func() (context.Context, context.CancelFunc, error) {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", cfg.Headless),
			chromedp.Flag("no-sandbox", cfg.NoSandbox),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("disable-blink-features", "AutomationControlled"),
		)
		if cfg.UserAgent != "" {
			opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
		}
		allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
		browserCtx, browserCancel := chromedp.NewContext(allocCtx)
		cancel := func() {
			browserCancel()
			allocCancel()
		}
		// Warm up so a broken Chrome install fails here, not mid-navigation.
		if err := chromedp.Run(browserCtx); err != nil {
			cancel()
			return nil, nil, fmt.Errorf("chromedp warmup: %w", err)
		}
		return browserCtx, cancel, nil
	}
}
