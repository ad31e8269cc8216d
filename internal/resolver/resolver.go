// Package resolver fetches VIDs from the live parts catalog.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/oemtools/vid-lookup/internal/catalog"
	"github.com/oemtools/vid-lookup/internal/metrics"
)

// vidSelector addresses the hidden input the catalog stores the vehicle
// identifier in on the selection page.
const vidSelector = `input[type="hidden"]`

const snapshotTimeout = 5 * time.Second

// Session is the serialized access point to the shared browser, implemented
// by browser.Manager.
type Session interface {
	Do(ctx context.Context, fn func(browserCtx context.Context) error) error
}

// Config controls resolution behavior.
type Config struct {
	// NavTimeout bounds the page navigation itself.
	NavTimeout time.Duration
	// WaitTimeout bounds the wait for the identifier element. Running out
	// of it is a not-found outcome, not an error.
	WaitTimeout time.Duration
	// MaxQPS rate-limits browser navigations toward the catalog.
	MaxQPS float64
	// UserAgent overrides the tab user agent before navigation.
	UserAgent string
	// SnapshotPrefix is the object-path prefix for archived no-match pages.
	SnapshotPrefix string
}

// Resolver drives the shared browser session to resolve a selection into a
// VID record. It never writes to the cache; the coordinator owns that.
type Resolver struct {
	urls      catalog.URLBuilder
	session   Session
	probe     *Probe
	snapshots catalog.SnapshotStore
	clock     catalog.Clock
	limiter   *rate.Limiter
	cfg       Config
	logger    *zap.Logger
}

// New builds a Resolver. probe and snapshots may be nil.
func New(
	urls catalog.URLBuilder,
	session Session,
	probe *Probe,
	snapshots catalog.SnapshotStore,
	clock catalog.Clock,
	cfg Config,
	logger *zap.Logger,
) *Resolver {
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = 45 * time.Second
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = 30 * time.Second
	}
	var limiter *rate.Limiter
	if cfg.MaxQPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.MaxQPS), 1)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		urls:      urls,
		session:   session,
		probe:     probe,
		snapshots: snapshots,
		clock:     clock,
		limiter:   limiter,
		cfg:       cfg,
		logger:    logger,
	}
}

// Resolve looks the selection up on the live catalog. It returns
// catalog.ErrNoVID when the catalog has no matching vehicle and a
// catalog.TransientError when the session or navigation failed.
func (r *Resolver) Resolve(ctx context.Context, sel catalog.Selection) (*catalog.Record, error) {
	pageURL := r.urls.SelectURL(sel)
	r.logger.Info("resolving selection", zap.String("url", pageURL))

	if r.probe != nil {
		vid, ok, err := r.probe.FetchVID(pageURL)
		switch {
		case err != nil:
			r.logger.Debug("probe failed, promoting to browser", zap.Error(err))
		case ok:
			r.logger.Info("probe resolved vid", zap.String("vid", vid))
			metrics.ObserveProbeHit()
			return r.newRecord(sel, vid), nil
		default:
			r.logger.Debug("probe found no vid, promoting to browser")
		}
	}

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, &catalog.TransientError{Err: fmt.Errorf("politeness wait: %w", err)}
		}
	}

	start := time.Now()
	var (
		vid      string
		pageHTML string
	)
	err := r.session.Do(ctx, func(browserCtx context.Context) error {
		return r.fetchFromPage(browserCtx, pageURL, &vid, &pageHTML)
	})
	metrics.ObserveResolveDuration(time.Since(start))
	if err != nil {
		return nil, &catalog.TransientError{Err: err}
	}
	if vid == "" {
		r.logger.Info("vid not found on selection page", zap.String("series", sel.Series))
		r.archiveMiss(ctx, sel, pageHTML)
		return nil, catalog.ErrNoVID
	}
	r.logger.Info("resolved vid", zap.String("vid", vid), zap.String("series", sel.Series))
	return r.newRecord(sel, vid), nil
}

// fetchFromPage runs the navigate/wait/extract sequence in a fresh tab. The
// tab derives from the session context, not the request, so a caller
// hang-up cannot tear down the shared browser mid-flight.
func (r *Resolver) fetchFromPage(browserCtx context.Context, pageURL string, vid, pageHTML *string) error {
	tabCtx, cancelTab := chromedp.NewContext(browserCtx)
	defer cancelTab()

	navCtx, cancelNav := context.WithTimeout(tabCtx, r.cfg.NavTimeout)
	defer cancelNav()
	if err := chromedp.Run(navCtx, r.networkSetupAction(), chromedp.Navigate(pageURL)); err != nil {
		return fmt.Errorf("navigate selection page: %w", err)
	}

	waitCtx, cancelWait := context.WithTimeout(tabCtx, r.cfg.WaitTimeout)
	defer cancelWait()
	var attrFound bool
	err := chromedp.Run(waitCtx,
		chromedp.WaitReady(vidSelector, chromedp.ByQuery),
		chromedp.AttributeValue(vidSelector, "value", vid, &attrFound, chromedp.ByQuery),
	)
	switch {
	case err == nil:
		if !attrFound {
			*vid = ""
		}
	case errors.Is(err, context.DeadlineExceeded) && tabCtx.Err() == nil:
		// The element never appeared inside the wait budget: the catalog has
		// no matching vehicle. The session itself is fine.
		*vid = ""
	default:
		return fmt.Errorf("wait for vid element: %w", err)
	}

	if *vid == "" && r.snapshots != nil {
		snapCtx, cancelSnap := context.WithTimeout(tabCtx, snapshotTimeout)
		defer cancelSnap()
		if htmlErr := chromedp.Run(snapCtx, chromedp.OuterHTML("html", pageHTML, chromedp.ByQuery)); htmlErr != nil {
			r.logger.Debug("snapshot capture failed", zap.Error(htmlErr))
		}
	}
	return nil
}

// networkSetupAction prepares the fresh tab: network domain on, user agent
// and Accept-Language matching the enUS catalog locale.
func (r *Resolver) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if r.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(r.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		headers := network.Headers{"Accept-Language": "en-US,en;q=0.9"}
		if err := network.SetExtraHTTPHeaders(headers).Do(ctx); err != nil {
			return fmt.Errorf("set extra headers: %w", err)
		}
		return nil
	})
}

func (r *Resolver) newRecord(sel catalog.Selection, vid string) *catalog.Record {
	now := r.clock.Now()
	return &catalog.Record{
		VID:        vid,
		Series:     sel.Series,
		Body:       sel.Body,
		Model:      sel.Model,
		Market:     sel.Market,
		Production: sel.Production,
		Engine:     sel.Engine,
		Steering:   sel.Steering,
		URL:        r.urls.PartGroupURL(vid),
		CreatedAt:  now,
		LastAccess: now,
	}
}

func (r *Resolver) archiveMiss(ctx context.Context, sel catalog.Selection, html string) {
	if r.snapshots == nil || html == "" {
		return
	}
	path := fmt.Sprintf("%s/%s/%d.html", r.cfg.SnapshotPrefix, sel.Series, r.clock.Now().UnixMilli())
	uri, err := r.snapshots.PutObject(ctx, path, "text/html; charset=utf-8", strings.NewReader(html))
	if err != nil {
		r.logger.Warn("snapshot store failed", zap.Error(err))
		return
	}
	r.logger.Info("no-match page archived", zap.String("uri", uri))
}
