// Package lookup implements the cache-then-fetch resolution policy.
package lookup

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/oemtools/vid-lookup/internal/catalog"
	"github.com/oemtools/vid-lookup/internal/metrics"
)

// Provenance says where a returned record came from.
type Provenance string

// Provenance values.
const (
	ProvenanceCached  Provenance = "cached"
	ProvenanceFetched Provenance = "fetched"
)

// Coordinator glues the cache and the resolver together: check the cache,
// otherwise resolve against the live catalog and persist the result.
type Coordinator struct {
	cache     catalog.Cache
	resolver  catalog.Resolver
	publisher catalog.Publisher
	topic     string
	logger    *zap.Logger
}

// New builds a Coordinator. publisher may be nil when notifications are off.
func New(
	cache catalog.Cache,
	resolver catalog.Resolver,
	publisher catalog.Publisher,
	topic string,
	logger *zap.Logger,
) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		cache:     cache,
		resolver:  resolver,
		publisher: publisher,
		topic:     topic,
		logger:    logger,
	}
}

// Lookup resolves a selection to a VID record and reports its provenance.
// Errors are always one of: catalog.ErrMissingSeries (invalid input),
// catalog.ErrNoVID (definitive no-match), or a catalog.TransientError the
// caller may retry later.
func (c *Coordinator) Lookup(ctx context.Context, sel catalog.Selection) (*catalog.Record, Provenance, error) {
	if err := sel.Validate(); err != nil {
		metrics.ObserveLookup("invalid")
		return nil, "", err
	}

	rec, err := c.cache.Find(ctx, sel)
	if err != nil {
		// Cache implementations degrade failures themselves; this path only
		// guards alternative implementations. A broken cache never blocks a
		// resolvable VID.
		c.logger.Warn("cache lookup failed, treating as miss", zap.Error(err))
	}
	if rec != nil {
		c.logger.Info("cache hit", zap.String("series", sel.Series), zap.String("vid", rec.VID))
		metrics.ObserveLookup(string(ProvenanceCached))
		return rec, ProvenanceCached, nil
	}

	c.logger.Info("cache miss, resolving against catalog", zap.String("series", sel.Series))
	rec, err = c.resolver.Resolve(ctx, sel)
	if err != nil {
		switch {
		case errors.Is(err, catalog.ErrNoVID):
			metrics.ObserveLookup("not_found")
		case catalog.IsTransient(err):
			metrics.ObserveLookup("transient")
		default:
			// Nothing unclassified may cross this boundary.
			metrics.ObserveLookup("transient")
			err = &catalog.TransientError{Err: err}
		}
		return nil, "", fmt.Errorf("resolve %s: %w", sel.Series, err)
	}

	if insertErr := c.cache.Insert(ctx, rec); insertErr != nil {
		// The record is still good; the next identical lookup just pays for
		// another resolution.
		c.logger.Warn("cache insert failed", zap.String("vid", rec.VID), zap.Error(insertErr))
	}
	c.notify(ctx, rec)
	metrics.ObserveLookup(string(ProvenanceFetched))
	return rec, ProvenanceFetched, nil
}

// Stats exposes cache statistics to the HTTP layer.
func (c *Coordinator) Stats(ctx context.Context) (catalog.Stats, error) {
	return c.cache.Stats(ctx)
}

func (c *Coordinator) notify(ctx context.Context, rec *catalog.Record) {
	if c.publisher == nil {
		return
	}
	if _, err := c.publisher.Publish(ctx, c.topic, rec); err != nil {
		c.logger.Warn("resolved-vid notification failed", zap.String("vid", rec.VID), zap.Error(err))
	}
}
