// Package linkcheck confirms that every network resource a candidate record
// references is reachable before the record is published.
package linkcheck

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/isocatalog/internal/catalog"
	"github.com/JakeFAU/isocatalog/internal/fanout"
	"github.com/JakeFAU/isocatalog/internal/fetcher"
	"github.com/JakeFAU/isocatalog/internal/metrics"
	"github.com/JakeFAU/isocatalog/internal/policy/admission"
)

// Prober issues a reachability request and returns the final status code.
type Prober interface {
	Probe(ctx context.Context, rawURL string) (int, error)
}

// Config controls validation fan-out and caching.
type Config struct {
	// RecordConcurrency caps records validated at once; zero is unbounded.
	RecordConcurrency int
	// CacheSize enables a per-run cache of probe results; zero disables it.
	CacheSize int
}

// Validator classifies URLs and records as valid or invalid.
type Validator struct {
	prober Prober
	cfg    Config
	cache  *lru.Cache[string, bool]
	logger *zap.Logger
}

// New builds a Validator.
func New(prober Prober, cfg Config, logger *zap.Logger) (*Validator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	v := &Validator{
		prober: prober,
		cfg:    cfg,
		logger: logger.Named("linkcheck"),
	}
	if cfg.CacheSize > 0 {
		cache, err := lru.New[string, bool](cfg.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("create probe cache: %w", err)
		}
		v.cache = cache
	}
	return v, nil
}

// Check reports whether rawURL is live. Success statuses are valid, and so
// is 429: the resource most likely exists and the host is only throttling.
func (v *Validator) Check(ctx context.Context, rawURL string) bool {
	if v.cache != nil {
		if valid, ok := v.cache.Get(rawURL); ok {
			metrics.ObserveLinkCheck("cached")
			return valid
		}
	}

	status, err := v.prober.Probe(ctx, rawURL)
	switch {
	case errors.Is(err, fetcher.ErrMalformedURL):
		v.logger.Warn("Malformed URL", zap.String("url", rawURL))
		metrics.ObserveLinkCheck("malformed")
		v.remember(rawURL, false)
		return false
	case errors.Is(err, admission.ErrPoolClosed):
		v.logger.Error("Admission closed while probing", zap.String("url", rawURL))
		metrics.ObserveLinkCheck("error")
		return false
	case err != nil:
		v.logger.Error("Probe failed", zap.String("url", rawURL), zap.Error(err))
		metrics.ObserveLinkCheck("error")
		return false
	case status >= 200 && status <= 299:
		metrics.ObserveLinkCheck("valid")
		v.remember(rawURL, true)
		return true
	case status == http.StatusTooManyRequests:
		v.logger.Debug("Rate limited, assuming valid", zap.String("url", rawURL))
		metrics.ObserveLinkCheck("rate_limited")
		v.remember(rawURL, true)
		return true
	default:
		v.logger.Warn("Unexpected status",
			zap.String("url", rawURL),
			zap.Int("status", status),
		)
		metrics.ObserveLinkCheck("invalid")
		if status < http.StatusInternalServerError {
			v.remember(rawURL, false)
		}
		return false
	}
}

// remember caches definitive results only; transport failures and server
// errors are left to be probed again.
func (v *Validator) remember(rawURL string, valid bool) {
	if v.cache != nil {
		v.cache.Add(rawURL, valid)
	}
}

// AllValid checks urls concurrently and reports whether every one is live.
// An empty set is valid.
func (v *Validator) AllValid(ctx context.Context, urls []string) bool {
	if len(urls) == 0 {
		return true
	}
	units := fanout.Units(urls, v.Check)
	for _, ok := range fanout.Join(ctx, units, fanout.WithLogger(v.logger)) {
		if !ok {
			return false
		}
	}
	return true
}

// ValidateRecord checks every network URL of rec, disk images included.
// Container references are exempt.
func (v *Validator) ValidateRecord(ctx context.Context, rec catalog.CandidateRecord) bool {
	return v.AllValid(ctx, rec.NetworkURLs())
}

// ValidateRecords validates recs concurrently. The result is aligned with recs.
func (v *Validator) ValidateRecords(ctx context.Context, recs []catalog.CandidateRecord) []bool {
	units := fanout.Units(recs, v.ValidateRecord)
	return fanout.Join(ctx, units,
		fanout.WithLimit(v.cfg.RecordConcurrency),
		fanout.WithLogger(v.logger),
	)
}
