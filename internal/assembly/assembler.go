// Package assembly turns registered source generators into validated catalog
// entries: generate, check structure, probe liveness, filter.
package assembly

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/isocatalog/internal/catalog"
	"github.com/JakeFAU/isocatalog/internal/clock/system"
	"github.com/JakeFAU/isocatalog/internal/fanout"
	"github.com/JakeFAU/isocatalog/internal/progress"
	"github.com/JakeFAU/isocatalog/internal/sources"
)

// RecordValidator checks records for liveness. The result is aligned with recs.
type RecordValidator interface {
	ValidateRecords(ctx context.Context, recs []catalog.CandidateRecord) []bool
}

// Checker validates record structure.
type Checker interface {
	Check(rec catalog.CandidateRecord) error
}

// Clock abstracts time for durations in progress events.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
}

// Config controls assembly.
type Config struct {
	// SourceConcurrency caps sources built at once; zero is unbounded.
	SourceConcurrency int
	// RunID tags every progress event of this build.
	RunID uuid.UUID
}

// Assembler builds catalog entries.
type Assembler struct {
	cfg       Config
	validator RecordValidator
	checker   Checker
	emitter   progress.Emitter
	clock     Clock
	logger    *zap.Logger
	tracer    trace.Tracer
}

// New builds an Assembler. A nil emitter discards events; a nil clock uses
// the wall clock.
func New(cfg Config, validator RecordValidator, emitter progress.Emitter, clk Clock, logger *zap.Logger) *Assembler {
	if emitter == nil {
		emitter = progress.NopEmitter{}
	}
	if clk == nil {
		clk = system.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{
		cfg:       cfg,
		validator: validator,
		checker:   catalog.NewChecker(),
		emitter:   emitter,
		clock:     clk,
		logger:    logger.Named("assembly"),
		tracer:    otel.Tracer("github.com/JakeFAU/isocatalog/internal/assembly"),
	}
}

// BuildAll builds every source concurrently and returns the entries that
// survived, in registration order.
func (a *Assembler) BuildAll(ctx context.Context, gens []sources.Generator) []catalog.Entry {
	ctx, span := a.tracer.Start(ctx, "assembly.build_all",
		trace.WithAttributes(attribute.Int("sources", len(gens))))
	defer span.End()

	start := a.clock.Now()
	a.emit(progress.Event{Stage: progress.StageRunStart, Count: len(gens)})

	units := fanout.Units(gens, func(ctx context.Context, gen sources.Generator) fanout.Maybe[catalog.Entry] {
		entry, ok := a.BuildEntry(ctx, gen)
		return fanout.SomeIf(entry, ok)
	})
	entries := fanout.JoinSome(ctx, units,
		fanout.WithLimit(a.cfg.SourceConcurrency),
		fanout.WithLogger(a.logger),
	)

	dur := a.clock.Since(start)
	a.emit(progress.Event{Stage: progress.StageRunDone, Count: len(entries), Dur: dur})
	span.SetAttributes(attribute.Int("entries", len(entries)))
	a.logger.Info("Catalog assembled",
		zap.Int("sources", len(gens)),
		zap.Int("entries", len(entries)),
		zap.Duration("dur", dur),
	)
	return entries
}

// BuildEntry runs one source through generate, structure check, and liveness
// validation. It reports false when the source must be left out: generation
// failed, produced nothing, or no record survived.
func (a *Assembler) BuildEntry(ctx context.Context, gen sources.Generator) (catalog.Entry, bool) {
	info := gen.Info()
	ctx, span := a.tracer.Start(ctx, "assembly.source",
		trace.WithAttributes(attribute.String("source", info.Name)))
	defer span.End()

	logger := a.logger.With(zap.String("source", info.Name))
	start := a.clock.Now()
	a.emit(progress.Event{Stage: progress.StageSourceStart, Source: info.Name})

	drop := func(reason string) (catalog.Entry, bool) {
		span.SetStatus(codes.Error, reason)
		a.emit(progress.Event{
			Stage:  progress.StageSourceDropped,
			Source: info.Name,
			Reason: reason,
			Dur:    a.clock.Since(start),
		})
		return catalog.Entry{}, false
	}

	recs, err := gen.Generate(ctx)
	if err != nil {
		logger.Error("Failed to generate", zap.Error(err))
		span.RecordError(err)
		return drop(progress.ReasonGenerateFailed)
	}
	if len(recs) == 0 {
		logger.Error("No releases found")
		return drop(progress.ReasonNoReleases)
	}
	a.emit(progress.Event{Stage: progress.StageSourceGenerated, Source: info.Name, Count: len(recs)})
	span.SetAttributes(attribute.Int("records.generated", len(recs)))

	candidates := make([]catalog.CandidateRecord, 0, len(recs))
	for _, rec := range recs {
		if err := a.checker.Check(rec); err != nil {
			a.dropRecord(logger, info.Name, rec, progress.ReasonMalformed, zap.Error(err))
			continue
		}
		candidates = append(candidates, rec)
	}

	valid := a.validator.ValidateRecords(ctx, candidates)
	retained := make([]catalog.CandidateRecord, 0, len(candidates))
	for i, rec := range candidates {
		if i >= len(valid) || !valid[i] {
			a.dropRecord(logger, info.Name, rec, progress.ReasonUnresolvable)
			continue
		}
		retained = append(retained, rec)
		a.emit(progress.Event{Stage: progress.StageRecordRetained, Source: info.Name, Record: rec.Label()})
	}
	span.SetAttributes(attribute.Int("records.retained", len(retained)))

	if len(retained) == 0 {
		logger.Warn("No valid releases")
		return drop(progress.ReasonNoneRetained)
	}

	a.emit(progress.Event{
		Stage:  progress.StageSourceAssembled,
		Source: info.Name,
		Count:  len(retained),
		Dur:    a.clock.Since(start),
	})
	logger.Debug("Source assembled", zap.Int("generated", len(recs)), zap.Int("retained", len(retained)))
	return catalog.Entry{SourceInfo: info, Releases: retained}, true
}

func (a *Assembler) dropRecord(logger *zap.Logger, source string, rec catalog.CandidateRecord, reason string, extra ...zap.Field) {
	fields := append([]zap.Field{
		zap.String("release", rec.Release),
		zap.String("edition", rec.Edition),
		zap.String("arch", string(rec.Arch)),
		zap.String("reason", reason),
	}, extra...)
	logger.Warn("Removing record", fields...)
	a.emit(progress.Event{
		Stage:  progress.StageRecordDropped,
		Source: source,
		Record: rec.Label(),
		Reason: reason,
	})
}

func (a *Assembler) emit(evt progress.Event) {
	evt.RunID = progress.UUIDToBytes(a.cfg.RunID)
	if evt.TS.IsZero() {
		evt.TS = a.clock.Now()
	}
	a.emitter.Emit(evt)
}
