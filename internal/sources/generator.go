// Package sources holds the source generator contract, the static registry
// catalog assembly consumes, and helpers shared by generators.
package sources

import (
	"context"
	"errors"
	"fmt"

	"github.com/JakeFAU/isocatalog/internal/catalog"
)

// ErrUnavailable is returned by generators whose upstream could not be read at all.
var ErrUnavailable = errors.New("source unavailable")

// Fetcher retrieves upstream text and JSON documents. It is satisfied by
// fetcher.Client.
type Fetcher interface {
	FetchText(ctx context.Context, rawURL string) (string, bool)
	FetchJSON(ctx context.Context, rawURL string, v any) bool
}

// Generator produces candidate records for one upstream source.
type Generator interface {
	Info() catalog.SourceInfo
	Generate(ctx context.Context) ([]catalog.CandidateRecord, error)
}

// Func adapts a function into a Generator.
type Func struct {
	info catalog.SourceInfo
	fn   func(ctx context.Context) ([]catalog.CandidateRecord, error)
}

// NewFunc returns a Generator described by info that runs fn.
func NewFunc(info catalog.SourceInfo, fn func(ctx context.Context) ([]catalog.CandidateRecord, error)) Func {
	return Func{info: info, fn: fn}
}

// Info implements Generator.
func (f Func) Info() catalog.SourceInfo {
	return f.info
}

// Generate implements Generator.
func (f Func) Generate(ctx context.Context) ([]catalog.CandidateRecord, error) {
	return f.fn(ctx)
}

// Registry is the static, ordered list of generators.
type Registry struct {
	gens  []Generator
	names map[string]struct{}
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{names: make(map[string]struct{})}
}

// Register appends g. Names must be unique and non-empty.
func (r *Registry) Register(g Generator) error {
	name := g.Info().Name
	if name == "" {
		return fmt.Errorf("register source: empty name")
	}
	if _, dup := r.names[name]; dup {
		return fmt.Errorf("register source %q: duplicate name", name)
	}
	r.names[name] = struct{}{}
	r.gens = append(r.gens, g)
	return nil
}

// Generators returns the registered generators in registration order.
func (r *Registry) Generators() []Generator {
	out := make([]Generator, len(r.gens))
	copy(out, r.gens)
	return out
}

// Len returns the number of registered generators.
func (r *Registry) Len() int {
	return len(r.gens)
}
