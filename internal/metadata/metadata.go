// Package metadata looks up display names for candidates and targets.
// Lookups are best effort: callers fall back to raw ids on any failure.
package metadata

import (
	"context"
	"log/slog"
)

// Resolver returns a display name for an id, or "" when none is known
type Resolver interface {
	CandidateName(ctx context.Context, id string) (string, error)
	TargetName(ctx context.Context, id string) (string, error)
}

// NopResolver knows no names
type NopResolver struct{}

func (NopResolver) CandidateName(context.Context, string) (string, error) { return "", nil }

func (NopResolver) TargetName(context.Context, string) (string, error) { return "", nil }

// Enricher resolves names for a batch of ids, once per distinct id
type Enricher struct {
	resolver Resolver
	logger   *slog.Logger
}

// NewEnricher creates an Enricher
func NewEnricher(resolver Resolver, logger *slog.Logger) *Enricher {
	if resolver == nil {
		resolver = NopResolver{}
	}
	return &Enricher{
		resolver: resolver,
		logger:   logger,
	}
}

// Candidates maps each candidate id to its name. Unresolved ids are absent.
func (e *Enricher) Candidates(ctx context.Context, ids []string) map[string]string {
	return e.resolve(ctx, "candidate", ids, e.resolver.CandidateName)
}

// Targets maps each target id to its name. Unresolved ids are absent.
func (e *Enricher) Targets(ctx context.Context, ids []string) map[string]string {
	return e.resolve(ctx, "target", ids, e.resolver.TargetName)
}

func (e *Enricher) resolve(ctx context.Context, kind string, ids []string, lookup func(context.Context, string) (string, error)) map[string]string {
	names := make(map[string]string, len(ids))
	seen := make(map[string]struct{}, len(ids))

	for _, id := range ids {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}

		name, err := lookup(ctx, id)
		if err != nil {
			e.logger.Warn("Metadata lookup failed",
				slog.String("kind", kind),
				slog.String("id", id),
				slog.String("error", err.Error()),
			)
			continue
		}
		if name != "" {
			names[id] = name
		}
	}
	return names
}
