package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/furnishop/api/internal/repositories"
)

const maxCatalogBatch = 100

// CatalogServiceDeps wires the catalog repository.
type CatalogServiceDeps struct {
	Catalog repositories.CatalogRepository
	Logger  func(context.Context, string, map[string]any)
}

type catalogService struct {
	repo   repositories.CatalogRepository
	logger func(context.Context, string, map[string]any)
}

// NewCatalogService constructs a CatalogService.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Catalog == nil {
		return nil, errors.New("catalog service: catalog repository is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &catalogService{repo: deps.Catalog, logger: logger}, nil
}

func (s *catalogService) Lookup(ctx context.Context, variationID string) (Variation, error) {
	id := strings.TrimSpace(variationID)
	if id == "" {
		return Variation{}, fmt.Errorf("%w: variation id is required", ErrValidation)
	}
	found, err := s.LookupMany(ctx, []string{id})
	if err != nil {
		return Variation{}, err
	}
	variation, ok := found[id]
	if !ok {
		return Variation{}, fmt.Errorf("%w: variation %s", ErrNotFound, id)
	}
	return variation, nil
}

// LookupMany de-duplicates ids and queries the repository in bounded batches.
func (s *catalogService) LookupMany(ctx context.Context, variationIDs []string) (map[string]Variation, error) {
	ids := uniqueIDs(variationIDs)
	result := make(map[string]Variation, len(ids))
	for start := 0; start < len(ids); start += maxCatalogBatch {
		end := min(start+maxCatalogBatch, len(ids))
		batch, err := s.repo.FindVariations(ctx, ids[start:end])
		if err != nil {
			s.logger(ctx, "catalog.lookup_failed", map[string]any{"count": end - start, "error": err.Error()})
			return nil, translateRepoError(err, nil)
		}
		for id, variation := range batch {
			result[id] = variation
		}
	}
	return result, nil
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
