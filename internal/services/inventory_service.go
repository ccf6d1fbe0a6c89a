package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/furnishop/api/internal/repositories"
)

// InventoryServiceDeps bundles the collaborators required to construct an inventory service.
type InventoryServiceDeps struct {
	Inventory repositories.InventoryRepository
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

type inventoryService struct {
	repo   repositories.InventoryRepository
	logger func(context.Context, string, map[string]any)
}

// NewInventoryService wires dependencies into a concrete InventoryService implementation.
func NewInventoryService(deps InventoryServiceDeps) (InventoryService, error) {
	if deps.Inventory == nil {
		return nil, errors.New("inventory service: inventory repository is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &inventoryService{repo: deps.Inventory, logger: logger}, nil
}

func (s *inventoryService) Reserve(ctx context.Context, variationID string, quantity int) error {
	id := strings.TrimSpace(variationID)
	if id == "" || quantity <= 0 {
		return fmt.Errorf("%w: variation id and positive quantity are required", ErrValidation)
	}
	if err := s.repo.Reserve(ctx, id, quantity); err != nil {
		return s.mapRepositoryError(id, quantity, err)
	}
	return nil
}

func (s *inventoryService) Release(ctx context.Context, variationID string, quantity int) error {
	id := strings.TrimSpace(variationID)
	if id == "" || quantity <= 0 {
		return fmt.Errorf("%w: variation id and positive quantity are required", ErrValidation)
	}
	if err := s.repo.Release(ctx, id, quantity); err != nil {
		return s.mapRepositoryError(id, quantity, err)
	}
	return nil
}

// ReserveLines reserves lines in order and releases the already reserved ones when any line
// fails, so a failed call leaves stock unchanged.
func (s *inventoryService) ReserveLines(ctx context.Context, lines []StockLine) error {
	lines = mergeStockLines(lines)
	if len(lines) == 0 {
		return fmt.Errorf("%w: no lines to reserve", ErrValidation)
	}
	for i, line := range lines {
		if err := s.Reserve(ctx, line.VariationID, line.Quantity); err != nil {
			if rollbackErr := s.ReleaseLines(context.WithoutCancel(ctx), lines[:i]); rollbackErr != nil {
				s.logger(ctx, "inventory.rollback_failed", map[string]any{"error": rollbackErr.Error()})
			}
			return err
		}
	}
	return nil
}

func (s *inventoryService) ReleaseLines(ctx context.Context, lines []StockLine) error {
	var errs []error
	for _, line := range mergeStockLines(lines) {
		if err := s.Release(ctx, line.VariationID, line.Quantity); err != nil {
			s.logger(ctx, "inventory.release_failed", map[string]any{
				"variationId": line.VariationID,
				"quantity":    line.Quantity,
				"error":       err.Error(),
			})
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *inventoryService) mapRepositoryError(variationID string, quantity int, err error) error {
	code, ok := repositories.InventoryErrorCodeOf(err)
	if ok {
		switch code {
		case repositories.InventoryErrorInsufficientStock:
			return &StockError{VariationID: variationID, Requested: quantity}
		case repositories.InventoryErrorVariationNotFound:
			return &UnavailableError{VariationIDs: []string{variationID}}
		case repositories.InventoryErrorInvalidQuantity:
			return fmt.Errorf("%w: %v", ErrValidation, err)
		}
	}
	return translateRepoError(err, nil)
}

// mergeStockLines sums quantities per variation and keeps first-seen order.
func mergeStockLines(lines []StockLine) []StockLine {
	index := make(map[string]int, len(lines))
	out := make([]StockLine, 0, len(lines))
	for _, line := range lines {
		id := strings.TrimSpace(line.VariationID)
		if id == "" || line.Quantity <= 0 {
			continue
		}
		if i, ok := index[id]; ok {
			out[i].Quantity += line.Quantity
			continue
		}
		index[id] = len(out)
		out = append(out, StockLine{VariationID: id, Quantity: line.Quantity})
	}
	return out
}
