package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	domain "github.com/furnishop/api/internal/domain"
	"github.com/furnishop/api/internal/repositories"
)

const (
	maxCartLines        = 100
	maxCartLineQuantity = 999
	defaultCurrency     = "VND"
)

var (
	errCartRepositoryRequired = errors.New("cart service: repository is required")
	errCartCatalogRequired    = errors.New("cart service: catalog is required")
	errCartClockRequired      = errors.New("cart service: clock is required")
)

// CartServiceDeps wires the repository and catalog dependencies for cart operations.
type CartServiceDeps struct {
	Carts    repositories.CartRepository
	Catalog  CatalogService
	Clock    func() time.Time
	Currency string
	Logger   func(context.Context, string, map[string]any)
}

type cartService struct {
	repo     repositories.CartRepository
	catalog  CatalogService
	now      func() time.Time
	currency string
	logger   func(context.Context, string, map[string]any)
}

// NewCartService constructs a CartService enforcing dependency validation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Carts == nil {
		return nil, errCartRepositoryRequired
	}
	if deps.Catalog == nil {
		return nil, errCartCatalogRequired
	}
	if deps.Clock == nil {
		return nil, errCartClockRequired
	}
	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = defaultCurrency
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &cartService{
		repo:     deps.Carts,
		catalog:  deps.Catalog,
		now:      func() time.Time { return deps.Clock().UTC() },
		currency: currency,
		logger:   logger,
	}, nil
}

// GetCart prices the caller's cart against the live catalog. A missing cart is returned empty.
func (s *cartService) GetCart(ctx context.Context, key CartKey) (CartView, error) {
	cart, _, err := s.load(ctx, key)
	if err != nil {
		return CartView{}, err
	}
	view := CartView{Cart: cart, Currency: s.currency}
	if len(cart.Items) == 0 {
		return view, nil
	}

	ids := make([]string, 0, len(cart.Items))
	for _, item := range cart.Items {
		ids = append(ids, item.VariationID)
	}
	variations, err := s.catalog.LookupMany(ctx, ids)
	if err != nil {
		return CartView{}, err
	}

	for _, item := range cart.Items {
		line := CartLineView{VariationID: item.VariationID, Quantity: item.Quantity}
		if variation, ok := variations[item.VariationID]; ok {
			line.ProductID = variation.ProductID
			line.Name = variation.Name
			line.UnitPrice = variation.UnitPrice()
			line.LineTotal = line.UnitPrice * int64(item.Quantity)
			line.Stock = variation.Stock
			line.Available = variation.Sellable && variation.Stock >= item.Quantity
		}
		if line.Available {
			view.Subtotal += line.LineTotal
		} else {
			view.HasProblems = true
		}
		view.Lines = append(view.Lines, line)
	}
	return view, nil
}

// AddItem merges quantity into the cart after checking the variation's remaining stock.
func (s *cartService) AddItem(ctx context.Context, cmd CartItemCommand) (Cart, error) {
	if cmd.Quantity <= 0 || cmd.Quantity > maxCartLineQuantity {
		return Cart{}, fmt.Errorf("%w: quantity must be between 1 and %d", ErrValidation, maxCartLineQuantity)
	}
	variation, err := s.resolveSellable(ctx, cmd.VariationID)
	if err != nil {
		return Cart{}, err
	}

	cart, _, err := s.load(ctx, cmd.Key)
	if err != nil {
		return Cart{}, err
	}

	idx := indexOfCartItem(cart.Items, variation.ID)
	inCart := 0
	if idx >= 0 {
		inCart = cart.Items[idx].Quantity
	}
	remaining := variation.Stock - inCart
	switch {
	case remaining <= 0:
		return Cart{}, ErrNothingToAdd
	case remaining < cmd.Quantity:
		return Cart{}, &StockError{VariationID: variation.ID, Requested: cmd.Quantity, Available: remaining}
	}

	now := s.now()
	if idx >= 0 {
		cart.Items[idx].Quantity += cmd.Quantity
	} else {
		if len(cart.Items) >= maxCartLines {
			return Cart{}, fmt.Errorf("%w: cart cannot hold more than %d lines", ErrValidation, maxCartLines)
		}
		cart.Items = append(cart.Items, CartItem{VariationID: variation.ID, Quantity: cmd.Quantity, AddedAt: now})
	}
	return s.save(ctx, cart, now)
}

// UpdateItem sets the line quantity. Zero removes the line.
func (s *cartService) UpdateItem(ctx context.Context, cmd CartItemCommand) (Cart, error) {
	if cmd.Quantity < 0 || cmd.Quantity > maxCartLineQuantity {
		return Cart{}, fmt.Errorf("%w: quantity must be between 0 and %d", ErrValidation, maxCartLineQuantity)
	}
	if cmd.Quantity == 0 {
		return s.RemoveItem(ctx, cmd.Key, cmd.VariationID)
	}

	cart, exists, err := s.load(ctx, cmd.Key)
	if err != nil {
		return Cart{}, err
	}
	variationID := strings.TrimSpace(cmd.VariationID)
	idx := indexOfCartItem(cart.Items, variationID)
	if !exists || idx < 0 {
		return Cart{}, fmt.Errorf("%w: variation %s is not in the cart", ErrCartNotFound, variationID)
	}

	variation, err := s.resolveSellable(ctx, variationID)
	if err != nil {
		return Cart{}, err
	}
	if variation.Stock < cmd.Quantity {
		return Cart{}, &StockError{VariationID: variationID, Requested: cmd.Quantity, Available: variation.Stock}
	}
	if cart.Items[idx].Quantity == cmd.Quantity {
		return cart, nil
	}
	cart.Items[idx].Quantity = cmd.Quantity
	return s.save(ctx, cart, s.now())
}

func (s *cartService) RemoveItem(ctx context.Context, key CartKey, variationID string) (Cart, error) {
	id := strings.TrimSpace(variationID)
	if id == "" {
		return Cart{}, fmt.Errorf("%w: variation id is required", ErrValidation)
	}
	return s.RemoveItems(ctx, key, []string{id})
}

// RemoveItems drops the listed lines. Removing the last line deletes the cart.
func (s *cartService) RemoveItems(ctx context.Context, key CartKey, variationIDs []string) (Cart, error) {
	ids := uniqueIDs(variationIDs)
	if len(ids) == 0 {
		return Cart{}, fmt.Errorf("%w: at least one variation id is required", ErrValidation)
	}
	cart, exists, err := s.load(ctx, key)
	if err != nil {
		return Cart{}, err
	}
	if !exists {
		return cart, nil
	}

	before := len(cart.Items)
	cart.Items = slices.DeleteFunc(cart.Items, func(item CartItem) bool {
		return slices.Contains(ids, item.VariationID)
	})
	if len(cart.Items) == before {
		return cart, nil
	}
	return s.save(ctx, cart, s.now())
}

func (s *cartService) Clear(ctx context.Context, key CartKey) error {
	id := key.StorageID()
	if id == "" {
		return fmt.Errorf("%w: cart owner is required", ErrValidation)
	}
	if err := s.repo.Delete(ctx, id); err != nil && !isRepoNotFound(err) {
		return translateRepoError(err, ErrCartNotFound)
	}
	return nil
}

// MergeOnLogin folds the guest cart into the user's cart. A user cart that already holds items
// wins outright. Once the guest cart has been read it is deleted on every path, including
// failed merges; the error of the merge itself is still returned.
func (s *cartService) MergeOnLogin(ctx context.Context, guestToken, userID string) (MergeResult, error) {
	guestKey := CartKey{GuestToken: guestToken}
	userKey := CartKey{UserID: userID}
	if strings.TrimSpace(guestToken) == "" || strings.TrimSpace(userID) == "" {
		return MergeResult{}, fmt.Errorf("%w: guest token and user id are required", ErrValidation)
	}

	guest, guestExists, err := s.load(ctx, guestKey)
	if err != nil {
		return MergeResult{}, err
	}
	if !guestExists {
		user, _, err := s.load(ctx, userKey)
		if err != nil {
			return MergeResult{}, err
		}
		return MergeResult{Cart: user}, nil
	}

	result, mergeErr := s.mergeGuest(ctx, guest, userKey)
	if err := s.Clear(ctx, guestKey); err != nil {
		if mergeErr != nil {
			s.logger(ctx, "cart.merge_guest_cleanup_failed", map[string]any{"userId": userID, "error": err.Error()})
			return MergeResult{}, mergeErr
		}
		return MergeResult{}, err
	}
	if mergeErr != nil {
		s.logger(ctx, "cart.merge_failed", map[string]any{"userId": userID, "error": mergeErr.Error()})
		return MergeResult{}, mergeErr
	}
	s.logger(ctx, "cart.merged", map[string]any{
		"userId":  userID,
		"merged":  result.Merged,
		"dropped": len(result.Dropped),
	})
	return result, nil
}

func (s *cartService) mergeGuest(ctx context.Context, guest Cart, userKey CartKey) (MergeResult, error) {
	user, _, err := s.load(ctx, userKey)
	if err != nil {
		return MergeResult{}, err
	}
	result := MergeResult{Cart: user}
	if len(guest.Items) == 0 {
		return result, nil
	}
	if len(user.Items) > 0 {
		s.logger(ctx, "cart.merge_skipped", map[string]any{
			"userId":     userKey.UserID,
			"userItems":  len(user.Items),
			"guestItems": len(guest.Items),
		})
		return result, nil
	}

	ids := make([]string, 0, len(guest.Items))
	for _, item := range guest.Items {
		ids = append(ids, item.VariationID)
	}
	variations, err := s.catalog.LookupMany(ctx, ids)
	if err != nil {
		return MergeResult{}, err
	}

	for _, item := range guest.Items {
		variation, ok := variations[item.VariationID]
		quantity := 0
		if ok && variation.Sellable {
			quantity = min(item.Quantity, variation.Stock)
		}
		if quantity <= 0 {
			result.Dropped = append(result.Dropped, item.VariationID)
			continue
		}
		user.Items = append(user.Items, CartItem{VariationID: item.VariationID, Quantity: quantity, AddedAt: item.AddedAt})
	}
	if len(user.Items) > 0 {
		saved, err := s.save(ctx, user, s.now())
		if err != nil {
			return MergeResult{}, err
		}
		result.Cart = saved
		result.Merged = true
	}
	return result, nil
}

// load returns the stored cart or a fresh unsaved one, reporting whether it was found.
func (s *cartService) load(ctx context.Context, key CartKey) (Cart, bool, error) {
	key = key.Normalize()
	id := key.StorageID()
	if id == "" {
		return Cart{}, false, fmt.Errorf("%w: cart owner is required", ErrValidation)
	}
	cart, err := s.repo.Get(ctx, id)
	if err != nil {
		if isRepoNotFound(err) {
			kind, owner := key.Owner()
			return Cart{ID: id, OwnerKind: kind, OwnerID: owner}, false, nil
		}
		return Cart{}, false, translateRepoError(err, ErrCartNotFound)
	}
	cart.Items = slices.Clone(cart.Items)
	return cart, true, nil
}

// save persists the cart, or deletes it when no lines remain.
func (s *cartService) save(ctx context.Context, cart Cart, now time.Time) (Cart, error) {
	if len(cart.Items) == 0 {
		if err := s.repo.Delete(ctx, cart.ID); err != nil && !isRepoNotFound(err) {
			return Cart{}, translateRepoError(err, ErrCartNotFound)
		}
		return Cart{ID: cart.ID, OwnerKind: cart.OwnerKind, OwnerID: cart.OwnerID}, nil
	}
	if cart.CreatedAt.IsZero() {
		cart.CreatedAt = now
	}
	cart.UpdatedAt = now
	saved, err := s.repo.Save(ctx, cart)
	if err != nil {
		return Cart{}, translateRepoError(err, ErrCartNotFound)
	}
	return saved, nil
}

func (s *cartService) resolveSellable(ctx context.Context, variationID string) (Variation, error) {
	id := strings.TrimSpace(variationID)
	if id == "" {
		return Variation{}, fmt.Errorf("%w: variation id is required", ErrValidation)
	}
	variation, err := s.catalog.Lookup(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Variation{}, fmt.Errorf("%w: %s", ErrInvalidReference, id)
		}
		return Variation{}, err
	}
	if !variation.Sellable {
		return Variation{}, fmt.Errorf("%w: %s is not sellable", ErrInvalidReference, id)
	}
	return variation, nil
}

func indexOfCartItem(items []domain.CartItem, variationID string) int {
	return slices.IndexFunc(items, func(item domain.CartItem) bool {
		return item.VariationID == variationID
	})
}
