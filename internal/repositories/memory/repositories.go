package memory

import (
	"context"
	"strings"

	domain "github.com/furnishop/api/internal/domain"
	"github.com/furnishop/api/internal/repositories"
)

type cartRepository struct{ s *Store }

func (r cartRepository) Get(_ context.Context, cartID string) (domain.Cart, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cart, ok := r.s.carts[cartID]
	if !ok {
		return domain.Cart{}, repositories.NewStoreError("cart.get", repositories.KindNotFound, nil)
	}
	return cloneCart(cart), nil
}

func (r cartRepository) Save(_ context.Context, cart domain.Cart) (domain.Cart, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if strings.TrimSpace(cart.ID) == "" {
		return domain.Cart{}, repositories.NewStoreError("cart.save", repositories.KindUnknown, errMissingID)
	}
	if existing, ok := r.s.carts[cart.ID]; ok && cart.CreatedAt.IsZero() {
		cart.CreatedAt = existing.CreatedAt
	}
	r.s.carts[cart.ID] = cloneCart(cart)
	return cloneCart(cart), nil
}

func (r cartRepository) Delete(_ context.Context, cartID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.carts, cartID)
	return nil
}

type catalogRepository struct{ s *Store }

func (r catalogRepository) FindVariations(_ context.Context, ids []string) (map[string]domain.Variation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	result := make(map[string]domain.Variation, len(ids))
	for _, id := range ids {
		if v, ok := r.s.variations[id]; ok {
			result[id] = v
		}
	}
	return result, nil
}

type inventoryRepository struct{ s *Store }

func (r inventoryRepository) Reserve(_ context.Context, variationID string, quantity int) error {
	if quantity <= 0 {
		return repositories.NewInventoryError(repositories.InventoryErrorInvalidQuantity, variationID, nil)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	v, ok := r.s.variations[variationID]
	if !ok {
		return repositories.NewInventoryError(repositories.InventoryErrorVariationNotFound, variationID, nil)
	}
	if v.Stock < quantity {
		return repositories.NewInventoryError(repositories.InventoryErrorInsufficientStock, variationID, nil)
	}
	v.Stock -= quantity
	r.s.variations[variationID] = v
	return nil
}

func (r inventoryRepository) Release(_ context.Context, variationID string, quantity int) error {
	if quantity <= 0 {
		return repositories.NewInventoryError(repositories.InventoryErrorInvalidQuantity, variationID, nil)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	v, ok := r.s.variations[variationID]
	if !ok {
		return repositories.NewInventoryError(repositories.InventoryErrorVariationNotFound, variationID, nil)
	}
	v.Stock += quantity
	r.s.variations[variationID] = v
	return nil
}

type orderRepository struct{ s *Store }

func (r orderRepository) Insert(_ context.Context, order domain.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.orders[order.ID]; exists {
		return repositories.NewStoreError("order.insert", repositories.KindConflict, errDuplicateID)
	}
	if _, exists := r.s.byCode[order.OrderCode]; exists {
		return repositories.NewStoreError("order.insert", repositories.KindConflict, errDuplicateCode)
	}
	transIDs := order.AttachedTransIDs()
	for _, id := range transIDs {
		if _, exists := r.s.byTransID[id]; exists {
			return repositories.NewStoreError("order.insert", repositories.KindConflict, errDuplicateTransID)
		}
	}
	for _, id := range transIDs {
		r.s.byTransID[id] = order.ID
	}
	order.GatewayTransIDs = transIDs
	r.s.orders[order.ID] = cloneOrder(order)
	r.s.byCode[order.OrderCode] = order.ID
	return nil
}

func (r orderRepository) FindByID(_ context.Context, orderID string) (domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.lookup(orderID)
}

func (r orderRepository) FindByCode(_ context.Context, orderCode string) (domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.lookup(r.s.byCode[orderCode])
}

func (r orderRepository) FindByGatewayTransID(_ context.Context, gatewayTransID string) (domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.lookup(r.s.byTransID[gatewayTransID])
}

func (r orderRepository) lookup(orderID string) (domain.Order, error) {
	order, ok := r.s.orders[orderID]
	if !ok || orderID == "" {
		return domain.Order{}, repositories.NewStoreError("order.find", repositories.KindNotFound, nil)
	}
	return cloneOrder(order), nil
}

func (r orderRepository) UpdateStatus(_ context.Context, update repositories.OrderStatusUpdate) (domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	order, ok := r.s.orders[update.OrderID]
	if !ok {
		return domain.Order{}, repositories.NewStoreError("order.update_status", repositories.KindNotFound, nil)
	}
	if order.Status != update.ExpectedStatus ||
		(update.ExpectedPaymentStatus != "" && order.PaymentStatus != update.ExpectedPaymentStatus) {
		return domain.Order{}, repositories.NewStoreError("order.update_status", repositories.KindConflict, errStaleOrder)
	}
	order.Status = update.Status
	if update.PaymentStatus != "" {
		order.PaymentStatus = update.PaymentStatus
	}
	if update.Entry != nil {
		order.StatusHistory = append(order.StatusHistory, *update.Entry)
	}
	order.UpdatedAt = update.UpdatedAt
	r.s.orders[order.ID] = order
	return cloneOrder(order), nil
}

func (r orderRepository) AttachPayment(_ context.Context, attachment repositories.OrderPaymentAttachment) (domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	order, ok := r.s.orders[attachment.OrderID]
	if !ok {
		return domain.Order{}, repositories.NewStoreError("order.attach_payment", repositories.KindNotFound, nil)
	}
	if order.Status != domain.OrderStatusPending ||
		(order.PaymentStatus != domain.PaymentStatusUnpaid && order.PaymentStatus != domain.PaymentStatusPending) {
		return domain.Order{}, repositories.NewStoreError("order.attach_payment", repositories.KindConflict, errStaleOrder)
	}
	if owner, exists := r.s.byTransID[attachment.GatewayTransID]; exists && owner != order.ID {
		return domain.Order{}, repositories.NewStoreError("order.attach_payment", repositories.KindConflict, errDuplicateTransID)
	}
	order.GatewayTransID = attachment.GatewayTransID
	order.GatewayTransIDs = order.AttachedTransIDs()
	order.GatewayTransactionRef = attachment.GatewayTransactionRef
	order.PaymentURL = attachment.PaymentURL
	order.PaymentStatus = domain.PaymentStatusPending
	order.UpdatedAt = attachment.UpdatedAt
	r.s.orders[order.ID] = order
	r.s.byTransID[order.GatewayTransID] = order.ID
	return cloneOrder(order), nil
}

func (r orderRepository) Delete(_ context.Context, orderID string, expectedStatus domain.OrderStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	order, ok := r.s.orders[orderID]
	if !ok {
		return repositories.NewStoreError("order.delete", repositories.KindNotFound, nil)
	}
	if order.Status != expectedStatus {
		return repositories.NewStoreError("order.delete", repositories.KindConflict, errStaleOrder)
	}
	delete(r.s.orders, orderID)
	delete(r.s.byCode, order.OrderCode)
	for _, id := range order.AttachedTransIDs() {
		delete(r.s.byTransID, id)
	}
	return nil
}

type promotionRepository struct{ s *Store }

func (r promotionRepository) FindByCode(_ context.Context, code string) (domain.Promotion, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	promo, ok := r.s.promotions[domain.NormalizeCouponCode(code)]
	if !ok {
		return domain.Promotion{}, repositories.NewStoreError("promotion.find", repositories.KindNotFound, nil)
	}
	return promo, nil
}

func (r promotionRepository) ConsumeUsage(_ context.Context, code string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := domain.NormalizeCouponCode(code)
	promo, ok := r.s.promotions[key]
	if !ok {
		return repositories.NewStoreError("promotion.consume", repositories.KindNotFound, nil)
	}
	if promo.UsageLimit > 0 && promo.UsedCount >= promo.UsageLimit {
		return repositories.NewStoreError("promotion.consume", repositories.KindConflict, errUsageExhausted)
	}
	promo.UsedCount++
	r.s.promotions[key] = promo
	return nil
}

func (r promotionRepository) ReleaseUsage(_ context.Context, code string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := domain.NormalizeCouponCode(code)
	promo, ok := r.s.promotions[key]
	if !ok {
		return repositories.NewStoreError("promotion.release", repositories.KindNotFound, nil)
	}
	if promo.UsedCount > 0 {
		promo.UsedCount--
		r.s.promotions[key] = promo
	}
	return nil
}

type purchaseCounterRepository struct{ s *Store }

func (r purchaseCounterRepository) ApplyOnce(_ context.Context, orderID string, quantities map[string]int) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, done := r.s.counted[orderID]; done {
		return false, nil
	}
	r.s.counted[orderID] = struct{}{}
	for productID, qty := range quantities {
		r.s.purchased[productID] += qty
	}
	return true, nil
}
