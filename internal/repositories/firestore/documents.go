package firestore

import (
	"time"

	domain "github.com/furnishop/api/internal/domain"
)

type cartDocument struct {
	OwnerKind string             `firestore:"ownerKind"`
	OwnerID   string             `firestore:"ownerId"`
	Items     []cartItemDocument `firestore:"items"`
	CreatedAt time.Time          `firestore:"createdAt"`
	UpdatedAt time.Time          `firestore:"updatedAt"`
}

type cartItemDocument struct {
	VariationID string    `firestore:"variationId"`
	Quantity    int       `firestore:"quantity"`
	AddedAt     time.Time `firestore:"addedAt"`
}

type variationDocument struct {
	ProductID string `firestore:"productId"`
	Name      string `firestore:"name"`
	Price     int64  `firestore:"price"`
	SalePrice int64  `firestore:"salePrice"`
	Stock     int    `firestore:"stock"`
}

type productDocument struct {
	Name           string `firestore:"name"`
	Active         bool   `firestore:"isActive"`
	Deleted        bool   `firestore:"isDeleted"`
	TotalPurchased int    `firestore:"totalPurchased"`
}

type orderDocument struct {
	OrderCode             string                 `firestore:"orderCode"`
	OwnerID               string                 `firestore:"ownerId,omitempty"`
	GuestToken            string                 `firestore:"guestToken,omitempty"`
	Items                 []orderItemDocument    `firestore:"items"`
	Subtotal              int64                  `firestore:"subtotal"`
	DiscountAmount        int64                  `firestore:"discountAmount"`
	TotalAmount           int64                  `firestore:"totalAmount"`
	Currency              string                 `firestore:"currency"`
	Discount              *orderDiscountDocument `firestore:"discount,omitempty"`
	ShippingAddress       addressDocument        `firestore:"shippingAddress"`
	Status                string                 `firestore:"status"`
	PaymentMethod         string                 `firestore:"paymentMethod"`
	PaymentStatus         string                 `firestore:"paymentStatus"`
	GatewayTransID        string                 `firestore:"gatewayTransId,omitempty"`
	GatewayTransIDs       []string               `firestore:"gatewayTransIds,omitempty"`
	GatewayTransactionRef string                 `firestore:"gatewayTransactionRef,omitempty"`
	PaymentURL            string                 `firestore:"paymentUrl,omitempty"`
	StatusHistory         []historyDocument      `firestore:"statusHistory"`
	CreatedAt             time.Time              `firestore:"createdAt"`
	UpdatedAt             time.Time              `firestore:"updatedAt"`
}

type orderItemDocument struct {
	VariationID         string `firestore:"variationId"`
	ProductID           string `firestore:"productId"`
	Name                string `firestore:"name"`
	Quantity            int    `firestore:"quantity"`
	UnitPriceAtPurchase int64  `firestore:"unitPriceAtPurchase"`
}

type orderDiscountDocument struct {
	Code   string  `firestore:"code"`
	Type   string  `firestore:"type"`
	Value  float64 `firestore:"value"`
	Amount int64   `firestore:"amount"`
}

type addressDocument struct {
	FullName string `firestore:"fullName"`
	Phone    string `firestore:"phone"`
	Email    string `firestore:"email,omitempty"`
	Street   string `firestore:"street"`
	Ward     string `firestore:"ward"`
	District string `firestore:"district"`
	City     string `firestore:"city"`
}

type historyDocument struct {
	Status    string    `firestore:"status"`
	Note      string    `firestore:"note,omitempty"`
	Actor     string    `firestore:"actor,omitempty"`
	Timestamp time.Time `firestore:"timestamp"`
}

// uniqueKeyDocument reserves a unique value (order code or gateway transaction id) for an order.
type uniqueKeyDocument struct {
	OrderID string `firestore:"orderId"`
}

type promotionDocument struct {
	Type           string    `firestore:"type"`
	Value          float64   `firestore:"value"`
	MaxDiscount    int64     `firestore:"maxDiscount"`
	MinOrderAmount int64     `firestore:"minOrderAmount"`
	UsageLimit     int       `firestore:"usageLimit"`
	UsedCount      int       `firestore:"usedCount"`
	Active         bool      `firestore:"active"`
	StartsAt       time.Time `firestore:"startsAt"`
	EndsAt         time.Time `firestore:"endsAt"`
}

type ledgerDocument struct {
	Quantities map[string]int `firestore:"quantities"`
	AppliedAt  time.Time      `firestore:"appliedAt"`
}

func newCartDocument(cart domain.Cart) cartDocument {
	doc := cartDocument{
		OwnerKind: string(cart.OwnerKind),
		OwnerID:   cart.OwnerID,
		Items:     make([]cartItemDocument, 0, len(cart.Items)),
		CreatedAt: cart.CreatedAt.UTC(),
		UpdatedAt: cart.UpdatedAt.UTC(),
	}
	for _, item := range cart.Items {
		doc.Items = append(doc.Items, cartItemDocument{
			VariationID: item.VariationID,
			Quantity:    item.Quantity,
			AddedAt:     item.AddedAt.UTC(),
		})
	}
	return doc
}

func (d cartDocument) toDomain(id string) domain.Cart {
	cart := domain.Cart{
		ID:        id,
		OwnerKind: domain.CartOwnerKind(d.OwnerKind),
		OwnerID:   d.OwnerID,
		Items:     make([]domain.CartItem, 0, len(d.Items)),
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
	}
	for _, item := range d.Items {
		cart.Items = append(cart.Items, domain.CartItem{
			VariationID: item.VariationID,
			Quantity:    item.Quantity,
			AddedAt:     item.AddedAt.UTC(),
		})
	}
	return cart
}

func newOrderDocument(order domain.Order) orderDocument {
	doc := orderDocument{
		OrderCode:             order.OrderCode,
		OwnerID:               order.OwnerID,
		GuestToken:            order.GuestToken,
		Items:                 make([]orderItemDocument, 0, len(order.Items)),
		Subtotal:              order.Subtotal,
		DiscountAmount:        order.DiscountAmount,
		TotalAmount:           order.TotalAmount,
		Currency:              order.Currency,
		ShippingAddress:       addressDocument(order.ShippingAddress),
		Status:                string(order.Status),
		PaymentMethod:         string(order.PaymentMethod),
		PaymentStatus:         string(order.PaymentStatus),
		GatewayTransID:        order.GatewayTransID,
		GatewayTransIDs:       order.AttachedTransIDs(),
		GatewayTransactionRef: order.GatewayTransactionRef,
		PaymentURL:            order.PaymentURL,
		StatusHistory:         make([]historyDocument, 0, len(order.StatusHistory)),
		CreatedAt:             order.CreatedAt.UTC(),
		UpdatedAt:             order.UpdatedAt.UTC(),
	}
	for _, item := range order.Items {
		doc.Items = append(doc.Items, orderItemDocument(item))
	}
	if d := order.Discount; d != nil {
		doc.Discount = &orderDiscountDocument{Code: d.Code, Type: string(d.Type), Value: d.Value, Amount: d.Amount}
	}
	for _, entry := range order.StatusHistory {
		doc.StatusHistory = append(doc.StatusHistory, newHistoryDocument(entry))
	}
	return doc
}

func newHistoryDocument(entry domain.StatusHistoryEntry) historyDocument {
	return historyDocument{
		Status:    string(entry.Status),
		Note:      entry.Note,
		Actor:     entry.Actor,
		Timestamp: entry.Timestamp.UTC(),
	}
}

func (d orderDocument) toDomain(id string) domain.Order {
	order := domain.Order{
		ID:                    id,
		OrderCode:             d.OrderCode,
		OwnerID:               d.OwnerID,
		GuestToken:            d.GuestToken,
		Items:                 make([]domain.OrderItem, 0, len(d.Items)),
		Subtotal:              d.Subtotal,
		DiscountAmount:        d.DiscountAmount,
		TotalAmount:           d.TotalAmount,
		Currency:              d.Currency,
		ShippingAddress:       domain.ShippingAddress(d.ShippingAddress),
		Status:                domain.OrderStatus(d.Status),
		PaymentMethod:         domain.PaymentMethod(d.PaymentMethod),
		PaymentStatus:         domain.PaymentStatus(d.PaymentStatus),
		GatewayTransID:        d.GatewayTransID,
		GatewayTransIDs:       append([]string(nil), d.GatewayTransIDs...),
		GatewayTransactionRef: d.GatewayTransactionRef,
		PaymentURL:            d.PaymentURL,
		StatusHistory:         make([]domain.StatusHistoryEntry, 0, len(d.StatusHistory)),
		CreatedAt:             d.CreatedAt.UTC(),
		UpdatedAt:             d.UpdatedAt.UTC(),
	}
	for _, item := range d.Items {
		order.Items = append(order.Items, domain.OrderItem(item))
	}
	if d.Discount != nil {
		order.Discount = &domain.OrderDiscount{
			Code:   d.Discount.Code,
			Type:   domain.DiscountType(d.Discount.Type),
			Value:  d.Discount.Value,
			Amount: d.Discount.Amount,
		}
	}
	for _, entry := range d.StatusHistory {
		order.StatusHistory = append(order.StatusHistory, domain.StatusHistoryEntry{
			Status:    domain.OrderStatus(entry.Status),
			Note:      entry.Note,
			Actor:     entry.Actor,
			Timestamp: entry.Timestamp.UTC(),
		})
	}
	return order
}

func (d promotionDocument) toDomain(code string) domain.Promotion {
	return domain.Promotion{
		Code:           code,
		Type:           domain.DiscountType(d.Type),
		Value:          d.Value,
		MaxDiscount:    d.MaxDiscount,
		MinOrderAmount: d.MinOrderAmount,
		UsageLimit:     d.UsageLimit,
		UsedCount:      d.UsedCount,
		Active:         d.Active,
		StartsAt:       d.StartsAt.UTC(),
		EndsAt:         d.EndsAt.UTC(),
	}
}
