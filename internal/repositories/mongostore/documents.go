package mongostore

import (
	"time"

	domain "github.com/furnishop/api/internal/domain"
)

type cartDocument struct {
	ID        string             `bson:"_id"`
	OwnerKind string             `bson:"owner_kind"`
	OwnerID   string             `bson:"owner_id"`
	Items     []cartItemDocument `bson:"items"`
	CreatedAt time.Time          `bson:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at"`
}

type cartItemDocument struct {
	VariationID string    `bson:"variation_id"`
	Quantity    int       `bson:"quantity"`
	AddedAt     time.Time `bson:"added_at"`
}

type variationDocument struct {
	ID        string `bson:"_id"`
	ProductID string `bson:"product_id"`
	Name      string `bson:"name"`
	Price     int64  `bson:"price"`
	SalePrice int64  `bson:"sale_price"`
	Stock     int    `bson:"stock"`
}

type productDocument struct {
	ID             string `bson:"_id"`
	Name           string `bson:"name"`
	Active         bool   `bson:"is_active"`
	Deleted        bool   `bson:"is_deleted"`
	TotalPurchased int    `bson:"total_purchased"`
}

type orderDocument struct {
	ID                    string                 `bson:"_id"`
	OrderCode             string                 `bson:"order_code"`
	OwnerID               string                 `bson:"owner_id,omitempty"`
	GuestToken            string                 `bson:"guest_token,omitempty"`
	Items                 []orderItemDocument    `bson:"items"`
	Subtotal              int64                  `bson:"subtotal"`
	DiscountAmount        int64                  `bson:"discount_amount"`
	TotalAmount           int64                  `bson:"total_amount"`
	Currency              string                 `bson:"currency"`
	Discount              *orderDiscountDocument `bson:"discount,omitempty"`
	ShippingAddress       addressDocument        `bson:"shipping_address"`
	Status                string                 `bson:"status"`
	PaymentMethod         string                 `bson:"payment_method"`
	PaymentStatus         string                 `bson:"payment_status"`
	GatewayTransID        string                 `bson:"gateway_trans_id,omitempty"`
	GatewayTransIDs       []string               `bson:"gateway_trans_ids,omitempty"`
	GatewayTransactionRef string                 `bson:"gateway_transaction_ref,omitempty"`
	PaymentURL            string                 `bson:"payment_url,omitempty"`
	StatusHistory         []historyDocument      `bson:"status_history"`
	CreatedAt             time.Time              `bson:"created_at"`
	UpdatedAt             time.Time              `bson:"updated_at"`
}

type orderItemDocument struct {
	VariationID         string `bson:"variation_id"`
	ProductID           string `bson:"product_id"`
	Name                string `bson:"name"`
	Quantity            int    `bson:"quantity"`
	UnitPriceAtPurchase int64  `bson:"unit_price_at_purchase"`
}

type orderDiscountDocument struct {
	Code   string  `bson:"code"`
	Type   string  `bson:"type"`
	Value  float64 `bson:"value"`
	Amount int64   `bson:"amount"`
}

type addressDocument struct {
	FullName string `bson:"full_name"`
	Phone    string `bson:"phone"`
	Email    string `bson:"email,omitempty"`
	Street   string `bson:"street"`
	Ward     string `bson:"ward"`
	District string `bson:"district"`
	City     string `bson:"city"`
}

type historyDocument struct {
	Status    string    `bson:"status"`
	Note      string    `bson:"note,omitempty"`
	Actor     string    `bson:"actor,omitempty"`
	Timestamp time.Time `bson:"timestamp"`
}

type promotionDocument struct {
	Code           string    `bson:"_id"`
	Type           string    `bson:"type"`
	Value          float64   `bson:"value"`
	MaxDiscount    int64     `bson:"max_discount"`
	MinOrderAmount int64     `bson:"min_order_amount"`
	UsageLimit     int       `bson:"usage_limit"`
	UsedCount      int       `bson:"used_count"`
	Active         bool      `bson:"active"`
	StartsAt       time.Time `bson:"starts_at"`
	EndsAt         time.Time `bson:"ends_at"`
}

type ledgerDocument struct {
	OrderID    string         `bson:"_id"`
	Quantities map[string]int `bson:"quantities"`
	State      string         `bson:"state"`
	CreatedAt  time.Time      `bson:"created_at"`
	AppliedAt  time.Time      `bson:"applied_at,omitempty"`
}

func cartToDocument(cart domain.Cart) cartDocument {
	doc := cartDocument{
		ID:        cart.ID,
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

func (d cartDocument) toDomain() domain.Cart {
	cart := domain.Cart{
		ID:        d.ID,
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

func orderToDocument(order domain.Order) orderDocument {
	doc := orderDocument{
		ID:                    order.ID,
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
	if order.Discount != nil {
		doc.Discount = &orderDiscountDocument{
			Code:   order.Discount.Code,
			Type:   string(order.Discount.Type),
			Value:  order.Discount.Value,
			Amount: order.Discount.Amount,
		}
	}
	for _, entry := range order.StatusHistory {
		doc.StatusHistory = append(doc.StatusHistory, historyToDocument(entry))
	}
	return doc
}

func historyToDocument(entry domain.StatusHistoryEntry) historyDocument {
	return historyDocument{
		Status:    string(entry.Status),
		Note:      entry.Note,
		Actor:     entry.Actor,
		Timestamp: entry.Timestamp.UTC(),
	}
}

func (d orderDocument) toDomain() domain.Order {
	order := domain.Order{
		ID:                    d.ID,
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

func (d promotionDocument) toDomain() domain.Promotion {
	return domain.Promotion{
		Code:           d.Code,
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
