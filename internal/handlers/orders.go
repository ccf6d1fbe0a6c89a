package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/furnishop/api/internal/platform/auth"
	"github.com/furnishop/api/internal/platform/httpx"
	"github.com/furnishop/api/internal/services"
)

const maxOrderBodySize = 32 * 1024

// OrderHandlers exposes checkout, order read and payment initiation for shoppers.
type OrderHandlers struct {
	authn    *auth.Authenticator
	orders   services.OrderService
	payments services.PaymentService
	mw       []func(http.Handler) http.Handler
}

// NewOrderHandlers constructs a new OrderHandlers instance. Middlewares are applied to the
// mutating routes only, which is where the idempotency layer is installed.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService, payments services.PaymentService, mutating ...func(http.Handler) http.Handler) *OrderHandlers {
	return &OrderHandlers{
		authn:    authn,
		orders:   orders,
		payments: payments,
		mw:       mutating,
	}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.OptionalFirebaseAuth())
	}
	r.Use(auth.RequireShopper)
	r.Get("/{orderCode}", h.getOrder)
	r.Group(func(g chi.Router) {
		for _, mw := range h.mw {
			if mw != nil {
				g.Use(mw)
			}
		}
		g.Post("/", h.createOrder)
		g.Post("/{orderCode}/payments", h.initiatePayment)
	})
}

type shippingAddressRequest struct {
	FullName string `json:"fullName"`
	Phone    string `json:"phone"`
	Email    string `json:"email"`
	Street   string `json:"street"`
	Ward     string `json:"ward"`
	District string `json:"district"`
	City     string `json:"city"`
}

type createOrderRequest struct {
	ShippingAddress shippingAddressRequest `json:"shippingAddress"`
	PaymentMethod   string                 `json:"paymentMethod"`
	CouponCode      string                 `json:"couponCode"`
	TotalAmount     *int64                 `json:"totalAmount,omitempty"`
}

type orderItemPayload struct {
	VariationID         string `json:"variationId"`
	ProductID           string `json:"productId"`
	Name                string `json:"name"`
	Quantity            int    `json:"quantity"`
	UnitPriceAtPurchase int64  `json:"unitPriceAtPurchase"`
	LineTotal           int64  `json:"lineTotal"`
}

type orderDiscountPayload struct {
	Code   string  `json:"code"`
	Type   string  `json:"type"`
	Value  float64 `json:"value"`
	Amount int64   `json:"amount"`
}

type statusHistoryPayload struct {
	Status    string `json:"status"`
	Note      string `json:"note,omitempty"`
	Actor     string `json:"actor,omitempty"`
	Timestamp string `json:"timestamp"`
}

type orderPayload struct {
	ID              string                 `json:"id"`
	OrderCode       string                 `json:"orderCode"`
	Status          string                 `json:"status"`
	PaymentMethod   string                 `json:"paymentMethod"`
	PaymentStatus   string                 `json:"paymentStatus"`
	Items           []orderItemPayload     `json:"items"`
	Subtotal        int64                  `json:"subtotal"`
	DiscountAmount  int64                  `json:"discountAmount"`
	TotalAmount     int64                  `json:"totalAmount"`
	Currency        string                 `json:"currency"`
	Discount        *orderDiscountPayload  `json:"discount,omitempty"`
	ShippingAddress shippingAddressRequest `json:"shippingAddress"`
	PaymentURL      string                 `json:"paymentUrl,omitempty"`
	StatusHistory   []statusHistoryPayload `json:"statusHistory"`
	CreatedAt       string                 `json:"createdAt"`
	UpdatedAt       string                 `json:"updatedAt"`
}

type paymentSessionPayload struct {
	OrderCode      string `json:"orderCode"`
	GatewayTransID string `json:"gatewayTransId"`
	PaymentURL     string `json:"paymentUrl"`
	TransToken     string `json:"transToken,omitempty"`
	Amount         int64  `json:"amount"`
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeUnavailable(ctx, w, "order")
		return
	}
	var req createOrderRequest
	if err := httpx.DecodeJSON(r, maxOrderBodySize, &req); err != nil {
		httpx.WriteDecodeError(w, r, err)
		return
	}
	order, err := h.orders.CreateFromCart(ctx, services.CreateOrderCommand{
		Key:             cartKeyFromContext(ctx),
		ShippingAddress: services.ShippingAddress(req.ShippingAddress),
		PaymentMethod:   req.PaymentMethod,
		CouponCode:      req.CouponCode,
		ClientTotal:     req.TotalAmount,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.Header().Set("Location", "/api/v1/orders/"+order.OrderCode)
	httpx.WriteJSON(w, http.StatusCreated, buildOrderPayload(order))
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeUnavailable(ctx, w, "order")
		return
	}
	query := services.GetOrderQuery{
		OrderCode:  strings.TrimSpace(chi.URLParam(r, "orderCode")),
		GuestToken: auth.GuestTokenFromContext(ctx),
	}
	if identity, ok := auth.IdentityFromContext(ctx); ok {
		query.ActorID = identity.UID
		query.IsAdmin = identity.IsAdmin()
	}
	order, err := h.orders.GetByCode(ctx, query)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	setNoStore(w)
	httpx.WriteJSON(w, http.StatusOK, buildOrderPayload(order))
}

func (h *OrderHandlers) initiatePayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		writeUnavailable(ctx, w, "payment")
		return
	}
	cmd := services.InitiatePaymentCommand{
		OrderCode:  strings.TrimSpace(chi.URLParam(r, "orderCode")),
		GuestToken: auth.GuestTokenFromContext(ctx),
	}
	if identity, ok := auth.IdentityFromContext(ctx); ok {
		cmd.ActorID = identity.UID
	}
	session, err := h.payments.Initiate(ctx, cmd)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, paymentSessionPayload(session))
}

func buildOrderPayload(order services.Order) orderPayload {
	payload := orderPayload{
		ID:              order.ID,
		OrderCode:       order.OrderCode,
		Status:          string(order.Status),
		PaymentMethod:   string(order.PaymentMethod),
		PaymentStatus:   string(order.PaymentStatus),
		Items:           make([]orderItemPayload, 0, len(order.Items)),
		Subtotal:        order.Subtotal,
		DiscountAmount:  order.DiscountAmount,
		TotalAmount:     order.TotalAmount,
		Currency:        order.Currency,
		ShippingAddress: shippingAddressRequest(order.ShippingAddress),
		PaymentURL:      order.PaymentURL,
		StatusHistory:   make([]statusHistoryPayload, 0, len(order.StatusHistory)),
		CreatedAt:       formatTime(order.CreatedAt),
		UpdatedAt:       formatTime(order.UpdatedAt),
	}
	for _, item := range order.Items {
		payload.Items = append(payload.Items, orderItemPayload{
			VariationID:         item.VariationID,
			ProductID:           item.ProductID,
			Name:                item.Name,
			Quantity:            item.Quantity,
			UnitPriceAtPurchase: item.UnitPriceAtPurchase,
			LineTotal:           item.LineTotal(),
		})
	}
	if order.Discount != nil {
		payload.Discount = &orderDiscountPayload{
			Code:   order.Discount.Code,
			Type:   string(order.Discount.Type),
			Value:  order.Discount.Value,
			Amount: order.Discount.Amount,
		}
	}
	for _, entry := range order.StatusHistory {
		payload.StatusHistory = append(payload.StatusHistory, statusHistoryPayload{
			Status:    string(entry.Status),
			Note:      entry.Note,
			Actor:     entry.Actor,
			Timestamp: formatTime(entry.Timestamp),
		})
	}
	return payload
}
