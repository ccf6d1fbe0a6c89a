package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/furnishop/api/internal/platform/auth"
	"github.com/furnishop/api/internal/platform/httpx"
	"github.com/furnishop/api/internal/services"
)

const maxTransitionBodySize = 8 * 1024

// AdminOrderHandlers exposes status transitions and deletion to staff and fulfilment tooling.
type AdminOrderHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
}

// NewAdminOrderHandlers constructs admin order handlers.
func NewAdminOrderHandlers(authn *auth.Authenticator, orders services.OrderService) *AdminOrderHandlers {
	return &AdminOrderHandlers{authn: authn, orders: orders}
}

// Routes registers /admin/orders endpoints guarded by the admin role.
func (h *AdminOrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(auth.RoleAdmin))
	}
	r.Post("/orders/{orderId}/status", h.adminTransition)
	r.Delete("/orders/{orderId}", h.deleteOrder)
}

// InternalRoutes registers /internal/orders endpoints. Authentication is applied by the
// router's internal middleware chain.
func (h *AdminOrderHandlers) InternalRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/orders/{orderId}/status", h.serviceTransition)
}

type transitionRequest struct {
	Status string `json:"status"`
	Note   string `json:"note"`
}

func (h *AdminOrderHandlers) adminTransition(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || !identity.IsAdmin() {
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "admin role required", http.StatusForbidden))
		return
	}
	h.transition(w, r, identity.UID)
}

func (h *AdminOrderHandlers) serviceTransition(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := auth.ServiceIdentityFromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "service identity required", http.StatusUnauthorized))
		return
	}
	actor := identity.Email
	if actor == "" {
		actor = identity.Subject
	}
	h.transition(w, r, "service:"+actor)
}

func (h *AdminOrderHandlers) transition(w http.ResponseWriter, r *http.Request, actorID string) {
	ctx := r.Context()
	if h.orders == nil {
		writeUnavailable(ctx, w, "order")
		return
	}
	var req transitionRequest
	if err := httpx.DecodeJSON(r, maxTransitionBodySize, &req); err != nil {
		httpx.WriteDecodeError(w, r, err)
		return
	}
	order, err := h.orders.Transition(ctx, services.TransitionCommand{
		OrderID:   strings.TrimSpace(chi.URLParam(r, "orderId")),
		NewStatus: req.Status,
		Note:      req.Note,
		ActorID:   actorID,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildOrderPayload(order))
}

func (h *AdminOrderHandlers) deleteOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeUnavailable(ctx, w, "order")
		return
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}
	err := h.orders.Delete(ctx, services.DeleteOrderCommand{
		OrderID:       strings.TrimSpace(chi.URLParam(r, "orderId")),
		ActorID:       identity.UID,
		RequesterRole: identity.PrimaryRole(),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
