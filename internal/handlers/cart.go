package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/furnishop/api/internal/platform/auth"
	"github.com/furnishop/api/internal/platform/httpx"
	"github.com/furnishop/api/internal/services"
)

const maxCartBodySize = 16 * 1024

// CartHandlers exposes cart endpoints for signed-in shoppers and guests.
type CartHandlers struct {
	authn *auth.Authenticator
	carts services.CartService
}

// NewCartHandlers constructs cart handlers. A nil authenticator leaves identity resolution to
// middleware installed by the caller.
func NewCartHandlers(authn *auth.Authenticator, carts services.CartService) *CartHandlers {
	return &CartHandlers{
		authn: authn,
		carts: carts,
	}
}

// Routes registers /cart and /cart:merge on the API router.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Group(func(g chi.Router) {
		if h.authn != nil {
			g.Use(h.authn.OptionalFirebaseAuth())
		}
		g.Post("/cart:merge", h.merge)
		g.Route("/cart", func(cart chi.Router) {
			cart.Use(auth.RequireShopper)
			cart.Get("/", h.getCart)
			cart.Delete("/", h.clear)
			cart.Post("/items", h.addItem)
			cart.Post("/items:remove", h.removeItems)
			cart.Put("/items/{variationId}", h.updateItem)
			cart.Delete("/items/{variationId}", h.removeItem)
		})
	})
}

type cartItemRequest struct {
	VariationID string `json:"variationId"`
	Quantity    int    `json:"quantity"`
}

type cartQuantityRequest struct {
	Quantity int `json:"quantity"`
}

type cartRemoveRequest struct {
	VariationIDs []string `json:"variationIds"`
}

type cartItemPayload struct {
	VariationID string `json:"variationId"`
	Quantity    int    `json:"quantity"`
	AddedAt     string `json:"addedAt,omitempty"`
}

type cartPayload struct {
	ID        string            `json:"id,omitempty"`
	OwnerKind string            `json:"ownerKind,omitempty"`
	Items     []cartItemPayload `json:"items"`
	UpdatedAt string            `json:"updatedAt,omitempty"`
}

type cartLinePayload struct {
	VariationID string `json:"variationId"`
	ProductID   string `json:"productId,omitempty"`
	Name        string `json:"name,omitempty"`
	Quantity    int    `json:"quantity"`
	UnitPrice   int64  `json:"unitPrice"`
	LineTotal   int64  `json:"lineTotal"`
	Stock       int    `json:"stock"`
	Available   bool   `json:"available"`
}

type cartViewPayload struct {
	cartPayload
	Lines       []cartLinePayload `json:"lines"`
	Subtotal    int64             `json:"subtotal"`
	Currency    string            `json:"currency,omitempty"`
	HasProblems bool              `json:"hasProblems"`
}

type mergePayload struct {
	Cart    cartPayload `json:"cart"`
	Merged  bool        `json:"merged"`
	Dropped []string    `json:"dropped,omitempty"`
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		writeUnavailable(ctx, w, "cart")
		return
	}
	view, err := h.carts.GetCart(ctx, cartKeyFromContext(ctx))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	payload := cartViewPayload{
		cartPayload: buildCartPayload(view.Cart),
		Lines:       make([]cartLinePayload, 0, len(view.Lines)),
		Subtotal:    view.Subtotal,
		Currency:    view.Currency,
		HasProblems: view.HasProblems,
	}
	for _, line := range view.Lines {
		payload.Lines = append(payload.Lines, cartLinePayload(line))
	}
	setNoStore(w)
	httpx.WriteJSON(w, http.StatusOK, payload)
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		writeUnavailable(ctx, w, "cart")
		return
	}
	var req cartItemRequest
	if err := httpx.DecodeJSON(r, maxCartBodySize, &req); err != nil {
		httpx.WriteDecodeError(w, r, err)
		return
	}
	cart, err := h.carts.AddItem(ctx, services.CartItemCommand{
		Key:         cartKeyFromContext(ctx),
		VariationID: strings.TrimSpace(req.VariationID),
		Quantity:    req.Quantity,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	setNoStore(w)
	httpx.WriteJSON(w, http.StatusOK, buildCartPayload(cart))
}

func (h *CartHandlers) updateItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		writeUnavailable(ctx, w, "cart")
		return
	}
	var req cartQuantityRequest
	if err := httpx.DecodeJSON(r, maxCartBodySize, &req); err != nil {
		httpx.WriteDecodeError(w, r, err)
		return
	}
	cart, err := h.carts.UpdateItem(ctx, services.CartItemCommand{
		Key:         cartKeyFromContext(ctx),
		VariationID: strings.TrimSpace(chi.URLParam(r, "variationId")),
		Quantity:    req.Quantity,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	setNoStore(w)
	httpx.WriteJSON(w, http.StatusOK, buildCartPayload(cart))
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		writeUnavailable(ctx, w, "cart")
		return
	}
	cart, err := h.carts.RemoveItem(ctx, cartKeyFromContext(ctx), strings.TrimSpace(chi.URLParam(r, "variationId")))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	setNoStore(w)
	httpx.WriteJSON(w, http.StatusOK, buildCartPayload(cart))
}

func (h *CartHandlers) removeItems(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		writeUnavailable(ctx, w, "cart")
		return
	}
	var req cartRemoveRequest
	if err := httpx.DecodeJSON(r, maxCartBodySize, &req); err != nil {
		httpx.WriteDecodeError(w, r, err)
		return
	}
	cart, err := h.carts.RemoveItems(ctx, cartKeyFromContext(ctx), req.VariationIDs)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	setNoStore(w)
	httpx.WriteJSON(w, http.StatusOK, buildCartPayload(cart))
}

func (h *CartHandlers) clear(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		writeUnavailable(ctx, w, "cart")
		return
	}
	if err := h.carts.Clear(ctx, cartKeyFromContext(ctx)); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// merge folds the guest cart named by X-Cart-Token into the signed-in user's cart.
func (h *CartHandlers) merge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		writeUnavailable(ctx, w, "cart")
		return
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "sign in to merge a guest cart", http.StatusUnauthorized))
		return
	}
	token := auth.GuestTokenFromContext(ctx)
	if token == "" {
		httpx.WriteError(ctx, w, httpx.NewError("validation_error", auth.GuestTokenHeader+" header is required", http.StatusBadRequest))
		return
	}
	result, err := h.carts.MergeOnLogin(ctx, token, identity.UID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	setNoStore(w)
	httpx.WriteJSON(w, http.StatusOK, mergePayload{
		Cart:    buildCartPayload(result.Cart),
		Merged:  result.Merged,
		Dropped: result.Dropped,
	})
}

// cartKeyFromContext prefers the signed-in user over the guest token.
func cartKeyFromContext(ctx context.Context) services.CartKey {
	key := services.CartKey{GuestToken: auth.GuestTokenFromContext(ctx)}
	if identity, ok := auth.IdentityFromContext(ctx); ok {
		key.UserID = identity.UID
	}
	return key.Normalize()
}

func buildCartPayload(cart services.Cart) cartPayload {
	payload := cartPayload{
		ID:        cart.ID,
		OwnerKind: string(cart.OwnerKind),
		Items:     make([]cartItemPayload, 0, len(cart.Items)),
		UpdatedAt: formatTime(cart.UpdatedAt),
	}
	for _, item := range cart.Items {
		payload.Items = append(payload.Items, cartItemPayload{
			VariationID: item.VariationID,
			Quantity:    item.Quantity,
			AddedAt:     formatTime(item.AddedAt),
		})
	}
	return payload
}

func setNoStore(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store, no-cache, max-age=0, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
