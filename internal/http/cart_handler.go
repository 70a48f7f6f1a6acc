package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/fjod/go_cart/lineitems/internal/checkout"
	"github.com/fjod/go_cart/lineitems/internal/domain"
	"github.com/fjod/go_cart/lineitems/internal/logging"
	"github.com/fjod/go_cart/lineitems/internal/store"
	"github.com/go-chi/chi/v5"
)

// CartProvider resolves the cart of one user.
type CartProvider interface {
	Get(ctx context.Context, userID string) *store.Store
}

type Checkouter interface {
	Checkout(ctx context.Context, userID string, delivery checkout.Delivery) (checkout.OrderRequest, error)
}

type CartHandler struct {
	carts    CartProvider
	checkout Checkouter
	timeout  time.Duration
}

// NewCartHandler wires the cart routes. A nil checkouter disables checkout.
func NewCartHandler(carts CartProvider, co Checkouter, timeout time.Duration) *CartHandler {
	return &CartHandler{carts: carts, checkout: co, timeout: timeout}
}

type CartResponse struct {
	Items         domain.Collection `json:"items"`
	TotalQuantity int               `json:"totalQuantity"`
	TotalValue    string            `json:"totalValue"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func cartResponse(items domain.Collection) CartResponse {
	return CartResponse{
		Items:         items.Clone(),
		TotalQuantity: items.TotalQuantity(),
		TotalValue:    items.TotalValue().String(),
	}
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := UserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	respondJSON(w, http.StatusOK, cartResponse(h.carts.Get(ctx, userID).Items()))
}

// POST /api/v1/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := UserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	var entry domain.Entry
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		if errors.Is(err, domain.ErrInvalidLineItem) {
			respondError(w, http.StatusBadRequest, "invalid_line_item", err.Error())
			return
		}
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	items, err := h.carts.Get(ctx, userID).Upsert(ctx, entry)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, cartResponse(items))
}

// POST /api/v1/cart/items/{id}/decrement
func (h *CartHandler) DecrementItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := UserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	cart := h.carts.Get(ctx, userID)
	id := cart.Items().Resolve(chi.URLParam(r, "id"))
	respondJSON(w, http.StatusOK, cartResponse(cart.Decrement(ctx, id)))
}

// DELETE /api/v1/cart/items/{id}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := UserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	cart := h.carts.Get(ctx, userID)
	id := cart.Items().Resolve(chi.URLParam(r, "id"))
	respondJSON(w, http.StatusOK, cartResponse(cart.Remove(ctx, id)))
}

// DELETE /api/v1/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := UserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	respondJSON(w, http.StatusOK, cartResponse(h.carts.Get(ctx, userID).Clear(ctx)))
}

type CheckoutResponse struct {
	CheckoutID  string `json:"checkout_id"`
	TotalAmount string `json:"total_amount"`
	Currency    string `json:"currency"`
}

// POST /api/v1/cart/checkout
func (h *CartHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := UserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}
	if h.checkout == nil {
		respondError(w, http.StatusServiceUnavailable, "checkout_unavailable", "checkout is not configured")
		return
	}

	var delivery checkout.Delivery
	if err := json.NewDecoder(r.Body).Decode(&delivery); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	order, err := h.checkout.Checkout(ctx, userID, delivery)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, CheckoutResponse{
		CheckoutID:  order.CheckoutID,
		TotalAmount: order.TotalAmount.String(),
		Currency:    order.Currency,
	})
}

func (h *CartHandler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidLineItem):
		respondError(w, http.StatusBadRequest, "invalid_line_item", err.Error())
	case errors.Is(err, checkout.ErrInvalidDelivery):
		respondError(w, http.StatusBadRequest, "invalid_delivery", err.Error())
	case errors.Is(err, checkout.ErrEmptyCart):
		respondError(w, http.StatusConflict, "empty_cart", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusGatewayTimeout, "timeout", "request timed out")
	default:
		logging.FromCtx(r.Context()).Error("request failed", "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{Error: message, Code: code})
}
