package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// GetCart returns the caller's cart snapshot.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.respondCart(w, r, p.UserID)
}

// AddToCart adds a product to the caller's cart. Quantity defaults to 1.
func (h *Handler) AddToCart(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	req := cartItemRequest{Quantity: 1}
	if err := h.bind(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.carts.AddItem(r.Context(), p.UserID, req.ProductID, req.Quantity); err != nil {
		writeError(w, r, errors.Wrap(err, "add to cart"))
		return
	}
	h.respondCart(w, r, p.UserID)
}

// UpdateCartItem overwrites the quantity of a cart line.
func (h *Handler) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req cartItemRequest
	if err := h.bind(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.carts.SetQuantity(r.Context(), p.UserID, req.ProductID, req.Quantity); err != nil {
		writeError(w, r, errors.Wrap(err, "update cart item"))
		return
	}
	h.respondCart(w, r, p.UserID)
}

// RemoveCartItem drops a line from the cart. Removing an absent line succeeds.
func (h *Handler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.carts.RemoveItem(r.Context(), p.UserID, chi.URLParam(r, "productID")); err != nil {
		writeError(w, r, errors.Wrap(err, "remove cart item"))
		return
	}
	h.respondCart(w, r, p.UserID)
}

func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.carts.Clear(r.Context(), p.UserID); err != nil {
		writeError(w, r, errors.Wrap(err, "clear cart"))
		return
	}
	h.respondCart(w, r, p.UserID)
}

func (h *Handler) respondCart(w http.ResponseWriter, r *http.Request, userID string) {
	snap, err := h.carts.Snapshot(r.Context(), userID)
	if err != nil {
		writeError(w, r, errors.Wrap(err, "cart snapshot"))
		return
	}

	now := h.now()
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		h.encodeCart(e, snap, now)
	})
}
