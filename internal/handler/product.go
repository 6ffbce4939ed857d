package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/kart-store/internal/domain/product"
)

// pageQuery holds the optional pagination parameters of a listing.
type pageQuery struct {
	Page  int `json:"page" validate:"min=1"`
	Limit int `json:"limit" validate:"min=0,max=100"`
}

// ListProducts returns every product in the catalog.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		writeError(w, r, errors.Wrap(err, "list products"))
		return
	}

	now := h.now()
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("products")
		e.ArrStart()
		for i := range products {
			h.encodeProduct(e, &products[i], now)
		}
		e.ArrEnd()
		e.ObjEnd()
	})
}

// ListDiscountedProducts returns products whose discount is active now. The
// page and limit query parameters are optional; without a limit every
// match is returned on a single page.
func (h *Handler) ListDiscountedProducts(w http.ResponseWriter, r *http.Request) {
	q, err := h.pageQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	now := h.now()
	products, total, err := h.products.ListDiscounted(r.Context(), now, q.Limit, (q.Page-1)*q.Limit)
	if err != nil {
		writeError(w, r, errors.Wrap(err, "list discounted products"))
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("products")
		e.ArrStart()
		for i := range products {
			h.encodeProduct(e, &products[i], now)
		}
		e.ArrEnd()
		e.FieldStart("total")
		e.Int(total)
		e.FieldStart("page")
		e.Int(q.Page)
		e.FieldStart("limit")
		e.Int(q.Limit)
		e.FieldStart("totalPages")
		e.Int(product.TotalPages(total, q.Limit))
		e.ObjEnd()
	})
}

// ListCategoryProducts returns the products of a category, ignoring case.
func (h *Handler) ListCategoryProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.ListByCategory(r.Context(), chi.URLParam(r, "category"))
	if err != nil {
		writeError(w, r, errors.Wrap(err, "list category products"))
		return
	}

	now := h.now()
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("products")
		e.ArrStart()
		for i := range products {
			h.encodeProduct(e, &products[i], now)
		}
		e.ArrEnd()
		e.ObjEnd()
	})
}

func (h *Handler) pageQuery(r *http.Request) (pageQuery, error) {
	q := pageQuery{Page: 1}
	values := r.URL.Query()
	for _, p := range []struct {
		name string
		dst  *int
	}{
		{"page", &q.Page},
		{"limit", &q.Limit},
	} {
		raw := values.Get(p.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return q, badRequest("%s must be an integer", p.name)
		}
		*p.dst = n
	}
	if err := h.validate.Struct(q); err != nil {
		return q, errors.Wrap(err, "validate page query")
	}
	return q, nil
}

// GetProduct returns a single product by ID.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.GetByID(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		writeError(w, r, errors.Wrap(err, "get product"))
		return
	}

	now := h.now()
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		h.encodeProduct(e, p, now)
	})
}
