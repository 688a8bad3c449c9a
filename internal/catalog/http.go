package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"VapeShelf/pkg/kit"
)

const (
	maxBodyBytes = 1 << 20
	readyTimeout = 1 * time.Second
)

type Server struct {
	Store Store
	Log   *zap.Logger
}

type deletedResp struct {
	Deleted bool `json:"deleted"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	kit.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	if err := s.Store.Ping(ctx); err != nil {
		s.logger().Warn("readyz failed", zap.Error(err))
		kit.WriteError(w, r, http.StatusServiceUnavailable, "not ready", nil)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := s.Store.ListProducts(r.Context())
	if err != nil {
		s.writeStoreError(w, r, "list products", err)
		return
	}
	kit.WriteJSON(w, http.StatusOK, products)
}

func (s *Server) createProduct(w http.ResponseWriter, r *http.Request) {
	var in NewProduct
	if !s.decode(w, r, &in) {
		return
	}
	if err := in.Validate(); err != nil {
		s.writeStoreError(w, r, "create product", err)
		return
	}

	p, err := s.Store.CreateProduct(r.Context(), in)
	if err != nil {
		s.writeStoreError(w, r, "create product", err)
		return
	}
	kit.WriteJSON(w, http.StatusOK, p)
}

func (s *Server) updateProduct(w http.ResponseWriter, r *http.Request) {
	var in ProductFields
	if !s.decode(w, r, &in) {
		return
	}
	if err := in.Validate(); err != nil {
		s.writeStoreError(w, r, "update product", err)
		return
	}

	p, err := s.Store.UpdateProduct(r.Context(), chi.URLParam(r, "productID"), in)
	if err != nil {
		s.writeStoreError(w, r, "update product", err)
		return
	}
	kit.WriteJSON(w, http.StatusOK, p)
}

func (s *Server) deleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := s.Store.DeleteProduct(r.Context(), chi.URLParam(r, "productID")); err != nil {
		s.writeStoreError(w, r, "delete product", err)
		return
	}
	kit.WriteJSON(w, http.StatusOK, deletedResp{Deleted: true})
}

func (s *Server) addFlavor(w http.ResponseWriter, r *http.Request) {
	var in FlavorFields
	if !s.decode(w, r, &in) {
		return
	}
	if err := in.Validate(); err != nil {
		s.writeStoreError(w, r, "add flavor", err)
		return
	}

	f, err := s.Store.AddFlavor(r.Context(), chi.URLParam(r, "productID"), in)
	if err != nil {
		s.writeStoreError(w, r, "add flavor", err)
		return
	}
	kit.WriteJSON(w, http.StatusOK, f)
}

func (s *Server) updateFlavor(w http.ResponseWriter, r *http.Request) {
	var in FlavorFields
	if !s.decode(w, r, &in) {
		return
	}
	if err := in.Validate(); err != nil {
		s.writeStoreError(w, r, "update flavor", err)
		return
	}

	f, err := s.Store.UpdateFlavor(r.Context(), chi.URLParam(r, "flavorID"), in)
	if err != nil {
		s.writeStoreError(w, r, "update flavor", err)
		return
	}
	kit.WriteJSON(w, http.StatusOK, f)
}

func (s *Server) deleteFlavor(w http.ResponseWriter, r *http.Request) {
	if err := s.Store.DeleteFlavor(r.Context(), chi.URLParam(r, "flavorID")); err != nil {
		s.writeStoreError(w, r, "delete flavor", err)
		return
	}
	kit.WriteJSON(w, http.StatusOK, deletedResp{Deleted: true})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer func() { _ = r.Body.Close() }()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, "bad json", map[string]any{"cause": err.Error()})
		return false
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		kit.WriteError(w, r, http.StatusBadRequest, "extra data after json object", nil)
		return false
	}
	return true
}

func (s *Server) writeStoreError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, ErrProductNotFound):
		kit.WriteError(w, r, http.StatusNotFound, "Product not found", nil)
	case errors.Is(err, ErrFlavorNotFound):
		kit.WriteError(w, r, http.StatusNotFound, "Flavor not found", nil)
	case errors.Is(err, ErrInvalid):
		kit.WriteError(w, r, http.StatusUnprocessableEntity, err.Error(), nil)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		kit.WriteError(w, r, http.StatusGatewayTimeout, "timeout", nil)
	default:
		s.logger().Error(op+" failed", zap.Error(err))
		kit.WriteError(w, r, http.StatusInternalServerError, "server error", nil)
	}
}

func (s *Server) logger() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}
