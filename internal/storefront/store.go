package storefront

import (
	"context"
	"errors"
	"math"
	"sync"

	"go.uber.org/zap"
)

// ErrEmptyReply means a write went through but the server sent back no record
// to reconcile the snapshot with, for example a 204.
var ErrEmptyReply = errors.New("catalog returned no record")

type Options struct {
	Mapper    Mapper
	Notifier  Notifier
	Selection SelectionForgetter
	Metrics   *Metrics
	Log       *zap.Logger
}

// Store is the client's copy of the catalog.
//
// Stock edits and flavor removals land in the snapshot before the server
// answers; creates wait for the server-assigned id. Any failed write is
// repaired by reloading everything. The snapshot slice is never modified in
// place, only swapped, so readers see either the old or the new catalog.
type Store struct {
	api     CatalogAPI
	mapper  Mapper
	notify  Notifier
	sel     SelectionForgetter
	metrics *Metrics
	log     *zap.Logger

	mu       sync.RWMutex
	products []Product
}

func NewStore(api CatalogAPI, opts Options) *Store {
	s := &Store{
		api:     api,
		mapper:  opts.Mapper,
		notify:  opts.Notifier,
		sel:     opts.Selection,
		metrics: opts.Metrics,
		log:     opts.Log,
	}
	if s.notify == nil {
		s.notify = NotifierFunc(func(Notice) {})
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	return s
}

// Snapshot returns a deep copy of the catalog in server order.
func (s *Store) Snapshot() []Product {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Product, len(s.products))
	for i, p := range s.products {
		out[i] = p.clone()
	}
	return out
}

func (s *Store) Product(id string) (Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i := indexOf(s.products, id); i >= 0 {
		return s.products[i].clone(), true
	}
	return Product{}, false
}

// Load replaces the snapshot with the server's catalog. On failure the
// snapshot is emptied.
func (s *Store) Load(ctx context.Context) error {
	recs, err := s.api.ListProducts(ctx)
	s.metrics.op("load", err)
	if err != nil {
		s.swap(func([]Product) []Product { return nil })
		s.fail(NoticeLoad, err)
		return err
	}

	next := make([]Product, 0, len(recs))
	seen := make(map[string]struct{})
	for _, r := range recs {
		p := s.mapper.Product(r)
		p.Flavors = dropSeen(p.Flavors, seen)
		next = append(next, p)
	}
	s.swap(func([]Product) []Product { return next })
	s.log.Debug("catalog loaded", zap.Int("products", len(next)))
	return nil
}

// CreateProduct appends the product once the server has created it. Errors
// are returned so a form can stay open.
func (s *Store) CreateProduct(ctx context.Context, in ProductFields) (Product, error) {
	rec, err := s.api.CreateProduct(ctx, in)
	if err == nil && rec.ID == "" {
		err = ErrEmptyReply
	}
	s.metrics.op("create_product", err)
	if err != nil {
		s.fail(NoticeCreateProduct, err)
		return Product{}, err
	}

	p := s.mapper.Product(rec)
	s.swap(func(cur []Product) []Product {
		out := make([]Product, 0, len(cur)+1)
		for _, x := range cur {
			if x.ID != p.ID {
				out = append(out, x)
			}
		}
		return append(out, p)
	})
	return p.clone(), nil
}

// UpdateProduct stores the server's version of the product. On failure the
// catalog is reloaded and the error returned.
func (s *Store) UpdateProduct(ctx context.Context, productID string, in ProductFields) (Product, error) {
	rec, err := s.api.UpdateProduct(ctx, productID, in)
	if err == nil && rec.ID == "" {
		err = ErrEmptyReply
	}
	s.metrics.op("update_product", err)
	if err != nil {
		s.fail(NoticeUpdateProduct, err)
		s.resync(ctx)
		return Product{}, err
	}

	p := s.mapper.Product(rec)
	s.swap(func(cur []Product) []Product {
		return replaceProduct(cur, productID, func(Product) Product { return p })
	})
	return p.clone(), nil
}

// RemoveProduct drops the product after the server deletes it and clears any
// selection pointing at it. It reports whether the delete succeeded.
func (s *Store) RemoveProduct(ctx context.Context, productID string) bool {
	err := s.api.DeleteProduct(ctx, productID)
	s.metrics.op("remove_product", err)
	if err != nil {
		s.fail(NoticeRemoveProduct, err)
		s.resync(ctx)
		return false
	}

	s.swap(func(cur []Product) []Product {
		out := make([]Product, 0, len(cur))
		for _, x := range cur {
			if x.ID != productID {
				out = append(out, x)
			}
		}
		return out
	})
	if s.sel != nil {
		s.sel.Forget(productID)
	}
	return true
}

// AddFlavorToProduct creates a flavor from form input and appends the
// server's record to the product.
func (s *Store) AddFlavorToProduct(ctx context.Context, productID string, in FlavorInput) (Flavor, bool) {
	rec, err := s.api.AddFlavor(ctx, productID, in.Payload())
	if err == nil && rec.ID == "" {
		err = ErrEmptyReply
	}
	s.metrics.op("add_flavor", err)
	if err != nil {
		s.fail(NoticeAddFlavor, err)
		s.resync(ctx)
		return Flavor{}, false
	}

	f := MapFlavor(rec)
	s.swap(func(cur []Product) []Product {
		return replaceProduct(cur, productID, func(p Product) Product {
			if p.flavorIndex(f.ID) >= 0 {
				return p
			}
			p.Flavors = append(append(make([]Flavor, 0, len(p.Flavors)+1), p.Flavors...), f)
			return p
		})
	})
	return f, true
}

// RemoveFlavor takes the flavor out of the snapshot first, then asks the
// server to delete it.
func (s *Store) RemoveFlavor(ctx context.Context, productID, flavorID string) bool {
	s.metrics.optimistic("remove_flavor")
	s.swap(func(cur []Product) []Product {
		return replaceFlavors(cur, productID, func(fs []Flavor) []Flavor {
			out := make([]Flavor, 0, len(fs))
			for _, f := range fs {
				if f.ID != flavorID {
					out = append(out, f)
				}
			}
			return out
		})
	})

	err := s.api.DeleteFlavor(ctx, flavorID)
	s.metrics.op("remove_flavor", err)
	if err != nil {
		s.fail(NoticeRemoveFlavor, err)
		s.resync(ctx)
		return false
	}
	return true
}

// SetFlavorStock writes the stock, clamped to [0, MaxInt32], into the
// snapshot, then confirms it with the server and keeps whatever the server
// reports.
func (s *Store) SetFlavorStock(ctx context.Context, productID, flavorID string, next int) bool {
	next = min(max(next, 0), math.MaxInt32)

	s.metrics.optimistic("set_stock")
	s.setStock(productID, flavorID, next)

	rec, err := s.api.UpdateFlavor(ctx, flavorID, FlavorFields{Stock: &next})
	if err == nil && rec.ID == "" {
		err = ErrEmptyReply
	}
	s.metrics.op("set_stock", err)
	if err != nil {
		s.fail(NoticeSetStock, err)
		s.resync(ctx)
		return false
	}

	confirmed := 0
	if rec.Stock.Valid {
		confirmed = ClampStock(rec.Stock.Value)
	}
	s.setStock(productID, flavorID, confirmed)
	return true
}

func (s *Store) setStock(productID, flavorID string, stock int) {
	s.swap(func(cur []Product) []Product {
		return replaceFlavors(cur, productID, func(fs []Flavor) []Flavor {
			i := -1
			for j := range fs {
				if fs[j].ID == flavorID {
					i = j
					break
				}
			}
			if i < 0 {
				return fs
			}
			out := append([]Flavor(nil), fs...)
			out[i].Stock = stock
			return out
		})
	})
}

// resync reloads the catalog after a failed write. It runs even when the
// caller's context is already done, so a cancelled request cannot leave a
// stale optimistic value behind.
func (s *Store) resync(ctx context.Context) {
	s.metrics.refetch()
	_ = s.Load(context.WithoutCancel(ctx))
}

func (s *Store) fail(title string, err error) {
	s.log.Warn("catalog sync failed", zap.String("notice", title), zap.Error(err))
	s.notify.Notify(noticeFor(title, err))
}

func (s *Store) swap(fn func([]Product) []Product) {
	s.mu.Lock()
	s.products = fn(s.products)
	s.mu.Unlock()
}

func indexOf(ps []Product, id string) int {
	for i := range ps {
		if ps[i].ID == id {
			return i
		}
	}
	return -1
}

// replaceProduct returns a copy of ps with the product id rewritten by fn.
// ps itself is left alone; a missing id returns ps unchanged.
func replaceProduct(ps []Product, id string, fn func(Product) Product) []Product {
	i := indexOf(ps, id)
	if i < 0 {
		return ps
	}
	out := append([]Product(nil), ps...)
	out[i] = fn(out[i])
	return out
}

func replaceFlavors(ps []Product, productID string, fn func([]Flavor) []Flavor) []Product {
	return replaceProduct(ps, productID, func(p Product) Product {
		p.Flavors = fn(p.Flavors)
		return p
	})
}

func dropSeen(fs []Flavor, seen map[string]struct{}) []Flavor {
	out := fs[:0]
	for _, f := range fs {
		if _, dup := seen[f.ID]; dup {
			continue
		}
		seen[f.ID] = struct{}{}
		out = append(out, f)
	}
	return out
}
