package catalog

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// MemStore keeps the catalog in process memory. Products list in insertion
// order.
type MemStore struct {
	mu       sync.RWMutex
	order    []string
	products map[string]*Product
	owner    map[string]string // flavor id -> product id
	nextOrd  map[string]int
	newID    func() string
}

func NewMemStore() *MemStore {
	return &MemStore{
		products: map[string]*Product{},
		owner:    map[string]string{},
		nextOrd:  map[string]int{},
		newID:    uuid.NewString,
	}
}

func (s *MemStore) Ping(ctx context.Context) error { return nil }

func (s *MemStore) ListProducts(ctx context.Context) ([]Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Product, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.products[id].clone())
	}
	return out, nil
}

func (s *MemStore) CreateProduct(ctx context.Context, in NewProduct) (Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := &Product{ID: s.newID(), Flavors: make([]Flavor, 0, len(in.Flavors))}
	p.apply(in.ProductFields)

	for i, ff := range in.Flavors {
		f := newFlavor(s.newID(), p.ID, ff, i)
		p.Flavors = append(p.Flavors, f)
		s.owner[f.ID] = p.ID
	}

	s.products[p.ID] = p
	s.order = append(s.order, p.ID)
	s.nextOrd[p.ID] = len(in.Flavors)
	return p.clone(), nil
}

func (s *MemStore) UpdateProduct(ctx context.Context, id string, in ProductFields) (Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok {
		return Product{}, ErrProductNotFound
	}
	p.apply(in)
	return p.clone(), nil
}

func (s *MemStore) DeleteProduct(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok {
		return ErrProductNotFound
	}
	for _, f := range p.Flavors {
		delete(s.owner, f.ID)
	}
	delete(s.products, id)
	delete(s.nextOrd, id)
	s.order = slices.DeleteFunc(s.order, func(v string) bool { return v == id })
	return nil
}

func (s *MemStore) AddFlavor(ctx context.Context, productID string, in FlavorFields) (Flavor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[productID]
	if !ok {
		return Flavor{}, ErrProductNotFound
	}

	f := newFlavor(s.newID(), productID, in, s.nextOrd[productID])
	s.nextOrd[productID]++
	p.Flavors = append(p.Flavors, f)
	s.owner[f.ID] = productID
	return f, nil
}

func (s *MemStore) UpdateFlavor(ctx context.Context, id string, in FlavorFields) (Flavor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, i, ok := s.locateFlavor(id)
	if !ok {
		return Flavor{}, ErrFlavorNotFound
	}
	p.Flavors[i].apply(in)
	return p.Flavors[i], nil
}

func (s *MemStore) DeleteFlavor(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, i, ok := s.locateFlavor(id)
	if !ok {
		return ErrFlavorNotFound
	}
	p.Flavors = slices.Delete(p.Flavors, i, i+1)
	delete(s.owner, id)
	return nil
}

func (s *MemStore) locateFlavor(id string) (*Product, int, bool) {
	p, ok := s.products[s.owner[id]]
	if !ok {
		return nil, 0, false
	}
	i := slices.IndexFunc(p.Flavors, func(f Flavor) bool { return f.ID == id })
	return p, i, i >= 0
}
