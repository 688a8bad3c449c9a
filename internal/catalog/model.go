package catalog

import (
	"context"
	"errors"
	"fmt"
	"math"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrFlavorNotFound  = errors.New("flavor not found")
	ErrInvalid         = errors.New("invalid payload")
)

// Flavor is one variant of a product with its own stock count. Nullable
// columns stay pointers so the wire carries JSON null for them.
type Flavor struct {
	ID         string  `json:"id" db:"id"`
	ProductID  string  `json:"product_id" db:"product_id"`
	Name       *string `json:"name" db:"name"`
	NicotineMg *int    `json:"nicotine_mg" db:"nicotine_mg"`
	ColorHex   *string `json:"color_hex" db:"color_hex"`
	Stock      int     `json:"stock" db:"stock"`
	Ordinal    int     `json:"-" db:"ordinal"`
}

type Product struct {
	ID          string   `json:"id" db:"id"`
	Name        *string  `json:"name" db:"name"`
	Category    *string  `json:"category" db:"category"`
	Price       *float64 `json:"price" db:"price"`
	Description *string  `json:"description" db:"description"`
	ImageKey    *string  `json:"image_key" db:"image_key"`
	Flavors     []Flavor `json:"flavors" db:"-"`
}

// FlavorFields is the create and patch payload for a flavor. On patch a nil
// field means "leave unchanged".
type FlavorFields struct {
	Name       *string `json:"name"`
	NicotineMg *int    `json:"nicotine_mg"`
	ColorHex   *string `json:"color_hex"`
	Stock      *int    `json:"stock"`
}

type ProductFields struct {
	Name        *string  `json:"name"`
	Category    *string  `json:"category"`
	Price       *float64 `json:"price"`
	Description *string  `json:"description"`
	ImageKey    *string  `json:"image_key"`
}

// NewProduct may carry initial flavors; they keep the order given.
type NewProduct struct {
	ProductFields
	Flavors []FlavorFields `json:"flavors"`
}

type Store interface {
	Ping(ctx context.Context) error
	ListProducts(ctx context.Context) ([]Product, error)
	CreateProduct(ctx context.Context, in NewProduct) (Product, error)
	UpdateProduct(ctx context.Context, id string, in ProductFields) (Product, error)
	DeleteProduct(ctx context.Context, id string) error
	AddFlavor(ctx context.Context, productID string, in FlavorFields) (Flavor, error)
	UpdateFlavor(ctx context.Context, id string, in FlavorFields) (Flavor, error)
	DeleteFlavor(ctx context.Context, id string) error
}

func (f FlavorFields) Validate() error {
	if f.Stock != nil && *f.Stock < 0 {
		return fmt.Errorf("%w: stock must be non-negative", ErrInvalid)
	}
	if f.NicotineMg != nil && *f.NicotineMg < 0 {
		return fmt.Errorf("%w: nicotine_mg must be non-negative", ErrInvalid)
	}
	return nil
}

func (p ProductFields) Validate() error {
	if p.Price != nil && (*p.Price < 0 || math.IsNaN(*p.Price) || math.IsInf(*p.Price, 0)) {
		return fmt.Errorf("%w: price must be a non-negative number", ErrInvalid)
	}
	return nil
}

func (n NewProduct) Validate() error {
	if err := n.ProductFields.Validate(); err != nil {
		return err
	}
	for i, f := range n.Flavors {
		if err := f.Validate(); err != nil {
			return fmt.Errorf("flavors[%d]: %w", i, err)
		}
	}
	return nil
}

func newFlavor(id, productID string, in FlavorFields, ordinal int) Flavor {
	f := Flavor{
		ID:         id,
		ProductID:  productID,
		Name:       in.Name,
		NicotineMg: in.NicotineMg,
		ColorHex:   in.ColorHex,
		Ordinal:    ordinal,
	}
	if in.Stock != nil {
		f.Stock = *in.Stock
	}
	return f
}

func (p *Product) apply(in ProductFields) {
	if in.Name != nil {
		p.Name = in.Name
	}
	if in.Category != nil {
		p.Category = in.Category
	}
	if in.Price != nil {
		p.Price = in.Price
	}
	if in.Description != nil {
		p.Description = in.Description
	}
	if in.ImageKey != nil {
		p.ImageKey = in.ImageKey
	}
}

func (f *Flavor) apply(in FlavorFields) {
	if in.Name != nil {
		f.Name = in.Name
	}
	if in.NicotineMg != nil {
		f.NicotineMg = in.NicotineMg
	}
	if in.ColorHex != nil {
		f.ColorHex = in.ColorHex
	}
	if in.Stock != nil {
		f.Stock = *in.Stock
	}
}

func (p Product) clone() Product {
	out := p
	out.Flavors = make([]Flavor, len(p.Flavors))
	copy(out.Flavors, p.Flavors)
	return out
}
