package storefront

import (
	"context"
	"net/http"
	"net/url"
)

// FlavorRecord is a flavor as the catalog service returns it.
type FlavorRecord struct {
	ID         string  `json:"id"`
	ProductID  string  `json:"product_id"`
	Name       *string `json:"name"`
	NicotineMg Number  `json:"nicotine_mg"`
	ColorHex   *string `json:"color_hex"`
	Stock      Number  `json:"stock"`
}

// ProductRecord is a product as the catalog service returns it, flavors
// embedded.
type ProductRecord struct {
	ID          string         `json:"id"`
	Name        *string        `json:"name"`
	Category    *string        `json:"category"`
	Price       Number         `json:"price"`
	Description *string        `json:"description"`
	ImageKey    *string        `json:"image_key"`
	Flavors     []FlavorRecord `json:"flavors"`
}

// ProductFields is the create/update body for a product. Nil fields go out as
// JSON null so the server applies its own defaults, or leaves the column
// alone on update.
type ProductFields struct {
	Name        *string  `json:"name"`
	Category    *string  `json:"category"`
	Price       *float64 `json:"price"`
	Description *string  `json:"description"`
	ImageKey    *string  `json:"image_key"`
}

type FlavorFields struct {
	Name       *string `json:"name"`
	NicotineMg *int    `json:"nicotine_mg"`
	ColorHex   *string `json:"color_hex"`
	Stock      *int    `json:"stock"`
}

// CatalogAPI is the remote catalog as the Store sees it.
type CatalogAPI interface {
	ListProducts(ctx context.Context) ([]ProductRecord, error)
	CreateProduct(ctx context.Context, in ProductFields) (ProductRecord, error)
	UpdateProduct(ctx context.Context, productID string, in ProductFields) (ProductRecord, error)
	DeleteProduct(ctx context.Context, productID string) error
	AddFlavor(ctx context.Context, productID string, in FlavorFields) (FlavorRecord, error)
	UpdateFlavor(ctx context.Context, flavorID string, in FlavorFields) (FlavorRecord, error)
	DeleteFlavor(ctx context.Context, flavorID string) error
}

type Doer interface {
	Do(ctx context.Context, method, path string, body any, header http.Header, out any) error
}

// API maps the catalog endpoints onto a Doer.
type API struct {
	t Doer
}

func NewAPI(t Doer) *API {
	return &API{t: t}
}

func (a *API) ListProducts(ctx context.Context) ([]ProductRecord, error) {
	var out []ProductRecord
	if err := a.t.Do(ctx, http.MethodGet, "/products", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *API) CreateProduct(ctx context.Context, in ProductFields) (ProductRecord, error) {
	var out ProductRecord
	err := a.t.Do(ctx, http.MethodPost, "/products", in, nil, &out)
	return out, err
}

func (a *API) UpdateProduct(ctx context.Context, productID string, in ProductFields) (ProductRecord, error) {
	var out ProductRecord
	err := a.t.Do(ctx, http.MethodPatch, "/products/"+url.PathEscape(productID), in, nil, &out)
	return out, err
}

func (a *API) DeleteProduct(ctx context.Context, productID string) error {
	return a.t.Do(ctx, http.MethodDelete, "/products/"+url.PathEscape(productID), nil, nil, nil)
}

func (a *API) AddFlavor(ctx context.Context, productID string, in FlavorFields) (FlavorRecord, error) {
	var out FlavorRecord
	err := a.t.Do(ctx, http.MethodPost, "/products/"+url.PathEscape(productID)+"/flavors", in, nil, &out)
	return out, err
}

func (a *API) UpdateFlavor(ctx context.Context, flavorID string, in FlavorFields) (FlavorRecord, error) {
	var out FlavorRecord
	err := a.t.Do(ctx, http.MethodPatch, "/flavors/"+url.PathEscape(flavorID), in, nil, &out)
	return out, err
}

func (a *API) DeleteFlavor(ctx context.Context, flavorID string) error {
	return a.t.Do(ctx, http.MethodDelete, "/flavors/"+url.PathEscape(flavorID), nil, nil, nil)
}
