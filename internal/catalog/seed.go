package catalog

import (
	"context"
	"fmt"
)

type seedFlavor struct {
	name     string
	color    string
	nicotine int
	stock    int
}

type seedProduct struct {
	name, description, category, imageKey string
	price                                 float64
	flavors                               []seedFlavor
}

var demoCatalog = []seedProduct{
	{
		name:        "Cloud Pro X",
		description: "Premium pod system with adjustable airflow and long-lasting battery life",
		category:    "Pod System",
		price:       39.99,
		imageKey:    "vape-1",
		flavors: []seedFlavor{
			{"Mango Ice", "#FFA500", 20, 12},
			{"Strawberry Blast", "#FF6B6B", 20, 0},
			{"Cool Mint", "#98D8C8", 20, 4},
			{"Grape Fusion", "#8B5CF6", 35, 2},
		},
	},
	{
		name:        "Vapor King Elite",
		description: "High-performance box mod with temperature control and OLED display",
		category:    "Box Mod",
		price:       79.99,
		imageKey:    "vape-2",
		flavors: []seedFlavor{
			{"Tobacco Classic", "#8B4513", 12, 8},
			{"Vanilla Cream", "#F5DEB3", 6, 1},
			{"Coffee Mocha", "#6F4E37", 12, 6},
		},
	},
	{
		name:        "Slim Series V2",
		description: "Ultra-portable disposable vape with 5000 puffs capacity",
		category:    "Disposable",
		price:       24.99,
		imageKey:    "vape-3",
		flavors: []seedFlavor{
			{"Watermelon", "#FF6B6B", 50, 0},
			{"Blue Razz", "#3B82F6", 50, 10},
			{"Lush Ice", "#10B981", 50, 3},
		},
	},
	{
		name:        "NebulaTank 3000",
		description: "Sub-ohm tank system for cloud chasers with mesh coil",
		category:    "Tank System",
		price:       54.99,
		imageKey:    "vape-5",
		flavors: []seedFlavor{
			{"Tropical Mix", "#F97316", 3, 6},
			{"Berry Lemonade", "#EC4899", 6, 1},
		},
	},
}

// Seed loads the demo catalog into an empty store. A store that already has
// products is left alone.
func Seed(ctx context.Context, store Store) (int, error) {
	existing, err := store.ListProducts(ctx)
	if err != nil {
		return 0, fmt.Errorf("seed: list: %w", err)
	}
	if len(existing) > 0 {
		return 0, nil
	}

	for _, sp := range demoCatalog {
		in := NewProduct{
			ProductFields: ProductFields{
				Name:        ptr(sp.name),
				Category:    ptr(sp.category),
				Price:       ptr(sp.price),
				Description: ptr(sp.description),
				ImageKey:    ptr(sp.imageKey),
			},
		}
		for _, f := range sp.flavors {
			in.Flavors = append(in.Flavors, FlavorFields{
				Name:       ptr(f.name),
				NicotineMg: ptr(f.nicotine),
				ColorHex:   ptr(f.color),
				Stock:      ptr(f.stock),
			})
		}
		if _, err := store.CreateProduct(ctx, in); err != nil {
			return 0, fmt.Errorf("seed %q: %w", sp.name, err)
		}
	}
	return len(demoCatalog), nil
}

func ptr[T any](v T) *T { return &v }
