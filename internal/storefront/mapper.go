package storefront

import (
	"fmt"
	"math"
	"strings"
)

const (
	DefaultProductName = "Untitled Product"
	DefaultCategory    = "Uncategorized"
	DefaultFlavorName  = "Flavor"
	DefaultColor       = "#3B82F6"

	PlaceholderImage = "assets/icon.png"
)

// Flavor is the view-side flavor. Every field is already normalized.
type Flavor struct {
	ID       string
	Name     string
	Color    string
	Nicotine string // "20mg", or empty when unknown or zero
	Stock    int
}

// Product is the view-side product.
type Product struct {
	ID          string
	Name        string
	Description string
	Category    string
	Price       float64
	Image       string
	Flavors     []Flavor
}

func (p Product) clone() Product {
	p.Flavors = append([]Flavor(nil), p.Flavors...)
	return p
}

func (p Product) flavorIndex(flavorID string) int {
	for i := range p.Flavors {
		if p.Flavors[i].ID == flavorID {
			return i
		}
	}
	return -1
}

// ImageResolver turns an image key into something displayable.
type ImageResolver interface {
	Resolve(key string) string
}

// ImageTable resolves keys by lookup; unknown and empty keys get the
// placeholder.
type ImageTable map[string]string

func (t ImageTable) Resolve(key string) string {
	if src, ok := t[strings.TrimSpace(key)]; ok && src != "" {
		return src
	}
	return PlaceholderImage
}

// DefaultImages maps the bundled keys vape-1 through vape-6.
func DefaultImages() ImageTable {
	t := make(ImageTable, 6)
	for i := 1; i <= 6; i++ {
		t[fmt.Sprintf("vape-%d", i)] = fmt.Sprintf("assets/images/vape-%d.jpg", i)
	}
	return t
}

// Mapper converts catalog records into view records. The zero value uses
// DefaultImages.
type Mapper struct {
	Images ImageResolver
}

var defaultImages = DefaultImages()

// Product never fails: malformed fields fall back to their defaults. Flavors
// whose id repeats an earlier one in the same record are dropped.
func (m Mapper) Product(r ProductRecord) Product {
	images := m.Images
	if images == nil {
		images = defaultImages
	}

	p := Product{
		ID:          r.ID,
		Name:        textOr(r.Name, DefaultProductName),
		Description: textOr(r.Description, ""),
		Category:    textOr(r.Category, DefaultCategory),
		Image:       PlaceholderImage,
		Flavors:     make([]Flavor, 0, len(r.Flavors)),
	}
	if r.Price.Valid && r.Price.Value > 0 {
		p.Price = r.Price.Value
	}
	if r.ImageKey != nil {
		p.Image = images.Resolve(*r.ImageKey)
	}

	seen := make(map[string]struct{}, len(r.Flavors))
	for _, fr := range r.Flavors {
		if _, dup := seen[fr.ID]; dup {
			continue
		}
		seen[fr.ID] = struct{}{}
		p.Flavors = append(p.Flavors, MapFlavor(fr))
	}
	return p
}

// MapProduct maps with the default image table.
func MapProduct(r ProductRecord) Product {
	return Mapper{}.Product(r)
}

func MapFlavor(r FlavorRecord) Flavor {
	f := Flavor{
		ID:    r.ID,
		Name:  textOr(r.Name, DefaultFlavorName),
		Color: NormalizeColor(r.ColorHex),
	}
	if r.NicotineMg.Valid {
		f.Nicotine = NicotineLabel(r.NicotineMg.Value)
	}
	if r.Stock.Valid {
		f.Stock = ClampStock(r.Stock.Value)
	}
	return f
}

// NicotineLabel renders "<n>mg" for the whole part of mg. Zero, negative and
// non-finite values render as "".
func NicotineLabel(mg float64) string {
	if math.IsNaN(mg) || math.IsInf(mg, 0) {
		return ""
	}
	n := math.Floor(mg)
	if n <= 0 {
		return ""
	}
	return fmt.Sprintf("%.0fmg", n)
}

// ClampStock floors v into [0, MaxInt32]. NaN is 0.
func ClampStock(v float64) int {
	switch {
	case math.IsNaN(v) || v <= 0:
		return 0
	case v >= math.MaxInt32:
		return math.MaxInt32
	}
	return int(math.Floor(v))
}

// NormalizeColor accepts #RGB, #RRGGBB and #RRGGBBAA, case-insensitively.
// Anything else is DefaultColor.
func NormalizeColor(c *string) string {
	if c == nil {
		return DefaultColor
	}
	s := strings.TrimSpace(*c)
	if !isHexColor(s) {
		return DefaultColor
	}
	return s
}

func isHexColor(s string) bool {
	if len(s) == 0 || s[0] != '#' {
		return false
	}
	switch len(s) - 1 {
	case 3, 6, 8:
	default:
		return false
	}
	for _, c := range s[1:] {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

func textOr(s *string, def string) string {
	if s == nil {
		return def
	}
	if t := strings.TrimSpace(*s); t != "" {
		return t
	}
	return def
}
