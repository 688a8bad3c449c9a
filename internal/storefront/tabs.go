package storefront

import (
	"regexp"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// LowStockThreshold marks a flavor as running low at or below this count.
const LowStockThreshold = 2

const AllTab = "All"

// Tab is one category filter. Key is stable across reloads.
type Tab struct {
	Key     string
	Label   string
	matches func(category string) bool
}

func (t Tab) Matches(category string) bool {
	if t.matches == nil {
		return true
	}
	return t.matches(category)
}

var fold = cases.Fold()

func foldKey(s string) string {
	return fold.String(strings.TrimSpace(s))
}

func patternTab(label, pattern string) Tab {
	re := regexp.MustCompile(`(?i)` + pattern)
	return Tab{Key: label, Label: label, matches: re.MatchString}
}

var baseTabs = []Tab{
	{Key: AllTab, Label: AllTab},
	patternTab("Disposable Vape", `disposable`),
	patternTab("Vape Juice", `(vape\s*juice|juice|e-?liquid|eliquid)`),
	patternTab("Pod System", `pod`),
	patternTab("Box Mod", `(box|mod)`),
	patternTab("Vape Pen", `pen`),
	patternTab("Tank System", `tank`),
	patternTab("Accessories", `accessor`),
	{
		Key:   DefaultCategory,
		Label: DefaultCategory,
		matches: func(c string) bool {
			return strings.TrimSpace(c) == "" || strings.Contains(foldKey(c), foldKey(DefaultCategory))
		},
	},
}

// Tabs lists the fixed category tabs followed by one tab for each category
// in products that none of them covers, in collation order.
func Tabs(products []Product) []Tab {
	seen := make(map[string]struct{})
	var extras []Tab

	for _, p := range products {
		c := strings.TrimSpace(p.Category)
		if c == "" {
			continue
		}
		key := foldKey(c)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		if coveredByBase(c) {
			continue
		}
		extras = append(extras, Tab{
			Key:     c,
			Label:   c,
			matches: func(cat string) bool { return foldKey(cat) == key },
		})
	}

	col := collate.New(language.English, collate.IgnoreCase)
	slices.SortStableFunc(extras, func(a, b Tab) int {
		return col.CompareString(a.Label, b.Label)
	})

	return append(slices.Clone(baseTabs), extras...)
}

func coveredByBase(category string) bool {
	for _, t := range baseTabs[1:] {
		if t.Matches(category) {
			return true
		}
	}
	return false
}

// ActiveTab finds key among tabs, falling back to the All tab when the key
// has disappeared.
func ActiveTab(tabs []Tab, key string) Tab {
	for _, t := range tabs {
		if t.Key == key {
			return t
		}
	}
	return baseTabs[0]
}

// Filter keeps the products in tab, moving low-stock ones to the end. Order
// is otherwise preserved.
func Filter(products []Product, tab Tab) []Product {
	var ok, low []Product
	for _, p := range products {
		if !tab.Matches(p.Category) {
			continue
		}
		if IsLowStock(p) {
			low = append(low, p)
		} else {
			ok = append(ok, p)
		}
	}
	return append(ok, low...)
}

// IsLowStock reports whether any flavor is at or below LowStockThreshold.
// A product without flavors is not low.
func IsLowStock(p Product) bool {
	for _, f := range p.Flavors {
		if f.Stock <= LowStockThreshold {
			return true
		}
	}
	return false
}

func StockLabel(stock int) string {
	switch {
	case stock <= 0:
		return "Out"
	case stock <= LowStockThreshold:
		return "Low (" + strconv.Itoa(stock) + ")"
	}
	return "In (" + strconv.Itoa(stock) + ")"
}
