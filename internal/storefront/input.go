package storefront

import (
	"math"
	"strconv"
	"strings"
)

// DefaultNewFlavorStock applies when a new flavor's stock text is empty or
// not a usable number.
const DefaultNewFlavorStock = 10

// FlavorInput is a new flavor as typed into a form.
type FlavorInput struct {
	Name     string
	Color    string
	Nicotine string // free text such as "20mg" or "nic 5"
	Stock    string
}

// Payload normalizes the form into a create request.
func (in FlavorInput) Payload() FlavorFields {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = DefaultFlavorName
	}
	color := strings.TrimSpace(in.Color)
	if color == "" {
		color = DefaultColor
	}
	stock := ParseStock(in.Stock)

	out := FlavorFields{
		Name:     &name,
		ColorHex: &color,
		Stock:    &stock,
	}
	if mg, ok := ParseNicotine(in.Nicotine); ok {
		out.NicotineMg = &mg
	}
	return out
}

// ParseNicotine reads the first run of ASCII digits in s. No digits, a zero
// value or an overflowing run all report absent.
func ParseNicotine(s string) (int, bool) {
	start := strings.IndexFunc(s, isDigit)
	if start < 0 {
		return 0, false
	}
	end := start
	for end < len(s) && isDigit(rune(s[end])) {
		end++
	}

	n, err := strconv.ParseInt(s[start:end], 10, 32)
	if err != nil || n == 0 {
		return 0, false
	}
	return int(n), true
}

// ParseStock reads a non-negative count for a new flavor. Decimals are
// floored; empty, negative or non-numeric text gives DefaultNewFlavorStock.
func ParseStock(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultNewFlavorStock
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return DefaultNewFlavorStock
	}
	return ClampStock(v)
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }
