package storefront

import (
	"bytes"
	"encoding/json"
	"math"
)

// Number is a JSON number that never fails to decode. null, a missing field,
// or a value of the wrong type all leave it invalid.
type Number struct {
	Value float64
	Valid bool
}

func Num(v float64) Number { return Number{Value: v, Valid: true} }

func (n *Number) UnmarshalJSON(b []byte) error {
	*n = Number{}

	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}

	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return nil
	}
	if !math.IsNaN(v) && !math.IsInf(v, 0) {
		*n = Num(v)
	}
	return nil
}

func (n Number) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Value)
}
