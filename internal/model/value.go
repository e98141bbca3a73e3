package model

import "encoding/json"

// Value is a derived indicator value that may be undefined during warm-up.
// Undefined is a first-class state distinct from zero: an SMA(20) simply has
// no value for the first 19 bars, and consumers must be able to tell that
// apart from a legitimate 0.0.
type Value struct {
	V       float64
	Defined bool
}

// Val constructs a defined Value.
func Val(v float64) Value {
	return Value{V: v, Defined: true}
}

// Undefined is the zero Value, named for readability at call sites.
var Undefined = Value{}

// MarshalJSON encodes a defined value as a number and an undefined one as
// null, so WS/REST consumers see warm-up gaps explicitly.
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.Defined {
		return []byte("null"), nil
	}
	return json.Marshal(v.V)
}

// UnmarshalJSON accepts a number or null.
func (v *Value) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*v = Value{}
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*v = Value{V: f, Defined: true}
	return nil
}
