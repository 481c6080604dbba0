package model

import (
	"encoding/json"
	"math"
	"strconv"
)

// jsonValue returns v unchanged when JSON can carry it, and its string
// form ("NaN", "+Inf", "-Inf") otherwise.
func jsonValue(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	return v
}

// MarshalJSON encodes non-finite values as strings.
func (c Check) MarshalJSON() ([]byte, error) {
	type check Check
	return json.Marshal(struct {
		check
		Value any `json:"value"`
	}{check(c), jsonValue(c.Value)})
}

// MarshalJSON encodes non-finite values as strings.
func (v Violation) MarshalJSON() ([]byte, error) {
	type violation Violation
	return json.Marshal(struct {
		violation
		Value any `json:"value"`
	}{violation(v), jsonValue(v.Value)})
}

// MarshalJSON encodes non-finite parameter values as strings.
func (r Record) MarshalJSON() ([]byte, error) {
	type record Record
	var params map[string]any
	if r.Parameters != nil {
		params = make(map[string]any, len(r.Parameters))
		for k, v := range r.Parameters {
			params[k] = jsonValue(v)
		}
	}
	return json.Marshal(struct {
		record
		Parameters map[string]any `json:"parameters"`
	}{record(r), params})
}
