// Package boundary defines declared operational limits on action
// parameters and the catalog they are looked up in.
package boundary

import (
	"fmt"
	"math"
	"strconv"
)

// Boundary is one named constraint. Values are copied into the catalog
// and never mutated afterwards; a changed definition is a new Boundary.
type Boundary struct {
	Name      string   `json:"name"`
	Parameter string   `json:"parameter,omitempty"`
	MinValue  *float64 `json:"min_value,omitempty"`
	MaxValue  *float64 `json:"max_value,omitempty"`
	HardLimit *float64 `json:"hard_limit,omitempty"`
	Unit      string   `json:"unit,omitempty"`
	Tolerance float64  `json:"tolerance,omitempty"`
}

// Option configures a Boundary built with New.
type Option func(*Boundary)

// Min sets the lower bound.
func Min(v float64) Option { return func(b *Boundary) { b.MinValue = &v } }

// Max sets the upper bound.
func Max(v float64) Option { return func(b *Boundary) { b.MaxValue = &v } }

// HardLimit sets the absolute upper limit, which tolerance never widens.
func HardLimit(v float64) Option { return func(b *Boundary) { b.HardLimit = &v } }

// Unit sets the display unit appended to limits in messages.
func Unit(u string) Option { return func(b *Boundary) { b.Unit = u } }

// Tolerance widens the min/max range by t on each side.
func Tolerance(t float64) Option { return func(b *Boundary) { b.Tolerance = t } }

// Parameter sets a parameter key distinct from the boundary name.
func Parameter(key string) Option { return func(b *Boundary) { b.Parameter = key } }

// New builds a Boundary from options.
func New(name string, opts ...Option) Boundary {
	b := Boundary{Name: name}
	for _, o := range opts {
		o(&b)
	}
	return b
}

// Key returns the parameter key the boundary applies to.
func (b Boundary) Key() string {
	if b.Parameter != "" {
		return b.Parameter
	}
	return b.Name
}

// Validate rejects definitions that cannot be evaluated consistently.
func (b Boundary) Validate() error {
	if b.Name == "" {
		return fmt.Errorf("boundary: name is required")
	}
	if b.Tolerance < 0 || math.IsNaN(b.Tolerance) || math.IsInf(b.Tolerance, 0) {
		return fmt.Errorf("boundary %q: invalid tolerance %v", b.Name, b.Tolerance)
	}
	if b.MinValue != nil && b.MaxValue != nil && *b.MinValue > *b.MaxValue {
		return fmt.Errorf("boundary %q: min_value %s greater than max_value %s",
			b.Name, formatNumber(*b.MinValue), formatNumber(*b.MaxValue))
	}
	return nil
}

// Evaluate checks value against the boundary. The hard limit is checked
// first and ignores tolerance; then min, then max. Only the first failure
// is reported.
func (b Boundary) Evaluate(value float64) (bool, string) {
	if math.IsNaN(value) {
		return false, fmt.Sprintf("%s=NaN is not a number", b.Name)
	}
	if b.HardLimit != nil && value > *b.HardLimit {
		return false, fmt.Sprintf("%s=%s exceeds hard limit %s%s",
			b.Name, formatNumber(value), formatNumber(*b.HardLimit), b.Unit)
	}
	if b.MinValue != nil && value < *b.MinValue-b.Tolerance {
		return false, fmt.Sprintf("%s=%s below min %s%s%s",
			b.Name, formatNumber(value), formatNumber(*b.MinValue), b.Unit, b.toleranceSuffix())
	}
	if b.MaxValue != nil && value > *b.MaxValue+b.Tolerance {
		return false, fmt.Sprintf("%s=%s above max %s%s%s",
			b.Name, formatNumber(value), formatNumber(*b.MaxValue), b.Unit, b.toleranceSuffix())
	}
	return true, "within limits"
}

func (b Boundary) toleranceSuffix() string {
	if b.Tolerance == 0 {
		return ""
	}
	return " (tolerance " + formatNumber(b.Tolerance) + ")"
}

// clone copies the limit pointers so the catalog never shares storage
// with the caller.
func (b Boundary) clone() Boundary {
	c := b
	c.MinValue = copyFloat(b.MinValue)
	c.MaxValue = copyFloat(b.MaxValue)
	c.HardLimit = copyFloat(b.HardLimit)
	return c
}

func copyFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
