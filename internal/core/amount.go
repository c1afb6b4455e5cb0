// Package core holds the domain types shared by every stage of the GMV bridge.
//
// This file contains the null-guarded arithmetic used by the aggregations and
// the parsing of monetary amounts coming from text inputs.
package core

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

var ErrInvalidAmount = errors.New("invalid amount")

// DefaultTolerance is the relative tolerance of every identity check.
const DefaultTolerance = 1e-6

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}

// Ratio divides num by den, returning nil instead of dividing by zero.
func Ratio(num, den float64) *float64 {
	if den == 0 {
		return nil
	}
	return Float(num / den)
}

// RelClose reports whether a and b agree within a relative tolerance. Values
// near zero are compared on an absolute scale of tol.
func RelClose(a, b, tol float64) bool {
	scale := math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
	return math.Abs(a-b) <= tol*scale
}

// ParseAmount converts a decimal string to a non-negative amount.
//
// Both dot (12.34) and comma (12,34) decimal separators are accepted. An empty
// string yields nil without error: upstream uses blanks for nulls.
//
// Examples:
//
//	ParseAmount("12.34") -> 12.34, nil
//	ParseAmount("12,34") -> 12.34, nil
//	ParseAmount("")      -> nil, nil
//	ParseAmount("-1")    -> nil, ErrInvalidAmount
func ParseAmount(s string) (*float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "-") {
		return nil, ErrInvalidAmount
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, ErrInvalidAmount
	}
	return &v, nil
}
