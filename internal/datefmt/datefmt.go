// Package datefmt enforces the single date format accepted in query
// parameters and converts between it and the vendor's compact form.
package datefmt

import (
	"fmt"
	"regexp"
	"time"
)

const (
	// Layout is the only accepted query date format.
	Layout = "2006-01-02"
	// VendorLayout is the compact form Tushare uses in params and rows.
	VendorLayout = "20060102"
)

var isoDate = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// InvalidDateFormatError reports a date string that is not YYYY-MM-DD.
type InvalidDateFormatError struct {
	Field string
	Value string
}

func (e *InvalidDateFormatError) Error() string {
	return fmt.Sprintf("Invalid '%s' format. Expected YYYY-MM-DD.", e.Field)
}

// Validate passes value through unchanged when it is not a string, or when
// it is a string of the exact form YYYY-MM-DD.
func Validate(value any, field string) (any, error) {
	s, ok := value.(string)
	if !ok {
		return value, nil
	}
	if !isoDate.MatchString(s) {
		return nil, &InvalidDateFormatError{Field: field, Value: s}
	}
	return value, nil
}

// Resolve validates value and converts it to a calendar date (midnight in
// the value's location, UTC for strings). A nil value yields fallback.
// Pattern-valid strings naming an impossible date fail the same way as a
// malformed one.
func Resolve(value any, field string, fallback time.Time) (time.Time, error) {
	if _, err := Validate(value, field); err != nil {
		return time.Time{}, err
	}
	switch v := value.(type) {
	case nil:
		return fallback, nil
	case string:
		t, err := time.Parse(Layout, v)
		if err != nil {
			return time.Time{}, &InvalidDateFormatError{Field: field, Value: v}
		}
		return t, nil
	case time.Time:
		return Truncate(v), nil
	case *time.Time:
		if v == nil {
			return fallback, nil
		}
		return Truncate(*v), nil
	}
	return time.Time{}, &InvalidDateFormatError{Field: field, Value: fmt.Sprint(value)}
}

// Truncate drops the clock part of t, keeping its location.
func Truncate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Compact formats t as YYYYMMDD for vendor requests.
func Compact(t time.Time) string {
	return t.Format(VendorLayout)
}

// FromVendor converts a vendor YYYYMMDD string to YYYY-MM-DD. Values that
// are not compact dates are returned unchanged.
func FromVendor(s string) string {
	t, err := time.Parse(VendorLayout, s)
	if err != nil {
		return s
	}
	return t.Format(Layout)
}

// ParseVendor parses a vendor YYYYMMDD date as UTC midnight.
func ParseVendor(s string) (time.Time, error) {
	return time.Parse(VendorLayout, s)
}
