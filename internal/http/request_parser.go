// Package http serves the trend dashboard JSON API.
//
// This file holds the query parsing shared by every handler. Filters mirror
// the dashboard's query string; empty values and "all" leave a filter unset.

package http

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"trendai/internal/core"
)

const (
	defaultMaxItems  = 0
	defaultThreshold = 0
	maxLimit         = 500
)

// ParamError reports a malformed query parameter.
type ParamError struct {
	Param string
	Value string
	Err   error
}

func (e *ParamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid %s %q: %v", e.Param, e.Value, e.Err)
	}
	return fmt.Sprintf("invalid %s %q", e.Param, e.Value)
}

func (e *ParamError) Unwrap() error { return e.Err }

var errMissingParam = errors.New("required")

// ParseCriteria reads the filter parameters of a dashboard query.
func ParseCriteria(query url.Values) (core.Criteria, error) {
	var c core.Criteria
	var err error

	if c.Year, err = optionalInt(query, "post_year"); err != nil {
		return c, err
	}
	if c.Month, err = optionalInt(query, "post_month"); err != nil {
		return c, err
	}

	minName := "follower_min"
	if filterValue(query.Get(minName)) == "" {
		minName = "follower_count"
	}
	minFollowers, err := optionalInt(query, minName)
	if err != nil {
		return c, err
	}
	c.FollowerMin = int64(minFollowers)

	if v := filterValue(query.Get("follower_max")); v != "" {
		maxFollowers, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return c, &ParamError{Param: "follower_max", Value: v, Err: err}
		}
		c.FollowerMax = &maxFollowers
	}

	c.CategoryL1 = filterValue(query.Get("category_l1"))
	c.CategoryL3 = filterValue(query.Get("category_l3"))
	c.MoodCategory = filterValue(query.Get("mood_category"))
	c.MoodLook = filterValue(query.Get("mood_look"))

	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

// ParsePeriod reads a concrete month from post_year and post_month.
func ParsePeriod(query url.Values) (core.Period, error) {
	year, err := optionalInt(query, "post_year")
	if err != nil {
		return core.Period{}, err
	}
	month, err := optionalInt(query, "post_month")
	if err != nil {
		return core.Period{}, err
	}
	if year <= 0 {
		return core.Period{}, &ParamError{Param: "post_year", Value: query.Get("post_year"), Err: core.ErrInvalidYear}
	}
	if month < 1 || month > 12 {
		return core.Period{}, &ParamError{Param: "post_month", Value: query.Get("post_month"), Err: core.ErrInvalidMonth}
	}
	return core.Period{Year: year, Month: month}, nil
}

// FoldParams holds the donut chart folding options. Zero values disable
// folding, so charts show every category unless the caller asks otherwise.
type FoldParams struct {
	MaxItems  int
	Threshold int
}

func ParseFoldParams(query url.Values) (FoldParams, error) {
	p := FoldParams{MaxItems: defaultMaxItems, Threshold: defaultThreshold}
	if v := filterValue(query.Get("max_items")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return p, &ParamError{Param: "max_items", Value: v, Err: err}
		}
		p.MaxItems = n
	}
	if v := filterValue(query.Get("threshold")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return p, &ParamError{Param: "threshold", Value: v, Err: err}
		}
		p.Threshold = n
	}
	return p, nil
}

// ParseLimit returns 0 when limit is absent so the service default applies.
func ParseLimit(query url.Values) (int, error) {
	v := filterValue(query.Get("limit"))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 || n > maxLimit {
		return 0, &ParamError{Param: "limit", Value: v, Err: err}
	}
	return n, nil
}

// RequireParam returns the sanitized value of a mandatory parameter.
func RequireParam(query url.Values, name string) (string, error) {
	v := filterValue(query.Get(name))
	if v == "" {
		return "", &ParamError{Param: name, Value: query.Get(name), Err: errMissingParam}
	}
	return v, nil
}

// ParseBool accepts 1/true/yes.
func ParseBool(query url.Values, name string) bool {
	switch strings.ToLower(strings.TrimSpace(query.Get(name))) {
	case "1", "true", "yes":
		return true
	}
	return false
}

func optionalInt(query url.Values, name string) (int, error) {
	v := filterValue(query.Get(name))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, &ParamError{Param: name, Value: v, Err: err}
	}
	return n, nil
}

// filterValue sanitizes v and maps "all" to empty.
func filterValue(v string) string {
	v = sanitizeInput(v)
	if strings.EqualFold(v, "all") {
		return ""
	}
	return v
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
