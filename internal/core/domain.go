package core

import (
	"errors"
	"fmt"
	"strings"
)

// Dimension names a record attribute that can be counted.
type Dimension string

const (
	DimColor        Dimension = "color"
	DimPattern      Dimension = "pattern"
	DimItemType     Dimension = "item_type"
	DimCategoryL3   Dimension = "category_l3"
	DimDetail       Dimension = "detail"
	DimMoodCategory Dimension = "mood_category"
	DimMoodLook     Dimension = "mood_look"
)

// NullLiteral is how missing values arrive from upstream exports.
const NullLiteral = "null"

type (
	// Period is a calendar month.
	Period struct {
		Year  int `json:"year"`
		Month int `json:"month"`
	}

	// Record is one tagged image post. All attribute fields may be empty.
	Record struct {
		ID            int64
		S3Key         string
		Year          int
		Month         int
		FollowerCount *int64 // nil when missing or malformed
		CategoryL1    string
		CategoryL3    string
		ItemType      string
		Color         string
		Pattern       string
		Detail        string
		MoodCategory  string
		MoodLook      string
	}

	// Criteria selects the records of the current period.
	// Year and Month use 0 for "all"; empty strings leave a filter unset.
	Criteria struct {
		Year         int
		Month        int
		FollowerMin  int64
		FollowerMax  *int64 // nil means unbounded
		CategoryL1   string
		CategoryL3   string
		MoodCategory string
		MoodLook     string
	}

	// RecordQuery narrows what a reader has to load. Readers may return more
	// than asked; the aggregator filters again.
	RecordQuery struct {
		Periods    []Period
		CategoryL1 string
		CategoryL3 string
	}
)

var (
	ErrInvalidYear          = errors.New("invalid year")
	ErrInvalidMonth         = errors.New("invalid month")
	ErrInvalidFollowerRange = errors.New("invalid follower range")
	ErrUnknownDimension     = errors.New("unknown dimension")
	ErrNotFound             = errors.New("not found")
)

// TrendDimensions are the dimensions the dashboard shows rising/falling charts for.
var TrendDimensions = []Dimension{DimColor, DimPattern, DimItemType, DimCategoryL3}

// AllDimensions lists every countable dimension.
var AllDimensions = []Dimension{
	DimColor, DimPattern, DimItemType, DimCategoryL3, DimDetail, DimMoodCategory, DimMoodLook,
}

// ParseDimension maps a name to a Dimension.
func ParseDimension(s string) (Dimension, error) {
	d := Dimension(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllDimensions {
		if d == known {
			return d, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownDimension, s)
}

// Value returns the raw attribute of r for this dimension.
func (d Dimension) Value(r Record) string {
	switch d {
	case DimColor:
		return r.Color
	case DimPattern:
		return r.Pattern
	case DimItemType:
		return r.ItemType
	case DimCategoryL3:
		return r.CategoryL3
	case DimDetail:
		return r.Detail
	case DimMoodCategory:
		return r.MoodCategory
	case DimMoodLook:
		return r.MoodLook
	}
	return ""
}

// Accessor returns Value bound to d.
func (d Dimension) Accessor() func(Record) string {
	return func(r Record) string { return d.Value(r) }
}

// NormalizeValue trims v and reports whether it names a real category.
func NormalizeValue(v string) (string, bool) {
	v = strings.TrimSpace(v)
	if v == "" || strings.EqualFold(v, NullLiteral) {
		return "", false
	}
	return v, true
}

// Prev returns the calendar month before p.
func (p Period) Prev() Period {
	if p.Month <= 1 {
		return Period{Year: p.Year - 1, Month: 12}
	}
	return Period{Year: p.Year, Month: p.Month - 1}
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

// Period returns the concrete month selected by c, if both year and month are set.
func (c Criteria) Period() (Period, bool) {
	if c.Year <= 0 || c.Month <= 0 {
		return Period{}, false
	}
	return Period{Year: c.Year, Month: c.Month}, true
}

// PreviousPeriod returns the month compared against, if there is one.
func (c Criteria) PreviousPeriod() (Period, bool) {
	p, ok := c.Period()
	if !ok {
		return Period{}, false
	}
	return p.Prev(), true
}

// MatchesAttributes checks everything except year and month.
func (c Criteria) MatchesAttributes(r Record) bool {
	if c.CategoryL1 != "" && r.CategoryL1 != c.CategoryL1 {
		return false
	}
	if c.CategoryL3 != "" && r.CategoryL3 != c.CategoryL3 {
		return false
	}
	if c.MoodCategory != "" && r.MoodCategory != c.MoodCategory {
		return false
	}
	if c.MoodLook != "" && r.MoodLook != c.MoodLook {
		return false
	}
	if r.FollowerCount == nil {
		return false
	}
	f := *r.FollowerCount
	if f < c.FollowerMin {
		return false
	}
	if c.FollowerMax != nil && f > *c.FollowerMax {
		return false
	}
	return true
}

// Matches reports whether r belongs to the current period selected by c.
func (c Criteria) Matches(r Record) bool {
	if c.Year > 0 && r.Year != c.Year {
		return false
	}
	if c.Month > 0 && r.Month != c.Month {
		return false
	}
	return c.MatchesAttributes(r)
}

// MatchesPeriod checks r against p with the non-date filters of c.
func (c Criteria) MatchesPeriod(r Record, p Period) bool {
	if r.Year != p.Year || r.Month != p.Month {
		return false
	}
	return c.MatchesAttributes(r)
}

// Query builds the narrowest RecordQuery that still covers the current and previous period.
func (c Criteria) Query() RecordQuery {
	q := RecordQuery{CategoryL1: c.CategoryL1, CategoryL3: c.CategoryL3}
	if p, ok := c.Period(); ok {
		q.Periods = []Period{p, p.Prev()}
	}
	return q
}

func (c Criteria) Validate() error {
	if c.Year < 0 {
		return ErrInvalidYear
	}
	if c.Month < 0 || c.Month > 12 {
		return ErrInvalidMonth
	}
	if c.FollowerMin < 0 {
		return ErrInvalidFollowerRange
	}
	if c.FollowerMax != nil && *c.FollowerMax < c.FollowerMin {
		return ErrInvalidFollowerRange
	}
	return nil
}

// Covers reports whether r falls in one of the query's periods and categories.
func (q RecordQuery) Covers(r Record) bool {
	if q.CategoryL1 != "" && r.CategoryL1 != q.CategoryL1 {
		return false
	}
	if q.CategoryL3 != "" && r.CategoryL3 != q.CategoryL3 {
		return false
	}
	if len(q.Periods) == 0 {
		return true
	}
	for _, p := range q.Periods {
		if r.Year == p.Year && r.Month == p.Month {
			return true
		}
	}
	return false
}
