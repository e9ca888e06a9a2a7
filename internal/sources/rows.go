package sources

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"trendai/internal/core"
)

// column aliases seen in exports of the posts table
var columnAliases = map[string]string{
	"id":               "id",
	"no":               "id",
	"s3_key":           "s3_key",
	"thumbnail_s3_url": "s3_key",
	"post_year":        "post_year",
	"year":             "post_year",
	"post_month":       "post_month",
	"month":            "post_month",
	"date_posted":      "date_posted",
	"follower_count":   "follower_count",
	"followers":        "follower_count",
	"category_l1":      "category_l1",
	"category_main":    "category_l1",
	"category_l3":      "category_l3",
	"category_sub":     "category_l3",
	"item_type":        "item_type",
	"color":            "color",
	"pattern":          "pattern",
	"detail":           "detail",
	"detail1":          "detail",
	"mood_category":    "mood_category",
	"cate1":            "mood_category",
	"mood_look":        "mood_look",
	"cate2":            "mood_look",
	"keyword":          "keyword",
}

// Columns maps canonical column names to positions in a row.
type Columns map[string]int

// NewColumns indexes a header row. Unknown headers are ignored.
func NewColumns(header []string) Columns {
	cols := Columns{}
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if canonical, ok := columnAliases[key]; ok {
			if _, dup := cols[canonical]; !dup {
				cols[canonical] = i
			}
		}
	}
	return cols
}

func (c Columns) Has(name string) bool {
	_, ok := c[name]
	return ok
}

func (c Columns) get(row []string, name string) string {
	i, ok := c[name]
	if !ok || i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// Record decodes one row. Rows without a usable year and month are rejected;
// every other field is optional.
func (c Columns) Record(row []string) (core.Record, bool) {
	r := core.Record{
		S3Key:        clean(c.get(row, "s3_key")),
		CategoryL1:   clean(c.get(row, "category_l1")),
		CategoryL3:   clean(c.get(row, "category_l3")),
		ItemType:     clean(c.get(row, "item_type")),
		Color:        clean(c.get(row, "color")),
		Pattern:      clean(c.get(row, "pattern")),
		Detail:       clean(c.get(row, "detail")),
		MoodCategory: clean(c.get(row, "mood_category")),
		MoodLook:     clean(c.get(row, "mood_look")),
	}
	if id, err := strconv.ParseInt(c.get(row, "id"), 10, 64); err == nil {
		r.ID = id
	}

	year, yerr := strconv.Atoi(c.get(row, "post_year"))
	month, merr := strconv.Atoi(c.get(row, "post_month"))
	if yerr != nil || merr != nil {
		year, month = parseDatePosted(c.get(row, "date_posted"))
	}
	if year <= 0 || month < 1 || month > 12 {
		return core.Record{}, false
	}
	r.Year, r.Month = year, month
	r.FollowerCount = ParseFollowerCount(c.get(row, "follower_count"))
	return r, true
}

// Keyword decodes one mood keyword row.
func (c Columns) Keyword(row []string) (core.MoodKeyword, bool) {
	k := core.MoodKeyword{
		Category: clean(c.get(row, "mood_category")),
		Look:     clean(c.get(row, "mood_look")),
		Keyword:  clean(c.get(row, "keyword")),
	}
	if k.Category == "" || k.Keyword == "" {
		return core.MoodKeyword{}, false
	}
	return k, true
}

// ParseFollowerCount accepts plain, comma-grouped and float-formatted numbers.
// Anything else is unknown.
func ParseFollowerCount(s string) *int64 {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" || strings.EqualFold(s, core.NullLiteral) {
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil && n >= 0 {
		return &n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 && f < 1e18 {
		n := int64(f)
		return &n
	}
	return nil
}

// parseDatePosted reads the year and month of a "YYYY-MM..." timestamp.
func parseDatePosted(s string) (int, int) {
	if len(s) < 7 || s[4] != '-' {
		return 0, 0
	}
	y, err := strconv.Atoi(s[:4])
	if err != nil {
		return 0, 0
	}
	m, err := strconv.Atoi(s[5:7])
	if err != nil {
		return 0, 0
	}
	return y, m
}

func clean(v string) string {
	if v, ok := core.NormalizeValue(v); ok {
		return v
	}
	return ""
}

// ErrMissingColumns is returned when a header lacks required columns.
var ErrMissingColumns = errors.New("missing required columns")

// DecodeRecords turns a header row plus data rows into records, skipping
// rows without a period. It returns the number of skipped rows.
func DecodeRecords(rows [][]string) ([]core.Record, int, error) {
	if len(rows) == 0 {
		return nil, 0, nil
	}
	cols := NewColumns(rows[0])
	if !(cols.Has("post_year") && cols.Has("post_month")) && !cols.Has("date_posted") {
		return nil, 0, fmt.Errorf("%w: post_year and post_month (or date_posted)", ErrMissingColumns)
	}
	out := make([]core.Record, 0, len(rows)-1)
	skipped := 0
	for _, row := range rows[1:] {
		r, ok := cols.Record(row)
		if !ok {
			skipped++
			continue
		}
		out = append(out, r)
	}
	return out, skipped, nil
}

// DecodeKeywords turns a header row plus data rows into mood keywords.
func DecodeKeywords(rows [][]string) ([]core.MoodKeyword, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	cols := NewColumns(rows[0])
	if !cols.Has("mood_category") || !cols.Has("keyword") {
		return nil, fmt.Errorf("%w: mood_category and keyword", ErrMissingColumns)
	}
	var out []core.MoodKeyword
	for _, row := range rows[1:] {
		if k, ok := cols.Keyword(row); ok {
			out = append(out, k)
		}
	}
	return out, nil
}

// ReadCSV reads every row of a CSV stream. Rows may have varying lengths.
func ReadCSV(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return rows, nil
}

// Filter keeps the records covered by q.
func Filter(records []core.Record, q core.RecordQuery) []core.Record {
	out := make([]core.Record, 0, len(records))
	for _, r := range records {
		if q.Covers(r) {
			out = append(out, r)
		}
	}
	return out
}

// BuildMeta derives the available periods and top-level categories.
func BuildMeta(records []core.Record) core.Meta {
	years := map[int]struct{}{}
	months := map[int]struct{}{}
	byYear := map[int]map[int]struct{}{}
	cats := map[string]struct{}{}

	for _, r := range records {
		years[r.Year] = struct{}{}
		months[r.Month] = struct{}{}
		if byYear[r.Year] == nil {
			byYear[r.Year] = map[int]struct{}{}
		}
		byYear[r.Year][r.Month] = struct{}{}
		if r.CategoryL1 != "" {
			cats[r.CategoryL1] = struct{}{}
		}
	}

	meta := core.Meta{
		Years:        sortedInts(years),
		Months:       sortedInts(months),
		MonthsByYear: make(map[int][]int, len(byYear)),
		Categories:   make([]string, 0, len(cats)),
	}
	for y, ms := range byYear {
		meta.MonthsByYear[y] = sortedInts(ms)
	}
	for c := range cats {
		meta.Categories = append(meta.Categories, c)
	}
	sort.Strings(meta.Categories)
	return meta
}

func sortedInts(set map[int]struct{}) []int {
	out := make([]int, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}
