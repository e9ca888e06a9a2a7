package core

import "time"

// CategoryStat is one category of a trend report.
type CategoryStat struct {
	Name                string  `json:"name"`
	CurrentCount        int     `json:"current_count"`
	PreviousCount       int     `json:"previous_count"`
	CurrentSharePercent float64 `json:"current_share_percent"`
	ChangePercent       float64 `json:"change_percent"`
}

// TrendReport splits categories by their month-over-month change.
type TrendReport struct {
	Rising             []CategoryStat `json:"rising"`
	Stable             []CategoryStat `json:"stable"`
	Falling            []CategoryStat `json:"falling"`
	TotalFilteredCount int            `json:"total_filtered_count"`
	Period             *Period        `json:"period,omitempty"`
	PreviousPeriod     *Period        `json:"previous_period,omitempty"`
}

// Bucket is one slice of a folded breakdown.
type Bucket struct {
	Name         string  `json:"name"`
	Count        int     `json:"count"`
	SharePercent float64 `json:"share_percent"`
	Other        bool    `json:"other,omitempty"`
}

// Breakdown is the donut-chart view of one dimension.
type Breakdown struct {
	Dimension Dimension `json:"dimension"`
	Total     int       `json:"total"`
	Buckets   []Bucket  `json:"buckets"`
}

// MoodBreakdown is the mood drill-down: mood categories, looks within the
// selected category, and attribute charts for the selection.
type MoodBreakdown struct {
	Categories Breakdown `json:"categories"`
	Looks      Breakdown `json:"looks"`
	Patterns   Breakdown `json:"patterns"`
	Colors     Breakdown `json:"colors"`
	Details    Breakdown `json:"details"`
}

// ImageRef points to a gallery image for a category value.
type ImageRef struct {
	S3Key         string `json:"s3_key"`
	URL           string `json:"url"`
	Value         string `json:"value"`
	FollowerCount *int64 `json:"follower_count,omitempty"`
	Year          int    `json:"year"`
	Month         int    `json:"month"`
}

// Meta lists the periods and top-level categories present in the data.
type Meta struct {
	Years        []int         `json:"years"`
	Months       []int         `json:"months"`
	MonthsByYear map[int][]int `json:"months_by_year"`
	Categories   []string      `json:"categories,omitempty"`
}

// MoodKeyword is one keyword under a mood category and look.
type MoodKeyword struct {
	Category string `json:"cate1"`
	Look     string `json:"cate2"`
	Keyword  string `json:"keyword"`
}

// MoodLookGroup groups keywords by look.
type MoodLookGroup struct {
	Name     string   `json:"name"`
	Keywords []string `json:"keywords"`
}

// MoodCategoryGroup groups looks by mood category.
type MoodCategoryGroup struct {
	Name  string          `json:"name"`
	Looks []MoodLookGroup `json:"looks"`
}

// Snapshot is a persisted trend report.
type Snapshot struct {
	ID        string      `json:"id"`
	Dimension Dimension   `json:"dimension"`
	Period    Period      `json:"period"`
	Report    TrendReport `json:"report"`
	CreatedAt time.Time   `json:"created_at"`
}

// IsEmpty reports whether the report has no categories at all.
func (r TrendReport) IsEmpty() bool {
	return len(r.Rising) == 0 && len(r.Stable) == 0 && len(r.Falling) == 0
}

// Stats returns all categories of the report, rising first.
func (r TrendReport) Stats() []CategoryStat {
	out := make([]CategoryStat, 0, len(r.Rising)+len(r.Stable)+len(r.Falling))
	out = append(out, r.Rising...)
	out = append(out, r.Stable...)
	return append(out, r.Falling...)
}
