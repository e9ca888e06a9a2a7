// Package trend computes month-over-month category shares.
package trend

import (
	"sort"

	"github.com/shopspring/decimal"

	"trendai/internal/core"
)

const (
	DefaultTopN       = 10
	DefaultStableBand = 5.0
)

// Options tunes ranking and classification.
type Options struct {
	TopN       int     // entries kept per bucket
	StableBand float64 // changes within [-band, band] are stable
}

func DefaultOptions() Options {
	return Options{TopN: DefaultTopN, StableBand: DefaultStableBand}
}

var hundred = decimal.NewFromInt(100)

// Aggregate filters records by c, counts the value returned by accessor and
// compares the counts against the previous calendar month.
func Aggregate(records []core.Record, c core.Criteria, accessor func(core.Record) string, opts Options) core.TrendReport {
	if opts.TopN <= 0 {
		opts.TopN = DefaultTopN
	}
	if opts.StableBand < 0 {
		opts.StableBand = DefaultStableBand
	}

	current, total := Count(records, c, accessor)

	report := core.TrendReport{
		Rising:             []core.CategoryStat{},
		Stable:             []core.CategoryStat{},
		Falling:            []core.CategoryStat{},
		TotalFilteredCount: total,
	}

	previous := map[string]int{}
	if p, ok := c.Period(); ok {
		prev := p.Prev()
		report.Period = &p
		report.PreviousPeriod = &prev
		previous = countPrevious(records, c, prev, accessor, current)
	}

	for name, cur := range current {
		prev := previous[name]
		stat := core.CategoryStat{
			Name:                name,
			CurrentCount:        cur,
			PreviousCount:       prev,
			CurrentSharePercent: Share(cur, total),
			ChangePercent:       Change(cur, prev),
		}
		switch {
		case stat.ChangePercent > opts.StableBand:
			report.Rising = append(report.Rising, stat)
		case stat.ChangePercent < -opts.StableBand:
			report.Falling = append(report.Falling, stat)
		default:
			report.Stable = append(report.Stable, stat)
		}
	}

	report.Rising = rank(report.Rising, opts.TopN)
	report.Stable = rank(report.Stable, opts.TopN)
	report.Falling = rank(report.Falling, opts.TopN)
	return report
}

// Count tallies normalized values of the records matching c.
// The second result is the number of records that contributed a value.
func Count(records []core.Record, c core.Criteria, accessor func(core.Record) string) (map[string]int, int) {
	counts := make(map[string]int)
	total := 0
	for _, r := range records {
		if !c.Matches(r) {
			continue
		}
		v, ok := core.NormalizeValue(accessor(r))
		if !ok {
			continue
		}
		counts[v]++
		total++
	}
	return counts, total
}

// countPrevious only tracks categories already present in the current period.
func countPrevious(records []core.Record, c core.Criteria, p core.Period, accessor func(core.Record) string, current map[string]int) map[string]int {
	counts := make(map[string]int, len(current))
	for _, r := range records {
		if !c.MatchesPeriod(r, p) {
			continue
		}
		v, ok := core.NormalizeValue(accessor(r))
		if !ok {
			continue
		}
		if _, seen := current[v]; seen {
			counts[v]++
		}
	}
	return counts
}

// Share returns count/total as a percentage rounded to two decimals.
func Share(count, total int) float64 {
	if total <= 0 {
		return 0
	}
	return round2(decimal.NewFromInt(int64(count)).Mul(hundred).Div(decimal.NewFromInt(int64(total))))
}

// Change returns the signed percent change from prev to cur. A category
// with no previous occurrences counts as +100.
func Change(cur, prev int) float64 {
	if prev > 0 {
		d := decimal.NewFromInt(int64(cur - prev)).Mul(hundred).Div(decimal.NewFromInt(int64(prev)))
		return round2(d)
	}
	if cur > 0 {
		return 100
	}
	return 0
}

func round2(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

func rank(stats []core.CategoryStat, n int) []core.CategoryStat {
	sort.Slice(stats, func(i, j int) bool {
		a, b := stats[i], stats[j]
		if a.CurrentSharePercent != b.CurrentSharePercent {
			return a.CurrentSharePercent > b.CurrentSharePercent
		}
		if a.CurrentCount != b.CurrentCount {
			return a.CurrentCount > b.CurrentCount
		}
		return a.Name < b.Name
	})
	if len(stats) > n {
		stats = stats[:n]
	}
	return stats
}
