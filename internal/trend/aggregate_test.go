package trend

import (
	"fmt"
	"math"
	"math/rand"
	"testing"

	"trendai/internal/core"
)

func followers(v int64) *int64 { return &v }

func rec(color string, year, month int, f int64) core.Record {
	return core.Record{Color: color, Year: year, Month: month, FollowerCount: followers(f)}
}

func findStat(r core.TrendReport, name string) (core.CategoryStat, string, bool) {
	for _, s := range r.Rising {
		if s.Name == name {
			return s, "rising", true
		}
	}
	for _, s := range r.Stable {
		if s.Name == name {
			return s, "stable", true
		}
	}
	for _, s := range r.Falling {
		if s.Name == name {
			return s, "falling", true
		}
	}
	return core.CategoryStat{}, "", false
}

func TestAggregateRedBlue(t *testing.T) {
	records := []core.Record{
		rec("red", 2024, 3, 500),
		rec("red", 2024, 2, 500),
		rec("blue", 2024, 3, 500),
	}
	c := core.Criteria{Year: 2024, Month: 3, FollowerMin: 0, FollowerMax: followers(1000)}

	report := Aggregate(records, c, core.DimColor.Accessor(), DefaultOptions())

	if report.TotalFilteredCount != 2 {
		t.Fatalf("expected total 2, got %d", report.TotalFilteredCount)
	}
	red, bucket, ok := findStat(report, "red")
	if !ok || bucket != "stable" {
		t.Fatalf("red should be stable, got %q (found=%v)", bucket, ok)
	}
	if red.CurrentCount != 1 || red.PreviousCount != 1 || red.ChangePercent != 0 || red.CurrentSharePercent != 50 {
		t.Fatalf("unexpected red stat: %+v", red)
	}
	blue, bucket, ok := findStat(report, "blue")
	if !ok || bucket != "rising" {
		t.Fatalf("blue should be rising, got %q", bucket)
	}
	if blue.ChangePercent != 100 || blue.PreviousCount != 0 || blue.CurrentSharePercent != 50 {
		t.Fatalf("unexpected blue stat: %+v", blue)
	}
	if report.PreviousPeriod == nil || *report.PreviousPeriod != (core.Period{Year: 2024, Month: 2}) {
		t.Fatalf("unexpected previous period %v", report.PreviousPeriod)
	}
}

func TestAggregateEmpty(t *testing.T) {
	report := Aggregate(nil, core.Criteria{Year: 2024, Month: 3}, core.DimColor.Accessor(), DefaultOptions())
	if report.TotalFilteredCount != 0 {
		t.Fatalf("expected 0, got %d", report.TotalFilteredCount)
	}
	if report.Rising == nil || report.Stable == nil || report.Falling == nil {
		t.Fatal("buckets must be empty slices, not nil")
	}
	if !report.IsEmpty() {
		t.Fatal("expected empty report")
	}
}

func TestAggregateYearBoundary(t *testing.T) {
	records := []core.Record{
		rec("black", 2024, 1, 10),
		rec("black", 2023, 12, 10),
		rec("black", 2023, 12, 10),
		rec("black", 2024, 12, 10), // same month number, wrong year
	}
	report := Aggregate(records, core.Criteria{Year: 2024, Month: 1}, core.DimColor.Accessor(), DefaultOptions())

	black, bucket, ok := findStat(report, "black")
	if !ok || bucket != "falling" {
		t.Fatalf("black should be falling, got %q", bucket)
	}
	if black.PreviousCount != 2 || black.ChangePercent != -50 {
		t.Fatalf("unexpected stat %+v", black)
	}
	if *report.PreviousPeriod != (core.Period{Year: 2023, Month: 12}) {
		t.Fatalf("unexpected previous period %v", *report.PreviousPeriod)
	}
}

func TestAggregateAllPeriodsHasNoComparison(t *testing.T) {
	records := []core.Record{rec("red", 2024, 3, 1), rec("red", 2024, 2, 1)}
	report := Aggregate(records, core.Criteria{Year: 2024}, core.DimColor.Accessor(), DefaultOptions())

	red, bucket, _ := findStat(report, "red")
	if red.CurrentCount != 2 || red.PreviousCount != 0 || bucket != "rising" {
		t.Fatalf("unexpected red %+v in %s", red, bucket)
	}
	if report.Period != nil || report.PreviousPeriod != nil {
		t.Fatal("expected no periods on report")
	}
}

func TestAggregateSkipsBlankAndUnknownFollowers(t *testing.T) {
	records := []core.Record{
		rec("  ", 2024, 3, 1),
		rec("null", 2024, 3, 1),
		rec(" red ", 2024, 3, 1),
		{Color: "green", Year: 2024, Month: 3},
	}
	report := Aggregate(records, core.Criteria{Year: 2024, Month: 3}, core.DimColor.Accessor(), DefaultOptions())
	if report.TotalFilteredCount != 1 {
		t.Fatalf("expected 1, got %d", report.TotalFilteredCount)
	}
	if _, _, ok := findStat(report, "red"); !ok {
		t.Fatal("expected trimmed red")
	}
	if _, _, ok := findStat(report, "green"); ok {
		t.Fatal("record without follower count must be excluded")
	}
}

func TestAggregatePreviousOnlyCategoryNotReported(t *testing.T) {
	records := []core.Record{rec("red", 2024, 3, 1), rec("gray", 2024, 2, 1)}
	report := Aggregate(records, core.Criteria{Year: 2024, Month: 3}, core.DimColor.Accessor(), DefaultOptions())
	if _, _, ok := findStat(report, "gray"); ok {
		t.Fatal("gray only exists in the previous month")
	}
}

func TestAggregatePreviousPeriodUsesSameFilters(t *testing.T) {
	inL1 := func(color, l1 string, year, month int, f int64) core.Record {
		r := rec(color, year, month, f)
		r.CategoryL1 = l1
		return r
	}
	records := []core.Record{
		inL1("red", "top", 2024, 3, 500),
		inL1("red", "top", 2024, 3, 500),
		inL1("red", "top", 2024, 2, 500),
		// previous month records rejected by the non-date filters
		inL1("red", "top", 2024, 2, 5000),
		inL1("red", "bottom", 2024, 2, 500),
		{Color: "red", CategoryL1: "top", Year: 2024, Month: 2},
	}
	c := core.Criteria{Year: 2024, Month: 3, CategoryL1: "top", FollowerMax: followers(1000)}

	report := Aggregate(records, c, core.DimColor.Accessor(), DefaultOptions())

	red, bucket, ok := findStat(report, "red")
	if !ok {
		t.Fatal("red missing from report")
	}
	if red.PreviousCount != 1 {
		t.Fatalf("previous count must only include filtered records, got %d", red.PreviousCount)
	}
	if red.ChangePercent != 100 || bucket != "rising" {
		t.Fatalf("unexpected red stat %+v in %s", red, bucket)
	}
}

func TestAggregateStableBandEdges(t *testing.T) {
	var records []core.Record
	// 21 now vs 20 before = +5% (stable), 19 vs 20 = -5% (stable), 18 vs 20 = -10%
	add := func(color string, year, month, n int) {
		for i := 0; i < n; i++ {
			records = append(records, rec(color, year, month, 1))
		}
	}
	add("a", 2024, 5, 21)
	add("a", 2024, 4, 20)
	add("b", 2024, 5, 19)
	add("b", 2024, 4, 20)
	add("c", 2024, 5, 18)
	add("c", 2024, 4, 20)

	report := Aggregate(records, core.Criteria{Year: 2024, Month: 5}, core.DimColor.Accessor(), DefaultOptions())
	for name, want := range map[string]string{"a": "stable", "b": "stable", "c": "falling"} {
		if _, got, _ := findStat(report, name); got != want {
			t.Fatalf("%s: got %s, want %s", name, got, want)
		}
	}
}

func TestAggregateRankingAndTopN(t *testing.T) {
	var records []core.Record
	for i := 0; i < 15; i++ {
		name := fmt.Sprintf("c%02d", i)
		for j := 0; j <= i; j++ {
			records = append(records, rec(name, 2024, 3, 1))
		}
	}
	records = append(records, rec("tie-b", 2024, 3, 1), rec("tie-a", 2024, 3, 1))

	report := Aggregate(records, core.Criteria{Year: 2024, Month: 3}, core.DimColor.Accessor(), DefaultOptions())
	if len(report.Rising) != DefaultTopN {
		t.Fatalf("expected %d rising, got %d", DefaultTopN, len(report.Rising))
	}
	if report.Rising[0].Name != "c14" {
		t.Fatalf("expected c14 first, got %s", report.Rising[0].Name)
	}

	report = Aggregate(records, core.Criteria{Year: 2024, Month: 3}, core.DimColor.Accessor(), Options{TopN: 100, StableBand: 5})
	n := len(report.Rising)
	if report.Rising[n-3].Name != "c00" || report.Rising[n-2].Name != "tie-a" || report.Rising[n-1].Name != "tie-b" {
		t.Fatalf("unexpected tail order: %v", report.Rising[n-3:])
	}
}

func TestAggregateProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	colors := []string{"red", "blue", "green", "black", "white", "navy", "beige", "", "null"}

	for iter := 0; iter < 50; iter++ {
		var records []core.Record
		n := rng.Intn(300)
		for i := 0; i < n; i++ {
			r := rec(colors[rng.Intn(len(colors))], 2024, 1+rng.Intn(3), int64(rng.Intn(2000)))
			if rng.Intn(20) == 0 {
				r.FollowerCount = nil
			}
			records = append(records, r)
		}
		c := core.Criteria{Year: 2024, Month: 2 + rng.Intn(2), FollowerMax: followers(1500)}
		report := Aggregate(records, c, core.DimColor.Accessor(), DefaultOptions())

		seen := map[string]bool{}
		sum := 0.0
		for _, bucket := range [][]core.CategoryStat{report.Rising, report.Stable, report.Falling} {
			if len(bucket) > DefaultTopN {
				t.Fatalf("bucket longer than %d", DefaultTopN)
			}
			for i, s := range bucket {
				if seen[s.Name] {
					t.Fatalf("%s appears twice", s.Name)
				}
				seen[s.Name] = true
				sum += s.CurrentSharePercent
				if s.PreviousCount == 0 && s.CurrentCount > 0 && s.ChangePercent != 100 {
					t.Fatalf("new entrant %s has change %v", s.Name, s.ChangePercent)
				}
				if i > 0 && bucket[i-1].CurrentSharePercent < s.CurrentSharePercent {
					t.Fatal("bucket not sorted by share")
				}
			}
		}
		if report.TotalFilteredCount > 0 && math.Abs(sum-100) > 0.1 {
			t.Fatalf("shares sum to %v", sum)
		}
		if report.TotalFilteredCount == 0 && !report.IsEmpty() {
			t.Fatal("expected empty buckets when nothing matched")
		}
	}
}

func TestShareAndChangeRounding(t *testing.T) {
	if got := Share(1, 3); got != 33.33 {
		t.Fatalf("Share(1,3) = %v", got)
	}
	if got := Share(2, 3); got != 66.67 {
		t.Fatalf("Share(2,3) = %v", got)
	}
	if got := Share(1, 0); got != 0 {
		t.Fatalf("Share(1,0) = %v", got)
	}
	if got := Change(1, 3); got != -66.67 {
		t.Fatalf("Change(1,3) = %v", got)
	}
	if got := Change(0, 0); got != 0 {
		t.Fatalf("Change(0,0) = %v", got)
	}
	if got := Change(7, 0); got != 100 {
		t.Fatalf("Change(7,0) = %v", got)
	}
}
