package trend

import (
	"sort"

	"trendai/internal/core"
)

// DefaultOtherLabel names the folded bucket.
const DefaultOtherLabel = "기타"

type entry struct {
	name  string
	count int
}

// FoldOther keeps the maxItems largest counts and folds the remainder, plus
// anything below threshold, into a single bucket named label. Non-positive
// maxItems or threshold disable that step. The output counts always sum to
// the input counts. Buckets are ordered by count, descending; the folded
// bucket sorts after named categories with the same count.
func FoldOther(counts map[string]int, maxItems, threshold int, label string) []core.Bucket {
	if label == "" {
		label = DefaultOtherLabel
	}

	entries := make([]entry, 0, len(counts))
	other := 0
	for name, n := range counts {
		if n <= 0 {
			continue
		}
		if name == label {
			other += n
			continue
		}
		entries = append(entries, entry{name, n})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].name < entries[j].name
	})

	if maxItems > 0 && len(entries) > maxItems {
		for _, e := range entries[maxItems:] {
			other += e.count
		}
		entries = entries[:maxItems]
	}

	if threshold > 0 {
		kept := entries[:0]
		for _, e := range entries {
			if e.count < threshold {
				other += e.count
				continue
			}
			kept = append(kept, e)
		}
		entries = kept
	}

	total := other
	for _, e := range entries {
		total += e.count
	}

	buckets := make([]core.Bucket, 0, len(entries)+1)
	for _, e := range entries {
		buckets = append(buckets, core.Bucket{Name: e.name, Count: e.count, SharePercent: Share(e.count, total)})
	}
	if other > 0 {
		buckets = append(buckets, core.Bucket{Name: label, Count: other, SharePercent: Share(other, total), Other: true})
	}
	sort.SliceStable(buckets, func(i, j int) bool { return buckets[i].Count > buckets[j].Count })
	return buckets
}

// Breakdown counts one dimension over the records matching c and folds it.
func Breakdown(records []core.Record, c core.Criteria, dim core.Dimension, maxItems, threshold int, label string) core.Breakdown {
	counts, total := Count(records, c, dim.Accessor())
	return core.Breakdown{
		Dimension: dim,
		Total:     total,
		Buckets:   FoldOther(counts, maxItems, threshold, label),
	}
}
