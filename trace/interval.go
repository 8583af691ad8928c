package trace

import "sort"

// Merge folds ranges into maximal non-overlapping runs, sorted by
// start. Adjacent ranges (finish == next start) are merged as well.
// The input slice is not modified.
func Merge(ranges []TimeRange) []TimeRange {
	if len(ranges) == 0 {
		return nil
	}
	sorted := make([]TimeRange, len(ranges))
	copy(sorted, ranges)
	sort.Slice(sorted, func(i, k int) bool { return sorted[i].Less(sorted[k]) })

	merged := sorted[:1]
	for _, r := range sorted[1:] {
		last := &merged[len(merged)-1]
		if r.Start <= last.Finish {
			last.Finish = last.Finish.Max(r.Finish)
		} else {
			merged = append(merged, r)
		}
	}
	return merged
}

// Covered returns the total duration of a merged, disjoint range set.
func Covered(merged []TimeRange) Time {
	var total Time
	for _, r := range merged {
		total += r.Duration()
	}
	return total
}

// Intersection returns the total duration covered by both of two
// merged, disjoint, sorted range sets.
func Intersection(a, b []TimeRange) Time {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	var total Time
	j := 0
	for _, ar := range a {
		for j < len(b) && b[j].Finish <= ar.Start {
			j++
		}
		for k := j; k < len(b) && b[k].Start < ar.Finish; k++ {
			start := ar.Start.Max(b[k].Start)
			finish := ar.Finish.Min(b[k].Finish)
			if start < finish {
				total += finish - start
			}
		}
	}
	return total
}
