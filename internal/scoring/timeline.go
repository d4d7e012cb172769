package scoring

import "sort"

// OrganizeByTimeline keeps scores at or above threshold and buckets them by
// category. Each bucket is ordered by score descending, then data id.
func OrganizeByTimeline(scores []Score, threshold float64) map[Category][]Score {
	buckets := make(map[Category][]Score)
	for _, s := range scores {
		if s.OverallScore < threshold {
			continue
		}
		buckets[s.Category] = append(buckets[s.Category], s)
	}
	for _, bucket := range buckets {
		sort.SliceStable(bucket, func(i, j int) bool {
			if bucket[i].OverallScore != bucket[j].OverallScore {
				return bucket[i].OverallScore > bucket[j].OverallScore
			}
			return bucket[i].DataID < bucket[j].DataID
		})
	}
	return buckets
}
