// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package poll

import (
	"math"

	"github.com/danielhkuo/livepoll/models"
)

// Tally counts votes per option. Votes outside [0, optionCount) are
// ignored; callers only ever store in-range votes.
func Tally(optionCount int, votes []int) models.Results {
	counts := make([]int, optionCount)
	total := 0
	for _, v := range votes {
		if v < 0 || v >= optionCount {
			continue
		}
		counts[v]++
		total++
	}

	return models.Results{
		Counts:      counts,
		Percentages: Percentages(counts, total),
		TotalVotes:  total,
	}
}

// Percentages computes round(count / total * 100) per option, all zero when
// nobody has voted
func Percentages(counts []int, total int) []int {
	pct := make([]int, len(counts))
	if total == 0 {
		return pct
	}
	for i, c := range counts {
		pct[i] = int(math.Round(float64(c) / float64(total) * 100))
	}
	return pct
}
