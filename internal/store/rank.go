package store

import (
	"sort"

	"github.com/hyperjump/stemrag/internal/models"
)

// rank keeps matches at or above threshold, orders them by descending
// similarity and truncates to count. Ties keep source order.
func rank(matches []models.Match, threshold float64, count int) []models.Match {
	kept := matches[:0]
	for _, m := range matches {
		if m.Similarity >= threshold {
			kept = append(kept, m)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].Similarity != kept[j].Similarity {
			return kept[i].Similarity > kept[j].Similarity
		}
		if kept[i].SourceFile != kept[j].SourceFile {
			return kept[i].SourceFile < kept[j].SourceFile
		}
		return kept[i].ChunkIndex < kept[j].ChunkIndex
	})
	if count < len(kept) {
		kept = kept[:count]
	}
	return kept
}
