package rank

import (
	"cmp"
	"slices"

	"github.com/FranksOps/partscout/internal/storage"
)

// Key is the value listings are ordered by: the most positive review
// compound when the listing has reviews, otherwise the compound of its
// own description.
func Key(l storage.Listing) float64 {
	if len(l.Reviews) == 0 {
		return l.Sentiment.Compound
	}
	best := l.Reviews[0].Sentiment.Compound
	for _, r := range l.Reviews[1:] {
		best = max(best, r.Sentiment.Compound)
	}
	return best
}

// Sort orders listings by descending Key in place. Listings with equal
// keys keep their aggregation order.
func Sort(listings []storage.Listing) {
	slices.SortStableFunc(listings, func(a, b storage.Listing) int {
		return cmp.Compare(Key(b), Key(a))
	})
}

// Keys returns the rank key of every listing, in slice order.
func Keys(listings []storage.Listing) []float64 {
	keys := make([]float64, len(listings))
	for i, l := range listings {
		keys[i] = Key(l)
	}
	return keys
}
