package identity

import "sort"

// Match is a confident identification of a query embedding.
type Match struct {
	Name       string  // display name of the matched person
	Confidence float64 // aggregated cosine similarity
}

// Matcher decides whether a query embedding belongs to an enrolled person.
// It is a pure function of the snapshot it is given: no shared mutable
// state, safe to run concurrently for faces of the same frame.
type Matcher struct {
	// Threshold is the aggregated similarity a person must exceed.
	Threshold float64
	// TopK is how many of a person's best reference similarities are
	// averaged. Averaging keeps one outlier reference from causing a false
	// match and one bad query frame from causing a false rejection.
	TopK int
}

// Match compares the query against every reference embedding of every
// person in the snapshot, aggregates per person by averaging the top-K
// similarities, and accepts the best person only above the threshold.
// Ties break by enrollment order: the first-enrolled person wins. That
// tie-break is arbitrary but deliberate, not an accident of map iteration.
func (m *Matcher) Match(query []float32, snap *Snapshot) (Match, bool) {
	best := Match{Confidence: -1}
	for _, entry := range snap.Entries {
		score, ok := m.aggregate(query, entry.Embeddings)
		if !ok {
			continue
		}
		// Strict comparison in enrollment order keeps the first on ties.
		if score > best.Confidence {
			best = Match{Name: entry.Name, Confidence: score}
		}
	}

	if best.Confidence <= m.Threshold {
		return Match{}, false
	}
	return best, true
}

// aggregate averages the top-K cosine similarities between the query and a
// person's reference embeddings.
func (m *Matcher) aggregate(query []float32, references [][]float32) (float64, bool) {
	if len(references) == 0 {
		return 0, false
	}

	similarities := make([]float64, 0, len(references))
	for _, ref := range references {
		similarities = append(similarities, CosineSimilarity(query, ref))
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(similarities)))

	k := m.TopK
	if k <= 0 || k > len(similarities) {
		k = len(similarities)
	}

	var sum float64
	for _, s := range similarities[:k] {
		sum += s
	}
	return sum / float64(k), true
}
