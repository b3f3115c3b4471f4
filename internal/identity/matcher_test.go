package identity

import (
	"testing"
)

func snapshotOf(entries ...SnapshotEntry) *Snapshot {
	return &Snapshot{Entries: entries}
}

func TestMatchThresholdMonotonic(t *testing.T) {
	matcher := &Matcher{Threshold: 0.75, TopK: 5}
	snap := snapshotOf(SnapshotEntry{
		Name:       "Alice",
		Embeddings: [][]float32{{1, 0, 0}},
	})

	// Below threshold: cos(query, ref) ~ 0.71.
	if _, ok := matcher.Match([]float32{1, 1, 0}, snap); ok {
		t.Error("expected Unknown below threshold")
	}

	// Above threshold: cos(query, ref) ~ 0.89.
	match, ok := matcher.Match([]float32{2, 1, 0}, snap)
	if !ok {
		t.Fatal("expected a match above threshold")
	}
	if match.Name != "Alice" {
		t.Errorf("expected Alice, got %s", match.Name)
	}
	if match.Confidence <= 0.75 {
		t.Errorf("expected confidence above threshold, got %v", match.Confidence)
	}
}

func TestMatchTopKAveragingResistsOutlierReference(t *testing.T) {
	matcher := &Matcher{Threshold: 0.75, TopK: 2}

	// Bob has one reference nearly identical to the query and one outlier.
	// With top-2 averaging the outlier alone must not flip the decision
	// toward Carol, whose single reference is merely decent.
	snap := snapshotOf(
		SnapshotEntry{Name: "Bob", Embeddings: [][]float32{
			{1, 0, 0},
			{0.99, 0.05, 0},
			{0, 1, 0}, // outlier, dropped by top-2
		}},
		SnapshotEntry{Name: "Carol", Embeddings: [][]float32{
			{0.9, 0.3, 0},
		}},
	)

	match, ok := matcher.Match([]float32{1, 0, 0}, snap)
	if !ok {
		t.Fatal("expected a match")
	}
	if match.Name != "Bob" {
		t.Errorf("expected Bob, got %s (confidence %v)", match.Name, match.Confidence)
	}
}

func TestMatchTieBreakFirstEnrolledWins(t *testing.T) {
	matcher := &Matcher{Threshold: 0.5, TopK: 5}

	ref := []float32{1, 0, 0}
	snap := snapshotOf(
		SnapshotEntry{Name: "First", Embeddings: [][]float32{ref}},
		SnapshotEntry{Name: "Second", Embeddings: [][]float32{ref}},
	)

	match, ok := matcher.Match([]float32{1, 0, 0}, snap)
	if !ok {
		t.Fatal("expected a match")
	}
	if match.Name != "First" {
		t.Errorf("tie must go to the first-enrolled person, got %s", match.Name)
	}
}

func TestMatchEmptySnapshot(t *testing.T) {
	matcher := &Matcher{Threshold: 0.75, TopK: 5}
	if _, ok := matcher.Match([]float32{1, 0, 0}, snapshotOf()); ok {
		t.Error("expected Unknown against an empty snapshot")
	}
}

func TestMatchTopKLargerThanReferences(t *testing.T) {
	matcher := &Matcher{Threshold: 0.5, TopK: 10}
	snap := snapshotOf(SnapshotEntry{Name: "Alice", Embeddings: [][]float32{{1, 0, 0}, {0.9, 0.1, 0}}})

	if _, ok := matcher.Match([]float32{1, 0, 0}, snap); !ok {
		t.Error("top-k larger than the reference count must average all references")
	}
}
